// Package kdtree provides a vector index backed by an incrementally built
// bucket kd-tree. It answers exact kNN queries under Euclidean distance and,
// unlike the brute-force index, accepts new vectors without a rebuild.
//
// Persistence stores the indexed point set; loading re-inserts the points.
package kdtree
