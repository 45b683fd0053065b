// Package index defines a minimal abstraction for vector indexes that can be
// built from embeddings, queried for kNN, and serialized for persistence.
// Implementations in this module are an exact brute-force scan and an
// incrementally built kd-tree.
package index
