// Package bruteforce provides a simple vector index that answers kNN queries
// by scanning all vectors and scoring them by cosine similarity or Euclidean
// similarity. Its compact binary point encoding is shared with the kd-tree
// index for persistence in the vector_storage table.
package bruteforce
