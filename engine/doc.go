// Package engine opens modernc.org/sqlite databases and registers the vector
// scalar functions vec_cosine, vec_l2 and vec_l2sq over embedding BLOBs.
package engine
