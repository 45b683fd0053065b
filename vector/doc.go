// Package vector is a SQLite-backed document store with kNN search:
//   - Document model and Store interface
//   - SQLiteStore: rows in the docs table, an in-memory kd index over their
//     embeddings
//   - Embedding encoding (BLOB) and distance functions
package vector
