// Package vec implements a SQLite virtual table for vector search with
// MATCH semantics. Each virtual table has a per-table shadow table that stores
// ids, content, metadata and embeddings per dataset. Index blobs are
// persisted in the shared vector_storage table and cached per process.
//
//	CREATE VIRTUAL TABLE docs USING vec(doc_id, index=kdtree, kd_bucket=16);
//	SELECT doc_id, match_score FROM docs
//	WHERE dataset_id = 'ds' AND doc_id MATCH '[1,2]' AND match_k = 5;
//
// index=auto (the default) uses the kd-tree for embeddings of at most 32
// dimensions and a brute-force cosine scan above that. Writes to the shadow
// table drop the persisted and cached index of the touched dataset through
// triggers calling vec_invalidate.
package vec
