package vecutil

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/viant/sqlite-kdtree/vector"
)

// EmbedFunc converts free-form text into an embedding.
//
// Implementations can call any embedding provider as long as they return a
// slice of float32 values. The vec packages only depend on the numeric
// vectors and their encoded BLOB representation.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// ShadowTableName derives the shadow table name of a vec virtual table:
//
//	ShadowTableName("docs") == "_vec_docs"
func ShadowTableName(virtualTable string) string {
	return "_vec_" + virtualTable
}

// UpsertShadowDocument inserts or updates a document of a dataset in a vec
// shadow table, computing the embedding from content with embed.
//
// shadowTable is interpolated into SQL and must be trusted.
func UpsertShadowDocument(
	ctx context.Context,
	db *sql.DB,
	shadowTable string,
	embed EmbedFunc,
	datasetID, id, content, meta string,
) error {
	if db == nil {
		return fmt.Errorf("vecutil: db is nil")
	}
	if embed == nil {
		return fmt.Errorf("vecutil: EmbedFunc is nil")
	}
	vec, err := embed(ctx, content)
	if err != nil {
		return err
	}
	return UpsertShadowVector(ctx, db, shadowTable, datasetID, id, content, meta, vec)
}

// UpsertShadowVector stores a precomputed embedding.
func UpsertShadowVector(
	ctx context.Context,
	db *sql.DB,
	shadowTable string,
	datasetID, id, content, meta string,
	vec []float32,
) error {
	if db == nil {
		return fmt.Errorf("vecutil: db is nil")
	}
	blob, err := vector.EncodeEmbedding(vec)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf(`
INSERT INTO %s(dataset_id, id, content, meta, embedding)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(dataset_id, id) DO UPDATE SET
  content = excluded.content,
  meta = excluded.meta,
  embedding = excluded.embedding`, shadowTable)
	_, err = db.ExecContext(ctx, stmt, datasetID, id, content, meta, blob)
	return err
}

// UpsertVirtualTableDocument is UpsertShadowDocument with the shadow table
// derived from the virtual table name.
func UpsertVirtualTableDocument(
	ctx context.Context,
	db *sql.DB,
	virtualTable string,
	embed EmbedFunc,
	datasetID, id, content, meta string,
) error {
	return UpsertShadowDocument(ctx, db, ShadowTableName(virtualTable), embed, datasetID, id, content, meta)
}

// MatchText runs a MATCH query for the embedding of query against one
// dataset of a vec virtual table whose id column is column. It returns ids
// nearest first; limit <= 0 returns all of them.
func MatchText(
	ctx context.Context,
	db *sql.DB,
	virtualTable, column, datasetID string,
	embed EmbedFunc,
	query string,
	limit int,
) ([]string, error) {
	if db == nil {
		return nil, fmt.Errorf("vecutil: db is nil")
	}
	if embed == nil {
		return nil, fmt.Errorf("vecutil: EmbedFunc is nil")
	}
	vec, err := embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := match(ctx, db, virtualTable, column, datasetID, vec, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.id
	}
	return ids, nil
}

type hit struct {
	id    string
	score float64
}

// match pushes k into the index through match_k.
func match(ctx context.Context, db *sql.DB, virtualTable, column, datasetID string, vec []float32, k int) ([]hit, error) {
	blob, err := vector.EncodeEmbedding(vec)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s, match_score FROM %s WHERE dataset_id = ? AND %s MATCH ?", column, virtualTable, column)
	args := []any{datasetID, blob}
	if k > 0 {
		q += " AND match_k = ?"
		args = append(args, k)
	}
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []hit
	for rows.Next() {
		var h hit
		if err := rows.Scan(&h.id, &h.score); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
