package vector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/viant/sqlite-kdtree/index/kdtree"
)

// SQLiteStore keeps documents in the docs table and answers similarity
// searches with an in-memory kd index over their embeddings. The index is
// appended to on insert and rebuilt from the table after a removal or a
// failed write.
type SQLiteStore struct {
	db   *sql.DB
	opts []kdtree.Option

	mu    sync.Mutex
	index *kdtree.Index
	stale bool
}

// NewSQLiteStore creates a Store over db, creating the docs table when
// missing. opts configure the kd index.
func NewSQLiteStore(db *sql.DB, opts ...kdtree.Option) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("vector: db is nil")
	}
	if err := EnsureSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, opts: opts, index: kdtree.New(opts...), stale: true}, nil
}

// AddDocuments inserts documents into the docs table and their embeddings
// into the index. Document.ID must be set. Embeddings must share the
// dimensionality of the stored ones. Nothing is written when any document
// fails.
func (s *SQLiteStore) AddDocuments(ctx context.Context, docs []Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO docs(id, content, meta, embedding) VALUES(?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	dims, err := s.storedDims(ctx, tx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	var indexIDs []string
	var vectors [][]float32
	for _, d := range docs {
		if d.ID == "" {
			return nil, fmt.Errorf("vector: Document.ID must be set in AddDocuments")
		}
		if n := len(d.Embedding); n > 0 {
			if dims == 0 {
				dims = n
			} else if n != dims {
				return nil, fmt.Errorf("vector: document %s has %d dimensions, want %d: %w", d.ID, n, dims, kdtree.ErrDimensionMismatch)
			}
		}
		emb, err := EncodeEmbedding(d.Embedding)
		if err != nil {
			return nil, fmt.Errorf("vector: document %s: %w", d.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.Content, d.Metadata, emb); err != nil {
			return nil, err
		}
		ids = append(ids, d.ID)
		if len(d.Embedding) > 0 {
			indexIDs = append(indexIDs, d.ID)
			vectors = append(vectors, d.Embedding)
		}
	}

	if !s.stale && len(vectors) > 0 {
		if err := s.index.Add(indexIDs, vectors); err != nil {
			s.stale = true
			return nil, fmt.Errorf("vector: index documents: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		s.stale = true
		return nil, err
	}
	return ids, nil
}

// SimilaritySearch returns up to k documents ordered by increasing Euclidean
// distance to queryEmbedding, with Score set.
func (s *SQLiteStore) SimilaritySearch(ctx context.Context, queryEmbedding []float32, k int) ([]Document, error) {
	if k <= 0 {
		return nil, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureIndex(ctx); err != nil {
		return nil, err
	}
	matches, err := s.index.Search(queryEmbedding, k)
	if err != nil {
		return nil, fmt.Errorf("vector: search: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	ids := make([]any, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := s.db.QueryContext(ctx, `SELECT id, content, meta, embedding FROM docs WHERE id IN (`+placeholders+`)`, ids...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]Document, len(matches))
	for rows.Next() {
		var d Document
		var content, meta sql.NullString
		var blob []byte
		if err := rows.Scan(&d.ID, &content, &meta, &blob); err != nil {
			return nil, err
		}
		d.Content, d.Metadata = content.String, meta.String
		if d.Embedding, err = DecodeEmbedding(blob); err != nil {
			return nil, err
		}
		byID[d.ID] = d
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Document, 0, len(matches))
	for _, m := range matches {
		d, ok := byID[m.ID]
		if !ok {
			continue
		}
		d.Score = m.Score
		out = append(out, d)
	}
	return out, nil
}

// Remove deletes a document by ID. The index is rebuilt on the next search.
func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("vector: Remove called with empty id")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM docs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.stale = true
	}
	return nil
}

// Reindex rebuilds the kd index from the docs table.
func (s *SQLiteStore) Reindex(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale = true
	return s.ensureIndex(ctx)
}

// Len returns the number of indexed embeddings, rebuilding the index if needed.
func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureIndex(ctx); err != nil {
		return 0, err
	}
	return s.index.Len(), nil
}

// storedDims returns the dimensionality of the stored embeddings, 0 when
// none is stored.
func (s *SQLiteStore) storedDims(ctx context.Context, tx *sql.Tx) (int, error) {
	if !s.stale {
		return s.index.Dims(), nil
	}
	var size int
	err := tx.QueryRowContext(ctx, `SELECT length(embedding) FROM docs WHERE embedding IS NOT NULL AND length(embedding) > 0 ORDER BY rowid LIMIT 1`).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return size / 4, nil
}

func (s *SQLiteStore) ensureIndex(ctx context.Context) error {
	if !s.stale {
		return nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM docs WHERE embedding IS NOT NULL AND length(embedding) > 0 ORDER BY rowid`)
	if err != nil {
		return err
	}
	defer rows.Close()
	var ids []string
	var vectors [][]float32
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return err
		}
		vec, err := DecodeEmbedding(blob)
		if err != nil {
			return fmt.Errorf("vector: document %s: %w", id, err)
		}
		ids = append(ids, id)
		vectors = append(vectors, vec)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	idx := kdtree.New(s.opts...)
	if err := idx.Build(ids, vectors); err != nil {
		return fmt.Errorf("vector: build index: %w", err)
	}
	s.index = idx
	s.stale = false
	return nil
}

var _ Store = (*SQLiteStore)(nil)
