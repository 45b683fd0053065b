package vecutil

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/viant/sqlite-kdtree/vector"
)

// Index is a Pinecone-style API over one dataset of a vec virtual table and
// its shadow table. Embeddings come from the caller's EmbedFunc.
type Index struct {
	DB          *sql.DB
	VirtualName string
	ShadowName  string
	// Column is the id column declared in USING vec(column); doc_id by default.
	Column    string
	DatasetID string
	Embed     EmbedFunc
}

// NewIndex constructs an Index for a vec virtual table declared with the
// default doc_id column.
func NewIndex(db *sql.DB, virtualTable string, datasetID string, embed EmbedFunc) (*Index, error) {
	if db == nil {
		return nil, fmt.Errorf("vecutil: db is nil")
	}
	if embed == nil {
		return nil, fmt.Errorf("vecutil: EmbedFunc is nil")
	}
	return &Index{
		DB:          db,
		VirtualName: virtualTable,
		ShadowName:  ShadowTableName(virtualTable),
		Column:      "doc_id",
		DatasetID:   datasetID,
		Embed:       embed,
	}, nil
}

// Document is a logical document of the dataset.
type Document struct {
	ID      string
	Content string
	Meta    string
}

// Match is a single similarity search hit.
type Match struct {
	ID string
	// Score is 1/(1+d) with d the Euclidean distance to the query.
	Score    float64
	Distance float64
	Content  string
	Meta     string
}

// UpsertDocumentsText embeds Content of each document and upserts it.
func (ix *Index) UpsertDocumentsText(ctx context.Context, docs []Document) error {
	for _, d := range docs {
		if err := UpsertShadowDocument(ctx, ix.DB, ix.ShadowName, ix.Embed, ix.DatasetID, d.ID, d.Content, d.Meta); err != nil {
			return err
		}
	}
	return nil
}

// DeleteDocuments removes documents by id. The shadow triggers drop the
// persisted index, which is rebuilt on the next query.
func (ix *Index) DeleteDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if ix.DB == nil {
		return fmt.Errorf("vecutil: DB is nil on Index")
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE dataset_id = ? AND id = ?", ix.ShadowName)
	for _, id := range ids {
		if _, err := ix.DB.ExecContext(ctx, stmt, ix.DatasetID, id); err != nil {
			return err
		}
	}
	return nil
}

// QueryText returns the k documents nearest to the embedding of query,
// nearest first. k <= 0 returns every document of the dataset.
func (ix *Index) QueryText(ctx context.Context, query string, k int) ([]Match, error) {
	if ix.DB == nil {
		return nil, fmt.Errorf("vecutil: DB is nil on Index")
	}
	if ix.Embed == nil {
		return nil, fmt.Errorf("vecutil: EmbedFunc is nil on Index")
	}
	qVec, err := ix.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	column := ix.Column
	if column == "" {
		column = "doc_id"
	}
	hits, err := match(ctx, ix.DB, ix.VirtualName, column, ix.DatasetID, qVec, k)
	if err != nil || len(hits) == 0 {
		return nil, err
	}

	// Scores are recomputed from stored embeddings so they do not depend on
	// which index kind the table uses.
	stmt := fmt.Sprintf("SELECT content, meta, embedding FROM %s WHERE dataset_id = ? AND id = ?", ix.ShadowName)
	out := make([]Match, 0, len(hits))
	for _, h := range hits {
		var content, meta sql.NullString
		var blob []byte
		if err := ix.DB.QueryRowContext(ctx, stmt, ix.DatasetID, h.id).Scan(&content, &meta, &blob); err != nil {
			return nil, err
		}
		emb, err := vector.DecodeEmbedding(blob)
		if err != nil {
			return nil, err
		}
		d, err := vector.L2Distance(qVec, emb)
		if err != nil {
			return nil, err
		}
		out = append(out, Match{
			ID:       h.id,
			Score:    vector.L2Score(d),
			Distance: d,
			Content:  content.String,
			Meta:     meta.String,
		})
	}
	return out, nil
}
