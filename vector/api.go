package vector

import (
	"context"
)

// Document is a row of the docs table together with its embedding.
type Document struct {
	// ID is the logical identifier of the document and must be set on insert.
	ID string

	Content string

	// Metadata is an opaque payload, usually JSON.
	Metadata string

	Embedding []float32

	// Score is set by SimilaritySearch: 1/(1+d) with d the Euclidean
	// distance to the query.
	Score float64
}

// Store is the application-level document store with kNN search.
type Store interface {
	// AddDocuments inserts documents and returns their IDs.
	AddDocuments(ctx context.Context, docs []Document) ([]string, error)

	// SimilaritySearch returns up to k documents nearest to queryEmbedding,
	// nearest first.
	SimilaritySearch(ctx context.Context, queryEmbedding []float32, k int) ([]Document, error)

	// Remove deletes the document with the given ID.
	Remove(ctx context.Context, id string) error
}
