// Package vectorstore provides the hybrid vector index backing retrieval.
//
// Chunks are stored with two named vectors, a dense semantic vector and a
// sparse lexical one, and queried with server-side rank fusion so a single
// query call merges both signals.
package vectorstore

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/corpusd/internal/vectormath"
)

var (
	// ErrInvalidConfig indicates invalid index configuration.
	ErrInvalidConfig = errors.New("invalid vector store config")

	// ErrInvalidCollectionName indicates a collection name that fails
	// validation rules.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrConnectionFailed indicates the index server could not be reached.
	ErrConnectionFailed = errors.New("vector store connection failed")

	// ErrIndexOperation wraps every failed index operation so callers can
	// tell index failures apart from their own.
	ErrIndexOperation = errors.New("vector index operation failed")
)

// Record is one chunk ready for indexing: its identifier, both vector
// representations, and the payload stored alongside them.
type Record struct {
	ID      string
	Dense   []float32
	Sparse  vectormath.SparseVector
	Payload map[string]any
}

// Match is one retrieval hit, best first.
type Match struct {
	// ID is the chunk identifier the record was stored under.
	ID string

	// Score is the fused relevance score.
	Score float32

	// Content is the indexed chunk text.
	Content string

	// Metadata holds the remaining payload fields.
	Metadata map[string]any
}

// Index is the surface the ingestion pipeline and retriever depend on.
type Index interface {
	// EnsureCollection creates the hybrid collection if it does not exist.
	EnsureCollection(ctx context.Context) error

	// Upsert writes records, overwriting any with the same id.
	Upsert(ctx context.Context, records []Record) error

	// HybridQuery runs one fused dense-plus-sparse query and returns up to
	// limit matches, best first.
	HybridQuery(ctx context.Context, dense []float32, sparse vectormath.SparseVector, limit int) ([]Match, error)

	// Close releases the underlying connection.
	Close() error
}

// IsIndexError reports whether err originated in the index rather than in
// the caller's own preparation of a request.
func IsIndexError(err error) bool {
	return errors.Is(err, ErrIndexOperation) || errors.Is(err, ErrConnectionFailed)
}
