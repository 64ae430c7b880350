// Package retriever answers queries against the hybrid index.
//
// A retrieval embeds the query twice, once per model, then issues a single
// fused index query. Failures carry the stage they occurred in so an
// operator can tell a dead embedding provider from a dead index.
package retriever

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/vectormath"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

// DenseQueryEmbedder embeds one query into a dense vector.
type DenseQueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// SparseQueryEmbedder embeds one query into a sparse vector.
type SparseQueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) (vectormath.SparseVector, error)
}

// Retriever runs hybrid retrieval over an index.
type Retriever struct {
	dense  DenseQueryEmbedder
	sparse SparseQueryEmbedder
	index  vectorstore.Index
	topK   int
	logger *logging.Logger
}

// New creates a Retriever. topK is the default result count for Retrieve
// calls that do not specify one.
func New(dense DenseQueryEmbedder, sparse SparseQueryEmbedder, index vectorstore.Index, topK int, logger *logging.Logger) (*Retriever, error) {
	if dense == nil || sparse == nil {
		return nil, fmt.Errorf("both embedders are required")
	}
	if index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if topK <= 0 {
		return nil, fmt.Errorf("top k must be > 0, got %d", topK)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Retriever{
		dense:  dense,
		sparse: sparse,
		index:  index,
		topK:   topK,
		logger: logger.Named("retriever"),
	}, nil
}

// Retrieve returns up to k matches for query, best first. k <= 0 uses the
// configured default. An empty result set is a valid answer, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]vectorstore.Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if k <= 0 {
		k = r.topK
	}

	start := time.Now()

	denseVec, err := r.dense.EmbedQuery(ctx, query)
	if err != nil {
		r.logger.Error(ctx, "query embedding failed",
			zap.String("stage", "dense"),
			zap.Error(err),
		)
		return nil, fmt.Errorf("embedding query (dense): %w", err)
	}

	sparseVec, err := r.sparse.EmbedQuery(ctx, query)
	if err != nil {
		r.logger.Error(ctx, "query embedding failed",
			zap.String("stage", "sparse"),
			zap.Error(err),
		)
		return nil, fmt.Errorf("embedding query (sparse): %w", err)
	}

	matches, err := r.index.HybridQuery(ctx, denseVec, sparseVec, k)
	if err != nil {
		if vectorstore.IsIndexError(err) {
			r.logger.Error(ctx, "index query failed", zap.Error(err))
		} else {
			r.logger.Error(ctx, "retrieval failed", zap.Error(err))
		}
		return nil, fmt.Errorf("querying index: %w", err)
	}

	r.logger.Info(ctx, "query answered",
		zap.Int("requested", k),
		zap.Int("matches", len(matches)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return matches, nil
}
