// Package embeddings converts chunk text into dense and sparse vectors via
// external embedding providers.
//
// Two embedders exist side by side: a dense semantic model (Gemini) and a
// sparse lexical model (SPLADE-style HTTP service). Both run the same batch
// contract: fixed-size batches, a proactive inter-batch throttle, exponential
// backoff on the provider's rate-limit errors, and unit-norm output in input
// order.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/retry"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrRateLimited indicates the provider rejected a request for quota reasons.
	ErrRateLimited = errors.New("embedding provider rate limited")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// embedFn produces raw vectors for one batch of texts.
type embedFn[V any] func(ctx context.Context, texts []string) ([]V, error)

// processor implements the shared batching contract for one embedding model.
// V is the vector type ([]float32 for dense, vectormath.SparseVector for
// sparse); everything else differs only by configuration.
type processor[V any] struct {
	name          string
	model         string
	embedDocs     embedFn[V]
	embedQuery    embedFn[V]
	normalize     func([]V) []V
	retryable     func(error) bool
	batchSize     int
	maxQueryChars int
	limiter       *rate.Limiter
	retryPolicy   retry.Policy
	logger        *logging.Logger
	metrics       *Metrics
}

// EmbedDocuments embeds a list of texts. The returned vector list has the
// same length and order as the input regardless of batch boundaries.
func (p *processor[V]) EmbedDocuments(ctx context.Context, texts []string) ([]V, error) {
	start := time.Now()
	var genErr error
	defer func() {
		p.metrics.RecordGeneration(ctx, p.model, "embed_documents", time.Since(start), len(texts), genErr)
	}()

	if len(texts) == 0 {
		genErr = fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
		return nil, genErr
	}

	batches := batchTexts(texts, p.batchSize)
	out := make([]V, 0, len(texts))
	for i, batch := range batches {
		// Unconditional throttle between batches to stay under provider quota.
		if err := p.limiter.Wait(ctx); err != nil {
			genErr = fmt.Errorf("waiting for throttle: %w", err)
			return nil, genErr
		}

		vectors, err := p.runBatch(ctx, p.embedDocs, batch)
		if err != nil {
			genErr = fmt.Errorf("%s embedding batch %d/%d: %w", p.name, i+1, len(batches), err)
			p.logger.Error(ctx, "embedding batch failed",
				zap.String("model", p.model),
				zap.Int("batch", i+1),
				zap.Int("batches", len(batches)),
				zap.Error(err),
			)
			return nil, genErr
		}
		if len(vectors) != len(batch) {
			genErr = fmt.Errorf("%w: batch %d/%d returned %d vectors for %d inputs",
				ErrEmbeddingFailed, i+1, len(batches), len(vectors), len(batch))
			return nil, genErr
		}
		out = append(out, vectors...)
	}

	p.logger.Debug(ctx, "embedded documents",
		zap.String("model", p.model),
		zap.Int("texts", len(texts)),
		zap.Int("batches", len(batches)),
	)
	return p.normalize(out), nil
}

// EmbedQuery embeds a single query text. Overlong queries are truncated to
// the provider's per-item limit before submission.
func (p *processor[V]) EmbedQuery(ctx context.Context, text string) (V, error) {
	var zero V

	start := time.Now()
	var genErr error
	defer func() {
		p.metrics.RecordGeneration(ctx, p.model, "embed_query", time.Since(start), 1, genErr)
	}()

	if text == "" {
		genErr = fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
		return zero, genErr
	}
	if p.maxQueryChars > 0 && len(text) > p.maxQueryChars {
		p.logger.Warn(ctx, "query exceeds provider limit, truncating",
			zap.Int("length", len(text)),
			zap.Int("limit", p.maxQueryChars),
		)
		text = text[:p.maxQueryChars]
	}

	if err := p.limiter.Wait(ctx); err != nil {
		genErr = fmt.Errorf("waiting for throttle: %w", err)
		return zero, genErr
	}

	vectors, err := p.runBatch(ctx, p.embedQuery, []string{text})
	if err != nil {
		genErr = fmt.Errorf("%s query embedding: %w", p.name, err)
		p.logger.Error(ctx, "query embedding failed",
			zap.String("model", p.model),
			zap.Error(err),
		)
		return zero, genErr
	}
	if len(vectors) != 1 {
		genErr = fmt.Errorf("%w: got %d vectors for one query", ErrEmbeddingFailed, len(vectors))
		return zero, genErr
	}
	return p.normalize(vectors)[0], nil
}

// runBatch submits one batch, retrying only the provider's rate-limit error
// class with exponential backoff. Everything else fails on first occurrence.
func (p *processor[V]) runBatch(ctx context.Context, fn embedFn[V], batch []string) ([]V, error) {
	policy := p.retryPolicy
	policy.Retryable = p.retryable
	policy.Logger = p.logger.Underlying()
	return retry.Do(ctx, policy, func() ([]V, error) {
		return fn(ctx, batch)
	})
}

// batchTexts partitions texts into ceil(len/size) ordered batches.
func batchTexts(texts []string, size int) [][]string {
	if size <= 0 {
		return [][]string{texts}
	}
	batches := make([][]string, 0, (len(texts)+size-1)/size)
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		batches = append(batches, texts[start:end])
	}
	return batches
}
