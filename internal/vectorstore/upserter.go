package vectorstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/chunker"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/vectormath"
)

// Upserter writes embedded chunks to an Index in bounded batches.
type Upserter struct {
	index     Index
	batchSize int
	logger    *logging.Logger
}

// NewUpserter creates an Upserter.
func NewUpserter(index Index, batchSize int, logger *logging.Logger) (*Upserter, error) {
	if index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be > 0, got %d", batchSize)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Upserter{
		index:     index,
		batchSize: batchSize,
		logger:    logger.Named("upserter"),
	}, nil
}

// UpsertChunks writes chunks with their vectors and returns the number of
// records written. The three slices must align position by position; a length
// mismatch fails before anything reaches the index. Chunks without an id are
// skipped with a warning rather than stored unaddressably.
func (u *Upserter) UpsertChunks(ctx context.Context, chunks []chunker.Chunk, dense [][]float32, sparse []vectormath.SparseVector) (int, error) {
	if len(dense) != len(chunks) || len(sparse) != len(chunks) {
		return 0, fmt.Errorf("vector count mismatch: %d chunks, %d dense, %d sparse",
			len(chunks), len(dense), len(sparse))
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	records := make([]Record, 0, len(chunks))
	for i, chunk := range chunks {
		if chunk.ID == "" {
			u.logger.Warn(ctx, "skipping chunk without id",
				zap.String("source", chunk.Source),
				zap.Int("position", i),
			)
			continue
		}
		records = append(records, Record{
			ID:      chunk.ID,
			Dense:   dense[i],
			Sparse:  sparse[i],
			Payload: chunkPayload(chunk),
		})
	}

	batches := (len(records) + u.batchSize - 1) / u.batchSize
	for b := 0; b < batches; b++ {
		start := b * u.batchSize
		end := min(start+u.batchSize, len(records))
		if err := u.index.Upsert(ctx, records[start:end]); err != nil {
			return start, fmt.Errorf("upserting batch %d/%d: %w", b+1, batches, err)
		}
	}

	u.logger.Info(ctx, "chunks upserted",
		zap.Int("records", len(records)),
		zap.Int("skipped", len(chunks)-len(records)),
		zap.Int("batches", batches),
	)
	return len(records), nil
}

// chunkPayload builds the payload stored with a chunk: the embedded text plus
// the provenance fields the retriever surfaces as metadata.
func chunkPayload(chunk chunker.Chunk) map[string]any {
	payload := map[string]any{
		payloadKeyText: chunk.Content,
		"source":       chunk.Source,
		"parent":       chunk.Parent,
	}
	if chunk.URL != "" {
		payload["url"] = chunk.URL
	}
	if chunk.Version != "" {
		payload["version"] = chunk.Version
	}
	if chunk.LastUpdated != "" {
		payload["last_updated"] = chunk.LastUpdated
	}
	if chunk.Breadcrumbs != "" {
		payload["breadcrumbs"] = chunk.Breadcrumbs
	}
	return payload
}
