// Package pipeline orchestrates ingestion end to end: discover markdown
// files, chunk each document, embed every chunk with both models, and write
// the results to the hybrid index.
//
// Document-level failures are contained: one malformed file is logged and
// skipped, the run continues. Failures past chunking (embedding, upserting)
// abort the run, since they indicate a broken provider rather than one bad
// document.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/chunker"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/vectormath"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

// DenseEmbedder embeds document texts into dense vectors.
type DenseEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// SparseEmbedder embeds document texts into sparse vectors.
type SparseEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([]vectormath.SparseVector, error)
}

// Upserter writes embedded chunks to the index.
type Upserter interface {
	UpsertChunks(ctx context.Context, chunks []chunker.Chunk, dense [][]float32, sparse []vectormath.SparseVector) (int, error)
}

// Stats summarizes one ingestion run.
type Stats struct {
	RunID           string
	FilesDiscovered int
	FilesChunked    int
	FilesFailed     int
	Chunks          int
	Upserted        int
	Elapsed         time.Duration
}

// Pipeline runs ingestion.
type Pipeline struct {
	splitter *chunker.Splitter
	dense    DenseEmbedder
	sparse   SparseEmbedder
	upserter Upserter
	index    vectorstore.Index
	logger   *logging.Logger
}

// New creates a Pipeline.
func New(splitter *chunker.Splitter, dense DenseEmbedder, sparse SparseEmbedder, upserter Upserter, index vectorstore.Index, logger *logging.Logger) (*Pipeline, error) {
	if splitter == nil {
		return nil, fmt.Errorf("splitter is required")
	}
	if dense == nil || sparse == nil {
		return nil, fmt.Errorf("both embedders are required")
	}
	if upserter == nil {
		return nil, fmt.Errorf("upserter is required")
	}
	if index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{
		splitter: splitter,
		dense:    dense,
		sparse:   sparse,
		upserter: upserter,
		index:    index,
		logger:   logger.Named("pipeline"),
	}, nil
}

// Ingest processes the markdown files under dir, or only the named files
// when files is non-empty. Relative names resolve against dir.
func (p *Pipeline) Ingest(ctx context.Context, dir string, files []string) (*Stats, error) {
	start := time.Now()
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	stats := &Stats{RunID: runID}

	paths, err := discoverFiles(dir, files)
	if err != nil {
		return nil, err
	}
	stats.FilesDiscovered = len(paths)
	p.logger.Info(ctx, "ingestion started",
		zap.String("dir", dir),
		zap.Int("files", len(paths)),
	)

	if err := p.index.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("ensuring collection: %w", err)
	}

	var allChunks []chunker.Chunk
	for _, path := range paths {
		docCtx := logging.WithDocument(ctx, filepath.Base(path))

		data, err := os.ReadFile(path)
		if err != nil {
			p.logger.Error(docCtx, "reading document failed", zap.Error(err))
			stats.FilesFailed++
			continue
		}

		chunks, err := p.splitter.Split(docCtx, string(data), filepath.Base(path))
		if err != nil {
			p.logger.Error(docCtx, "chunking failed, skipping document", zap.Error(err))
			stats.FilesFailed++
			continue
		}

		allChunks = append(allChunks, chunks...)
		stats.FilesChunked++
	}
	stats.Chunks = len(allChunks)

	if len(allChunks) == 0 {
		return stats, fmt.Errorf("no chunks produced from %d files (%d failed)", stats.FilesDiscovered, stats.FilesFailed)
	}

	texts := make([]string, len(allChunks))
	for i, c := range allChunks {
		texts[i] = c.Content
	}

	denseVecs, err := p.dense.EmbedDocuments(ctx, texts)
	if err != nil {
		return stats, fmt.Errorf("dense embedding: %w", err)
	}
	sparseVecs, err := p.sparse.EmbedDocuments(ctx, texts)
	if err != nil {
		return stats, fmt.Errorf("sparse embedding: %w", err)
	}

	upserted, err := p.upserter.UpsertChunks(ctx, allChunks, denseVecs, sparseVecs)
	stats.Upserted = upserted
	if err != nil {
		return stats, fmt.Errorf("upserting chunks: %w", err)
	}

	stats.Elapsed = time.Since(start)
	p.logger.Info(ctx, "ingestion finished",
		zap.Int("files_chunked", stats.FilesChunked),
		zap.Int("files_failed", stats.FilesFailed),
		zap.Int("chunks", stats.Chunks),
		zap.Int("upserted", stats.Upserted),
		zap.Duration("elapsed", stats.Elapsed),
	)
	return stats, nil
}

// discoverFiles resolves the document set for a run. With explicit files,
// every one must exist; with none, the directory is scanned for markdown.
func discoverFiles(dir string, files []string) ([]string, error) {
	if len(files) > 0 {
		paths := make([]string, 0, len(files))
		for _, f := range files {
			path := f
			if !filepath.IsAbs(f) && dir != "" {
				path = filepath.Join(dir, f)
			}
			info, err := os.Stat(path)
			if err != nil {
				return nil, fmt.Errorf("document %s: %w", f, err)
			}
			if info.IsDir() {
				return nil, fmt.Errorf("document %s is a directory", f)
			}
			paths = append(paths, path)
		}
		return paths, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".md") {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no markdown files found in %s", dir)
	}
	return paths, nil
}
