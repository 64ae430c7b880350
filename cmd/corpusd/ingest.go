package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/corpusd/internal/chunker"
	"github.com/fyrsmithlabs/corpusd/internal/pipeline"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest DIR [FILE...]",
	Short: "Chunk, embed, and index markdown documents",
	Long: `Ingest markdown documents into the hybrid index.

With only DIR, every *.md file in the directory is ingested. Naming FILE
arguments restricts the run to those documents (resolved against DIR).

Examples:
  # Ingest a whole knowledge base export
  corpusd ingest ./export

  # Re-ingest two updated pages
  corpusd ingest ./export safety.md onboarding.md`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	splitter, err := chunker.NewSplitter(chunker.Config{
		ChunkSize:    cfg.Chunker.ChunkSize,
		ChunkOverlap: cfg.Chunker.ChunkOverlap,
		HeaderDepth:  cfg.Chunker.HeaderDepth,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating splitter: %w", err)
	}

	dense, sparse, err := buildEmbedders(ctx, cfg, logger)
	if err != nil {
		return err
	}

	index, err := buildIndex(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = index.Close() }()

	upserter, err := vectorstore.NewUpserter(index, cfg.Upsert.BatchSize, logger)
	if err != nil {
		return fmt.Errorf("creating upserter: %w", err)
	}

	p, err := pipeline.New(splitter, dense, sparse, upserter, index, logger)
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}

	stats, err := p.Ingest(ctx, args[0], args[1:])
	if err != nil {
		return err
	}

	fmt.Printf("Run %s: %d/%d files ingested (%d failed), %d chunks, %d upserted in %s\n",
		stats.RunID, stats.FilesChunked, stats.FilesDiscovered, stats.FilesFailed,
		stats.Chunks, stats.Upserted, stats.Elapsed.Round(time.Millisecond))
	return nil
}
