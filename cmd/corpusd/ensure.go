package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var ensureCmd = &cobra.Command{
	Use:   "ensure-collection",
	Short: "Create the hybrid collection if it does not exist",
	Long: `Create the configured Qdrant collection with its dense and sparse
named vectors. Ingest does this automatically; this command exists for
provisioning ahead of time.`,
	Args: cobra.NoArgs,
	RunE: runEnsure,
}

func runEnsure(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	index, err := buildIndex(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = index.Close() }()

	if err := index.EnsureCollection(ctx); err != nil {
		return err
	}
	fmt.Printf("Collection %s ready (dense %d-dim + sparse).\n", cfg.Qdrant.Collection, cfg.Qdrant.VectorSize)
	return nil
}
