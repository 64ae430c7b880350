package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/corpusd/internal/retriever"
)

var queryTopK int

var queryCmd = &cobra.Command{
	Use:   "query TEXT",
	Short: "Run a hybrid query against the index",
	Long: `Embed the query with both models and run one fused search.

Examples:
  corpusd query "what is the helmet policy"
  corpusd query --top-k 10 "onboarding checklist"`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (0 uses the configured default)")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	dense, sparse, err := buildEmbedders(ctx, cfg, logger)
	if err != nil {
		return err
	}

	index, err := buildIndex(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = index.Close() }()

	r, err := retriever.New(dense, sparse, index, cfg.Retrieval.TopK, logger)
	if err != nil {
		return fmt.Errorf("creating retriever: %w", err)
	}

	matches, err := r.Retrieve(ctx, args[0], queryTopK)
	if err != nil {
		return err
	}

	if len(matches) == 0 {
		fmt.Println("No matches.")
		return nil
	}
	for i, m := range matches {
		fmt.Printf("%d. [%.4f] %s\n", i+1, m.Score, m.ID)
		if source, ok := m.Metadata["source"].(string); ok {
			fmt.Printf("   source: %s\n", source)
		}
		fmt.Printf("   %s\n\n", snippet(m.Content, 200))
	}
	return nil
}

// snippet flattens text to one line and truncates it for terminal display.
func snippet(text string, max int) string {
	flat := strings.Join(strings.Fields(text), " ")
	if len(flat) <= max {
		return flat
	}
	return flat[:max] + "..."
}
