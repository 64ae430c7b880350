package main

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/corpusd/internal/config"
	"github.com/fyrsmithlabs/corpusd/internal/embeddings"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

// buildIndex connects to Qdrant per config.
func buildIndex(cfg *config.Config, logger *logging.Logger) (*vectorstore.QdrantIndex, error) {
	index, err := vectorstore.NewQdrantIndex(vectorstore.QdrantConfig{
		Host:       cfg.Qdrant.Host,
		Port:       cfg.Qdrant.Port,
		APIKey:     cfg.Qdrant.APIKey.Value(),
		UseTLS:     cfg.Qdrant.UseTLS,
		Collection: cfg.Qdrant.Collection,
		VectorSize: uint64(cfg.Qdrant.VectorSize),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}
	return index, nil
}

// buildEmbedders constructs both embedding clients.
func buildEmbedders(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*embeddings.DenseEmbedder, *embeddings.SparseEmbedder, error) {
	dense, err := embeddings.NewDenseEmbedder(ctx, embeddings.DenseConfig{
		APIKey:           cfg.Dense.APIKey.Value(),
		Model:            cfg.Dense.Model,
		Dimension:        cfg.Dense.Dimension,
		BatchSize:        cfg.Dense.BatchSize,
		MaxQueryChars:    cfg.Dense.MaxQueryChars,
		ThrottleInterval: cfg.Dense.ThrottleInterval.Duration(),
		MaxRetries:       cfg.Dense.Retry.MaxRetries,
		InitialDelay:     cfg.Dense.Retry.InitialDelay.Duration(),
		MaxDelay:         cfg.Dense.Retry.MaxDelay.Duration(),
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating dense embedder: %w", err)
	}

	sparse, err := embeddings.NewSparseEmbedder(embeddings.SparseConfig{
		BaseURL:          cfg.Sparse.BaseURL,
		Model:            cfg.Sparse.Model,
		BatchSize:        cfg.Sparse.BatchSize,
		MaxQueryChars:    cfg.Sparse.MaxQueryChars,
		ThrottleInterval: cfg.Sparse.ThrottleInterval.Duration(),
		MaxRetries:       cfg.Sparse.Retry.MaxRetries,
		InitialDelay:     cfg.Sparse.Retry.InitialDelay.Duration(),
		MaxDelay:         cfg.Sparse.Retry.MaxDelay.Duration(),
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating sparse embedder: %w", err)
	}

	return dense, sparse, nil
}
