// Package config provides configuration loading for corpusd.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/corpusd/internal/logging"
)

// Config is the root configuration for corpusd.
type Config struct {
	Logging   logging.Config  `koanf:"logging"`
	Qdrant    QdrantConfig    `koanf:"qdrant"`
	Dense     DenseConfig     `koanf:"dense"`
	Sparse    SparseConfig    `koanf:"sparse"`
	Chunker   ChunkerConfig   `koanf:"chunker"`
	Upsert    UpsertConfig    `koanf:"upsert"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
}

// QdrantConfig configures the hybrid vector index.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	UseTLS     bool   `koanf:"use_tls"`
	APIKey     Secret `koanf:"api_key"`
	Collection string `koanf:"collection"`
	VectorSize int    `koanf:"vector_size"`
}

// RetryConfig bounds backoff for a provider's rate-limit errors.
type RetryConfig struct {
	MaxRetries   int      `koanf:"max_retries"`
	InitialDelay Duration `koanf:"initial_delay"`
	MaxDelay     Duration `koanf:"max_delay"`
}

// DenseConfig configures the Gemini dense embedding client.
type DenseConfig struct {
	Model            string      `koanf:"model"`
	APIKey           Secret      `koanf:"api_key"`
	Dimension        int         `koanf:"dimension"`
	BatchSize        int         `koanf:"batch_size"`
	MaxQueryChars    int         `koanf:"max_query_chars"`
	ThrottleInterval Duration    `koanf:"throttle_interval"`
	Retry            RetryConfig `koanf:"retry"`
}

// SparseConfig configures the sparse (lexical) embedding client.
type SparseConfig struct {
	BaseURL          string      `koanf:"base_url"`
	Model            string      `koanf:"model"`
	BatchSize        int         `koanf:"batch_size"`
	MaxQueryChars    int         `koanf:"max_query_chars"`
	ThrottleInterval Duration    `koanf:"throttle_interval"`
	Retry            RetryConfig `koanf:"retry"`
}

// ChunkerConfig configures document segmentation.
type ChunkerConfig struct {
	ChunkSize    int `koanf:"chunk_size"`
	ChunkOverlap int `koanf:"chunk_overlap"`
	HeaderDepth  int `koanf:"header_depth"`
}

// UpsertConfig configures index write batching.
type UpsertConfig struct {
	BatchSize int `koanf:"batch_size"`
}

// RetrievalConfig configures hybrid query behavior.
type RetrievalConfig struct {
	TopK int `koanf:"top_k"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Logging.Format == "" {
		def := logging.NewDefaultConfig()
		cfg.Logging.Format = def.Format
		cfg.Logging.Caller = def.Caller
		cfg.Logging.Fields = def.Fields
	}

	// Qdrant defaults
	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334
	}
	if cfg.Qdrant.Collection == "" {
		cfg.Qdrant.Collection = "corpusd_knowledge"
	}
	if cfg.Qdrant.VectorSize == 0 {
		cfg.Qdrant.VectorSize = 768 // gemini-embedding-001 at configured output dim
	}

	// Dense embedding defaults
	if cfg.Dense.Model == "" {
		cfg.Dense.Model = "gemini-embedding-001"
	}
	if cfg.Dense.Dimension == 0 {
		cfg.Dense.Dimension = 768
	}
	if cfg.Dense.BatchSize == 0 {
		cfg.Dense.BatchSize = 100
	}
	if cfg.Dense.MaxQueryChars == 0 {
		cfg.Dense.MaxQueryChars = 10000
	}
	if cfg.Dense.ThrottleInterval == 0 {
		cfg.Dense.ThrottleInterval = Duration(500 * time.Millisecond)
	}
	applyRetryDefaults(&cfg.Dense.Retry)

	// Sparse embedding defaults
	if cfg.Sparse.BaseURL == "" {
		cfg.Sparse.BaseURL = "http://localhost:8081"
	}
	if cfg.Sparse.Model == "" {
		cfg.Sparse.Model = "naver/efficient-splade-VI-BT-large-doc"
	}
	if cfg.Sparse.BatchSize == 0 {
		cfg.Sparse.BatchSize = 96
	}
	if cfg.Sparse.MaxQueryChars == 0 {
		cfg.Sparse.MaxQueryChars = 10000
	}
	if cfg.Sparse.ThrottleInterval == 0 {
		cfg.Sparse.ThrottleInterval = Duration(500 * time.Millisecond)
	}
	applyRetryDefaults(&cfg.Sparse.Retry)

	// Chunker defaults
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 1000
	}
	if cfg.Chunker.ChunkOverlap == 0 {
		cfg.Chunker.ChunkOverlap = 200
	}
	if cfg.Chunker.HeaderDepth == 0 {
		cfg.Chunker.HeaderDepth = 3
	}

	// Upsert batches are bounded by payload size, not item count, so they
	// stay smaller than the embedding batches.
	if cfg.Upsert.BatchSize == 0 {
		cfg.Upsert.BatchSize = 50
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
}

func applyRetryDefaults(r *RetryConfig) {
	if r.MaxRetries == 0 {
		r.MaxRetries = 5
	}
	if r.InitialDelay == 0 {
		r.InitialDelay = Duration(2 * time.Second)
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = Duration(60 * time.Second)
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.Qdrant.Port <= 0 || c.Qdrant.Port > 65535 {
		return fmt.Errorf("qdrant: invalid port %d", c.Qdrant.Port)
	}
	if c.Qdrant.VectorSize <= 0 {
		return fmt.Errorf("qdrant: vector_size must be > 0")
	}
	if c.Dense.Dimension != c.Qdrant.VectorSize {
		return fmt.Errorf("dense dimension %d does not match qdrant vector_size %d", c.Dense.Dimension, c.Qdrant.VectorSize)
	}
	if c.Dense.BatchSize <= 0 {
		return fmt.Errorf("dense: batch_size must be > 0")
	}
	if c.Sparse.BatchSize <= 0 {
		return fmt.Errorf("sparse: batch_size must be > 0")
	}
	if c.Chunker.ChunkSize <= 0 {
		return fmt.Errorf("chunker: chunk_size must be > 0")
	}
	if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		return fmt.Errorf("chunker: chunk_overlap %d must be in [0, chunk_size)", c.Chunker.ChunkOverlap)
	}
	if c.Chunker.HeaderDepth < 1 || c.Chunker.HeaderDepth > 6 {
		return fmt.Errorf("chunker: header_depth %d must be in [1, 6]", c.Chunker.HeaderDepth)
	}
	if c.Upsert.BatchSize <= 0 {
		return fmt.Errorf("upsert: batch_size must be > 0")
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval: top_k must be > 0")
	}
	return nil
}
