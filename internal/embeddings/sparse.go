package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/retry"
	"github.com/fyrsmithlabs/corpusd/internal/vectormath"
)

// Input types for the sparse service. SPLADE-style models expand passages and
// queries differently.
const (
	inputTypePassage = "passage"
	inputTypeQuery   = "query"
)

const defaultSparseHTTPTimeout = 60 * time.Second

// SparseConfig configures the sparse (lexical) embedding client.
type SparseConfig struct {
	BaseURL          string
	Model            string
	APIKey           string
	BatchSize        int
	MaxQueryChars    int
	ThrottleInterval time.Duration
	MaxRetries       int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	HTTPTimeout      time.Duration
}

// Validate checks the configuration for errors.
func (c SparseConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base url is required")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be > 0, got %d", c.BatchSize)
	}
	return nil
}

// SparseEmbedder produces unit-norm sparse vectors from an HTTP embedding
// service exposing an /embed_sparse endpoint.
type SparseEmbedder struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
	proc    *processor[vectormath.SparseVector]
}

// sparseRequest is the wire format for one /embed_sparse call.
type sparseRequest struct {
	Inputs    []string `json:"inputs"`
	Model     string   `json:"model,omitempty"`
	InputType string   `json:"input_type"`
}

// sparseTerm is one (dimension, weight) pair in the service response.
type sparseTerm struct {
	Index uint32  `json:"index"`
	Value float32 `json:"value"`
}

// NewSparseEmbedder creates a sparse embedder backed by an external HTTP
// service.
func NewSparseEmbedder(cfg SparseConfig, logger *logging.Logger) (*SparseEmbedder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sparse embedder config: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultSparseHTTPTimeout
	}

	e := &SparseEmbedder{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
	e.proc = &processor[vectormath.SparseVector]{
		name:  "sparse",
		model: cfg.Model,
		embedDocs: func(ctx context.Context, texts []string) ([]vectormath.SparseVector, error) {
			return e.embed(ctx, texts, inputTypePassage)
		},
		embedQuery: func(ctx context.Context, texts []string) ([]vectormath.SparseVector, error) {
			return e.embed(ctx, texts, inputTypeQuery)
		},
		normalize: vectormath.NormalizeSparse,
		retryable: func(err error) bool {
			return errors.Is(err, ErrRateLimited)
		},
		batchSize:     cfg.BatchSize,
		maxQueryChars: cfg.MaxQueryChars,
		limiter:       newThrottle(cfg.ThrottleInterval),
		retryPolicy: retry.Policy{
			MaxRetries:   cfg.MaxRetries,
			InitialDelay: cfg.InitialDelay,
			MaxDelay:     cfg.MaxDelay,
		},
		logger:  logger.Named("embeddings.sparse"),
		metrics: NewMetrics(logger.Underlying()),
	}
	return e, nil
}

// EmbedDocuments embeds texts as passages, preserving input order across
// batches.
func (e *SparseEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([]vectormath.SparseVector, error) {
	return e.proc.EmbedDocuments(ctx, texts)
}

// EmbedQuery embeds a single query.
func (e *SparseEmbedder) EmbedQuery(ctx context.Context, text string) (vectormath.SparseVector, error) {
	return e.proc.EmbedQuery(ctx, text)
}

func (e *SparseEmbedder) embed(ctx context.Context, texts []string, inputType string) ([]vectormath.SparseVector, error) {
	body, err := json.Marshal(sparseRequest{
		Inputs:    texts,
		Model:     e.model,
		InputType: inputType,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling sparse request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embed_sparse", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building sparse request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling sparse embedding service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, strings.TrimSpace(string(msg)))
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: sparse service returned %d: %s",
			ErrEmbeddingFailed, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var decoded [][]sparseTerm
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decoding sparse response: %v", ErrEmbeddingFailed, err)
	}

	out := make([]vectormath.SparseVector, len(decoded))
	for i, terms := range decoded {
		vec := vectormath.SparseVector{
			Indices: make([]uint32, len(terms)),
			Values:  make([]float32, len(terms)),
		}
		for j, term := range terms {
			vec.Indices[j] = term.Index
			vec.Values[j] = term.Value
		}
		out[i] = vec
	}
	return out, nil
}
