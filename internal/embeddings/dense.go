package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/retry"
	"github.com/fyrsmithlabs/corpusd/internal/vectormath"
)

// Gemini task types. Documents and queries are embedded asymmetrically so
// that queries land near the passages that answer them.
const (
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
)

// DenseConfig configures the Gemini dense embedding client.
type DenseConfig struct {
	APIKey           string
	Model            string
	Dimension        int
	BatchSize        int
	MaxQueryChars    int
	ThrottleInterval time.Duration
	MaxRetries       int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
}

// Validate checks the configuration for errors.
func (c DenseConfig) Validate() error {
	if c.APIKey == "" {
		return errors.New("api key is required")
	}
	if c.Model == "" {
		return errors.New("model is required")
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("dimension must be > 0, got %d", c.Dimension)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be > 0, got %d", c.BatchSize)
	}
	return nil
}

// DenseEmbedder produces unit-norm dense vectors from the Gemini embedding
// API.
type DenseEmbedder struct {
	client *genai.Client
	model  string
	dim    int32
	proc   *processor[[]float32]
}

// NewDenseEmbedder creates a Gemini-backed dense embedder.
func NewDenseEmbedder(ctx context.Context, cfg DenseConfig, logger *logging.Logger) (*DenseEmbedder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dense embedder config: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	e := &DenseEmbedder{
		client: client,
		model:  cfg.Model,
		dim:    int32(cfg.Dimension),
	}
	e.proc = &processor[[]float32]{
		name:  "dense",
		model: cfg.Model,
		embedDocs: func(ctx context.Context, texts []string) ([][]float32, error) {
			return e.embed(ctx, texts, taskRetrievalDocument)
		},
		embedQuery: func(ctx context.Context, texts []string) ([][]float32, error) {
			return e.embed(ctx, texts, taskRetrievalQuery)
		},
		normalize:     vectormath.NormalizeDense,
		retryable:     isGeminiRateLimit,
		batchSize:     cfg.BatchSize,
		maxQueryChars: cfg.MaxQueryChars,
		limiter:       newThrottle(cfg.ThrottleInterval),
		retryPolicy: retry.Policy{
			MaxRetries:   cfg.MaxRetries,
			InitialDelay: cfg.InitialDelay,
			MaxDelay:     cfg.MaxDelay,
		},
		logger:  logger.Named("embeddings.dense"),
		metrics: NewMetrics(logger.Underlying()),
	}
	return e, nil
}

// EmbedDocuments embeds texts with the document task type, preserving input
// order across batches.
func (e *DenseEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return e.proc.EmbedDocuments(ctx, texts)
}

// EmbedQuery embeds a single query with the query task type.
func (e *DenseEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.proc.EmbedQuery(ctx, text)
}

// Dimension returns the configured output dimensionality.
func (e *DenseEmbedder) Dimension() int {
	return int(e.dim)
}

func (e *DenseEmbedder) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	dim := e.dim
	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType:             taskType,
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embed content: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: gemini returned %d embeddings for %d inputs",
			ErrEmbeddingFailed, len(result.Embeddings), len(texts))
	}

	out := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at position %d", ErrEmbeddingFailed, i)
		}
		out[i] = emb.Values
	}
	return out, nil
}

// isGeminiRateLimit reports whether err is a Gemini quota rejection, the only
// error class worth retrying.
func isGeminiRateLimit(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests
	}
	return errors.Is(err, ErrRateLimited)
}

// newThrottle builds the inter-batch limiter. A zero interval disables
// throttling.
func newThrottle(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}
