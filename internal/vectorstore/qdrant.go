package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/vectormath"
)

// Named vectors inside the hybrid collection.
const (
	denseVectorName  = "dense"
	sparseVectorName = "sparse"
)

// Payload keys with dedicated Match fields.
const (
	payloadKeyChunkID = "chunk_id"
	payloadKeyText    = "text"
)

// pointIDNamespace makes point UUIDs a pure function of the chunk id, so
// re-ingesting a document overwrites its points instead of duplicating them.
var pointIDNamespace = uuid.MustParse("5b1f3c2e-9d47-4a68-8f21-7c03b65e9a14")

// collectionNamePattern validates collection names: lowercase letters,
// numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (6334 by default, not the 6333 REST port).
	Port int

	// APIKey authenticates against Qdrant Cloud. Empty for local instances.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// Collection is the hybrid collection all operations target.
	Collection string

	// VectorSize is the dense vector dimensionality. Must match the dense
	// embedder's output.
	VectorSize uint64

	// MaxRetries bounds retry attempts for transient failures.
	MaxRetries int

	// RetryBackoff is the initial backoff, doubling per retry.
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection required", ErrInvalidConfig)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.Collection)
}

// ValidateCollectionName validates a collection name against the
// ^[a-z0-9_]{1,64}$ pattern.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// IsTransientError reports whether err is worth retrying: network timeouts
// and temporary unavailability yes, invalid arguments and auth failures no.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantIndex is an Index backed by Qdrant's native gRPC client. The gRPC
// transport avoids the REST layer's payload limits on large chunk batches.
type QdrantIndex struct {
	client *qdrant.Client
	config QdrantConfig
	logger *logging.Logger

	// collections caches collection existence to avoid repeated checks.
	collections sync.Map
}

// NewQdrantIndex creates a QdrantIndex and verifies the connection with a
// health check.
func NewQdrantIndex(cfg QdrantConfig, logger *logging.Logger) (*QdrantIndex, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("vectorstore.qdrant")

	if !cfg.UseTLS {
		logger.Warn(context.Background(), "qdrant grpc using plaintext, insecure for production")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	idx := &QdrantIndex{
		client: client,
		config: cfg,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}

	return idx, nil
}

// Close closes the gRPC connection.
func (s *QdrantIndex) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// EnsureCollection creates the hybrid collection if it does not exist: a
// named dense vector with dot-product distance (vectors arrive unit-norm, so
// dot product is cosine) plus a named sparse vector.
func (s *QdrantIndex) EnsureCollection(ctx context.Context) error {
	name := s.config.Collection
	if _, ok := s.collections.Load(name); ok {
		return nil
	}

	var exists bool
	err := s.retryOperation(ctx, "collection_exists", func() error {
		var err error
		exists, err = s.client.CollectionExists(ctx, name)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: checking collection %s: %w", ErrIndexOperation, name, err)
	}
	if exists {
		s.collections.Store(name, true)
		return nil
	}

	err = s.retryOperation(ctx, "create_collection", func() error {
		return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
				denseVectorName: {
					Size:     s.config.VectorSize,
					Distance: qdrant.Distance_Dot,
				},
			}),
			SparseVectorsConfig: qdrant.NewSparseVectorsConfig(map[string]*qdrant.SparseVectorParams{
				sparseVectorName: {},
			}),
		})
	})
	if err != nil {
		return fmt.Errorf("%w: creating collection %s: %w", ErrIndexOperation, name, err)
	}

	s.logger.Info(ctx, "created hybrid collection",
		zap.String("collection", name),
		zap.Uint64("vector_size", s.config.VectorSize),
	)
	s.collections.Store(name, true)
	return nil
}

// Upsert writes records to the collection. Point ids derive deterministically
// from chunk ids, so writes are idempotent per chunk.
func (s *QdrantIndex) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, rec := range records {
		payload := make(map[string]*qdrant.Value, len(rec.Payload)+1)
		payload[payloadKeyChunkID] = toQdrantValue(rec.ID)
		for k, v := range rec.Payload {
			if qv := toQdrantValue(v); qv != nil {
				payload[k] = qv
			}
		}

		points[i] = &qdrant.PointStruct{
			Id: qdrant.NewIDUUID(PointID(rec.ID)),
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
				denseVectorName:  qdrant.NewVectorDense(rec.Dense),
				sparseVectorName: qdrant.NewVectorSparse(rec.Sparse.Indices, rec.Sparse.Values),
			}),
			Payload: payload,
		}
	}

	err := s.retryOperation(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.Collection,
			Points:         points,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: upserting %d points: %w", ErrIndexOperation, len(points), err)
	}
	return nil
}

// HybridQuery runs one fused query: dense and sparse prefetch branches merged
// server-side with reciprocal rank fusion.
func (s *QdrantIndex) HybridQuery(ctx context.Context, dense []float32, sparse vectormath.SparseVector, limit int) ([]Match, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	prefetchLimit := qdrant.PtrOf(uint64(limit * 4))
	var results []*qdrant.ScoredPoint
	err := s.retryOperation(ctx, "hybrid_query", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.Collection,
			Prefetch: []*qdrant.PrefetchQuery{
				{
					Query: qdrant.NewQueryDense(dense),
					Using: qdrant.PtrOf(denseVectorName),
					Limit: prefetchLimit,
				},
				{
					Query: qdrant.NewQuerySparse(sparse.Indices, sparse.Values),
					Using: qdrant.PtrOf(sparseVectorName),
					Limit: prefetchLimit,
				},
			},
			Query:       qdrant.NewQueryFusion(qdrant.Fusion_RRF),
			Limit:       qdrant.PtrOf(uint64(limit)),
			WithPayload: qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: querying collection %s: %w", ErrIndexOperation, s.config.Collection, err)
	}

	matches := make([]Match, len(results))
	for i, point := range results {
		matches[i] = pointToMatch(point)
	}
	return matches, nil
}

// retryOperation retries an operation with exponential backoff on transient
// gRPC failures. Permanent failures return on first occurrence.
func (s *QdrantIndex) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := s.config.RetryBackoff

	for attempt := 0; ; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}
		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, s.config.MaxRetries, err)
		}

		s.logger.Warn(ctx, "transient qdrant failure, retrying",
			zap.String("operation", operationName),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

// PointID derives the deterministic point UUID stored for a chunk id.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointIDNamespace, []byte(chunkID)).String()
}

func pointToMatch(point *qdrant.ScoredPoint) Match {
	match := Match{Score: point.Score}
	if point.Payload == nil {
		return match
	}
	match.Metadata = make(map[string]any, len(point.Payload))
	for k, v := range point.Payload {
		val := fromQdrantValue(v)
		switch k {
		case payloadKeyChunkID:
			if s, ok := val.(string); ok {
				match.ID = s
			}
		case payloadKeyText:
			if s, ok := val.(string); ok {
				match.Content = s
			}
		default:
			match.Metadata[k] = val
		}
	}
	return match
}

func toQdrantValue(v any) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	default:
		return nil
	}
}

func fromQdrantValue(v *qdrant.Value) any {
	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	default:
		return nil
	}
}
