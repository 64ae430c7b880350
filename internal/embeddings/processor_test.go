package embeddings

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/corpusd/internal/logging"
	"github.com/fyrsmithlabs/corpusd/internal/retry"
)

// fakeEmbed returns one single-element vector per input, recording the batch
// sizes it was called with.
type fakeEmbed struct {
	calls    [][]string
	failures int
	err      error
}

func (f *fakeEmbed) embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	if f.failures > 0 {
		f.failures--
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(len(f.calls)), float32(i)}
	}
	return vectors, nil
}

func newTestProcessor(fn embedFn[[]float32], batchSize int) *processor[[]float32] {
	return &processor[[]float32]{
		name:       "test",
		model:      "test-model",
		embedDocs:  fn,
		embedQuery: fn,
		normalize:  func(v [][]float32) [][]float32 { return v },
		retryable: func(err error) bool {
			return errors.Is(err, ErrRateLimited)
		},
		batchSize:     batchSize,
		maxQueryChars: 20,
		limiter:       rate.NewLimiter(rate.Inf, 1),
		retryPolicy: retry.Policy{
			MaxRetries:   3,
			InitialDelay: time.Millisecond,
			MaxDelay:     4 * time.Millisecond,
		},
		logger:  logging.NewNop(),
		metrics: NewMetrics(zap.NewNop()),
	}
}

func makeTexts(n int) []string {
	texts := make([]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%d", i)
	}
	return texts
}

func TestEmbedDocuments_BatchBoundaries(t *testing.T) {
	fake := &fakeEmbed{}
	p := newTestProcessor(fake.embed, 100)

	out, err := p.EmbedDocuments(context.Background(), makeTexts(250))

	require.NoError(t, err)
	require.Len(t, out, 250)
	require.Len(t, fake.calls, 3)
	assert.Len(t, fake.calls[0], 100)
	assert.Len(t, fake.calls[1], 100)
	assert.Len(t, fake.calls[2], 50)

	// Output order follows input order across batch boundaries.
	assert.Equal(t, []float32{1, 0}, out[0])
	assert.Equal(t, []float32{1, 99}, out[99])
	assert.Equal(t, []float32{2, 0}, out[100])
	assert.Equal(t, []float32{3, 49}, out[249])
}

func TestEmbedDocuments_ExactMultipleOfBatchSize(t *testing.T) {
	fake := &fakeEmbed{}
	p := newTestProcessor(fake.embed, 5)

	out, err := p.EmbedDocuments(context.Background(), makeTexts(10))

	require.NoError(t, err)
	assert.Len(t, out, 10)
	assert.Len(t, fake.calls, 2)
}

func TestEmbedDocuments_EmptyInput(t *testing.T) {
	p := newTestProcessor((&fakeEmbed{}).embed, 10)

	_, err := p.EmbedDocuments(context.Background(), nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestEmbedDocuments_RetriesRateLimitedBatch(t *testing.T) {
	fake := &fakeEmbed{failures: 2, err: fmt.Errorf("%w: quota", ErrRateLimited)}
	p := newTestProcessor(fake.embed, 10)

	out, err := p.EmbedDocuments(context.Background(), makeTexts(5))

	require.NoError(t, err)
	assert.Len(t, out, 5)
	// Two rate-limited attempts plus the success.
	assert.Len(t, fake.calls, 3)
}

func TestEmbedDocuments_NonRetryableFailsFirstAttempt(t *testing.T) {
	boom := errors.New("invalid api key")
	fake := &fakeEmbed{failures: 1, err: boom}
	p := newTestProcessor(fake.embed, 2)

	_, err := p.EmbedDocuments(context.Background(), makeTexts(5))

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "batch 1/3")
	assert.Len(t, fake.calls, 1)
}

func TestEmbedDocuments_LaterBatchFailureIdentified(t *testing.T) {
	boom := errors.New("server error")
	calls := 0
	fn := func(_ context.Context, texts []string) ([][]float32, error) {
		calls++
		if calls == 2 {
			return nil, boom
		}
		return make([][]float32, len(texts)), nil
	}
	p := newTestProcessor(fn, 2)

	_, err := p.EmbedDocuments(context.Background(), makeTexts(6))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch 2/3")
}

func TestEmbedDocuments_CountMismatchRejected(t *testing.T) {
	fn := func(_ context.Context, texts []string) ([][]float32, error) {
		return make([][]float32, len(texts)-1), nil
	}
	p := newTestProcessor(fn, 10)

	_, err := p.EmbedDocuments(context.Background(), makeTexts(3))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestEmbedDocuments_RetryExhaustionReturnsOriginalError(t *testing.T) {
	fake := &fakeEmbed{failures: 100, err: fmt.Errorf("%w: quota", ErrRateLimited)}
	p := newTestProcessor(fake.embed, 10)

	_, err := p.EmbedDocuments(context.Background(), makeTexts(3))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	// MaxRetries 3 means one initial attempt plus three retries.
	assert.Len(t, fake.calls, 4)
}

func TestEmbedQuery_TruncatesOverlongText(t *testing.T) {
	var captured string
	fn := func(_ context.Context, texts []string) ([][]float32, error) {
		captured = texts[0]
		return [][]float32{{1}}, nil
	}
	p := newTestProcessor(fn, 10)

	_, err := p.EmbedQuery(context.Background(), "this query is far longer than twenty characters")

	require.NoError(t, err)
	assert.Len(t, captured, 20)
}

func TestEmbedQuery_EmptyText(t *testing.T) {
	p := newTestProcessor((&fakeEmbed{}).embed, 10)

	_, err := p.EmbedQuery(context.Background(), "")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestBatchTexts(t *testing.T) {
	tests := []struct {
		name string
		n    int
		size int
		want []int
	}{
		{"under one batch", 3, 10, []int{3}},
		{"exact multiple", 20, 10, []int{10, 10}},
		{"remainder", 25, 10, []int{10, 10, 5}},
		{"single items", 3, 1, []int{1, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches := batchTexts(makeTexts(tt.n), tt.size)
			require.Len(t, batches, len(tt.want))
			for i, want := range tt.want {
				assert.Len(t, batches[i], want)
			}
		})
	}
}
