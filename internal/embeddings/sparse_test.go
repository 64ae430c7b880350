package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/corpusd/internal/logging"
)

func sparseTestConfig(baseURL string) SparseConfig {
	return SparseConfig{
		BaseURL:       baseURL,
		Model:         "test-splade",
		BatchSize:     4,
		MaxQueryChars: 100,
		MaxRetries:    2,
		InitialDelay:  time.Millisecond,
		MaxDelay:      4 * time.Millisecond,
	}
}

func TestSparseEmbedder_EmbedDocuments(t *testing.T) {
	var gotReq sparseRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embed_sparse", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		resp := make([][]sparseTerm, len(gotReq.Inputs))
		for i := range resp {
			resp[i] = []sparseTerm{{Index: 1, Value: 3}, {Index: 7, Value: 4}}
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	e, err := NewSparseEmbedder(sparseTestConfig(srv.URL), logging.NewNop())
	require.NoError(t, err)

	out, err := e.EmbedDocuments(context.Background(), []string{"alpha", "beta"})

	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "passage", gotReq.InputType)
	assert.Equal(t, "test-splade", gotReq.Model)
	assert.Equal(t, []uint32{1, 7}, out[0].Indices)
	// A 3-4-5 triangle normalizes to 0.6 and 0.8.
	assert.InDelta(t, 0.6, out[0].Values[0], 1e-6)
	assert.InDelta(t, 0.8, out[0].Values[1], 1e-6)
}

func TestSparseEmbedder_QueryInputType(t *testing.T) {
	var gotReq sparseRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		require.NoError(t, json.NewEncoder(w).Encode([][]sparseTerm{{{Index: 3, Value: 1}}}))
	}))
	defer srv.Close()

	e, err := NewSparseEmbedder(sparseTestConfig(srv.URL), logging.NewNop())
	require.NoError(t, err)

	vec, err := e.EmbedQuery(context.Background(), "helmet policy")

	require.NoError(t, err)
	assert.Equal(t, "query", gotReq.InputType)
	assert.Equal(t, []uint32{3}, vec.Indices)
}

func TestSparseEmbedder_RetriesAfter429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
			return
		}
		require.NoError(t, json.NewEncoder(w).Encode([][]sparseTerm{{{Index: 0, Value: 1}}}))
	}))
	defer srv.Close()

	e, err := NewSparseEmbedder(sparseTestConfig(srv.URL), logging.NewNop())
	require.NoError(t, err)

	out, err := e.EmbedDocuments(context.Background(), []string{"alpha"})

	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSparseEmbedder_ServerErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e, err := NewSparseEmbedder(sparseTestConfig(srv.URL), logging.NewNop())
	require.NoError(t, err)

	_, err = e.EmbedDocuments(context.Background(), []string{"alpha"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "model not loaded")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSparseEmbedder_AuthorizationHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewEncoder(w).Encode([][]sparseTerm{{}}))
	}))
	defer srv.Close()

	cfg := sparseTestConfig(srv.URL)
	cfg.APIKey = "sk-test"
	e, err := NewSparseEmbedder(cfg, logging.NewNop())
	require.NoError(t, err)

	_, err = e.EmbedDocuments(context.Background(), []string{"alpha"})

	require.NoError(t, err)
	assert.Equal(t, "Bearer sk-test", gotAuth)
}

func TestNewSparseEmbedder_InvalidConfig(t *testing.T) {
	_, err := NewSparseEmbedder(SparseConfig{BatchSize: 4}, logging.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base url")
}
