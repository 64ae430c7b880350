package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/corpusd/internal/vectormath"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

type fakeDense struct {
	vec []float32
	err error
}

func (f *fakeDense) EmbedQuery(context.Context, string) ([]float32, error) {
	return f.vec, f.err
}

type fakeSparse struct {
	vec vectormath.SparseVector
	err error
}

func (f *fakeSparse) EmbedQuery(context.Context, string) (vectormath.SparseVector, error) {
	return f.vec, f.err
}

type fakeIndex struct {
	matches   []vectorstore.Match
	err       error
	gotDense  []float32
	gotSparse vectormath.SparseVector
	gotLimit  int
}

func (f *fakeIndex) EnsureCollection(context.Context) error { return nil }
func (f *fakeIndex) Upsert(context.Context, []vectorstore.Record) error {
	return nil
}
func (f *fakeIndex) HybridQuery(_ context.Context, dense []float32, sparse vectormath.SparseVector, limit int) ([]vectorstore.Match, error) {
	f.gotDense = dense
	f.gotSparse = sparse
	f.gotLimit = limit
	return f.matches, f.err
}
func (f *fakeIndex) Close() error { return nil }

func newTestRetriever(t *testing.T, dense *fakeDense, sparse *fakeSparse, index *fakeIndex) *Retriever {
	t.Helper()
	r, err := New(dense, sparse, index, 5, nil)
	require.NoError(t, err)
	return r
}

func TestRetrieve_PassesBothVectorsToIndex(t *testing.T) {
	dense := &fakeDense{vec: []float32{0.6, 0.8}}
	sparse := &fakeSparse{vec: vectormath.SparseVector{Indices: []uint32{3}, Values: []float32{1}}}
	index := &fakeIndex{matches: []vectorstore.Match{{ID: "42_chunk_1", Score: 0.9}}}

	matches, err := newTestRetriever(t, dense, sparse, index).Retrieve(context.Background(), "helmet policy", 0)

	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "42_chunk_1", matches[0].ID)
	assert.Equal(t, dense.vec, index.gotDense)
	assert.Equal(t, sparse.vec, index.gotSparse)
	// Default top-k applies when the caller passes none.
	assert.Equal(t, 5, index.gotLimit)
}

func TestRetrieve_ExplicitKOverridesDefault(t *testing.T) {
	index := &fakeIndex{}
	r := newTestRetriever(t, &fakeDense{vec: []float32{1}}, &fakeSparse{}, index)

	_, err := r.Retrieve(context.Background(), "boots", 12)

	require.NoError(t, err)
	assert.Equal(t, 12, index.gotLimit)
}

func TestRetrieve_EmptyResultIsNotAnError(t *testing.T) {
	r := newTestRetriever(t, &fakeDense{vec: []float32{1}}, &fakeSparse{}, &fakeIndex{})

	matches, err := r.Retrieve(context.Background(), "nothing matches this", 0)

	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRetrieve_EmptyQueryRejected(t *testing.T) {
	r := newTestRetriever(t, &fakeDense{}, &fakeSparse{}, &fakeIndex{})

	_, err := r.Retrieve(context.Background(), "   ", 0)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestRetrieve_StageTaggedErrors(t *testing.T) {
	boom := errors.New("provider down")

	t.Run("dense", func(t *testing.T) {
		r := newTestRetriever(t, &fakeDense{err: boom}, &fakeSparse{}, &fakeIndex{})
		_, err := r.Retrieve(context.Background(), "q", 0)
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "embedding query (dense)")
	})

	t.Run("sparse", func(t *testing.T) {
		r := newTestRetriever(t, &fakeDense{vec: []float32{1}}, &fakeSparse{err: boom}, &fakeIndex{})
		_, err := r.Retrieve(context.Background(), "q", 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "embedding query (sparse)")
	})

	t.Run("index", func(t *testing.T) {
		index := &fakeIndex{err: vectorstore.ErrIndexOperation}
		r := newTestRetriever(t, &fakeDense{vec: []float32{1}}, &fakeSparse{}, index)
		_, err := r.Retrieve(context.Background(), "q", 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "querying index")
		assert.True(t, vectorstore.IsIndexError(err))
	})
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, &fakeSparse{}, &fakeIndex{}, 5, nil)
	require.Error(t, err)

	_, err = New(&fakeDense{}, &fakeSparse{}, nil, 5, nil)
	require.Error(t, err)

	_, err = New(&fakeDense{}, &fakeSparse{}, &fakeIndex{}, 0, nil)
	require.Error(t, err)
}
