package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/corpusd/internal/chunker"
	"github.com/fyrsmithlabs/corpusd/internal/vectormath"
	"github.com/fyrsmithlabs/corpusd/internal/vectorstore"
)

type fakeDense struct {
	err   error
	calls int
}

func (f *fakeDense) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1}
	}
	return out, nil
}

type fakeSparse struct {
	err error
}

func (f *fakeSparse) EmbedDocuments(_ context.Context, texts []string) ([]vectormath.SparseVector, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]vectormath.SparseVector, len(texts))
	for i := range out {
		out[i] = vectormath.SparseVector{Indices: []uint32{0}, Values: []float32{1}}
	}
	return out, nil
}

type fakeUpserter struct {
	gotChunks []chunker.Chunk
	err       error
}

func (f *fakeUpserter) UpsertChunks(_ context.Context, chunks []chunker.Chunk, dense [][]float32, sparse []vectormath.SparseVector) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.gotChunks = chunks
	return len(chunks), nil
}

type fakeIndex struct {
	ensured   int
	ensureErr error
}

func (f *fakeIndex) EnsureCollection(context.Context) error {
	f.ensured++
	return f.ensureErr
}
func (f *fakeIndex) Upsert(context.Context, []vectorstore.Record) error { return nil }
func (f *fakeIndex) HybridQuery(context.Context, []float32, vectormath.SparseVector, int) ([]vectorstore.Match, error) {
	return nil, nil
}
func (f *fakeIndex) Close() error { return nil }

type testPipeline struct {
	p        *Pipeline
	dense    *fakeDense
	sparse   *fakeSparse
	upserter *fakeUpserter
	index    *fakeIndex
}

func newTestPipeline(t *testing.T) *testPipeline {
	t.Helper()
	splitter, err := chunker.NewSplitter(chunker.Config{ChunkSize: 1000, ChunkOverlap: 100, HeaderDepth: 3}, nil)
	require.NoError(t, err)

	tp := &testPipeline{
		dense:    &fakeDense{},
		sparse:   &fakeSparse{},
		upserter: &fakeUpserter{},
		index:    &fakeIndex{},
	}
	tp.p, err = New(splitter, tp.dense, tp.sparse, tp.upserter, tp.index, nil)
	require.NoError(t, err)
	return tp
}

func writeDoc(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestIngest_DirectoryScan(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.md", "---\npage_id: 1\n---\n# One\nAlpha.")
	writeDoc(t, dir, "b.md", "---\npage_id: 2\n---\n# Two\nBeta.")
	writeDoc(t, dir, "notes.txt", "not markdown")

	tp := newTestPipeline(t)
	stats, err := tp.p.Ingest(context.Background(), dir, nil)

	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesDiscovered)
	assert.Equal(t, 2, stats.FilesChunked)
	assert.Zero(t, stats.FilesFailed)
	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, 2, stats.Upserted)
	assert.NotEmpty(t, stats.RunID)
	assert.Equal(t, 1, tp.index.ensured)

	ids := []string{tp.upserter.gotChunks[0].ID, tp.upserter.gotChunks[1].ID}
	assert.ElementsMatch(t, []string{"1_chunk_1", "2_chunk_1"}, ids)
}

func TestIngest_MalformedDocumentIsSkipped(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "good.md", "# Fine\nContent.")
	writeDoc(t, dir, "bad.md", "---\ntitle: never closed\n# Body")

	tp := newTestPipeline(t)
	stats, err := tp.p.Ingest(context.Background(), dir, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesChunked)
	assert.Equal(t, 1, stats.FilesFailed)
	assert.Equal(t, 1, stats.Upserted)
}

func TestIngest_EmptyDirectory(t *testing.T) {
	tp := newTestPipeline(t)
	_, err := tp.p.Ingest(context.Background(), t.TempDir(), nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no markdown files")
}

func TestIngest_ExplicitFileList(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "wanted.md", "# Wanted\nContent.")
	writeDoc(t, dir, "ignored.md", "# Ignored\nContent.")

	tp := newTestPipeline(t)
	stats, err := tp.p.Ingest(context.Background(), dir, []string{"wanted.md"})

	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesDiscovered)
	require.Len(t, tp.upserter.gotChunks, 1)
	assert.Equal(t, "wanted_chunk_1", tp.upserter.gotChunks[0].ID)
}

func TestIngest_MissingExplicitFileFailsFast(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "present.md", "# Here\nContent.")

	tp := newTestPipeline(t)
	_, err := tp.p.Ingest(context.Background(), dir, []string{"present.md", "absent.md"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "absent.md")
	// Nothing runs when the file list does not validate.
	assert.Zero(t, tp.index.ensured)
	assert.Zero(t, tp.dense.calls)
}

func TestIngest_EmbeddingFailureAbortsRun(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.md", "# A\nContent.")

	tp := newTestPipeline(t)
	boom := errors.New("quota exhausted")
	tp.dense.err = boom

	stats, err := tp.p.Ingest(context.Background(), dir, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "dense embedding")
	assert.Zero(t, stats.Upserted)
}

func TestIngest_EnsureCollectionFailureAbortsRun(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.md", "# A\nContent.")

	tp := newTestPipeline(t)
	tp.index.ensureErr = errors.New("qdrant down")

	_, err := tp.p.Ingest(context.Background(), dir, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ensuring collection")
	assert.Zero(t, tp.dense.calls)
}

func TestIngest_UpsertFailureReported(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.md", "# A\nContent.")

	tp := newTestPipeline(t)
	tp.upserter.err = errors.New("write failed")

	_, err := tp.p.Ingest(context.Background(), dir, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "upserting chunks")
}
