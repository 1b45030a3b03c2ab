package query

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

func (f *fakeEmbedder) Dimension() int { return 2 }

type fakeStore struct {
	chunks []vectorstore.ScoredChunk
	err    error
}

func (f *fakeStore) EnsureCollection(ctx context.Context) error { return nil }
func (f *fakeStore) UpsertBatch(ctx context.Context, points []vectorstore.Point) error {
	return nil
}
func (f *fakeStore) Search(ctx context.Context, vector []float32, k int) ([]vectorstore.ScoredChunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.chunks, nil
}
func (f *fakeStore) FindIDsByFilename(ctx context.Context, filename string) ([]string, error) {
	return nil, nil
}
func (f *fakeStore) DeleteByIDs(ctx context.Context, ids []string) error { return nil }
func (f *fakeStore) ListDocuments(ctx context.Context) (map[string]vectorstore.DocumentStat, error) {
	return nil, nil
}
func (f *fakeStore) Close() error { return nil }

type fakeGenerator struct {
	answer  string
	err     error
	called  bool
	prompts []string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.called = true
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func newTestService(t *testing.T, store *fakeStore, gen *fakeGenerator) *Service {
	t.Helper()
	s, err := NewService(&fakeEmbedder{}, store, gen, 10, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestQuery_Answered(t *testing.T) {
	store := &fakeStore{chunks: []vectorstore.ScoredChunk{
		{Text: "Revenue grew 12% in Q3.", Score: 0.92, Filename: "report.pdf"},
		{Text: "Costs were flat.", Score: 0.81, Filename: "budget.txt"},
	}}
	gen := &fakeGenerator{answer: "Revenue grew 12% in Q3."}
	s := newTestService(t, store, gen)

	res, err := s.Query(context.Background(), "How did revenue change?")
	require.NoError(t, err)
	assert.Equal(t, "Revenue grew 12% in Q3.", res.Answer)
	assert.Equal(t, "How did revenue change?", res.Question)
	assert.Equal(t, 2, res.ChunksUsed)
	require.Len(t, res.Sources, 2)
	assert.Equal(t, "report.pdf", res.Sources[0].Filename)
	assert.InDelta(t, 0.92, res.Sources[0].Score, 0.001)
}

func TestQuery_PromptContainsContextAndQuestion(t *testing.T) {
	store := &fakeStore{chunks: []vectorstore.ScoredChunk{
		{Text: "First chunk.", Score: 0.9, Filename: "a.txt"},
		{Text: "Second chunk.", Score: 0.8, Filename: "b.txt"},
	}}
	gen := &fakeGenerator{answer: "ok"}
	s := newTestService(t, store, gen)

	_, err := s.Query(context.Background(), "What is in the files?")
	require.NoError(t, err)
	require.Len(t, gen.prompts, 1)

	prompt := gen.prompts[0]
	assert.Contains(t, prompt, "[Source: a.txt]\nFirst chunk.")
	assert.Contains(t, prompt, "[Source: b.txt]\nSecond chunk.")
	assert.Contains(t, prompt, "\n\n---\n\n")
	assert.Contains(t, prompt, "What is in the files?")

	// retrieval order preserved: highest score first
	assert.Less(t,
		strings.Index(prompt, "First chunk."),
		strings.Index(prompt, "Second chunk."))
}

func TestQuery_NoDocuments(t *testing.T) {
	gen := &fakeGenerator{answer: "should not be used"}
	s := newTestService(t, &fakeStore{}, gen)

	res, err := s.Query(context.Background(), "Anything indexed?")
	require.NoError(t, err)
	assert.Equal(t, noDocumentsAnswer, res.Answer)
	assert.Empty(t, res.Sources)
	assert.NotNil(t, res.Sources)
	assert.Zero(t, res.ChunksUsed)
	assert.False(t, gen.called, "model must not be invoked with empty context")
}

func TestQuery_GenerationFailureFallsBack(t *testing.T) {
	store := &fakeStore{chunks: []vectorstore.ScoredChunk{
		{Text: "chunk", Score: 0.5, Filename: "a.txt"},
	}}
	gen := &fakeGenerator{err: errors.New("model unavailable")}
	s := newTestService(t, store, gen)

	res, err := s.Query(context.Background(), "question")
	require.NoError(t, err, "model failure must not surface as an error")
	assert.Equal(t, fallbackAnswer, res.Answer)
	assert.Len(t, res.Sources, 1)
	assert.Equal(t, 1, res.ChunksUsed)
}

func TestQuery_EmptyQuestion(t *testing.T) {
	s := newTestService(t, &fakeStore{}, &fakeGenerator{})

	_, err := s.Query(context.Background(), "   ")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestQuery_SearchError(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	s := newTestService(t, store, &fakeGenerator{})

	_, err := s.Query(context.Background(), "question")
	require.Error(t, err)
}
