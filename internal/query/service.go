// Package query implements the retrieval-augmented query service:
// embed the question, retrieve the nearest chunks, assemble a
// context-restricted prompt and generate an answer.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/llm"
	"github.com/fyrsmithlabs/ragd/internal/metrics"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// ErrEmptyQuestion indicates a blank question.
var ErrEmptyQuestion = errors.New("question is empty")

const (
	// noDocumentsAnswer is returned when retrieval yields zero chunks.
	// The model is never invoked with an empty context.
	noDocumentsAnswer = "I could not find any documents to answer this question. Upload some documents first."

	// fallbackAnswer is returned when the model invocation fails, so
	// the API still answers instead of erroring.
	fallbackAnswer = "I was unable to generate an answer. The prompt may be too long, or the language model is currently unavailable."

	chunkDelimiter = "\n\n---\n\n"

	promptTemplate = `You are an assistant that answers questions based EXCLUSIVELY on the information provided in the context below.

IMPORTANT RULES:
- Answer ONLY using information explicitly present in the provided context
- If the answer is in the context, quote it precisely and completely
- If the answer is NOT in the context, reply: "I cannot find this information in the uploaded documents"
- Do NOT invent, do NOT infer, do NOT add outside information
- Read the ENTIRE context carefully before answering
- If you find the answer, state it clearly and directly

CONTEXT (from uploaded documents):
%s

USER QUESTION: %s

ANSWER (based ONLY on the context above):
`
)

// Source is one retrieved chunk backing an answer.
type Source struct {
	Text     string  `json:"text"`
	Score    float32 `json:"score"`
	Filename string  `json:"filename"`
}

// Result is the full outcome of a query.
type Result struct {
	Answer     string   `json:"answer"`
	Sources    []Source `json:"sources"`
	Question   string   `json:"question"`
	ChunksUsed int      `json:"chunks_used"`
}

// Service answers questions against the indexed documents.
type Service struct {
	embedder  embeddings.Provider
	store     vectorstore.Store
	generator llm.Generator
	topK      int
	logger    *zap.Logger
}

// NewService creates a query Service retrieving topK chunks per question.
func NewService(
	embedder embeddings.Provider,
	store vectorstore.Store,
	generator llm.Generator,
	topK int,
	logger *zap.Logger,
) (*Service, error) {
	if embedder == nil || store == nil || generator == nil {
		return nil, errors.New("embedder, store and generator are required")
	}
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		embedder:  embedder,
		store:     store,
		generator: generator,
		topK:      topK,
		logger:    logger,
	}, nil
}

// Query answers a question from the indexed documents. Model failures
// produce a fallback answer inside the Result, not an error; only
// embedding and retrieval failures are returned as errors.
func (s *Service) Query(ctx context.Context, question string) (Result, error) {
	if strings.TrimSpace(question) == "" {
		return Result{}, ErrEmptyQuestion
	}
	start := time.Now()
	s.logger.Info("query received", zap.String("question", question))

	vector, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		metrics.RecordQuery("error", time.Since(start).Seconds())
		return Result{}, fmt.Errorf("embedding question: %w", err)
	}

	chunks, err := s.store.Search(ctx, vector, s.topK)
	if err != nil {
		metrics.RecordQuery("error", time.Since(start).Seconds())
		return Result{}, fmt.Errorf("searching chunks: %w", err)
	}

	if len(chunks) == 0 {
		s.logger.Warn("no chunks retrieved", zap.String("question", question))
		metrics.RecordQuery("no_documents", time.Since(start).Seconds())
		return Result{
			Answer:   noDocumentsAnswer,
			Sources:  []Source{},
			Question: question,
		}, nil
	}

	s.logger.Info("chunks retrieved",
		zap.String("question", question),
		zap.Int("count", len(chunks)))

	prompt := fmt.Sprintf(promptTemplate, buildContext(chunks), question)

	outcome := "answered"
	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		s.logger.Error("answer generation failed", zap.Error(err))
		answer = fallbackAnswer
		outcome = "fallback"
	}

	sources := make([]Source, len(chunks))
	for i, c := range chunks {
		sources[i] = Source{Text: c.Text, Score: c.Score, Filename: c.Filename}
	}

	metrics.RecordQuery(outcome, time.Since(start).Seconds())
	return Result{
		Answer:     answer,
		Sources:    sources,
		Question:   question,
		ChunksUsed: len(chunks),
	}, nil
}

// buildContext assembles the context block, preserving retrieval order
// so the highest-scoring chunks come first.
func buildContext(chunks []vectorstore.ScoredChunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = fmt.Sprintf("[Source: %s]\n%s", c.Filename, c.Text)
	}
	return strings.Join(parts, chunkDelimiter)
}
