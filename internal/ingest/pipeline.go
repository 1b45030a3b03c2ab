// Package ingest implements the document ingestion pipeline and the
// orchestrator that runs it asynchronously.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// ErrEmptyContent indicates an upload with no bytes.
var ErrEmptyContent = errors.New("document content is empty")

// Extractor converts document bytes into plain text.
type Extractor interface {
	Extract(data []byte, filename string) (string, error)
}

// TextSplitter splits extracted text into embedding-sized segments.
type TextSplitter interface {
	Split(text string) ([]string, error)
}

// Result summarizes a completed ingestion run.
type Result struct {
	ChunkCount int
	Dimension  int
}

// Pipeline runs the extract, split, embed and store steps for one
// document. It is stateless and safe for concurrent use.
type Pipeline struct {
	extractor Extractor
	splitter  TextSplitter
	embedder  embeddings.Provider
	store     vectorstore.Store
	batchSize int
	logger    *zap.Logger
}

// NewPipeline creates a Pipeline. batchSize bounds how many chunks are
// embedded and upserted per round trip.
func NewPipeline(
	extractor Extractor,
	splitter TextSplitter,
	embedder embeddings.Provider,
	store vectorstore.Store,
	batchSize int,
	logger *zap.Logger,
) (*Pipeline, error) {
	if extractor == nil || splitter == nil || embedder == nil || store == nil {
		return nil, errors.New("extractor, splitter, embedder and store are required")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		extractor: extractor,
		splitter:  splitter,
		embedder:  embedder,
		store:     store,
		batchSize: batchSize,
		logger:    logger,
	}, nil
}

// Ingest processes one document end to end and returns the number of
// chunks stored. Batches committed before a mid-run failure stay in the
// store; re-ingesting the document after deleting it is the recovery
// path.
func (p *Pipeline) Ingest(ctx context.Context, filename string, content []byte) (Result, error) {
	if len(content) == 0 {
		return Result{}, ErrEmptyContent
	}
	uploadedAt := time.Now().UnixMilli()

	// The document is staged on disk so a processing crash never leaves
	// the only copy in memory. The scratch file is removed on all exits.
	tmp, err := os.CreateTemp("", "ragd-*"+filepath.Ext(filename))
	if err != nil {
		return Result{}, fmt.Errorf("creating scratch file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return Result{}, fmt.Errorf("writing scratch file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Result{}, fmt.Errorf("closing scratch file: %w", err)
	}

	staged, err := os.ReadFile(tmpPath)
	if err != nil {
		return Result{}, fmt.Errorf("reading scratch file: %w", err)
	}

	text, err := p.extractor.Extract(staged, filename)
	if err != nil {
		return Result{}, err
	}

	segments, err := p.splitter.Split(text)
	if err != nil {
		return Result{}, err
	}
	if len(segments) == 0 {
		return Result{}, ErrEmptyContent
	}

	stored := 0
	for start := 0; start < len(segments); start += p.batchSize {
		end := min(start+p.batchSize, len(segments))
		batch := segments[start:end]

		vectors, err := p.embedder.EmbedDocuments(ctx, batch)
		if err != nil {
			return Result{}, fmt.Errorf("embedding batch at chunk %d (%d chunks already stored): %w",
				start, stored, err)
		}

		points := make([]vectorstore.Point, len(batch))
		for i, seg := range batch {
			points[i] = vectorstore.Point{
				ID:         uuid.NewString(),
				Vector:     vectors[i],
				Text:       seg,
				Filename:   filename,
				UploadedAt: uploadedAt,
			}
		}
		if err := p.store.UpsertBatch(ctx, points); err != nil {
			return Result{}, fmt.Errorf("storing batch at chunk %d (%d chunks already stored): %w",
				start, stored, err)
		}
		stored += len(batch)

		p.logger.Debug("batch stored",
			zap.String("filename", filename),
			zap.Int("batch_start", start),
			zap.Int("batch_size", len(batch)))
	}

	p.logger.Info("document ingested",
		zap.String("filename", filename),
		zap.Int("chunks", stored),
		zap.Int("dimension", p.embedder.Dimension()))

	return Result{ChunkCount: stored, Dimension: p.embedder.Dimension()}, nil
}
