package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/metrics"
	"github.com/fyrsmithlabs/ragd/internal/status"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// DeleteStatus is the outcome of a deletion request.
type DeleteStatus string

const (
	// DeleteSuccess means the document's chunks were removed.
	DeleteSuccess DeleteStatus = "success"

	// DeleteNotFound means no chunks existed for the filename.
	// Deletion is idempotent, so this is not an error.
	DeleteNotFound DeleteStatus = "not_found"
)

// DeleteResult reports the outcome of a deletion request.
type DeleteResult struct {
	Status        DeleteStatus `json:"status"`
	ChunksDeleted int          `json:"chunks_deleted"`
}

// DocumentIngester runs the ingestion pipeline for one document.
type DocumentIngester interface {
	Ingest(ctx context.Context, filename string, content []byte) (Result, error)
}

// Orchestrator coordinates ingestion runs, the status registry and
// deletion. Submitted runs execute on a bounded worker pool.
type Orchestrator struct {
	pipeline DocumentIngester
	registry *status.Registry
	store    vectorstore.Store
	pool     *ants.Pool
	logger   *zap.Logger
}

// NewOrchestrator creates an Orchestrator with workers concurrent
// ingestion slots. Submit blocks when all slots are busy.
func NewOrchestrator(
	pipeline DocumentIngester,
	registry *status.Registry,
	store vectorstore.Store,
	workers int,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if pipeline == nil || registry == nil || store == nil {
		return nil, fmt.Errorf("pipeline, registry and store are required")
	}
	if workers <= 0 {
		return nil, fmt.Errorf("workers must be positive, got %d", workers)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	return &Orchestrator{
		pipeline: pipeline,
		registry: registry,
		store:    store,
		pool:     pool,
		logger:   logger,
	}, nil
}

// Submit registers the document as processing and schedules its
// ingestion run. It returns as soon as the record is registered, even
// when every worker is busy; the run's outcome is reported only
// through the registry.
func (o *Orchestrator) Submit(filename string, content []byte) {
	o.registry.Register(filename)
	// pool.Submit blocks while all workers are busy, so it runs off the
	// caller's goroutine. Concurrency stays bounded by the pool.
	go func() {
		err := o.pool.Submit(func() {
			o.run(context.Background(), filename, content)
		})
		if err != nil {
			o.logger.Error("submitting ingestion run",
				zap.String("filename", filename), zap.Error(err))
			o.registry.MarkError(filename, fmt.Sprintf("scheduling failed: %v", err))
			metrics.RecordIngestResult(false, 0, 0)
		}
	}()
}

// Ingest runs the pipeline synchronously with the same registry
// transitions as Submit.
func (o *Orchestrator) Ingest(ctx context.Context, filename string, content []byte) error {
	o.registry.Register(filename)
	return o.run(ctx, filename, content)
}

func (o *Orchestrator) run(ctx context.Context, filename string, content []byte) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ingestion panicked: %v", r)
			o.logger.Error("ingestion run panicked",
				zap.String("filename", filename), zap.Any("panic", r))
			o.registry.MarkError(filename, err.Error())
			metrics.RecordIngestResult(false, 0, time.Since(start).Seconds())
		}
	}()

	res, err := o.pipeline.Ingest(ctx, filename, content)
	if err != nil {
		o.logger.Warn("ingestion run failed",
			zap.String("filename", filename), zap.Error(err))
		o.registry.MarkError(filename, err.Error())
		metrics.RecordIngestResult(false, 0, time.Since(start).Seconds())
		return err
	}

	o.registry.MarkReady(filename, res.ChunkCount)
	metrics.RecordIngestResult(true, res.ChunkCount, time.Since(start).Seconds())
	return nil
}

// Delete removes all chunks belonging to filename. A filename with no
// chunks yields DeleteNotFound, never an error; store failures
// propagate.
func (o *Orchestrator) Delete(ctx context.Context, filename string) (DeleteResult, error) {
	ids, err := o.store.FindIDsByFilename(ctx, filename)
	if err != nil {
		metrics.RecordDeletion("error")
		return DeleteResult{}, fmt.Errorf("finding chunks for %q: %w", filename, err)
	}
	if len(ids) == 0 {
		// a failed ingestion can leave an ERROR record with zero stored
		// chunks; deleting the document must still clear it
		o.registry.Remove(filename)
		metrics.RecordDeletion("not_found")
		return DeleteResult{Status: DeleteNotFound}, nil
	}

	if err := o.store.DeleteByIDs(ctx, ids); err != nil {
		metrics.RecordDeletion("error")
		return DeleteResult{}, fmt.Errorf("deleting chunks for %q: %w", filename, err)
	}
	o.registry.Remove(filename)

	o.logger.Info("document deleted",
		zap.String("filename", filename),
		zap.Int("chunks", len(ids)))
	metrics.RecordDeletion("deleted")
	return DeleteResult{Status: DeleteSuccess, ChunksDeleted: len(ids)}, nil
}

// Close releases the worker pool. Queued runs are abandoned.
func (o *Orchestrator) Close() {
	o.pool.Release()
}
