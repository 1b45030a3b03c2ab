// Package status tracks per-document ingestion lifecycle state.
//
// The registry is an in-memory table keyed by filename. It is not the source
// of truth for chunk existence (the vector store is); it only tracks recent
// activity and is rebuilt from store metadata on restart.
package status

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the ingestion lifecycle state of a document.
type State string

const (
	// StateProcessing means ingestion has been accepted and is running.
	StateProcessing State = "PROCESSING"
	// StateReady means ingestion completed; terminal.
	StateReady State = "READY"
	// StateError means ingestion failed; terminal.
	StateError State = "ERROR"
)

// Record holds the lifecycle state of one document.
type Record struct {
	Filename     string     `json:"filename"`
	State        State      `json:"status"`
	ChunkCount   int        `json:"chunk_count"`
	UploadedAt   time.Time  `json:"uploaded_at"`
	ReadyAt      *time.Time `json:"ready_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// DocumentLister exposes per-filename aggregates from the vector store,
// used to rebuild the registry after a restart.
type DocumentLister interface {
	ListDocuments(ctx context.Context) (map[string]DocumentStat, error)
}

// DocumentStat is an aggregate of a document's chunks in the vector store.
type DocumentStat struct {
	Chunks     int
	UploadedAt time.Time
}

// Registry is a concurrency-safe filename -> Record table.
//
// All operations are safe for concurrent use without external locking.
// Re-registering an existing filename overwrites its record (last writer
// wins); concurrent re-submission of the same filename is not deduplicated.
type Registry struct {
	mu      sync.RWMutex
	records map[string]Record
	logger  *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		records: make(map[string]Record),
		logger:  logger,
	}
}

// Register creates or overwrites a PROCESSING record for filename.
func (r *Registry) Register(filename string) {
	r.mu.Lock()
	r.records[filename] = Record{
		Filename:   filename,
		State:      StateProcessing,
		UploadedAt: time.Now(),
	}
	r.mu.Unlock()

	r.logger.Info("document registered", zap.String("filename", filename))
}

// MarkReady transitions a record to READY with its final chunk count.
// A missing record is a logged no-op (it may have been removed concurrently).
func (r *Registry) MarkReady(filename string, chunkCount int) {
	r.mu.Lock()
	rec, ok := r.records[filename]
	if ok {
		now := time.Now()
		rec.State = StateReady
		rec.ChunkCount = chunkCount
		rec.ReadyAt = &now
		r.records[filename] = rec
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Warn("mark ready for unknown document", zap.String("filename", filename))
		return
	}
	r.logger.Info("document ready",
		zap.String("filename", filename),
		zap.Int("chunks", chunkCount))
}

// MarkError transitions a record to ERROR with a human-readable message.
// A missing record is a logged no-op.
func (r *Registry) MarkError(filename, message string) {
	r.mu.Lock()
	rec, ok := r.records[filename]
	if ok {
		rec.State = StateError
		rec.ErrorMessage = message
		r.records[filename] = rec
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Warn("mark error for unknown document", zap.String("filename", filename))
		return
	}
	r.logger.Error("document failed",
		zap.String("filename", filename),
		zap.String("error", message))
}

// Get returns a copy of the record for filename.
func (r *Registry) Get(filename string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[filename]
	return rec, ok
}

// Snapshot returns a point-in-time copy of all records. Callers iterating
// the result are unaffected by concurrent mutation of the registry.
func (r *Registry) Snapshot() map[string]Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Record, len(r.records))
	for k, v := range r.records {
		out[k] = v
	}
	return out
}

// Remove deletes the record for filename, if present.
func (r *Registry) Remove(filename string) {
	r.mu.Lock()
	delete(r.records, filename)
	r.mu.Unlock()

	r.logger.Info("document removed from registry", zap.String("filename", filename))
}

// Len returns the current record count.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Rebuild seeds the registry with READY records derived from the vector
// store's own metadata. Existing records are preserved; only unknown
// filenames are added.
func (r *Registry) Rebuild(ctx context.Context, lister DocumentLister) error {
	stats, err := lister.ListDocuments(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	added := 0
	for filename, stat := range stats {
		if _, exists := r.records[filename]; exists {
			continue
		}
		readyAt := stat.UploadedAt
		r.records[filename] = Record{
			Filename:   filename,
			State:      StateReady,
			ChunkCount: stat.Chunks,
			UploadedAt: stat.UploadedAt,
			ReadyAt:    &readyAt,
		}
		added++
	}
	r.mu.Unlock()

	r.logger.Info("registry rebuilt from vector store",
		zap.Int("documents", added))
	return nil
}
