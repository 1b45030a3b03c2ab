// Package vectorstore defines the interface for vector storage operations.
package vectorstore

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates gRPC connection issues.
	ErrConnectionFailed = errors.New("failed to connect to Qdrant")

	// ErrStoreFailed indicates the store rejected or failed an operation.
	ErrStoreFailed = errors.New("vector store operation failed")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// Point is one embedded chunk ready to be written to the store.
type Point struct {
	// ID is the opaque point identifier, a UUID string.
	ID string

	// Vector is the chunk's embedding.
	Vector []float32

	// Text is the chunk text, stored in the payload for retrieval.
	Text string

	// Filename tags the chunk with its source document.
	Filename string

	// UploadedAt is the document's upload instant, epoch milliseconds.
	UploadedAt int64
}

// ScoredChunk is one nearest-neighbor match from a similarity search.
type ScoredChunk struct {
	ID       string
	Text     string
	Filename string
	Score    float32
}

// DocumentStat aggregates a document's chunks in the store.
type DocumentStat struct {
	Chunks     int
	UploadedAt time.Time
}

// Store is the boundary to the vector database.
//
// The pipeline's batched writes from one document are ordered; writes from
// different documents may interleave. Retrieval is order-independent, so the
// store itself is the authority for concurrent writers.
type Store interface {
	// EnsureCollection creates the configured collection if it does not exist.
	EnsureCollection(ctx context.Context) error

	// UpsertBatch writes one batch of embedded chunks.
	UpsertBatch(ctx context.Context, points []Point) error

	// Search returns up to k chunks nearest to the query vector, ordered by
	// descending similarity score.
	Search(ctx context.Context, vector []float32, k int) ([]ScoredChunk, error)

	// FindIDsByFilename returns the ids of every point whose filename payload
	// matches, scanning the collection in bounded pages.
	FindIDsByFilename(ctx context.Context, filename string) ([]string, error)

	// DeleteByIDs removes points by id in a single bulk call.
	DeleteByIDs(ctx context.Context, ids []string) error

	// ListDocuments aggregates stored chunks per filename. Used to rebuild
	// the status registry on restart and to serve document listings.
	ListDocuments(ctx context.Context) (map[string]DocumentStat, error)

	// Close releases the store connection.
	Close() error
}
