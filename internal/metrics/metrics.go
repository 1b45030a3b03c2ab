// Package metrics provides Prometheus instrumentation for the ingestion
// pipeline and the query path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DocumentsIngested counts completed ingestion runs.
	// Labels: status (ready, error)
	DocumentsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Total number of document ingestion runs by outcome",
		},
		[]string{"status"},
	)

	// ChunksStored counts chunks committed to the vector store.
	ChunksStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "ingest",
			Name:      "chunks_stored_total",
			Help:      "Total number of chunks embedded and stored",
		},
	)

	// IngestDuration tracks end-to-end ingestion time per document.
	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ragd",
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Duration of document ingestion runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	// DocumentsDeleted counts deletion requests.
	// Labels: result (deleted, not_found, error)
	DocumentsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "ingest",
			Name:      "deletions_total",
			Help:      "Total number of document deletion requests by result",
		},
		[]string{"result"},
	)

	// Queries counts retrieval-augmented query requests.
	// Labels: outcome (answered, no_documents, fallback, error)
	Queries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total number of query requests by outcome",
		},
		[]string{"outcome"},
	)

	// QueryDuration tracks end-to-end query latency.
	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ragd",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Duration of query requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// RecordIngestResult records the outcome of an ingestion run.
func RecordIngestResult(ready bool, chunks int, seconds float64) {
	if ready {
		DocumentsIngested.WithLabelValues("ready").Inc()
		ChunksStored.Add(float64(chunks))
	} else {
		DocumentsIngested.WithLabelValues("error").Inc()
	}
	IngestDuration.Observe(seconds)
}

// RecordDeletion records the result of a deletion request.
func RecordDeletion(result string) {
	DocumentsDeleted.WithLabelValues(result).Inc()
}

// RecordQuery records the outcome and latency of a query request.
func RecordQuery(outcome string, seconds float64) {
	Queries.WithLabelValues(outcome).Inc()
	QueryDuration.Observe(seconds)
}
