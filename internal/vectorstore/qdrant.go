package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// scrollPageLimit bounds each metadata scan page. More pages are fetched in
// a loop until a page comes back short.
const scrollPageLimit = 1000

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (6334, NOT the 6333 HTTP port).
	Port int

	// CollectionName is the collection all document chunks live in.
	CollectionName string

	// VectorSize is the dimensionality of embeddings. MUST match the
	// embedding provider's output dimensions.
	VectorSize uint64

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxRetries is the retry budget for transient failures.
	MaxRetries int

	// RetryBackoff is the initial backoff, doubled per attempt.
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	MaxMessageSize int
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.CollectionName == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024 // 50MB
	}
}

// ValidateCollectionName validates a collection name.
// Rejects uppercase, special chars, path traversal, spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// IsTransientError checks if an error is transient (should retry).
// Returns true for network timeouts and temporary unavailability,
// false for invalid config, not found, permission denied.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	st, ok := status.FromError(err)
	if !ok {
		return false
	}

	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore is a Store implementation using Qdrant's native gRPC client.
//
// The gRPC transport (port 6334) bypasses Qdrant's HTTP layer and its
// payload size limits, which matters for large upsert batches.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger
	scroll scrollFunc
}

// scrollFunc fetches one scroll page, returning the page's points and
// the offset of the next page, nil when the scan is exhausted.
type scrollFunc func(ctx context.Context, req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error)

// NewQdrantStore creates a QdrantStore and verifies connectivity with a
// health check.
func NewQdrantStore(config QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if err := ValidateCollectionName(config.CollectionName); err != nil {
		return nil, fmt.Errorf("validating collection name: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{
		client: client,
		config: config,
		logger: logger,
	}
	store.scroll = store.clientScroll

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check failed: %v", ErrConnectionFailed, err)
	}

	return store, nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// clientScroll issues one scroll page through the raw points client.
// The high-level client's Scroll drops the next-page offset, which the
// paged scans below need.
func (s *QdrantStore) clientScroll(ctx context.Context, req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error) {
	resp, err := s.client.GetPointsClient().Scroll(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	return resp.GetResult(), resp.GetNextPageOffset(), nil
}

// retryOperation retries an operation with exponential backoff for
// transient errors.
func (s *QdrantStore) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := s.config.RetryBackoff

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}

		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, s.config.MaxRetries, err)
		}

		s.logger.Warn("retrying qdrant operation",
			zap.String("operation", operationName),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

// EnsureCollection creates the configured collection if it does not exist.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	var exists bool
	err := s.retryOperation(ctx, "collection_exists", func() error {
		var opErr error
		exists, opErr = s.client.CollectionExists(ctx, s.config.CollectionName)
		return opErr
	})
	if err != nil {
		return fmt.Errorf("%w: checking collection %s: %v", ErrStoreFailed, s.config.CollectionName, err)
	}
	if exists {
		return nil
	}

	err = s.retryOperation(ctx, "create_collection", func() error {
		return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.config.CollectionName,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     s.config.VectorSize,
				Distance: qdrant.Distance_Cosine,
			}),
		})
	})
	if err != nil {
		return fmt.Errorf("%w: creating collection %s: %v", ErrStoreFailed, s.config.CollectionName, err)
	}

	s.logger.Info("collection created",
		zap.String("collection", s.config.CollectionName),
		zap.Uint64("vector_size", s.config.VectorSize))
	return nil
}

// UpsertBatch writes one batch of embedded chunks.
func (s *QdrantStore) UpsertBatch(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	qdrantPoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		payload := map[string]*qdrant.Value{
			"text":        {Kind: &qdrant.Value_StringValue{StringValue: p.Text}},
			"filename":    {Kind: &qdrant.Value_StringValue{StringValue: p.Filename}},
			"uploaded_at": {Kind: &qdrant.Value_IntegerValue{IntegerValue: p.UploadedAt}},
		}
		qdrantPoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		}
	}

	err := s.retryOperation(ctx, "upsert", func() error {
		_, opErr := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.CollectionName,
			Points:         qdrantPoints,
		})
		return opErr
	})
	if err != nil {
		return fmt.Errorf("%w: upserting %d points: %v", ErrStoreFailed, len(points), err)
	}
	return nil
}

// Search returns up to k chunks nearest to the query vector, ordered by
// descending similarity score.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, k int) ([]ScoredChunk, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidConfig, k)
	}

	var results []*qdrant.ScoredPoint
	err := s.retryOperation(ctx, "search", func() error {
		res, opErr := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.CollectionName,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(k)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if opErr != nil {
			return opErr
		}
		results = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: searching collection %s: %v", ErrStoreFailed, s.config.CollectionName, err)
	}

	chunks := make([]ScoredChunk, len(results))
	for i, point := range results {
		chunks[i] = ScoredChunk{
			ID:       point.GetId().GetUuid(),
			Text:     point.GetPayload()["text"].GetStringValue(),
			Filename: point.GetPayload()["filename"].GetStringValue(),
			Score:    point.GetScore(),
		}
	}
	return chunks, nil
}

// FindIDsByFilename returns the ids of every point tagged with filename,
// scanning the collection in pages of scrollPageLimit.
func (s *QdrantStore) FindIDsByFilename(ctx context.Context, filename string) ([]string, error) {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("filename", filename),
		},
	}

	var ids []string
	var offset *qdrant.PointId
	for {
		var page []*qdrant.RetrievedPoint
		var next *qdrant.PointId
		err := s.retryOperation(ctx, "scroll", func() error {
			var opErr error
			page, next, opErr = s.scroll(ctx, &qdrant.ScrollPoints{
				CollectionName: s.config.CollectionName,
				Filter:         filter,
				Limit:          qdrant.PtrOf(uint32(scrollPageLimit)),
				WithPayload:    qdrant.NewWithPayload(false),
				Offset:         offset,
			})
			return opErr
		})
		if err != nil {
			return nil, fmt.Errorf("%w: scrolling points for %s: %v", ErrStoreFailed, filename, err)
		}

		for _, point := range page {
			ids = append(ids, point.GetId().GetUuid())
		}

		if next == nil || len(page) < scrollPageLimit {
			break
		}
		offset = next
	}
	return ids, nil
}

// DeleteByIDs removes points by id in a single bulk call.
func (s *QdrantStore) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(id)
	}

	err := s.retryOperation(ctx, "delete", func() error {
		_, opErr := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.config.CollectionName,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Points{
					Points: &qdrant.PointsIdsList{Ids: pointIDs},
				},
			},
		})
		return opErr
	})
	if err != nil {
		return fmt.Errorf("%w: deleting %d points: %v", ErrStoreFailed, len(ids), err)
	}
	return nil
}

// ListDocuments aggregates stored chunks per filename by scrolling the whole
// collection with payload fields only.
func (s *QdrantStore) ListDocuments(ctx context.Context) (map[string]DocumentStat, error) {
	stats := make(map[string]DocumentStat)

	var offset *qdrant.PointId
	for {
		var page []*qdrant.RetrievedPoint
		var next *qdrant.PointId
		err := s.retryOperation(ctx, "scroll_all", func() error {
			var opErr error
			page, next, opErr = s.scroll(ctx, &qdrant.ScrollPoints{
				CollectionName: s.config.CollectionName,
				Limit:          qdrant.PtrOf(uint32(scrollPageLimit)),
				WithPayload:    qdrant.NewWithPayloadInclude("filename", "uploaded_at"),
				Offset:         offset,
			})
			return opErr
		})
		if err != nil {
			return nil, fmt.Errorf("%w: listing documents: %v", ErrStoreFailed, err)
		}

		for _, point := range page {
			filename := point.GetPayload()["filename"].GetStringValue()
			if filename == "" {
				continue
			}
			stat := stats[filename]
			stat.Chunks++
			if ts := point.GetPayload()["uploaded_at"].GetIntegerValue(); ts > 0 {
				uploaded := time.UnixMilli(ts)
				if stat.UploadedAt.IsZero() || uploaded.Before(stat.UploadedAt) {
					stat.UploadedAt = uploaded
				}
			}
			stats[filename] = stat
		}

		if next == nil || len(page) < scrollPageLimit {
			break
		}
		offset = next
	}
	return stats, nil
}

// Ensure QdrantStore implements Store.
var _ Store = (*QdrantStore)(nil)
