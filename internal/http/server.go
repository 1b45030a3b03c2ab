// Package http provides the HTTP API for ragd.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/query"
	"github.com/fyrsmithlabs/ragd/internal/status"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Ingestor accepts documents and deletes them.
type Ingestor interface {
	Submit(filename string, content []byte)
	Delete(ctx context.Context, filename string) (ingest.DeleteResult, error)
}

// QueryService answers questions against the indexed documents.
type QueryService interface {
	Query(ctx context.Context, question string) (query.Result, error)
}

// DocumentLister reports per-document chunk statistics from the store.
type DocumentLister interface {
	ListDocuments(ctx context.Context) (map[string]vectorstore.DocumentStat, error)
}

// Server provides the ragd HTTP endpoints.
type Server struct {
	echo       *echo.Echo
	ingestor   Ingestor
	querier    QueryService
	registry   *status.Registry
	lister     DocumentLister
	acceptsExt func(filename string) bool
	logger     *zap.Logger
	config     *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// MaxBodySize caps upload size, e.g. "50M".
	MaxBodySize string

	// MaxQuestionLength caps query question length in bytes; 0 means
	// unlimited.
	MaxQuestionLength int
}

// NewServer creates the HTTP server. acceptsExt filters uploads by
// filename extension; nil accepts everything.
func NewServer(
	ingestor Ingestor,
	querier QueryService,
	registry *status.Registry,
	lister DocumentLister,
	acceptsExt func(filename string) bool,
	logger *zap.Logger,
	cfg *Config,
) (*Server, error) {
	if ingestor == nil || querier == nil || registry == nil || lister == nil {
		return nil, fmt.Errorf("ingestor, querier, registry and lister are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8080}
	}
	if cfg.MaxBodySize == "" {
		cfg.MaxBodySize = "50M"
	}
	if acceptsExt == nil {
		acceptsExt = func(string) bool { return true }
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(cfg.MaxBodySize))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:       e,
		ingestor:   ingestor,
		querier:    querier,
		registry:   registry,
		lister:     lister,
		acceptsExt: acceptsExt,
		logger:     logger,
		config:     cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/documents", s.handleUpload)
	v1.GET("/documents", s.handleListDocuments)
	v1.DELETE("/documents/:filename", s.handleDelete)
	v1.GET("/status", s.handleStatusAll)
	v1.GET("/status/:filename", s.handleStatusOne)
	v1.POST("/query", s.handleQuery)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// UploadResponse is the response body for POST /api/v1/documents.
type UploadResponse struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

// DocumentInfo is one entry in the GET /api/v1/documents response.
type DocumentInfo struct {
	Filename   string    `json:"filename"`
	Chunks     int       `json:"chunks"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// QueryRequest is the request body for POST /api/v1/query.
type QueryRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleUpload accepts a multipart document and schedules its
// ingestion. The response reports the document as processing; the
// status endpoints track the outcome.
func (s *Server) handleUpload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field 'file' is required")
	}

	// strip any client-supplied directory components
	filename := filepath.Base(fileHeader.Filename)
	if filename == "." || filename == "/" || filename == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid filename")
	}
	if !s.acceptsExt(filename) {
		return echo.NewHTTPError(http.StatusUnsupportedMediaType,
			fmt.Sprintf("file type of %q is not supported", filename))
	}

	src, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable upload")
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable upload")
	}

	s.ingestor.Submit(filename, content)

	return c.JSON(http.StatusAccepted, UploadResponse{
		Filename: filename,
		Status:   "processing",
	})
}

// handleListDocuments lists indexed documents from store metadata.
func (s *Server) handleListDocuments(c echo.Context) error {
	stats, err := s.lister.ListDocuments(c.Request().Context())
	if err != nil {
		s.logger.Error("listing documents", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "listing documents failed")
	}

	docs := make([]DocumentInfo, 0, len(stats))
	for filename, stat := range stats {
		docs = append(docs, DocumentInfo{
			Filename:   filename,
			Chunks:     stat.Chunks,
			UploadedAt: stat.UploadedAt,
		})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Filename < docs[j].Filename })

	return c.JSON(http.StatusOK, docs)
}

// handleDelete removes all chunks of a document. Deleting an unknown
// document reports not_found with 404, which is still a clean outcome
// for the caller.
func (s *Server) handleDelete(c echo.Context) error {
	filename := c.Param("filename")

	result, err := s.ingestor.Delete(c.Request().Context(), filename)
	if err != nil {
		s.logger.Error("deleting document", zap.String("filename", filename), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "deletion failed")
	}
	if result.Status == ingest.DeleteNotFound {
		return c.JSON(http.StatusNotFound, result)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleStatusAll(c echo.Context) error {
	return c.JSON(http.StatusOK, s.registry.Snapshot())
}

func (s *Server) handleStatusOne(c echo.Context) error {
	filename := c.Param("filename")
	record, ok := s.registry.Get(filename)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound,
			fmt.Sprintf("no status for %q", filename))
	}
	return c.JSON(http.StatusOK, record)
}

// handleQuery answers a question. Model failures surface as a fallback
// answer in a 200 response; only malformed requests and retrieval
// failures produce error statuses.
func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
	}
	if s.config.MaxQuestionLength > 0 && len(req.Question) > s.config.MaxQuestionLength {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("question exceeds maximum length of %d", s.config.MaxQuestionLength))
	}

	result, err := s.querier.Query(c.Request().Context(), req.Question)
	if err != nil {
		if errors.Is(err, query.ErrEmptyQuestion) {
			return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
		}
		s.logger.Error("query failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "query failed")
	}

	return c.JSON(http.StatusOK, result)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
