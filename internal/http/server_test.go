package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/query"
	"github.com/fyrsmithlabs/ragd/internal/status"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

type fakeIngestor struct {
	submitted    map[string][]byte
	deleteResult ingest.DeleteResult
	deleteErr    error
}

func newFakeIngestor() *fakeIngestor {
	return &fakeIngestor{submitted: map[string][]byte{}}
}

func (f *fakeIngestor) Submit(filename string, content []byte) {
	f.submitted[filename] = content
}

func (f *fakeIngestor) Delete(ctx context.Context, filename string) (ingest.DeleteResult, error) {
	return f.deleteResult, f.deleteErr
}

type fakeQuerier struct {
	result query.Result
	err    error
}

func (f *fakeQuerier) Query(ctx context.Context, question string) (query.Result, error) {
	if f.err != nil {
		return query.Result{}, f.err
	}
	return f.result, nil
}

type fakeLister struct {
	stats map[string]vectorstore.DocumentStat
	err   error
}

func (f *fakeLister) ListDocuments(ctx context.Context) (map[string]vectorstore.DocumentStat, error) {
	return f.stats, f.err
}

type serverFixture struct {
	server   *Server
	ingestor *fakeIngestor
	querier  *fakeQuerier
	registry *status.Registry
	lister   *fakeLister
}

func setupTestServer(t *testing.T) *serverFixture {
	t.Helper()
	f := &serverFixture{
		ingestor: newFakeIngestor(),
		querier:  &fakeQuerier{},
		registry: status.NewRegistry(zap.NewNop()),
		lister:   &fakeLister{},
	}
	accepts := func(filename string) bool {
		return strings.HasSuffix(filename, ".txt") || strings.HasSuffix(filename, ".pdf")
	}
	server, err := NewServer(f.ingestor, f.querier, f.registry, f.lister, accepts, zap.NewNop(), nil)
	require.NoError(t, err)
	f.server = server
	return f
}

func multipartBody(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func TestNewServer(t *testing.T) {
	t.Run("uses defaults when config is nil", func(t *testing.T) {
		f := setupTestServer(t)
		assert.Equal(t, "localhost", f.server.config.Host)
		assert.Equal(t, 8080, f.server.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(newFakeIngestor(), &fakeQuerier{}, status.NewRegistry(zap.NewNop()), &fakeLister{}, nil, nil, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when ingestor is nil", func(t *testing.T) {
		_, err := NewServer(nil, &fakeQuerier{}, status.NewRegistry(zap.NewNop()), &fakeLister{}, nil, zap.NewNop(), nil)
		assert.Error(t, err)
	})
}

func TestHandleHealth(t *testing.T) {
	f := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	f.server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleUpload(t *testing.T) {
	t.Run("accepts document and reports processing", func(t *testing.T) {
		f := setupTestServer(t)

		body, contentType := multipartBody(t, "report.txt", []byte("quarterly numbers"))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		rec := httptest.NewRecorder()
		f.server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusAccepted, rec.Code)

		var resp UploadResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "report.txt", resp.Filename)
		assert.Equal(t, "processing", resp.Status)
		assert.Equal(t, []byte("quarterly numbers"), f.ingestor.submitted["report.txt"])
	})

	t.Run("strips directory components from filename", func(t *testing.T) {
		f := setupTestServer(t)

		body, contentType := multipartBody(t, "../../etc/passwd.txt", []byte("x"))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		rec := httptest.NewRecorder()
		f.server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Contains(t, f.ingestor.submitted, "passwd.txt")
	})

	t.Run("rejects unsupported extension", func(t *testing.T) {
		f := setupTestServer(t)

		body, contentType := multipartBody(t, "image.png", []byte("x"))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		rec := httptest.NewRecorder()
		f.server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
		assert.Empty(t, f.ingestor.submitted)
	})

	t.Run("rejects missing file field", func(t *testing.T) {
		f := setupTestServer(t)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader("{}"))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		f.server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleListDocuments(t *testing.T) {
	f := setupTestServer(t)
	uploaded := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.lister.stats = map[string]vectorstore.DocumentStat{
		"b.txt": {Chunks: 3, UploadedAt: uploaded},
		"a.txt": {Chunks: 5, UploadedAt: uploaded},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
	rec := httptest.NewRecorder()
	f.server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var docs []DocumentInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs))
	require.Len(t, docs, 2)
	assert.Equal(t, "a.txt", docs[0].Filename)
	assert.Equal(t, 5, docs[0].Chunks)
	assert.Equal(t, "b.txt", docs[1].Filename)
}

func TestHandleDelete(t *testing.T) {
	t.Run("deleted document returns 200", func(t *testing.T) {
		f := setupTestServer(t)
		f.ingestor.deleteResult = ingest.DeleteResult{Status: ingest.DeleteSuccess, ChunksDeleted: 4}

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/documents/report.txt", nil)
		rec := httptest.NewRecorder()
		f.server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp ingest.DeleteResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, ingest.DeleteSuccess, resp.Status)
		assert.Equal(t, 4, resp.ChunksDeleted)
	})

	t.Run("unknown document returns 404 not_found", func(t *testing.T) {
		f := setupTestServer(t)
		f.ingestor.deleteResult = ingest.DeleteResult{Status: ingest.DeleteNotFound}

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/documents/missing.txt", nil)
		rec := httptest.NewRecorder()
		f.server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("store failure returns 500", func(t *testing.T) {
		f := setupTestServer(t)
		f.ingestor.deleteErr = errors.New("connection refused")

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/documents/report.txt", nil)
		rec := httptest.NewRecorder()
		f.server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHandleStatus(t *testing.T) {
	t.Run("snapshot of all records", func(t *testing.T) {
		f := setupTestServer(t)
		f.registry.Register("a.txt")
		f.registry.Register("b.txt")
		f.registry.MarkReady("b.txt", 9)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
		rec := httptest.NewRecorder()
		f.server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var records map[string]status.Record
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
		require.Len(t, records, 2)
		assert.Equal(t, status.StateProcessing, records["a.txt"].State)
		assert.Equal(t, status.StateReady, records["b.txt"].State)
		assert.Equal(t, 9, records["b.txt"].ChunkCount)
	})

	t.Run("single record", func(t *testing.T) {
		f := setupTestServer(t)
		f.registry.Register("a.txt")

		req := httptest.NewRequest(http.MethodGet, "/api/v1/status/a.txt", nil)
		rec := httptest.NewRecorder()
		f.server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var record status.Record
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
		assert.Equal(t, status.StateProcessing, record.State)
	})

	t.Run("unknown filename returns 404", func(t *testing.T) {
		f := setupTestServer(t)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/status/missing.txt", nil)
		rec := httptest.NewRecorder()
		f.server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleQuery(t *testing.T) {
	t.Run("answers question", func(t *testing.T) {
		f := setupTestServer(t)
		f.querier.result = query.Result{
			Answer:     "Revenue grew 12%.",
			Sources:    []query.Source{{Text: "Revenue grew 12%.", Score: 0.9, Filename: "report.txt"}},
			Question:   "How did revenue change?",
			ChunksUsed: 1,
		}

		body, err := json.Marshal(QueryRequest{Question: "How did revenue change?"})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		f.server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp query.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Revenue grew 12%.", resp.Answer)
		assert.Equal(t, 1, resp.ChunksUsed)
	})

	t.Run("rejects empty question", func(t *testing.T) {
		f := setupTestServer(t)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(`{"question": ""}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		f.server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects question over the length cap", func(t *testing.T) {
		f := setupTestServer(t)
		server, err := NewServer(f.ingestor, f.querier, f.registry, f.lister, nil, zap.NewNop(),
			&Config{MaxQuestionLength: 10})
		require.NoError(t, err)

		body, err := json.Marshal(QueryRequest{Question: strings.Repeat("x", 11)})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("retrieval failure returns 500", func(t *testing.T) {
		f := setupTestServer(t)
		f.querier.err = errors.New("connection refused")

		body, err := json.Marshal(QueryRequest{Question: "anything"})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		f.server.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
