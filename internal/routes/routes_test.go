package routes_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/app"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/config"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/dbtest"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/metrics"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/routes"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/storage"
)

type server struct {
	t    *testing.T
	h    http.Handler
	docs *storage.MemoryStore
}

func newServer(t *testing.T) *server {
	t.Helper()

	cfg := &config.Config{
		APIBaseURL:           "http://api.test",
		DocumentsPrefix:      "documents",
		PageDefault:          20,
		PageMax:              100,
		MaxUploadSize:        1 << 20,
		CleanupRateLimit:     2,
		CleanupRateLimitSpan: time.Minute,
	}
	m, err := metrics.New()
	require.NoError(t, err)

	docs := storage.NewMemoryStore()
	a := app.Wire(cfg, dbtest.SQLite(t), docs, m)
	h, limiter := routes.SetupRoutes(a)
	t.Cleanup(limiter.Stop)

	return &server{t: t, h: h, docs: docs}
}

func (s *server) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	return rec
}

func (s *server) json(method, path string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		r = bytes.NewReader(b)
	}
	return s.do(httptest.NewRequest(method, path, r))
}

func (s *server) multipart(method, path string, fields map[string]string, filename, content string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(s.t, mw.WriteField(k, v))
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(s.t, err)
		_, err = part.Write([]byte(content))
		require.NoError(s.t, err)
	}
	require.NoError(s.t, mw.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.do(req)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type idBody struct {
	ID int64 `json:"id"`
}

func (s *server) createName(name string) int64 {
	rec := s.json(http.MethodPost, "/codes", map[string]any{"code": "c-" + name, "url": "cu-" + name})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	code := decode[idBody](s.t, rec)

	rec = s.json(http.MethodPost, "/names", map[string]any{"code_id": code.ID, "name": name, "url": "nu-" + name})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[idBody](s.t, rec).ID
}

func TestResourceRoutes(t *testing.T) {
	s := newServer(t)

	first := s.json(http.MethodPost, "/codes", map[string]any{"code": "A", "url": "u1"})
	require.Equal(t, http.StatusOK, first.Code)
	again := s.json(http.MethodPost, "/codes", map[string]any{"code": "A", "url": "u1"})
	require.Equal(t, http.StatusOK, again.Code)
	id := decode[idBody](t, first).ID
	assert.Equal(t, id, decode[idBody](t, again).ID)

	rec := s.json(http.MethodGet, fmt.Sprintf("/codes/%d", id), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.json(http.MethodGet, "/codes/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.json(http.MethodGet, "/codes/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.json(http.MethodPatch, fmt.Sprintf("/codes/%d", id), map[string]any{"status": "done"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[struct{ Success bool }](t, rec).Success)

	rec = s.json(http.MethodPatch, fmt.Sprintf("/codes/%d", id), map[string]any{"unknown": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "no_data", decode[map[string]any](t, rec)["error_type"])

	s.json(http.MethodPost, "/codes", map[string]any{"code": "B", "url": "u2"})
	rec = s.json(http.MethodPatch, fmt.Sprintf("/codes/%d", id), map[string]any{"url": "u2"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.json(http.MethodGet, "/codes?page=1&page_size=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[map[string]any](t, rec)
	assert.Equal(t, float64(2), page["total"])
	assert.Equal(t, true, page["has_next"])

	rec = s.json(http.MethodGet, "/codes?page_size=1000", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.json(http.MethodGet, "/codes?after_date=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.json(http.MethodGet, "/codes?after_date=2999-01-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode[map[string]any](t, rec)["total"])

	rec = s.json(http.MethodDelete, fmt.Sprintf("/codes/%d", id), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.json(http.MethodDelete, fmt.Sprintf("/codes/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpsertAndListByField(t *testing.T) {
	s := newServer(t)

	rec := s.json(http.MethodPut, "/codes", map[string]any{
		"lookup":   map[string]any{"code": "A"},
		"defaults": map[string]any{"url": "u1"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[idBody](t, rec).ID

	rec = s.json(http.MethodPut, "/codes", map[string]any{
		"lookup":   map[string]any{"code": "A"},
		"defaults": map[string]any{"url": "u2", "status": "done"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, id, decode[idBody](t, rec).ID)

	rec = s.json(http.MethodPut, "/codes", map[string]any{"lookup": map[string]any{"unknown": 1}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	nameID := s.createName("n1")
	rec = s.json(http.MethodGet, fmt.Sprintf("/names/%d", nameID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	codeID := decode[struct {
		CodeID int64 `json:"code_id"`
	}](t, rec).CodeID

	rec = s.json(http.MethodGet, "/codes/by/status/done", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	codes := decode[[]idBody](t, rec)
	require.Len(t, codes, 1)
	assert.Equal(t, id, codes[0].ID)

	rec = s.json(http.MethodGet, fmt.Sprintf("/names/by/code_id/%d", codeID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	names := decode[[]idBody](t, rec)
	require.Len(t, names, 1)
	assert.Equal(t, nameID, names[0].ID)

	rec = s.json(http.MethodGet, "/names/by/status/missing", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = s.json(http.MethodGet, "/names/by/code_id/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.json(http.MethodGet, "/names/by/unknown/1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteReferencedCodeConflicts(t *testing.T) {
	s := newServer(t)
	nameID := s.createName("n1")

	rec := s.json(http.MethodGet, fmt.Sprintf("/names/%d", nameID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	codeID := decode[struct {
		CodeID int64 `json:"code_id"`
	}](t, rec).CodeID

	rec = s.json(http.MethodDelete, fmt.Sprintf("/codes/%d", codeID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "foreign_key_violation", decode[map[string]any](t, rec)["error_type"])
}

func TestDocumentRoutes(t *testing.T) {
	s := newServer(t)

	rec := s.multipart(http.MethodPost, "/documents", nil, "notes.txt", "hello")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	doc := decode[map[string]any](t, rec)
	id := doc["file_id"].(string)
	assert.Equal(t, "http://api.test/documents/"+id+"/content", doc["file_url"])

	rec = s.do(httptest.NewRequest(http.MethodGet, "/documents/"+id+"/content", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "notes.txt")

	rec = s.multipart(http.MethodPatch, "/documents/"+id, map[string]string{"filename": "renamed.txt"}, "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "renamed.txt", decode[map[string]any](t, rec)["filename"])

	rec = s.multipart(http.MethodPatch, "/documents/"+id, nil, "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.json(http.MethodGet, "/documents/search?filename=RENAMED", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, rec)["total"])

	rec = s.json(http.MethodGet, "/documents/search", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.json(http.MethodGet, "/documents/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.multipart(http.MethodPost, "/documents", nil, "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.json(http.MethodDelete, "/documents/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.json(http.MethodDelete, "/documents/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadTooLarge(t *testing.T) {
	s := newServer(t)
	rec := s.multipart(http.MethodPost, "/documents", nil, "big.bin", strings.Repeat("x", 1<<20+1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCascadeRoutes(t *testing.T) {
	s := newServer(t)
	nameID := s.createName("n1")

	rec := s.multipart(http.MethodPost, "/documents-cascade",
		map[string]string{"name_id": fmt.Sprint(nameID)}, "a.txt", "aaa")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	file := decode[map[string]any](t, rec)
	fileID := file["file_id"].(string)
	imageID := int64(file["image_id"].(float64))

	rec = s.multipart(http.MethodPost, "/documents-cascade",
		map[string]string{"name_id": "999"}, "b.txt", "bbb")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.json(http.MethodGet, fmt.Sprintf("/documents-cascade/name/%d", nameID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, rec)["total"])

	rec = s.json(http.MethodGet, fmt.Sprintf("/documents-cascade/image/%d", imageID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, fileID, decode[map[string]any](t, rec)["file_id"])

	rec = s.json(http.MethodDelete, "/documents/"+fileID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "referenced documents are protected")

	rec = s.json(http.MethodDelete, fmt.Sprintf("/documents-cascade/name/%d", nameID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[map[string]any](t, rec)
	assert.Equal(t, float64(1), result["deleted_files"])
	assert.Equal(t, float64(1), result["deleted_images"])

	rec = s.json(http.MethodGet, fmt.Sprintf("/names/%d", nameID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.json(http.MethodDelete, fmt.Sprintf("/documents-cascade/cascade/name/%d", nameID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.json(http.MethodGet, fmt.Sprintf("/names/%d", nameID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLinkAndDeleteByStatus(t *testing.T) {
	s := newServer(t)
	nameID := s.createName("n1")

	rec := s.json(http.MethodPatch, fmt.Sprintf("/names/%d", nameID), map[string]any{"status": "done"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.multipart(http.MethodPost, "/documents", nil, "a.txt", "aaa")
	require.Equal(t, http.StatusCreated, rec.Code)
	fileID := decode[map[string]any](t, rec)["file_id"].(string)

	rec = s.json(http.MethodPost, fmt.Sprintf("/documents/%s/link?name_id=%d", fileID, nameID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.json(http.MethodPost, fmt.Sprintf("/documents/%s/link", fileID), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.json(http.MethodDelete, "/documents-cascade/cascade/status/done", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[map[string]any](t, rec)
	assert.Equal(t, float64(1), result["deleted_names"])
	assert.Equal(t, float64(1), result["deleted_files"])
	assert.Equal(t, true, result["success"])

	n, err := s.docs.Count(t.Context())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCleanupRoutes(t *testing.T) {
	s := newServer(t)

	rec := s.multipart(http.MethodPost, "/documents", nil, "orphan.txt", "x")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.json(http.MethodPost, "/cleanup/orphans?older_than_days=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.json(http.MethodPost, "/cleanup/orphans", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, rec)["deleted_orphaned_files"])

	rec = s.json(http.MethodPost, "/cleanup/old", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "limit is shared by the cleanup routes")
}

func TestHealthAndMetrics(t *testing.T) {
	s := newServer(t)

	rec := s.json(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = s.json(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `fastpgmongo_http_requests_total{method="GET",route="GET /health",status="200"} 1`)
}
