package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/presentation-params/internal/apperr"
	"github.com/MimeLyc/presentation-params/internal/document"
	"github.com/MimeLyc/presentation-params/internal/params"
)

type failingStore struct {
	calls int
}

func (f *failingStore) Apply(params.Snapshot) (params.Document, error) {
	f.calls++
	return params.Document{}, apperr.New(apperr.ErrFileWrite, "disk full")
}

func (f *failingStore) FileName() string { return "presentation_params.json" }

func newTestServer(t *testing.T, opts ...Option) (*Server, *document.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := document.NewStore(dir, "")
	require.NoError(t, err)
	return NewServer(store, append([]Option{WithStatic(dir)}, opts...)...), store, dir
}

func postSave(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, SavePath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) saveResponse {
	t.Helper()
	var resp saveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func assertCORS(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestSaveParams_MergesAndConfirms(t *testing.T) {
	server, store, _ := newTestServer(t)

	rec := postSave(t, server.Handler(), `{"imageDir":"songs","items":{"a.jpg":{"top":{"offsetVh":"x","zoom":3}}}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assertCORS(t, rec)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "presentation_params.json", resp.File)

	doc, err := store.Load()
	require.NoError(t, err)
	item := doc.Dirs["songs"].Items["a.jpg"]
	assert.Equal(t, 0, item.Top.OffsetVh)
	assert.Equal(t, 2.0, item.Top.Zoom)
	assert.Equal(t, params.DefaultHalf(), item.Bottom)
}

func TestSaveParams_InvalidJSONLeavesDocumentUntouched(t *testing.T) {
	server, store, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, postSave(t, server.Handler(), `{"imageDir":"songs","items":{"a.jpg":{}}}`).Code)
	before, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	for _, body := range []string{`{"imageDir":`, `[]`, `42`} {
		rec := postSave(t, server.Handler(), body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assertCORS(t, rec)
		resp := decodeResponse(t, rec)
		assert.Equal(t, "error", resp.Status)
		assert.NotEmpty(t, resp.Message)
	}

	after, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSaveParams_EmptyItemsIsNoOp(t *testing.T) {
	server, store, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, postSave(t, server.Handler(), `{"imageDir":"songs","items":{"a.jpg":{}}}`).Code)
	before, err := store.Load()
	require.NoError(t, err)

	rec := postSave(t, server.Handler(), `{"imageDir":"songs","items":{}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	after, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
	assert.Equal(t, before.Dirs, after.Dirs)
}

func TestSaveParams_StoreFailureIs500(t *testing.T) {
	store := &failingStore{}
	server := NewServer(store)

	rec := postSave(t, server.Handler(), `{"imageDir":"songs","items":{"a.jpg":{}}}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assertCORS(t, rec)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.Message, "disk full")
	assert.Equal(t, 1, store.calls)
}

func TestSaveParams_BodyLimit(t *testing.T) {
	server, _, _ := newTestServer(t, WithMaxBodyBytes(16))

	rec := postSave(t, server.Handler(), `{"imageDir":"songs","items":{"a.jpg":{}}}`)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestPreflight(t *testing.T) {
	server, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, SavePath, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assertCORS(t, rec)
}

func TestAllowOriginOverride(t *testing.T) {
	server, _, _ := newTestServer(t, WithAllowOrigin("http://localhost:8002"))

	req := httptest.NewRequest(http.MethodOptions, SavePath, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:8002", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStaticFallthrough(t *testing.T) {
	server, _, dir := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>歌谱</html>"), 0o644))
	require.Equal(t, http.StatusOK, postSave(t, server.Handler(), `{"imageDir":"歌","items":{"a.jpg":{}}}`).Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "歌谱")

	req = httptest.NewRequest(http.MethodGet, "/presentation_params.json", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := params.ParseDocument(rec.Body.Bytes())
	assert.Contains(t, doc.Dirs, "歌")

	req = httptest.NewRequest(http.MethodGet, "/missing.png", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOnSavePathFallsThroughToStatic(t *testing.T) {
	server, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, SavePath, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNoStaticDir(t *testing.T) {
	server := NewServer(&failingStore{})

	req := httptest.NewRequest(http.MethodGet, "/index.html", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
