package httpserver

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/localinfer/localinfer/internal/engine"
	"github.com/localinfer/localinfer/internal/objectstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	store, err := objectstore.Open(t.TempDir())
	require.NoError(t, err)
	s := &Server{Engine: engine.New(), Store: store}
	return s, New(s, nil)
}

func TestStateHandlerReportsEmpty(t *testing.T) {
	_, router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "empty", body["state"])
}

func TestLoadHandlerRejectsMissingBundleDir(t *testing.T) {
	_, router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/load", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoadHandlerStreamsErrorEventForMissingManifest(t *testing.T) {
	_, router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/load", bytes.NewBufferString(`{"bundle_dir":"does-not-exist"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	scanner := bufio.NewScanner(rec.Body)
	var sawError bool
	for scanner.Scan() {
		var ev eventJSON
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		if ev.Kind == "error" {
			sawError = true
			assert.NotEmpty(t, ev.Error)
		}
	}
	assert.True(t, sawError)
}

func TestGenerateHandlerRejectsWhenNotReady(t *testing.T) {
	_, router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/generate", bytes.NewBufferString(`{"prompt_tokens":[1,2]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStopHandlerIsANoOpWhenIdle(t *testing.T) {
	_, router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/stop", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnloadHandlerIsANoOpWhenEmpty(t *testing.T) {
	_, router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/unload", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
