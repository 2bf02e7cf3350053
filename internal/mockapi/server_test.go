package mockapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestServer_CRUD(t *testing.T) {
	s := New(nil)

	w := do(t, s, http.MethodPost, "/api/workers", map[string]any{"name": "Anna"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, float64(1), created["id"])
	assert.Equal(t, "Anna", created["name"])

	w = do(t, s, http.MethodPut, "/api/workers/1", map[string]any{"name": "Anna H"})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodGet, "/api/workers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var items []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "Anna H", items[0]["name"])

	w = do(t, s, http.MethodDelete, "/api/workers/1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, s.Items(Workers))

	w = do(t, s, http.MethodDelete, "/api/workers/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, s, http.MethodPut, "/api/workers/1", map[string]any{"name": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(t, s, http.MethodPut, "/api/workers/abc", map[string]any{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_ResourcesAreSeparate(t *testing.T) {
	s := New(nil)
	s.Seed(Workers, map[string]any{"name": "Bo"})
	id := s.Seed(LeaveRequests, map[string]any{"type": "SICK"})

	assert.Equal(t, int64(1), id)
	assert.Len(t, s.Items(Workers), 1)
	assert.Len(t, s.Items(LeaveRequests), 1)
	assert.Empty(t, s.Items(WorkEntries))
}

func TestServer_FailNext(t *testing.T) {
	s := New(nil)
	s.FailNext(2, http.StatusServiceUnavailable)

	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/api/workers", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodPost, "/api/workers", map[string]any{}).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/workers", nil).Code)
	assert.Empty(t, s.Items(Workers))

	// health is outside the fault injection group
	s.FailNext(1, http.StatusInternalServerError)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/health", nil).Code)
}

func TestServer_Requests(t *testing.T) {
	s := New(nil)
	do(t, s, http.MethodPost, "/api/work-entries", map[string]any{"hours": "8"})
	do(t, s, http.MethodPost, "/api/work-entries", map[string]any{"hours": "7"})
	do(t, s, http.MethodPut, "/api/work-entries/2", map[string]any{"hours": "6"})

	assert.Equal(t, 2, s.Requests(http.MethodPost, "/api/work-entries"))
	assert.Equal(t, 1, s.Requests(http.MethodPut, "/api/work-entries/:id"))
	assert.Equal(t, 0, s.Requests(http.MethodGet, "/api/work-entries"))
}

func TestServer_Latency(t *testing.T) {
	s := New(nil)
	s.SetLatency(30 * time.Millisecond)

	start := time.Now()
	do(t, s, http.MethodGet, "/api/workers", nil)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestServer_Token(t *testing.T) {
	s := New(nil, WithToken("secret"))

	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/api/workers", nil).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/workers", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_BadJSON(t *testing.T) {
	s := New(nil)
	req := httptest.NewRequest(http.MethodPost, "/api/workers", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
