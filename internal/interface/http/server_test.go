package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habituate/progression-engine/internal/interface/http/handlers"
)

func newTestServer(t *testing.T, dbErr error) *Server {
	t.Helper()
	health := handlers.NewCompositeHealthChecker("test")
	health.AddCheck("postgres", func(context.Context) error { return dbErr })
	return NewServer(DefaultConfig(), Dependencies{
		Health: health,
		Status: map[string]StatusFunc{
			"jobs": func() interface{} { return []string{"detect_missed_days"} },
		},
	})
}

func serve(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Health(t *testing.T) {
	rec := serve(t, newTestServer(t, nil), "/health")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var status handlers.HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.True(t, status.Healthy)
	assert.Equal(t, "test", status.Version)
}

func TestServer_HealthUnavailable(t *testing.T) {
	s := newTestServer(t, errors.New("down"))

	assert.Equal(t, http.StatusServiceUnavailable, serve(t, s, "/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, s, "/ready").Code)
	assert.Equal(t, http.StatusOK, serve(t, s, "/live").Code)
}

func TestServer_Status(t *testing.T) {
	s := newTestServer(t, nil)

	rec := serve(t, s, "/status/jobs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["detect_missed_days"]`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, serve(t, s, "/status/unknown").Code)
}

func TestServer_RequestIDPropagated(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}
