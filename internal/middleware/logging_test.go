package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/photovault/internal/metrics"
)

func newRouter(logger *slog.Logger, m *metrics.Metrics) *chi.Mux {
	r := chi.NewRouter()
	r.Use(Logger(logger, m))
	r.Get("/photos/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("gone"))
	})
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("fine"))
	})
	return r
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestLogger_RecordsRoutePatternNotPath(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	m := metrics.New()
	router := newRouter(logger, m)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/photos/abc123", nil))

	assert.Contains(t, logs.String(), `"route":"/photos/{id}"`)
	assert.Contains(t, logs.String(), `"path":"/photos/abc123"`)
	assert.Contains(t, logs.String(), `"status":404`)
	assert.Contains(t, logs.String(), `"bytes":4`)

	body := scrape(t, m)
	assert.Contains(t, body, `photovault_http_request_duration_seconds_count{method="GET",route="/photos/{id}",status="404"} 1`)
	assert.NotContains(t, body, "abc123")
}

func TestLogger_DefaultStatusAndUnmatched(t *testing.T) {
	m := metrics.New()
	router := newRouter(slog.New(slog.DiscardHandler), m)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	body := scrape(t, m)
	assert.Contains(t, body, `route="/ok",status="200"} 1`)
	assert.Contains(t, body, `route="unmatched",status="404"} 1`)
}

func TestLogger_NilMetrics(t *testing.T) {
	router := newRouter(slog.New(slog.DiscardHandler), nil)
	rr := httptest.NewRecorder()

	assert.NotPanics(t, func() {
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ok", nil))
	})
	assert.Equal(t, "fine", rr.Body.String())
}
