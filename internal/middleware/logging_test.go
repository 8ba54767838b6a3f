package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/opsdash/internal/metrics"
)

func router(logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Use(Logger(logger))
	r.Get("/api/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") == "missing" {
			http.Error(w, "nope", http.StatusNotFound)
			return
		}
		w.Write([]byte("ok"))
	})
	return r
}

func TestLogger_RecordsRouteAndStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := router(logger)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/tasks/abc", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	line := buf.String()
	assert.Contains(t, line, "level=INFO")
	assert.Contains(t, line, "route=/api/tasks/{id}")
	assert.Contains(t, line, "status=200")
	assert.Contains(t, line, "bytes=2")

	buf.Reset()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/tasks/missing", nil))
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "status=404")
}

func TestMetrics_CountsByRoutePattern(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h := router(logger)

	ok := metrics.HTTPRequests.WithLabelValues(http.MethodGet, "/api/tasks/{id}", "2xx")
	notFound := metrics.HTTPRequests.WithLabelValues(http.MethodGet, "/api/tasks/{id}", "4xx")
	beforeOK, beforeNF := testutil.ToFloat64(ok), testutil.ToFloat64(notFound)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/tasks/one", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/tasks/two", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/tasks/missing", nil))

	assert.Equal(t, beforeOK+2, testutil.ToFloat64(ok))
	assert.Equal(t, beforeNF+1, testutil.ToFloat64(notFound))
}
