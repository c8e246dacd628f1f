package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marks_http_requests_total",
			Help: "Total HTTP requests handled",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marks_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware records request counts and latency per endpoint
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := newStatusRecorder(w)
		next.ServeHTTP(wrapped, r)

		path := normalizePath(r.URL.Path)
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses request ids so label cardinality stays bounded.
// /api/v1/admin/edit-requests/REQ-.../approve becomes
// /api/v1/admin/edit-requests/{id}/approve
func normalizePath(path string) string {
	const prefix = "/api/v1/admin/edit-requests/"
	if strings.HasPrefix(path, "/swagger/") {
		return "/swagger/"
	}
	rest, ok := strings.CutPrefix(path, prefix)
	if !ok || rest == "approve-all" || rest == "" {
		return path
	}
	_, action, found := strings.Cut(rest, "/")
	if !found {
		return prefix + "{id}"
	}
	return prefix + "{id}/" + action
}
