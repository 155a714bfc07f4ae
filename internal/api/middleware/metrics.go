package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dealmesh-protocol/dealmesh/internal/metrics"
)

// statusWriter wraps http.ResponseWriter to capture status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Metrics returns middleware that records Prometheus metrics.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		metrics.HTTPRequestsTotal.WithLabelValues(
			r.Method, path, strconv.Itoa(wrapped.status),
		).Inc()

		metrics.HTTPRequestDuration.WithLabelValues(
			r.Method, path,
		).Observe(duration)
	})
}

// normalizePath collapses IDs out of paths to avoid high cardinality
// in metrics labels.
func normalizePath(path string) string {
	patterns := []struct{ prefix, normalized string }{
		{"/api/agents/", "/api/agents/:id"},
		{"/api/profiles/", "/api/profiles/:id"},
		{"/api/matches/", "/api/matches/:id"},
		{"/api/deals/", "/api/deals/:id"},
		{"/api/milestones/", "/api/milestones/:id"},
		{"/api/disputes/", "/api/disputes/:id"},
		{"/api/webhooks/", "/api/webhooks/:id"},
		{"/api/notifications/", "/api/notifications/:id"},
	}
	for _, p := range patterns {
		if strings.HasPrefix(path, p.prefix) && len(path) > len(p.prefix) {
			return p.normalized
		}
	}
	return path
}
