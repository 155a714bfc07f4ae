package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Logger returns a zerolog request logger. Probe endpoints are skipped
// to keep scrapers and health checks out of the log stream; the acting
// agent is attributed when the request carries one.
func Logger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				evt := logger.Info()
				if ww.Status() >= http.StatusInternalServerError {
					evt = logger.Error()
				}
				evt = evt.
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("latency", time.Since(start)).
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("remote_addr", r.RemoteAddr)
				if agent := r.Header.Get(AgentHeader); agent != "" {
					evt = evt.Str("agent", agent)
				}
				evt.Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
