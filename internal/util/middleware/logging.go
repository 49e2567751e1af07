// Package middleware provides gorilla/mux middleware wrapping every route
// with access logging, in the same MiddlewareFunc shape the teacher uses
// to wrap origin routes with tracing spans.
package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/trickster-vod/edge/internal/logging"
)

// statusRecorder captures the status code a handler wrote, since
// http.ResponseWriter doesn't expose it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Logging returns a MiddlewareFunc that logs method, path, status, and
// duration for every request at debug level.
func Logging() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)
			logging.Debug("request", logging.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start).String(),
			})
		})
	}
}
