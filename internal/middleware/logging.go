package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"tangled.org/arabica.social/sanctions/internal/metrics"
)

// requestLevel picks the log level for a finished request from its status.
func requestLevel(logger zerolog.Logger, status int) *zerolog.Event {
	switch {
	case status >= 500:
		return logger.Error()
	case status >= 400:
		return logger.Warn()
	default:
		return logger.Info()
	}
}

// LoggingMiddleware logs one structured line per request and records the
// HTTP request metrics. The acting moderator, when known, is included.
func LoggingMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			duration := time.Since(start)
			route := metrics.NormalizePath(r.URL.Path)

			event := requestLevel(logger, rw.statusCode).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", route).
				Int("status", rw.statusCode).
				Dur("duration", duration).
				Str("client_ip", GetClientIP(r)).
				Int64("bytes_written", rw.bytesWritten)

			if r.URL.RawQuery != "" {
				event.Str("query", r.URL.RawQuery)
			}
			if reqID := r.Header.Get("X-Request-ID"); reqID != "" {
				event.Str("request_id", reqID)
			}
			if actor, ok := ActorFromContext(r.Context()); ok {
				event.Str("actor", actor.ID).Int("actor_level", actor.PermissionLevel)
			} else if r.Header.Get(DefaultActorHeader) != "" {
				event.Bool("actor_unresolved", true)
			}
			if logger.GetLevel() == zerolog.DebugLevel {
				event.Str("user_agent", r.UserAgent()).Str("content_type", r.Header.Get("Content-Type"))
			}

			event.Msgf("%s %s %d", r.Method, route, rw.statusCode)

			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())
		})
	}
}

// responseWriter captures the status code and body size of a response.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
