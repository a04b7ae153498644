package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"resonance/internal/metrics"

	"github.com/rs/zerolog"
)

// unmatchedRoute labels requests no registered pattern matched
const unmatchedRoute = "unmatched"

// GetClientIP returns the originating client address. The first
// X-Forwarded-For hop wins, then X-Real-IP, then the connection address.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

// requestRecord is filled in by inner layers and read back once the
// request completes. The logging middleware owns it.
type requestRecord struct {
	route     string
	errorCode string
}

const contextKeyRecord contextKey = "request_record"

func recordFrom(ctx context.Context) *requestRecord {
	rec, _ := ctx.Value(contextKeyRecord).(*requestRecord)
	return rec
}

// SetErrorCode tags the request log with the engine error code written
// in the response body. It is a no-op outside LoggingMiddleware.
func SetErrorCode(ctx context.Context, code string) {
	if rec := recordFrom(ctx); rec != nil {
		rec.errorCode = code
	}
}

// RouteRecorder wraps a ServeMux and records the pattern it matched, so
// requests are logged and counted per route instead of per raw path.
func RouteRecorder(mux http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r)
		if rec := recordFrom(r.Context()); rec != nil && r.Pattern != "" {
			rec.route = routeOf(r.Pattern)
		}
	})
}

// routeOf drops the method from a "METHOD /path" pattern
func routeOf(pattern string) string {
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return path
	}
	return pattern
}

// LoggingMiddleware logs one structured line per request and records the
// HTTP metrics, both keyed by the matched route.
func LoggingMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &requestRecord{route: unmatchedRoute}
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), contextKeyRecord, rec)))

			duration := time.Since(start)
			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, rec.route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, rec.route).Observe(duration.Seconds())

			var event *zerolog.Event
			switch {
			case rw.statusCode >= 500:
				event = logger.Error()
			case rw.statusCode >= 400:
				event = logger.Warn()
			default:
				event = logger.Info()
			}

			event.
				Str("method", r.Method).
				Str("route", rec.route).
				Str("path", r.URL.Path).
				Int("status", rw.statusCode).
				Dur("duration", duration).
				Int64("bytes_written", rw.bytesWritten).
				Str("client_ip", GetClientIP(r))

			if r.URL.RawQuery != "" {
				event.Str("query", r.URL.RawQuery)
			}
			if rec.errorCode != "" {
				event.Str("error_code", rec.errorCode)
			}
			if reqID := r.Header.Get("X-Request-ID"); reqID != "" {
				event.Str("request_id", reqID)
			}
			if actor, ok := ActorFromContext(r.Context()); ok {
				event.Str("actor_id", actor.ID).Str("actor_role", string(actor.Role))
			}

			event.Msg("moderation: http request")
		})
	}
}

// responseWriter captures the status code and body size of a response.
// The first WriteHeader wins.
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
