package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// clientIDHeader is the per-§6.3 client-session identity header.
const clientIDHeader = "X-RARO-CLIENT-ID"

// publicClientID is the default scope for unauthenticated reads.
const publicClientID = "public"

type contextKey string

const clientIDContextKey contextKey = "raro.client_id"

// isValidClientID reports whether s contains only alphanumeric
// characters and dashes, the §6.3 sanitization rule. Empty is valid
// (defaults to the public scope by the caller).
func isValidClientID(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
		default:
			return false
		}
	}
	return true
}

// clientIDMiddleware sanitizes X-RARO-CLIENT-ID (§6.3): a header value
// containing anything other than alphanumerics and dashes yields 400.
// A missing header defaults the request to the public scope.
func clientIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(clientIDHeader)
		if !isValidClientID(raw) {
			http.Error(w, "invalid "+clientIDHeader, http.StatusBadRequest)
			return
		}
		clientID := raw
		if clientID == "" {
			clientID = publicClientID
		}
		ctx := context.WithValue(r.Context(), clientIDContextKey, clientID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(clientIDContextKey).(string); ok && v != "" {
		return v
	}
	return publicClientID
}

// responseWriter wraps http.ResponseWriter to capture the status code
// for metrics, the same shape as the teacher's transport middleware.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// observabilityMiddleware wraps each request in an OpenTelemetry span
// and records Prometheus request count/latency, using chi's route
// pattern the same way the teacher's metricsMiddleware does.
func (s *Server) observabilityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		tracer := s.obs.Tracer("raro.http")
		ctx, span := tracer.Start(r.Context(), "http.request", trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.path", r.URL.Path),
		))
		defer span.End()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r.WithContext(ctx))

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		if wrapped.statusCode >= 500 {
			span.SetStatus(codes.Error, http.StatusText(wrapped.statusCode))
		} else {
			span.SetStatus(codes.Ok, http.StatusText(wrapped.statusCode))
		}
		span.SetAttributes(attribute.Int("http.status_code", wrapped.statusCode))

		s.obs.RecordHTTPRequest(r.Method, route, wrapped.statusCode, time.Since(start).Seconds())
	})
}
