package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// SpanName returns the initial name of a server span. The route is not known
// yet when otelhttp starts the span, so it is just the method.
func SpanName(_ string, r *http.Request) string {
	return r.Method
}

// RouteSpan renames the request's span to "METHOD /route/{pattern}" and sets
// http.route once chi has matched the request. It must run inside the chi
// router, under the otelhttp handler.
func RouteSpan(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		rctx := chi.RouteContext(r.Context())
		if rctx == nil {
			return
		}
		pattern := rctx.RoutePattern()
		if pattern == "" {
			return
		}
		span := trace.SpanFromContext(r.Context())
		span.SetName(r.Method + " " + pattern)
		span.SetAttributes(semconv.HTTPRoute(pattern))
	})
}
