package middleware

import (
	"net/http"

	"github.com/mangaka-ai/mangaka-server/internal/logging"
)

// TracingMiddleware stamps every request with a trace id, generating one when
// the client did not send X-Trace-ID.
type TracingMiddleware struct{}

// NewTracingMiddleware creates a tracing middleware.
func NewTracingMiddleware() *TracingMiddleware {
	return &TracingMiddleware{}
}

// Handler returns the tracing middleware handler.
func (m *TracingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = logging.NewTraceID()
		}

		ctx := logging.WithTraceID(r.Context(), traceID)
		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
