package audit

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/vivars7/skillrelay/internal/ctxkeys"
)

// HTTPMiddleware opens an AuditEntry for every request on one route, lets
// the inner stages fill it, and logs it once the response is written.
// It satisfies security.Middleware so it can lead an ingress pipeline.
type HTTPMiddleware struct {
	route   string
	logger  *Logger
	metrics *Metrics
}

// NewHTTPMiddleware creates an HTTPMiddleware for route. metrics may be nil.
func NewHTTPMiddleware(route string, logger *Logger, metrics *Metrics) *HTTPMiddleware {
	if logger == nil {
		logger = NewLogger(nil, SamplingConfig{})
	}
	return &HTTPMiddleware{route: route, logger: logger, metrics: metrics}
}

// Process wraps next.
func (m *HTTPMiddleware) Process(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entry := &ctxkeys.AuditEntry{
			Route:     m.route,
			StartTime: time.Now(),
		}
		if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
			entry.TraceID = sc.TraceID().String()
		}
		ctx := ctxkeys.WithAuditEntry(r.Context(), entry)
		ctx = ctxkeys.WithRequestMeta(ctx, ctxkeys.RequestMeta{
			Route:      m.route,
			RemoteAddr: r.RemoteAddr,
			Method:     r.Method,
			Path:       r.URL.Path,
		})

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))

		entry.StatusCode = sw.status
		if entry.Status == "" {
			entry.Status = statusFor(sw.status)
		}
		if m.metrics != nil {
			m.metrics.RecordRequest(m.route, sw.status)
		}
		m.logger.Log(ctx, entry)
	})
}

// Name returns the middleware name.
func (m *HTTPMiddleware) Name() string {
	return "audit"
}

func statusFor(code int) string {
	switch {
	case code >= 500:
		return StatusError
	case code >= 400:
		return StatusRejected
	default:
		return StatusOK
	}
}

// statusWriter remembers the status code written through it.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
