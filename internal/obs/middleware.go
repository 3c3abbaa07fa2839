package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// StatusRecorder captures the status code and body size of a response.
type StatusRecorder struct {
	http.ResponseWriter
	status       int
	bytesWritten int64
}

func NewStatusRecorder(w http.ResponseWriter) *StatusRecorder {
	return &StatusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (sr *StatusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *StatusRecorder) Write(p []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(p)
	sr.bytesWritten += int64(n)
	return n, err
}

func (sr *StatusRecorder) Status() int { return sr.status }

func (sr *StatusRecorder) BytesWritten() int64 { return sr.bytesWritten }

// HTTPObs records request metrics.
type HTTPObs struct {
	Metrics *HTTPMetrics
}

// Middleware observes every request; a nil Metrics disables it.
func (o HTTPObs) Middleware(next http.Handler) http.Handler {
	m := o.Metrics
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := NewStatusRecorder(w)
		m.InFlight.Inc()
		start := time.Now()
		defer func() {
			m.InFlight.Dec()
			route := routeOf(r, "unknown")
			m.ReqTotal.WithLabelValues(r.Method, route, strconv.Itoa(recorder.Status())).Inc()
			m.ReqDur.WithLabelValues(r.Method, route).Observe(DurationMillis(time.Since(start)))
			if m.RespBytes != nil {
				m.RespBytes.WithLabelValues(route).Observe(float64(recorder.BytesWritten()))
			}
		}()
		next.ServeHTTP(recorder, r)
	})
}

// TracingMiddleware opens a server span per request. Quote routes get the
// quote id as span attribute.
func TracingMiddleware(next http.Handler) http.Handler {
	tracer := otel.Tracer("flyer-quote/http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+routeOf(r, r.URL.Path))
		defer span.End()
		recorder := NewStatusRecorder(w)
		r = r.WithContext(ctx)
		next.ServeHTTP(recorder, r)

		// chi fills the pattern while routing, so read it after the call.
		route := routeOf(r, r.URL.Path)
		span.SetName(r.Method + " " + route)
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", recorder.Status()),
		)
		if id := chi.URLParam(r, "id"); id != "" {
			span.SetAttributes(attribute.String("quote.id", id))
		}
		if recorder.Status() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(recorder.Status()))
		}
	})
}
