package obs_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/noah-isme/flyer-quote/internal/obs"
)

func quoteRouter(metrics *obs.HTTPMetrics, logs *bytes.Buffer) http.Handler {
	r := chi.NewRouter()
	r.Use(obs.TracingMiddleware)
	r.Use(obs.HTTPObs{Metrics: metrics}.Middleware)
	if logs != nil {
		r.Use(obs.RequestLogger{Logger: zerolog.New(logs)}.Middleware)
	}
	r.Get("/api/v1/quotes/{id}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	})
	r.Delete("/api/v1/quotes/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	return r
}

func TestHTTPMetricsUseRoutePattern(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("flyer", []float64{10, 1}, registry)
	router := quoteRouter(metrics, nil)

	for _, id := range []string{"a", "b"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/quotes/"+id, nil))
		require.Equal(t, http.StatusOK, rr.Code)
	}

	require.Equal(t, 2.0, testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/api/v1/quotes/{id}", "200")))
	require.Equal(t, 1, testutil.CollectAndCount(metrics.ReqDur))
	require.Equal(t, 1, testutil.CollectAndCount(metrics.RespBytes))
	require.Zero(t, testutil.ToFloat64(metrics.InFlight))
}

func TestHTTPMetricsReuseRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := obs.NewHTTPMetrics("flyer", nil, registry)
	second := obs.NewHTTPMetrics("flyer", nil, registry)
	require.Same(t, first.ReqTotal, second.ReqTotal)
}

func TestTracingMiddlewareNamesSpanByRoute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	rr := httptest.NewRecorder()
	quoteRouter(nil, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/v1/quotes/q42", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	require.Equal(t, "DELETE /api/v1/quotes/{id}", span.Name())

	attrs := map[string]string{}
	for _, kv := range span.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	require.Equal(t, "q42", attrs["quote.id"])
	require.Equal(t, "503", attrs["http.status_code"])
	require.Equal(t, "Error", span.Status().Code.String())
}

func TestRequestLoggerAddsQuoteID(t *testing.T) {
	var logs bytes.Buffer
	rr := httptest.NewRecorder()
	quoteRouter(nil, &logs).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/quotes/q7", nil))

	require.Contains(t, logs.String(), `"quote_id":"q7"`)
	require.Contains(t, logs.String(), `"route":"/api/v1/quotes/{id}"`)
	require.Contains(t, logs.String(), `"status":200`)
}

func TestParseBucketsCSV(t *testing.T) {
	require.Equal(t, []float64{5, 25.5}, obs.ParseBucketsCSV(" 5, x, -1, 25.5,"))
	require.Empty(t, obs.ParseBucketsCSV(""))
}

func TestDomainMetricsRegisterOnce(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics("flyer", registry)
	obs.MustRegisterDomainMetrics("flyer", registry)

	obs.QuoteRecomputeTotal.WithLabelValues("dispatch", "priced").Inc()
	obs.BreakerState.WithLabelValues("prices").Set(1)

	require.Equal(t, 1.0, testutil.ToFloat64(obs.QuoteRecomputeTotal.WithLabelValues("dispatch", "priced")))
	require.Equal(t, 1.0, testutil.ToFloat64(obs.BreakerState.WithLabelValues("prices")))
}

func TestNewLoggerToAppliesLevelLocally(t *testing.T) {
	var buf bytes.Buffer
	logger := obs.NewLoggerTo(&buf, "json", "warn")
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")

	require.Equal(t, zerolog.InfoLevel, obs.NewLoggerTo(&buf, "json", "loud").GetLevel())
}
