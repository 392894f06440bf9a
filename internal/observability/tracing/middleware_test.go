package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// withRecorder installs an in-memory exporter for the duration of the test.
func withRecorder(t *testing.T) (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tracer = otel.Tracer(TracerName)
	t.Cleanup(func() {
		otel.SetTracerProvider(sdktrace.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator())
		tracer = otel.Tracer(TracerName)
	})
	return exporter, tp
}

func attrs(kv []attribute.KeyValue) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value, len(kv))
	for _, a := range kv {
		out[a.Key] = a.Value
	}
	return out
}

func TestMiddleware_CreatesSpan(t *testing.T) {
	exporter, tp := withRecorder(t)

	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/insights", nil)
	req.Header.Set(StreamHeader, "editor-1")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)
	require.NoError(t, tp.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "POST /insights", spans[0].Name)

	got := attrs(spans[0].Attributes)
	assert.Equal(t, "POST", got["http.method"].AsString())
	assert.Equal(t, "/insights", got["http.path"].AsString())
	assert.Equal(t, int64(200), got["http.status_code"].AsInt64())
	assert.Equal(t, "editor-1", got["insight.stream"].AsString())
	assert.Len(t, rr.Header().Get("X-Trace-Id"), 32)
}

func TestMiddleware_PropagatesTraceContext(t *testing.T) {
	exporter, tp := withRecorder(t)

	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/health/ai", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")

	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.NoError(t, tp.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext.TraceID().String())
}

func TestMiddleware_StatusCodes(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantError bool
	}{
		{"bad gateway marks error", http.StatusBadGateway, true},
		{"conflict is not an error", http.StatusConflict, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter, tp := withRecorder(t)

			handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/insights", nil))
			require.NoError(t, tp.ForceFlush(context.Background()))

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, tt.wantError, spans[0].Status.Code == codes.Error)
			assert.Equal(t, int64(tt.status), attrs(spans[0].Attributes)["http.status_code"].AsInt64())
		})
	}
}

func TestSetup(t *testing.T) {
	shutdown := Setup(1.0)
	t.Cleanup(func() {
		otel.SetTracerProvider(sdktrace.NewTracerProvider())
		tracer = otel.Tracer(TracerName)
	})

	_, span := GetTracer().Start(context.Background(), "probe")
	assert.True(t, span.SpanContext().IsSampled())
	span.End()

	assert.NoError(t, shutdown(context.Background()))
}
