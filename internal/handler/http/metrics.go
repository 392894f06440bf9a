package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"langcard-insight/internal/observability/metrics"
)

// knownPaths bounds the path label. Anything else is reported as "other".
var knownPaths = map[string]bool{
	"/insights":          true,
	"/insights/batch":    true,
	"/insights/context":  true,
	"/insights/stream":   true,
	"/health":            true,
	"/health/ai":         true,
	"/health/ai/refresh": true,
	"/metrics":           true,
}

func metricPath(p string) string {
	if knownPaths[p] {
		return p
	}
	return "other"
}

// MetricsMiddleware records request count, latency and sizes per route.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := newStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(rec, r)

		metrics.RecordHTTPRequest(
			r.Method,
			metricPath(r.URL.Path),
			strconv.Itoa(rec.status),
			time.Since(start),
			int(r.ContentLength),
			rec.bytes,
		)
	})
}

// MetricsHandler serves the Prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
