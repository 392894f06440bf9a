// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics track HTTP request patterns and performance
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestSize measures HTTP request body size in bytes
	HTTPRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// HTTPResponseSize measures HTTP response body size in bytes
	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)
)

// Insight metrics track the orchestration of AI requests
var (
	// InsightRequestsTotal counts MakeRequest calls by action and outcome
	InsightRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_requests_total",
			Help: "Total number of insight requests",
		},
		[]string{"action", "outcome"}, // outcome: success, fallback, invalid, error
	)

	// InsightAttemptsTotal counts primary-path attempts by backend and status
	InsightAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_attempts_total",
			Help: "Total number of AI backend attempts",
		},
		[]string{"backend", "status"}, // status: success, retryable, fatal
	)

	// InsightRequestDuration measures MakeRequest duration including retries
	InsightRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insight_request_duration_seconds",
			Help:    "Insight request duration in seconds, including retries",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"action"},
	)

	// InsightBackendAvailable is 1 while the backend passes its availability probe
	InsightBackendAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "insight_backend_available",
			Help: "Whether the AI backend is available (1) or the fallback is in use (0)",
		},
		[]string{"backend"},
	)

	// InsightSupersededTotal counts settlements dropped because a newer request replaced them
	InsightSupersededTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "insight_superseded_total",
			Help: "Total number of request settlements discarded after supersession",
		},
	)
)

// RecordHTTPRequest records an HTTP request with its metadata
func RecordHTTPRequest(method, path, status string, duration time.Duration, requestSize, responseSize int) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())

	if requestSize > 0 {
		HTTPRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	}
	if responseSize > 0 {
		HTTPResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
	}
}
