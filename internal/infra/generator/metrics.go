package generator

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"

	"langcard-insight/internal/observability/metrics"
)

// GenerationMetrics records backend-level metrics. The orchestration metrics
// (requests, attempts, availability) are recorded by the insight service itself.
type GenerationMetrics interface {
	// RecordGeneration records one backend call and its latency.
	RecordGeneration(backend string, duration time.Duration, err error)

	// RecordOutputLength records the length of an accepted insight in runes.
	RecordOutputLength(backend string, runes int)

	// RecordBreakerState records a circuit breaker transition.
	RecordBreakerState(backend string, state gobreaker.State)

	// RecordThrottled counts calls rejected by the local rate limiter.
	RecordThrottled(backend string)
}

// PrometheusGenerationMetrics implements GenerationMetrics using Prometheus.
type PrometheusGenerationMetrics struct {
	duration  *prometheus.HistogramVec
	output    *prometheus.HistogramVec
	breaker   *prometheus.GaugeVec
	throttled *prometheus.CounterVec
}

var (
	prometheusMetricsInstance *PrometheusGenerationMetrics
	prometheusMetricsOnce     sync.Once
)

func getOrCreateHistogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(opts, labels)
	if err := prometheus.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.HistogramVec)
		}
		return promauto.NewHistogramVec(opts, labels)
	}
	return h
}

func getOrCreateGaugeVec(opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(opts, labels)
	if err := prometheus.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.GaugeVec)
		}
		return promauto.NewGaugeVec(opts, labels)
	}
	return g
}

func getOrCreateCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(opts, labels)
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.CounterVec)
		}
		return promauto.NewCounterVec(opts, labels)
	}
	return c
}

// NewPrometheusGenerationMetrics returns the process-wide recorder, registering
// its collectors on first use.
func NewPrometheusGenerationMetrics() *PrometheusGenerationMetrics {
	prometheusMetricsOnce.Do(func() {
		prometheusMetricsInstance = &PrometheusGenerationMetrics{
			duration: getOrCreateHistogramVec(prometheus.HistogramOpts{
				Name:    "insight_generation_duration_seconds",
				Help:    "Latency of a single AI backend call",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			}, []string{"backend", "status"}),
			output: getOrCreateHistogramVec(prometheus.HistogramOpts{
				Name:    "insight_output_length_characters",
				Help:    "Length of generated insights in characters (Unicode runes)",
				Buckets: []float64{25, 50, 100, 200, 400, 800, 1600},
			}, []string{"backend"}),
			breaker: getOrCreateGaugeVec(prometheus.GaugeOpts{
				Name: "insight_circuit_breaker_state",
				Help: "Circuit breaker state per backend (0=closed, 1=half-open, 2=open)",
			}, []string{"backend"}),
			throttled: getOrCreateCounterVec(prometheus.CounterOpts{
				Name: "insight_rate_limited_total",
				Help: "Total number of backend calls rejected by the local rate limiter",
			}, []string{"backend"}),
		}
	})
	return prometheusMetricsInstance
}

// RecordGeneration implements GenerationMetrics.
func (p *PrometheusGenerationMetrics) RecordGeneration(backend string, duration time.Duration, err error) {
	p.duration.WithLabelValues(backend, metrics.AttemptStatus(err)).Observe(duration.Seconds())
}

// RecordOutputLength implements GenerationMetrics.
func (p *PrometheusGenerationMetrics) RecordOutputLength(backend string, runes int) {
	p.output.WithLabelValues(backend).Observe(float64(runes))
}

// RecordBreakerState implements GenerationMetrics.
func (p *PrometheusGenerationMetrics) RecordBreakerState(backend string, state gobreaker.State) {
	p.breaker.WithLabelValues(backend).Set(float64(state))
}

// RecordThrottled implements GenerationMetrics.
func (p *PrometheusGenerationMetrics) RecordThrottled(backend string) {
	p.throttled.WithLabelValues(backend).Inc()
}

// NoopGenerationMetrics discards everything.
type NoopGenerationMetrics struct{}

func (NoopGenerationMetrics) RecordGeneration(string, time.Duration, error) {}
func (NoopGenerationMetrics) RecordOutputLength(string, int)               {}
func (NoopGenerationMetrics) RecordBreakerState(string, gobreaker.State)   {}
func (NoopGenerationMetrics) RecordThrottled(string)                       {}
