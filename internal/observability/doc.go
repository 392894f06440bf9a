// Package observability groups the logging, metrics and tracing infrastructure
// of the insight service.
//
// Subpackages:
//   - logging: structured slog loggers with request ID propagation
//   - metrics: Prometheus collectors and the insight MetricsRecorder
//   - tracing: OpenTelemetry tracer provider and HTTP middleware
package observability
