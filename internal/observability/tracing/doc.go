// Package tracing provides OpenTelemetry tracing integration.
//
// Setup installs the process-wide tracer provider, Middleware starts a server span
// per HTTP request, and GetTracer is used by the insight service to add spans for
// each request and its backend attempts.
package tracing
