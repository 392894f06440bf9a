// Package metrics provides the Prometheus collectors of the insight service.
//
// HTTP collectors are fed by the HTTP metrics middleware. Insight collectors are
// fed through InsightRecorder, which the insight service, sessions and batches
// receive as their MetricsRecorder. All collectors are registered with the
// default registry and exposed via the /metrics endpoint.
package metrics
