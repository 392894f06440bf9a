package metrics

import (
	"time"

	"langcard-insight/internal/domain/entity"
)

// Attempt status labels.
const (
	AttemptSuccess   = "success"
	AttemptRetryable = "retryable"
	AttemptFatal     = "fatal"
)

// InsightRecorder records insight orchestration metrics to the package-level
// Prometheus collectors. The zero value is ready to use.
type InsightRecorder struct{}

// NewInsightRecorder returns a recorder backed by the default registry.
func NewInsightRecorder() *InsightRecorder {
	return &InsightRecorder{}
}

// RecordRequest records one request and its outcome.
func (InsightRecorder) RecordRequest(action entity.Action, outcome string, duration time.Duration) {
	a := string(action)
	if !action.Valid() {
		a = "unknown"
	}
	InsightRequestsTotal.WithLabelValues(a, outcome).Inc()
	InsightRequestDuration.WithLabelValues(a).Observe(duration.Seconds())
}

// RecordAttempt records one backend attempt, classified by its error.
func (InsightRecorder) RecordAttempt(backend string, err error) {
	InsightAttemptsTotal.WithLabelValues(backend, AttemptStatus(err)).Inc()
}

// RecordAvailability records the result of an availability probe.
func (InsightRecorder) RecordAvailability(backend string, available bool) {
	v := 0.0
	if available {
		v = 1.0
	}
	InsightBackendAvailable.WithLabelValues(backend).Set(v)
}

// RecordSuperseded counts one discarded settlement.
func (InsightRecorder) RecordSuperseded() {
	InsightSupersededTotal.Inc()
}

// AttemptStatus maps an attempt error to its status label.
func AttemptStatus(err error) string {
	switch {
	case err == nil:
		return AttemptSuccess
	case entity.IsRetryable(err):
		return AttemptRetryable
	default:
		return AttemptFatal
	}
}
