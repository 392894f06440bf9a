package insight

import (
	"context"
	"errors"
	"time"

	"langcard-insight/internal/domain/entity"
)

// Provider is a primary backend able to turn a request into a response.
// This abstraction allows switching between generative-language backends
// (Gemini, Claude, OpenAI, a local Ollama server) without changing the orchestration.
type Provider interface {
	// Name identifies the backend in logs, metrics and InsightResponse.Source.
	Name() string

	// Generate performs one attempt. It must not retry internally.
	Generate(ctx context.Context, req *entity.InsightRequest) (*entity.InsightResponse, error)

	// Ping probes whether the backend is reachable and configured.
	Ping(ctx context.Context) error
}

// ErrProviderUnavailable is wrapped by providers when they reject a call without
// contacting the backend, e.g. while their circuit breaker is open. The service
// stops its attempt loop on it and reports a retryable backend error.
var ErrProviderUnavailable = errors.New("AI provider temporarily unavailable")

// MetricsRecorder receives orchestration metrics.
type MetricsRecorder interface {
	// RecordRequest records one MakeRequest call and its outcome.
	RecordRequest(action entity.Action, outcome string, duration time.Duration)

	// RecordAttempt records one primary-path attempt.
	RecordAttempt(backend string, err error)

	// RecordAvailability records the result of an availability probe.
	RecordAvailability(backend string, available bool)

	// RecordSuperseded counts settlements dropped because a newer request replaced them.
	RecordSuperseded()
}

type noopMetrics struct{}

func (noopMetrics) RecordRequest(entity.Action, string, time.Duration) {}
func (noopMetrics) RecordAttempt(string, error)                        {}
func (noopMetrics) RecordAvailability(string, bool)                    {}
func (noopMetrics) RecordSuperseded()                                  {}

// Outcome labels used with MetricsRecorder.RecordRequest.
const (
	OutcomeSuccess  = "success"
	OutcomeFallback = "fallback"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)
