// Package insight orchestrates AI insight requests for flashcard notes.
//
// It contains the context extractor that flattens notes, the Service that validates
// requests and drives the primary backend with retries (degrading to a local
// fallback response when the backend is unavailable), and the Session and Batch
// trackers that add supersession and auto-retry on top of the Service.
package insight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"langcard-insight/internal/domain/entity"
	"langcard-insight/internal/handler/http/requestid"
	"langcard-insight/internal/observability/tracing"
	"langcard-insight/internal/resilience/retry"
)

// Config holds the service configuration. It is fixed at construction.
type Config struct {
	// MaxRetries is the number of primary-path attempts per request. Default: 3
	MaxRetries int
	// Timeout bounds each primary-path attempt. Default: 10s
	Timeout time.Duration
	// RetryDelay is the linear backoff unit: the wait after attempt k is RetryDelay*k. Default: 1s
	RetryDelay time.Duration
}

// DefaultConfig returns {3, 10s, 1s}.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		Timeout:    10 * time.Second,
		RetryDelay: 1 * time.Second,
	}
}

// Validate checks configuration correctness.
func (c Config) Validate() error {
	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay cannot be negative, got %v", c.RetryDelay)
	}
	return nil
}

// fallbackConfidence is the confidence attached to degraded responses.
const fallbackConfidence = 0.1

// FallbackSource is InsightResponse.Source for degraded responses.
const FallbackSource = "fallback"

// Requester is what Session and Batch need from the Service.
type Requester interface {
	MakeRequest(ctx context.Context, req *entity.InsightRequest) (*entity.InsightResponse, error)
}

// Service turns validated requests into responses.
// It holds no request-scoped state; concurrent calls are independent.
type Service struct {
	provider  Provider
	config    Config
	available atomic.Bool
	sleep     retry.Sleeper
	metrics   MetricsRecorder
	logger    *slog.Logger
	now       func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithSleeper replaces the backoff sleeper.
func WithSleeper(sleep retry.Sleeper) Option {
	return func(s *Service) { s.sleep = sleep }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock sets the time source used for response timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a service for provider and probes its availability once.
// A nil provider yields a service that always answers from the fallback path.
func NewService(ctx context.Context, provider Provider, cfg Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid insight configuration: %w", err)
	}

	s := &Service{
		provider: provider,
		config:   cfg,
		sleep:    retry.Sleep,
		metrics:  noopMetrics{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.RefreshAvailability(ctx)
	return s, nil
}

// Available reports whether the primary path is in use.
func (s *Service) Available() bool {
	return s.available.Load()
}

// Backend returns the primary provider's name, or FallbackSource without one.
func (s *Service) Backend() string {
	if s.provider == nil {
		return FallbackSource
	}
	return s.provider.Name()
}

// RefreshAvailability probes the primary backend again and returns the new state.
func (s *Service) RefreshAvailability(ctx context.Context) bool {
	if s.provider == nil {
		s.available.Store(false)
		s.metrics.RecordAvailability(FallbackSource, false)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	err := s.provider.Ping(ctx)
	ok := err == nil
	prev := s.available.Swap(ok)
	s.metrics.RecordAvailability(s.provider.Name(), ok)

	if ok != prev || !ok {
		s.logger.Info("AI backend availability checked",
			slog.String("backend", s.provider.Name()),
			slog.Bool("available", ok),
			slog.Bool("changed", ok != prev),
			slog.Any("error", err))
	}
	return ok
}

// Request builds a request stamped now and runs it through MakeRequest.
func (s *Service) Request(ctx context.Context, action entity.Action, selectedText string, nc *entity.NoteContext) (*entity.InsightResponse, error) {
	return s.MakeRequest(ctx, entity.NewInsightRequest(action, selectedText, nc))
}

// MakeRequest validates req and produces a response.
//
// Validation failures return a ValidationError for an unknown action, or
// InvalidText, TextTooLong or MissingContext, without contacting the backend. When the backend is unavailable a low-confidence fallback
// response is returned and no error is possible. Otherwise the primary path is tried
// up to MaxRetries times with linear backoff; non-retryable errors are returned
// immediately and an exhausted budget yields MaxRetriesExceeded.
//
// The returned response always echoes req.Action and req.SelectedText.
func (s *Service) MakeRequest(ctx context.Context, req *entity.InsightRequest) (*entity.InsightResponse, error) {
	start := time.Now()
	logger := s.requestLogger(ctx)

	ctx, span := tracing.GetTracer().Start(ctx, "insight.MakeRequest")
	defer span.End()

	if err := entity.ValidateRequest(req); err != nil {
		logger.Warn("Invalid insight request",
			slog.String("kind", string(entity.KindOf(err))))
		span.SetStatus(codes.Error, err.Error())
		action := entity.Action("")
		if req != nil {
			action = req.Action
		}
		s.metrics.RecordRequest(action, OutcomeInvalid, time.Since(start))
		return nil, err
	}

	span.SetAttributes(
		attribute.String("insight.action", string(req.Action)),
		attribute.String("insight.note_type", string(req.Context.NoteType)),
		attribute.Bool("insight.available", s.Available()),
	)

	if !s.Available() {
		logger.Info("AI backend unavailable, returning fallback response",
			slog.String("action", string(req.Action)))
		s.metrics.RecordRequest(req.Action, OutcomeFallback, time.Since(start))
		return s.fallback(req), nil
	}

	logger.Info("Requesting insight",
		slog.String("action", string(req.Action)),
		slog.String("backend", s.provider.Name()),
		slog.Int("selection_length", len([]rune(req.SelectedText))),
		slog.Int("fields", len(req.Context.AllFields)))

	resp, attempts, err := s.primary(ctx, req)
	span.SetAttributes(attribute.Int("insight.attempts", attempts))
	if err != nil {
		logger.Error("Insight request failed",
			slog.String("action", string(req.Action)),
			slog.Int("attempts", attempts),
			slog.String("kind", string(entity.KindOf(err))),
			slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.RecordRequest(req.Action, OutcomeError, time.Since(start))
		return nil, err
	}

	logger.Info("Insight generated",
		slog.String("action", string(req.Action)),
		slog.Int("attempts", attempts),
		slog.Duration("duration", time.Since(start)))
	s.metrics.RecordRequest(req.Action, OutcomeSuccess, time.Since(start))
	return resp, nil
}

// primary runs the attempt loop against the provider.
func (s *Service) primary(ctx context.Context, req *entity.InsightRequest) (*entity.InsightResponse, int, error) {
	var (
		result   *entity.InsightResponse
		attempts int
	)

	cfg := retry.Config{MaxAttempts: s.config.MaxRetries, Delay: s.config.RetryDelay}
	err := retry.Linear(ctx, cfg, s.sleep, entity.IsRetryable, func(attempt int) error {
		attempts = attempt
		resp, err := s.attempt(ctx, req)
		s.metrics.RecordAttempt(s.provider.Name(), err)
		if err != nil {
			if errors.Is(err, ErrProviderUnavailable) {
				return fmt.Errorf("%w: %w", retry.ErrStop, err)
			}
			return err
		}
		result = resp
		return nil
	})
	if err == nil {
		return result, attempts, nil
	}

	var exhausted *retry.ExhaustedError
	switch {
	case errors.As(err, &exhausted):
		return nil, attempts, entity.NewMaxRetriesExceeded(exhausted.Attempts, exhausted.Last)
	case ctx.Err() != nil:
		return nil, attempts, ctx.Err()
	}

	var ie *entity.InsightError
	if errors.As(err, &ie) {
		return nil, attempts, ie
	}
	return nil, attempts, err
}

// attempt performs one bounded call and classifies its failure.
func (s *Service) attempt(ctx context.Context, req *entity.InsightRequest) (*entity.InsightResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	resp, err := s.provider.Generate(attemptCtx, req)
	if err != nil {
		return nil, classify(err)
	}
	if resp == nil || strings.TrimSpace(resp.Insight) == "" {
		return nil, entity.NewBackendError(errors.New("backend returned an empty insight"), true)
	}
	return s.finish(req, resp, s.provider.Name()), nil
}

// classify wraps a provider error as a BackendError.
func classify(err error) error {
	var ie *entity.InsightError
	if errors.As(err, &ie) {
		return err
	}
	if errors.Is(err, ErrProviderUnavailable) {
		return entity.NewBackendError(err, true)
	}
	var httpErr *retry.HTTPError
	if errors.As(err, &httpErr) {
		return entity.NewBackendError(err, retry.RetryableStatus(httpErr.StatusCode))
	}
	if errors.Is(err, context.Canceled) {
		return entity.NewBackendError(err, false)
	}
	return entity.NewBackendError(err, true)
}

// finish stamps correlation fields onto a backend response.
func (s *Service) finish(req *entity.InsightRequest, resp *entity.InsightResponse, source string) *entity.InsightResponse {
	out := *resp
	out.Action = req.Action
	out.SelectedText = req.SelectedText
	out.Insight = strings.TrimSpace(out.Insight)
	if out.Timestamp.IsZero() {
		out.Timestamp = s.now()
	}
	if out.Source == "" {
		out.Source = source
	}
	if out.Confidence != nil {
		c := math.Max(0, math.Min(1, *out.Confidence))
		out.Confidence = &c
	}
	return &out
}

// fallback synthesises the degraded response used while the backend is unavailable.
func (s *Service) fallback(req *entity.InsightRequest) *entity.InsightResponse {
	return &entity.InsightResponse{
		Action:       req.Action,
		SelectedText: req.SelectedText,
		Insight:      "The AI service is currently unavailable, so no insight could be generated for this selection.",
		Suggestion:   fallbackSuggestion(req.Action),
		Confidence:   entity.Float64(fallbackConfidence),
		Timestamp:    s.now(),
		Source:       FallbackSource,
	}
}

func fallbackSuggestion(action entity.Action) string {
	switch action {
	case entity.ActionDefine:
		return "Look the word up in a dictionary and add the definition to the note."
	case entity.ActionTranslate:
		return "Try a translation tool and compare the result with the note's other fields."
	case entity.ActionGrammar:
		return "Check a grammar reference for the construction used in the selection."
	default:
		return "Try again later once the AI service is reachable."
	}
}

func (s *Service) requestLogger(ctx context.Context) *slog.Logger {
	id := requestid.FromContext(ctx)
	if id == "" {
		id = uuid.New().String()
	}
	return s.logger.With(slog.String("request_id", id))
}
