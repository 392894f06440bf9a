package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"langcard-insight/internal/domain/entity"
	"langcard-insight/internal/resilience/circuitbreaker"
	"langcard-insight/internal/resilience/retry"
	"langcard-insight/internal/usecase/insight"
	"langcard-insight/internal/utils/text"
)

// Options are the settings shared by every backend.
type Options struct {
	// MaxOutputTokens caps the length of a generated answer.
	MaxOutputTokens int
	// Temperature is the sampling temperature.
	Temperature float64
	// RPS limits outgoing calls per second. Zero disables the limiter.
	RPS float64
	// Burst is the limiter's bucket size.
	Burst int
	// HTTPClient is used by the backends that accept one. Nil means http.DefaultClient.
	HTTPClient *http.Client
	// Metrics defaults to NoopGenerationMetrics.
	Metrics GenerationMetrics
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxOutputTokens <= 0 {
		o.MaxOutputTokens = 1024
	}
	if o.Burst <= 0 {
		o.Burst = 1
	}
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	if o.Metrics == nil {
		o.Metrics = NoopGenerationMetrics{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// guard wraps one backend call with the local rate limiter, the circuit breaker,
// output parsing and metrics.
type guard struct {
	backend string
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
	metrics GenerationMetrics
	logger  *slog.Logger
}

func newGuard(backend string, cbCfg circuitbreaker.Config, opts Options) *guard {
	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}

	cbCfg.IsSuccessful = countsAsSuccess
	cbCfg.OnStateChange = func(_ string, _, to gobreaker.State) {
		opts.Metrics.RecordBreakerState(backend, to)
	}

	return &guard{
		backend: backend,
		limiter: rate.NewLimiter(limit, opts.Burst),
		breaker: circuitbreaker.New(cbCfg),
		metrics: opts.Metrics,
		logger:  opts.Logger.With(slog.String("backend", backend)),
	}
}

// call runs fn once and parses its raw output.
//
// A call rejected locally (rate limiter or open breaker) wraps
// insight.ErrProviderUnavailable and never reaches the backend.
func (g *guard) call(ctx context.Context, fn func(ctx context.Context) (string, error)) (*entity.InsightResponse, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		g.metrics.RecordThrottled(g.backend)
		g.logger.Warn("backend call throttled", slog.Any("error", err))
		return nil, fmt.Errorf("%s: rate limited: %w", g.backend, insight.ErrProviderUnavailable)
	}

	start := time.Now()
	res, err := g.breaker.Execute(func() (interface{}, error) {
		raw, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return ParseInsight(raw)
	})
	if err != nil && circuitbreaker.IsRejection(err) {
		g.logger.Warn("backend circuit breaker open, request rejected",
			slog.String("state", g.breaker.State().String()))
		return nil, fmt.Errorf("%s: %w: %w", g.backend, insight.ErrProviderUnavailable, err)
	}

	duration := time.Since(start)
	g.metrics.RecordGeneration(g.backend, duration, err)
	if err != nil {
		g.logger.Warn("backend call failed",
			slog.Duration("duration", duration),
			slog.Any("error", err))
		return nil, err
	}

	resp := res.(*entity.InsightResponse)
	resp.Source = g.backend
	g.metrics.RecordOutputLength(g.backend, text.CountRunes(resp.Insight))
	g.logger.Debug("backend call succeeded",
		slog.Duration("duration", duration),
		slog.Int("insight_length", text.CountRunes(resp.Insight)))
	return resp, nil
}

// countsAsSuccess keeps client-side failures from tripping the breaker.
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var ie *entity.InsightError
	if errors.As(err, &ie) {
		return !ie.Retryable
	}
	var httpErr *retry.HTTPError
	if errors.As(err, &httpErr) {
		return !retry.RetryableStatus(httpErr.StatusCode)
	}
	return false
}

// statusError reports an HTTP-level failure of backend.
func statusError(backend string, code int, msg string) error {
	return fmt.Errorf("%s: %w", backend, &retry.HTTPError{StatusCode: code, Message: msg})
}

// errMissingKey is returned by Ping and Generate of a backend without credentials.
func errMissingKey(backend string) error {
	return entity.NewBackendError(fmt.Errorf("%s: API key not configured", backend), false)
}
