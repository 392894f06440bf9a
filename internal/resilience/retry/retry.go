// Package retry provides retry loops with linear backoff for calls to AI backends.
// It helps handle transient failures gracefully by automatically retrying failed operations.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"
)

// Config holds the configuration for retry logic.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int

	// Delay is the base backoff unit. The wait after attempt k is Delay*k.
	Delay time.Duration
}

// DefaultConfig returns a default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		Delay:       1 * time.Second,
	}
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the production Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ErrStop can be wrapped by fn to end the loop without further attempts while
// keeping the wrapped error's own classification.
var ErrStop = errors.New("retry stopped")

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("max retry attempts (%d) exceeded: %v", e.Attempts, e.Last)
}

// Unwrap returns the last attempt's error.
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Linear calls fn up to cfg.MaxAttempts times. fn receives the 1-based attempt index.
//
// The loop ends when fn succeeds, when isRetryable rejects the error (the error is
// returned as is), when the error wraps ErrStop, or when ctx is done. After attempt k
// fails with a retryable error the loop waits cfg.Delay*k before attempt k+1.
// An exhausted budget yields *ExhaustedError.
func Linear(ctx context.Context, cfg Config, sleep Sleeper, isRetryable func(error) bool, fn func(attempt int) error) error {
	if sleep == nil {
		sleep = Sleep
	}
	if isRetryable == nil {
		isRetryable = IsRetryable
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn(attempt)

		if lastErr == nil {
			if attempt > 1 {
				slog.Info("operation succeeded after retry",
					slog.Int("attempt", attempt))
			}
			return nil
		}

		if errors.Is(lastErr, ErrStop) {
			return lastErr
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("retry aborted: %w", ctxErr)
		}

		if !isRetryable(lastErr) {
			slog.Warn("non-retryable error, aborting",
				slog.Int("attempt", attempt),
				slog.Any("error", lastErr))
			return lastErr
		}

		// Don't wait after last attempt
		if attempt == maxAttempts {
			break
		}

		delay := cfg.Delay * time.Duration(attempt)
		slog.Warn("operation failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxAttempts),
			slog.Duration("delay", delay),
			slog.Any("error", lastErr))

		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry aborted: %w", err)
		}
	}

	return &ExhaustedError{Attempts: maxAttempts, Last: lastErr}
}

// IsRetryable determines if a transport error is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Network errors (timeout)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Syscall errors
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return RetryableStatus(httpErr.StatusCode)
	}

	return false
}

// RetryableStatus reports whether an HTTP status code signals a transient failure:
// 5xx, 429 Too Many Requests and 408 Request Timeout.
func RetryableStatus(code int) bool {
	if code >= 500 && code < 600 {
		return true
	}
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}
