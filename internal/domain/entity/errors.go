package entity

import (
	"errors"
	"fmt"
)

// ErrorKind classifies insight failures. Each kind maps to one user-facing message.
type ErrorKind string

const (
	KindInvalidText        ErrorKind = "invalid_text"
	KindTextTooLong        ErrorKind = "text_too_long"
	KindMissingContext     ErrorKind = "missing_context"
	KindBackendError       ErrorKind = "backend_error"
	KindMaxRetriesExceeded ErrorKind = "max_retries_exceeded"
)

// Sentinel errors, one per kind. An *InsightError matches the sentinel of its kind
// under errors.Is, so callers can write errors.Is(err, entity.ErrTextTooLong).
var (
	ErrInvalidText        = &InsightError{Kind: KindInvalidText, Message: "selected text cannot be empty"}
	ErrTextTooLong        = &InsightError{Kind: KindTextTooLong, Message: "selected text is too long"}
	ErrMissingContext     = &InsightError{Kind: KindMissingContext, Message: "note context is required"}
	ErrBackend            = &InsightError{Kind: KindBackendError, Retryable: true, Message: "AI backend error"}
	ErrMaxRetriesExceeded = &InsightError{Kind: KindMaxRetriesExceeded, Message: "max retries exceeded"}
)

// InsightError is the classified error returned by the insight service.
type InsightError struct {
	Kind      ErrorKind
	Retryable bool
	Message   string
	Err       error
}

// Error returns the message, followed by the wrapped error when present.
func (e *InsightError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *InsightError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *InsightError of the same kind.
func (e *InsightError) Is(target error) bool {
	t, ok := target.(*InsightError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewBackendError wraps a backend failure. Backend failures are retryable unless the
// backend says otherwise.
func NewBackendError(err error, retryable bool) *InsightError {
	return &InsightError{
		Kind:      KindBackendError,
		Retryable: retryable,
		Message:   "AI backend error",
		Err:       err,
	}
}

// NewMaxRetriesExceeded reports an exhausted retry budget, wrapping the last error.
func NewMaxRetriesExceeded(attempts int, last error) *InsightError {
	return &InsightError{
		Kind:    KindMaxRetriesExceeded,
		Message: fmt.Sprintf("max retries exceeded after %d attempts", attempts),
		Err:     last,
	}
}

// KindOf returns the kind of err, or "" when err is not an *InsightError.
func KindOf(err error) ErrorKind {
	var ie *InsightError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return ""
}

// IsRetryable reports whether err is an *InsightError marked retryable.
func IsRetryable(err error) bool {
	var ie *InsightError
	if errors.As(err, &ie) {
		return ie.Retryable
	}
	return false
}
