// Package respond writes JSON responses and maps insight errors to HTTP statuses.
// Error details are masked before they reach logs and never reach clients.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"langcard-insight/internal/domain/entity"
	"langcard-insight/internal/usecase/insight"
)

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Error     string           `json:"error"`
	Kind      entity.ErrorKind `json:"kind,omitempty"`
	Retryable bool             `json:"retryable,omitempty"`
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			// headers are already sent
			slog.Default().Error("failed to encode JSON response",
				slog.Int("status_code", code),
				slog.Any("error", err))
		}
	}
}

// Error writes msg as a client error. msg must be safe to show.
func Error(w http.ResponseWriter, code int, msg string) {
	JSON(w, code, ErrorBody{Error: msg})
}

// StatusFor maps an insight error kind to an HTTP status.
func StatusFor(err error) int {
	switch entity.KindOf(err) {
	case entity.KindInvalidText, entity.KindTextTooLong, entity.KindMissingContext:
		return http.StatusBadRequest
	case entity.KindBackendError, entity.KindMaxRetriesExceeded:
		return http.StatusBadGateway
	}
	var ve *entity.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// InsightError writes err with the user-facing message of its kind. Backend
// details are logged, masked, and never returned.
func InsightError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	code := StatusFor(err)
	if code >= http.StatusInternalServerError {
		slog.Default().Error("insight request failed",
			slog.Int("code", code),
			slog.String("kind", string(entity.KindOf(err))),
			slog.String("error", SanitizeError(err)))
	}

	body := ErrorBody{
		Error:     insight.UserMessage(err),
		Kind:      entity.KindOf(err),
		Retryable: entity.IsRetryable(err),
	}
	var ve *entity.ValidationError
	if body.Kind == "" && errors.As(err, &ve) {
		body.Error = ve.Error()
	}
	JSON(w, code, body)
}

// SafeError writes a generic message for internal failures and logs the
// masked cause.
func SafeError(w http.ResponseWriter, code int, err error) {
	if err == nil {
		return
	}
	slog.Default().Error("internal server error",
		slog.String("status", http.StatusText(code)),
		slog.Int("code", code),
		slog.String("error", SanitizeError(err)))
	Error(w, code, http.StatusText(code))
}
