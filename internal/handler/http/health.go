// Package http serves the insight gateway: insight, batch and context endpoints,
// health checks, metrics, and the middleware stack in front of them.
package http

import (
	"net/http"
	"time"

	"langcard-insight/internal/handler/http/respond"
	"langcard-insight/internal/infra/streams"
	"langcard-insight/internal/usecase/insight"
)

// HealthResponse represents the JSON response for health check endpoints.
type HealthResponse struct {
	Status    string                 `json:"status"`    // "healthy" or "degraded"
	Timestamp string                 `json:"timestamp"` // RFC 3339
	Checks    map[string]CheckStatus `json:"checks"`
	Version   string                 `json:"version"`
}

// CheckStatus represents the status of a single health check.
type CheckStatus struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// HealthHandler reports process health. The gateway keeps answering from the
// fallback path when the backend is down, so an unavailable backend only
// degrades the status; it never fails the check.
type HealthHandler struct {
	Service *insight.Service
	Streams *streams.Registry
	Version string
}

// ServeHTTP handles GET /health.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]CheckStatus, 2)
	status := "healthy"

	if h.Service != nil {
		ai := CheckStatus{
			Status:  "healthy",
			Details: map[string]any{"backend": h.Service.Backend()},
		}
		if !h.Service.Available() {
			ai.Status = "degraded"
			ai.Message = "AI backend unavailable, serving fallback responses"
			status = "degraded"
		}
		checks["ai"] = ai
	}

	if h.Streams != nil {
		checks["streams"] = CheckStatus{
			Status:  "healthy",
			Details: map[string]any{"active": h.Streams.Len()},
		}
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	respond.JSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Version:   h.Version,
	})
}
