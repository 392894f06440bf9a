package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"langcard-insight/internal/handler/http/respond"
	"langcard-insight/internal/observability/logging"
	"langcard-insight/internal/usecase/insight"
)

// AIHealthHandler exposes the availability of the primary backend.
type AIHealthHandler struct {
	Service *insight.Service
	// ProbeTimeout bounds a refresh. Default: 5s
	ProbeTimeout time.Duration
}

// AIHealthResponse represents the response structure for AI health endpoints.
type AIHealthResponse struct {
	Status    string `json:"status"`
	Backend   string `json:"backend"`
	Available bool   `json:"available"`
	Latency   string `json:"latency,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Register mounts the handler's routes on mux.
func (h *AIHealthHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health/ai", h.Health)
	mux.HandleFunc("POST /health/ai/refresh", h.Refresh)
}

// Health reports the last known availability without probing.
// GET /health/ai
// Returns 200 if the backend is in use, 503 while requests are served from the fallback.
func (h *AIHealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.write(w, h.Service.Available(), 0)
}

// Refresh probes the backend again and reports the new state.
// POST /health/ai/refresh
func (h *AIHealthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	timeout := h.ProbeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	start := time.Now()
	available := h.Service.RefreshAvailability(ctx)
	latency := time.Since(start)

	logging.FromContext(r.Context()).Info("AI availability refreshed on request",
		slog.String("backend", h.Service.Backend()),
		slog.Bool("available", available),
		slog.Duration("latency", latency))
	h.write(w, available, latency)
}

func (h *AIHealthHandler) write(w http.ResponseWriter, available bool, latency time.Duration) {
	resp := AIHealthResponse{
		Status:    "available",
		Backend:   h.Service.Backend(),
		Available: available,
	}
	if latency > 0 {
		resp.Latency = latency.String()
	}
	code := http.StatusOK
	if !available {
		resp.Status = "unavailable"
		resp.Message = "serving fallback responses"
		code = http.StatusServiceUnavailable
	}
	respond.JSON(w, code, resp)
}
