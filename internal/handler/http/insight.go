package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"langcard-insight/internal/domain/entity"
	"langcard-insight/internal/handler/http/respond"
	"langcard-insight/internal/infra/streams"
	"langcard-insight/internal/observability/logging"
	"langcard-insight/internal/observability/tracing"
	"langcard-insight/internal/usecase/insight"
)

// MaxBatchItems bounds the size of one batch request.
const MaxBatchItems = 20

// InsightHandler serves the insight endpoints.
type InsightHandler struct {
	Service *insight.Service
	Streams *streams.Registry
	// Context limits the context extractor.
	Context insight.ContextOptions
	// Metrics is passed to per-request batches. Nil disables them.
	Metrics insight.MetricsRecorder
}

// Register mounts the handler's routes on mux.
func (h *InsightHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /insights", h.Create)
	mux.HandleFunc("POST /insights/batch", h.Batch)
	mux.HandleFunc("POST /insights/context", h.BuildContext)
	mux.HandleFunc("GET /insights/stream", h.StreamState)
	mux.HandleFunc("DELETE /insights/stream", h.StreamDelete)
}

type insightRequest struct {
	Action       string              `json:"action"`
	SelectedText string              `json:"selectedText"`
	Context      *entity.NoteContext `json:"context"`
}

type supersededResponse struct {
	Superseded bool `json:"superseded"`
}

// Create runs one request on the caller's stream and waits for its final outcome,
// auto-retries included. A request replaced by a newer one on the same stream
// answers 409. Without a stream header the request runs on its own session.
// POST /insights
func (h *InsightHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body insightRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	action, err := entity.ParseAction(body.Action)
	if err != nil {
		respond.InsightError(w, err)
		return
	}

	session := h.Streams.Get(r.Header.Get(tracing.StreamHeader))
	// A superseded request keeps running after its caller got 409, so it must
	// outlive the HTTP request.
	ticket := session.Request(context.WithoutCancel(r.Context()), action, body.SelectedText, body.Context)

	outcome, err := ticket.Wait(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Info("client went away before the insight was ready")
		return
	}
	writeOutcome(w, outcome)
}

func writeOutcome(w http.ResponseWriter, o insight.Outcome) {
	switch {
	case o.Superseded:
		respond.JSON(w, http.StatusConflict, supersededResponse{Superseded: true})
	case o.Err != nil:
		respond.InsightError(w, o.Err)
	default:
		respond.JSON(w, http.StatusOK, o.Response)
	}
}

type batchRequest struct {
	Items []insightBatchItem `json:"items"`
}

type insightBatchItem struct {
	ID string `json:"id"`
	insightRequest
}

type batchResult struct {
	Response    *entity.InsightResponse `json:"response,omitempty"`
	Error       string                  `json:"error,omitempty"`
	Kind        entity.ErrorKind        `json:"kind,omitempty"`
	Superseded  bool                    `json:"superseded,omitempty"`
	AutoRetries int                     `json:"autoRetries,omitempty"`
}

// Batch runs every item concurrently and returns one result per id. A repeated
// id supersedes its earlier items.
// POST /insights/batch
func (h *InsightHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var body batchRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if len(body.Items) == 0 {
		respond.Error(w, http.StatusBadRequest, "items cannot be empty")
		return
	}
	if len(body.Items) > MaxBatchItems {
		respond.Error(w, http.StatusBadRequest, fmt.Sprintf("at most %d items are allowed", MaxBatchItems))
		return
	}

	items := make([]insight.BatchItem, 0, len(body.Items))
	for i, it := range body.Items {
		if strings.TrimSpace(it.ID) == "" {
			respond.Error(w, http.StatusBadRequest, fmt.Sprintf("items[%d].id is required", i))
			return
		}
		action, err := entity.ParseAction(it.Action)
		if err != nil {
			respond.InsightError(w, err)
			return
		}
		items = append(items, insight.BatchItem{
			ID:           it.ID,
			Action:       action,
			SelectedText: it.SelectedText,
			Context:      it.Context,
		})
	}

	batch := insight.NewBatch(h.Service, h.Metrics)
	outcomes, err := batch.Run(r.Context(), items)
	if err != nil {
		logging.FromContext(r.Context()).Info("client went away before the batch finished")
		return
	}

	results := make(map[string]batchResult, len(outcomes))
	for id, o := range outcomes {
		res := batchResult{
			Response:    o.Response,
			Superseded:  o.Superseded,
			AutoRetries: o.AutoRetries,
		}
		if o.Err != nil {
			res.Error = o.Message
			res.Kind = entity.KindOf(o.Err)
		}
		results[id] = res
	}
	respond.JSON(w, http.StatusOK, map[string]any{"results": results})
}

type contextRequest struct {
	Note         insight.Note `json:"note"`
	CurrentField string       `json:"currentField"`
	Selection    string       `json:"selection"`
}

// BuildContext flattens a note into the context attached to insight requests.
// POST /insights/context
func (h *InsightHandler) BuildContext(w http.ResponseWriter, r *http.Request) {
	var body contextRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	nc, err := insight.BuildContext(body.Note, body.CurrentField, body.Selection, h.Context)
	if err != nil {
		respond.InsightError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, nc)
}

// StreamState returns the state of the caller's stream. Requests sent without a
// stream header are not tracked, so naming no stream answers 404.
// GET /insights/stream
func (h *InsightHandler) StreamState(w http.ResponseWriter, r *http.Request) {
	session, ok := h.Streams.Lookup(r.Header.Get(tracing.StreamHeader))
	if !ok {
		respond.Error(w, http.StatusNotFound, "stream not found")
		return
	}
	respond.JSON(w, http.StatusOK, session.State())
}

// StreamDelete supersedes the stream's in-flight request and forgets the stream.
// DELETE /insights/stream
func (h *InsightHandler) StreamDelete(w http.ResponseWriter, r *http.Request) {
	if !h.Streams.Delete(r.Header.Get(tracing.StreamHeader)) {
		respond.Error(w, http.StatusNotFound, "stream not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeJSON decodes the body into v and writes a 4xx response on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if isBodyTooLarge(err) {
			respond.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		respond.Error(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
