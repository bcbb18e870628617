package httptransport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ista/internal/ledger"
	"ista/internal/orchestrator"
	"ista/internal/platform/middleware"
	dErrors "ista/pkg/domain-errors"
)

// ProvisionRequest is the POST /provision payload. Actor identity
// always comes from the validated token, never from the body.
type ProvisionRequest struct {
	Action   string                    `json:"action"`
	Datasets []orchestrator.DatasetRef `json:"datasets"`
	Seed     *int64                    `json:"seed,omitempty"`
	Volumes  map[string]int            `json:"volumes,omitempty"`
	RunID    string                    `json:"runId,omitempty"`
}

func (h *Handler) HandleProvision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := middleware.GetActor(ctx)
	if !ok {
		writeError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	var payload ProvisionRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "decode request body"))
		return
	}
	if len(payload.Datasets) == 0 {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "at least one dataset is required"))
		return
	}

	result, err := h.service.Submit(ctx, orchestrator.Request{
		Action:   orchestrator.Action(payload.Action),
		Datasets: payload.Datasets,
		Actor:    actor.Actor,
		Roles:    actor.Roles,
		Seed:     payload.Seed,
		Volumes:  payload.Volumes,
		RunID:    payload.RunID,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "request submission failed",
			"request_id", middleware.GetRequestID(ctx), "error", err)
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if result.State == orchestrator.StateFailed {
		status = dErrors.ToHTTPStatus(result.ErrorCode)
	}
	writeJSON(w, status, result)
}

func (h *Handler) HandleRunStatus(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	result, ok := h.service.Run(requestID)
	if !ok {
		writeError(w, dErrors.Newf(dErrors.CodeNotFound, "run %s not found", requestID))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleRunCleanup deletes the records one earlier run provisioned.
// The cleanup itself is a governed request: policy-checked and
// audited like any other.
func (h *Handler) HandleRunCleanup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := middleware.GetActor(ctx)
	if !ok {
		writeError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	requestID := chi.URLParam(r, "requestID")
	run, ok := h.service.Run(requestID)
	if !ok {
		writeError(w, dErrors.Newf(dErrors.CodeNotFound, "run %s not found", requestID))
		return
	}

	result, err := h.service.Submit(ctx, orchestrator.Request{
		Action:   orchestrator.ActionCleanup,
		Datasets: run.Datasets,
		Actor:    actor.Actor,
		Roles:    actor.Roles,
		RunID:    run.RequestID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if result.State == orchestrator.StateFailed {
		status = dErrors.ToHTTPStatus(result.ErrorCode)
	}
	writeJSON(w, status, result)
}

func (h *Handler) HandleDatasets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"datasets": h.service.Datasets()})
}

func (h *Handler) HandleCollectionStats(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	stats, err := h.service.CollectionStats(r.Context(), collection)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"collection": collection, "stats": stats})
}

func (h *Handler) HandleAuditQuery(w http.ResponseWriter, r *http.Request) {
	filter, err := auditFilterFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	entries, err := h.service.QueryAudit(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) HandleAuditVerify(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.VerifyChain(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Health(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "reason": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func auditFilterFromQuery(r *http.Request) (ledger.Filter, error) {
	q := r.URL.Query()
	filter := ledger.Filter{
		Actor:    q.Get("actor"),
		Action:   q.Get("action"),
		Resource: q.Get("resource"),
	}
	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return ledger.Filter{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "parse from timestamp")
		}
		filter.From = from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return ledger.Filter{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "parse to timestamp")
		}
		filter.To = to
	}
	return filter, nil
}
