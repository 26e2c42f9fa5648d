package httptransport

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"medguard/internal/alert"
	"medguard/internal/transport/http/shared"
	id "medguard/pkg/domain"
	dErrors "medguard/pkg/domain-errors"
)

type alertResponse struct {
	ID              string     `json:"id"`
	Type            string     `json:"type"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Severity        string     `json:"severity"`
	Status          string     `json:"status"`
	AffectedRecords int        `json:"affected_records"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	AcknowledgedBy  string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt  *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedBy      string     `json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolutionNote  string     `json:"resolution_note,omitempty"`
}

func toAlertResponse(a alert.Alert) alertResponse {
	resp := alertResponse{
		ID:              a.ID.String(),
		Type:            string(a.Type),
		Title:           a.Title,
		Description:     a.Description,
		Severity:        string(a.Severity),
		Status:          string(a.Status),
		AffectedRecords: a.AffectedRecords,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
		AcknowledgedAt:  a.AcknowledgedAt,
		ResolvedAt:      a.ResolvedAt,
		ResolutionNote:  a.ResolutionNote,
	}
	if a.AcknowledgedBy != nil {
		resp.AcknowledgedBy = a.AcknowledgedBy.String()
	}
	if a.ResolvedBy != nil {
		resp.ResolvedBy = a.ResolvedBy.String()
	}
	return resp
}

func (h *Handler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status := alert.Status(q.Get("status"))
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	alerts, err := h.alerts.List(r.Context(), status, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list alerts failed", "error", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to list alerts"))
		return
	}

	out := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, toAlertResponse(a))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"alerts": out,
		"count":  len(out),
	})
}

func (h *Handler) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	alertID, err := id.ParseAlertID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	a, err := h.alerts.Get(r.Context(), alertID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toAlertResponse(a))
}

func (h *Handler) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	h.transitionAlert(w, r, func(r *http.Request, alertID id.AlertID, actor id.ActorID) (alert.Alert, error) {
		return h.alerts.Acknowledge(r.Context(), alertID, actor)
	})
}

func (h *Handler) handleStartAlertProgress(w http.ResponseWriter, r *http.Request) {
	h.transitionAlert(w, r, func(r *http.Request, alertID id.AlertID, actor id.ActorID) (alert.Alert, error) {
		return h.alerts.StartProgress(r.Context(), alertID, actor)
	})
}

func (h *Handler) handleDismissAlert(w http.ResponseWriter, r *http.Request) {
	h.transitionAlert(w, r, func(r *http.Request, alertID id.AlertID, actor id.ActorID) (alert.Alert, error) {
		return h.alerts.Dismiss(r.Context(), alertID, actor)
	})
}

type resolveAlertRequest struct {
	Note string `json:"note"`
}

func (h *Handler) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	var req resolveAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	h.transitionAlert(w, r, func(r *http.Request, alertID id.AlertID, actor id.ActorID) (alert.Alert, error) {
		return h.alerts.Resolve(r.Context(), alertID, actor, req.Note)
	})
}

// transitionAlert factors the shared shape of the lifecycle endpoints: parse
// the alert ID, resolve the actor, apply the transition, return the alert.
func (h *Handler) transitionAlert(
	w http.ResponseWriter,
	r *http.Request,
	apply func(r *http.Request, alertID id.AlertID, actor id.ActorID) (alert.Alert, error),
) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	alertID, err := id.ParseAlertID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	a, err := apply(r, alertID, actor)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toAlertResponse(a))
}
