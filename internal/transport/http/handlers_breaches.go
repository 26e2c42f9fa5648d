package httptransport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"medguard/internal/audit"
	"medguard/internal/breach"
	"medguard/internal/transport/http/shared"
	id "medguard/pkg/domain"
	dErrors "medguard/pkg/domain-errors"
)

type reportBreachRequest struct {
	Title    string `json:"title"`
	Summary  string `json:"summary"`
	Severity string `json:"severity"`
}

type breachResponse struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Summary    string     `json:"summary"`
	Severity   string     `json:"severity"`
	DetectedAt time.Time  `json:"detected_at"`
	NotifyBy   time.Time  `json:"notify_by"`
	NotifiedAt *time.Time `json:"notified_at,omitempty"`
	Overdue    bool       `json:"overdue"`
}

func toBreachResponse(incident breach.Incident, now time.Time) breachResponse {
	return breachResponse{
		ID:         incident.ID.String(),
		Title:      incident.Title,
		Summary:    incident.Summary,
		Severity:   string(incident.Severity),
		DetectedAt: incident.DetectedAt,
		NotifyBy:   incident.NotifyBy,
		NotifiedAt: incident.NotifiedAt,
		Overdue:    incident.Overdue(now),
	}
}

func (h *Handler) handleReportBreach(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	var req reportBreachRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	incident, err := h.breaches.Report(r.Context(), actor, req.Title, req.Summary, audit.Severity(req.Severity))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toBreachResponse(incident, time.Now()))
}

func (h *Handler) handleMarkBreachNotified(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	incidentID, err := id.ParseIncidentID(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	incident, err := h.breaches.MarkNotified(r.Context(), actor, incidentID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toBreachResponse(incident, time.Now()))
}

func (h *Handler) handleListOverdueBreaches(w http.ResponseWriter, r *http.Request) {
	incidents, err := h.breaches.ListOverdue(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list overdue breaches failed", "error", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to list overdue breaches"))
		return
	}

	now := time.Now()
	out := make([]breachResponse, 0, len(incidents))
	for _, incident := range incidents {
		out = append(out, toBreachResponse(incident, now))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"breaches": out,
		"count":    len(out),
	})
}
