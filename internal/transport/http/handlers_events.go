package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"medguard/internal/audit"
	"medguard/internal/platform/middleware"
	"medguard/internal/transport/http/shared"
	id "medguard/pkg/domain"
	dErrors "medguard/pkg/domain-errors"
	"medguard/pkg/platform/sentinel"
)

type recordEventRequest struct {
	ActorID     string            `json:"actor_id,omitempty"`
	Kind        string            `json:"kind"`
	Severity    string            `json:"severity"`
	Subject     *subjectPayload   `json:"subject,omitempty"`
	Description string            `json:"description"`
	Context     map[string]any    `json:"context,omitempty"`
}

type subjectPayload struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

type eventResponse struct {
	ID             int64           `json:"id"`
	ActorID        string          `json:"actor_id,omitempty"`
	Kind           string          `json:"kind"`
	Severity       string          `json:"severity"`
	Subject        *subjectPayload `json:"subject,omitempty"`
	Description    string          `json:"description"`
	Context        map[string]any  `json:"context,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
	RetentionUntil time.Time       `json:"retention_until"`
	Resolved       bool            `json:"resolved"`
	ResolvedBy     string          `json:"resolved_by,omitempty"`
	ResolutionNote string          `json:"resolution_note,omitempty"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
}

func toEventResponse(record audit.EventRecord) eventResponse {
	resp := eventResponse{
		ID:             record.ID,
		Kind:           string(record.Kind),
		Severity:       string(record.Severity),
		Description:    record.Description,
		Context:        record.Context,
		OccurredAt:     record.OccurredAt,
		RetentionUntil: record.RetentionUntil,
		Resolved:       record.Resolved,
		ResolutionNote: record.ResolutionNote,
		ResolvedAt:     record.ResolvedAt,
	}
	if record.Actor != nil {
		resp.ActorID = record.Actor.String()
	}
	if record.Subject != nil {
		resp.Subject = &subjectPayload{Kind: string(record.Subject.Kind), ID: record.Subject.ID}
	}
	if record.ResolvedBy != nil {
		resp.ResolvedBy = record.ResolvedBy.String()
	}
	return resp
}

// handleRecordEvent ingests one audit event. Timestamps and retention are
// never taken from the request; the store assigns them.
func (h *Handler) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req recordEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.Description == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "description is required"))
		return
	}

	entry := audit.Entry{
		Kind:        audit.ActionKind(req.Kind),
		Severity:    audit.Severity(req.Severity),
		Description: req.Description,
		Context:     stampRequestMeta(ctx, req.Context),
	}
	if req.ActorID != "" {
		actor, err := id.ParseActorID(req.ActorID)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		entry.Actor = &actor
	}
	if req.Subject != nil {
		entry.Subject = &audit.SubjectRef{
			Kind: audit.SubjectKind(req.Subject.Kind),
			ID:   req.Subject.ID,
		}
	}

	record, err := h.recorder.Record(ctx, entry)
	if err != nil {
		if errors.Is(err, sentinel.ErrPersistence) {
			h.logger.ErrorContext(ctx, "event ingest failed",
				"request_id", middleware.GetRequestID(ctx),
				"error", err,
			)
			shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to record event"))
			return
		}
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, err.Error(), err))
		return
	}

	shared.WriteJSON(w, http.StatusCreated, toEventResponse(record))
}

// stampRequestMeta merges request-scoped metadata into the event context.
// Caller-supplied keys win; the stamp only fills gaps.
func stampRequestMeta(ctx context.Context, eventCtx map[string]any) map[string]any {
	meta := middleware.GetRequestMeta(ctx)
	if meta == (middleware.RequestMeta{}) {
		return eventCtx
	}
	if eventCtx == nil {
		eventCtx = make(map[string]any, 4)
	}
	stamp := map[string]string{
		"ip":         meta.IP,
		"user_agent": meta.UserAgent,
		"browser":    meta.Browser,
		"os":         meta.OS,
	}
	for key, value := range stamp {
		if value == "" {
			continue
		}
		if _, ok := eventCtx[key]; !ok {
			eventCtx[key] = value
		}
	}
	return eventCtx
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	filter, limit, err := parseEventQuery(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	events, err := h.query.ListEvents(r.Context(), filter, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list events failed",
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err,
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to list events"))
		return
	}

	out := make([]eventResponse, 0, len(events))
	for _, record := range events {
		out = append(out, toEventResponse(record))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"events": out,
		"count":  len(out),
	})
}

type summaryResponse struct {
	Total      int64              `json:"total"`
	ByKind     map[string]int64   `json:"by_kind"`
	BySeverity map[string]int64   `json:"by_severity"`
	Percents   map[string]float64 `json:"severity_percent"`
}

func (h *Handler) handleEventSummary(w http.ResponseWriter, r *http.Request) {
	filter, _, err := parseEventQuery(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	summary, err := h.query.Summarize(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "summarize events failed",
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err,
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to summarize events"))
		return
	}

	resp := summaryResponse{
		Total:      summary.Total,
		ByKind:     make(map[string]int64, len(summary.ByKind)),
		BySeverity: make(map[string]int64, len(summary.BySeverity)),
		Percents:   make(map[string]float64, len(summary.BySeverity)),
	}
	for kind, n := range summary.ByKind {
		resp.ByKind[string(kind)] = n
	}
	for severity, n := range summary.BySeverity {
		resp.BySeverity[string(severity)] = n
		resp.Percents[string(severity)] = summary.Percent(n)
	}
	shared.WriteJSON(w, http.StatusOK, resp)
}

type resolveEventRequest struct {
	Note string `json:"note"`
}

func (h *Handler) handleResolveEvent(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	eventID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "event id must be an integer"))
		return
	}

	var req resolveEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.Note == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "resolution note is required"))
		return
	}

	if err := h.recorder.ResolveSecurityEvent(r.Context(), eventID, actor, req.Note); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseEventQuery reads the shared filter parameters for list and summary.
func parseEventQuery(r *http.Request) (audit.Filter, int, error) {
	q := r.URL.Query()
	var filter audit.Filter

	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Filter{}, 0, dErrors.New(dErrors.CodeInvalidInput, "from must be RFC 3339")
		}
		filter.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return audit.Filter{}, 0, dErrors.New(dErrors.CodeInvalidInput, "to must be RFC 3339")
		}
		filter.To = t
	}
	if raw := q.Get("actor_id"); raw != "" {
		actor, err := id.ParseActorID(raw)
		if err != nil {
			return audit.Filter{}, 0, err
		}
		filter.Actor = &actor
	}
	if raw := q.Get("kind"); raw != "" {
		kind := audit.ActionKind(raw)
		if !kind.IsValid() {
			return audit.Filter{}, 0, dErrors.New(dErrors.CodeInvalidInput, "unknown kind: "+raw)
		}
		filter.Kind = kind
	}
	if raw := q.Get("severity"); raw != "" {
		severity := audit.Severity(raw)
		if !severity.IsValid() {
			return audit.Filter{}, 0, dErrors.New(dErrors.CodeInvalidInput, "unknown severity: "+raw)
		}
		filter.Severity = severity
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return audit.Filter{}, 0, dErrors.New(dErrors.CodeInvalidInput, "limit must be a non-negative integer")
		}
		limit = n
	}
	return filter, limit, nil
}
