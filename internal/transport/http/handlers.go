// Package httptransport is the thin HTTP layer over the audit, alert,
// consent, breach, and report services. Handlers validate input, delegate,
// and translate errors; no business logic lives here.
package httptransport

import (
	"log/slog"
	"net/http"

	"medguard/internal/alert"
	"medguard/internal/audit"
	"medguard/internal/breach"
	"medguard/internal/consent"
	"medguard/internal/platform/middleware"
	"medguard/internal/report"
	"medguard/internal/transport/http/shared"
	id "medguard/pkg/domain"
	dErrors "medguard/pkg/domain-errors"
)

// Handler carries the services every endpoint delegates to.
type Handler struct {
	logger   *slog.Logger
	recorder *audit.Recorder
	query    *audit.Query
	alerts   *alert.Service
	consents *consent.Service
	breaches *breach.Service
	reports  *report.Service
}

// NewHandler creates the HTTP handler set.
func NewHandler(
	recorder *audit.Recorder,
	query *audit.Query,
	alerts *alert.Service,
	consents *consent.Service,
	breaches *breach.Service,
	reports *report.Service,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		logger:   logger,
		recorder: recorder,
		query:    query,
		alerts:   alerts,
		consents: consents,
		breaches: breaches,
		reports:  reports,
	}
}

// actorFromContext extracts the authenticated actor set by RequireAuth.
// Returns a CodeInternal error when the middleware chain is misconfigured,
// since an authed route should never reach a handler without an actor.
func (h *Handler) actorFromContext(r *http.Request) (id.ActorID, bool, error) {
	raw := middleware.GetActorID(r.Context())
	if raw == "" {
		return id.ActorID{}, false, dErrors.New(dErrors.CodeInternal, "authentication context error")
	}
	actor, err := id.ParseActorID(raw)
	if err != nil {
		return id.ActorID{}, false, dErrors.New(dErrors.CodeInternal, "authentication context error")
	}
	return actor, true, nil
}

// requireActor writes the error response itself when no actor is present.
func (h *Handler) requireActor(w http.ResponseWriter, r *http.Request) (id.ActorID, bool) {
	actor, ok, err := h.actorFromContext(r)
	if !ok {
		h.logger.ErrorContext(r.Context(), "actor missing from context despite auth middleware",
			"request_id", middleware.GetRequestID(r.Context()),
			"path", r.URL.Path,
		)
		shared.WriteError(w, err)
		return id.ActorID{}, false
	}
	return actor, true
}
