package httptransport

import (
	"net/http"

	"medguard/internal/transport/http/shared"
	dErrors "medguard/pkg/domain-errors"
)

func (h *Handler) handleDashboardOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.reports.Overview(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "dashboard overview failed", "error", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to build overview"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, overview)
}
