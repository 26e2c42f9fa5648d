package httptransport

import (
	"encoding/json"
	"net/http"
	"time"

	"medguard/internal/consent"
	"medguard/internal/transport/http/shared"
	id "medguard/pkg/domain"
	dErrors "medguard/pkg/domain-errors"
)

type grantConsentRequest struct {
	PatientID string   `json:"patient_id"`
	Purposes  []string `json:"purposes"`
}

type revokeConsentRequest struct {
	PatientID string `json:"patient_id"`
	Purpose   string `json:"purpose"`
}

type consentResponse struct {
	ID        int64      `json:"id"`
	PatientID string     `json:"patient_id"`
	Purpose   string     `json:"purpose"`
	GrantedAt time.Time  `json:"granted_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	Active    bool       `json:"active"`
}

func toConsentResponse(record consent.Record, now time.Time) consentResponse {
	return consentResponse{
		ID:        record.ID,
		PatientID: record.PatientID.String(),
		Purpose:   string(record.Purpose),
		GrantedAt: record.GrantedAt,
		ExpiresAt: record.ExpiresAt,
		RevokedAt: record.RevokedAt,
		Active:    record.IsActive(now),
	}
}

func (h *Handler) handleGrantConsent(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	var req grantConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	patientID, err := id.ParsePatientID(req.PatientID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	purposes := make([]consent.Purpose, 0, len(req.Purposes))
	for _, raw := range req.Purposes {
		purpose, err := consent.ParsePurpose(raw)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		purposes = append(purposes, purpose)
	}

	records, err := h.consents.Grant(r.Context(), actor, patientID, purposes)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	now := time.Now()
	out := make([]consentResponse, 0, len(records))
	for _, record := range records {
		out = append(out, toConsentResponse(record, now))
	}
	shared.WriteJSON(w, http.StatusCreated, map[string]any{"consents": out})
}

func (h *Handler) handleRevokeConsent(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	var req revokeConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	patientID, err := id.ParsePatientID(req.PatientID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	purpose, err := consent.ParsePurpose(req.Purpose)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if err := h.consents.Revoke(r.Context(), actor, patientID, purpose); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListConsents(w http.ResponseWriter, r *http.Request) {
	patientID, err := id.ParsePatientID(r.URL.Query().Get("patient_id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	records, err := h.consents.List(r.Context(), patientID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list consents failed", "error", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to list consents"))
		return
	}

	now := time.Now()
	out := make([]consentResponse, 0, len(records))
	for _, record := range records {
		out = append(out, toConsentResponse(record, now))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"consents": out})
}
