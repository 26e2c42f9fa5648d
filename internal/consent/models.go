// Package consent tracks patient consent decisions per processing purpose.
// Purpose binding allows selective revocation without affecting other flows.
package consent

import (
	"time"

	id "medguard/pkg/domain"
	dErrors "medguard/pkg/domain-errors"
)

// Purpose labels why patient data is processed.
type Purpose string

const (
	PurposeTreatment   Purpose = "treatment"
	PurposeResearch    Purpose = "research"
	PurposeMarketing   Purpose = "marketing"
	PurposeDataSharing Purpose = "data_sharing"
)

// validPurposes is the single source of truth for supported purposes.
var validPurposes = map[Purpose]bool{
	PurposeTreatment:   true,
	PurposeResearch:    true,
	PurposeMarketing:   true,
	PurposeDataSharing: true,
}

// IsValid reports whether the purpose is supported.
func (p Purpose) IsValid() bool { return validPurposes[p] }

// ParsePurpose constructs a Purpose from external input.
// Errors: CodeInvalidInput when the value is empty or unsupported.
func ParsePurpose(s string) (Purpose, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "purpose cannot be empty")
	}
	p := Purpose(s)
	if !p.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid purpose: "+s)
	}
	return p, nil
}

// Record captures a patient's consent decision for a specific purpose.
type Record struct {
	ID        int64
	PatientID id.PatientID
	Purpose   Purpose
	GrantedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// IsActive returns true when the consent is currently valid.
func (r Record) IsActive(now time.Time) bool {
	if r.RevokedAt != nil && !r.RevokedAt.After(now) {
		return false
	}
	return now.Before(r.ExpiresAt)
}

// IsExpired returns true when the consent lapsed without being revoked.
func (r Record) IsExpired(now time.Time) bool {
	return r.RevokedAt == nil && !now.Before(r.ExpiresAt)
}

// EnsureConsent enforces that an active consent exists for the purpose.
func EnsureConsent(records []Record, purpose Purpose, now time.Time) error {
	for _, r := range records {
		if r.Purpose == purpose && r.IsActive(now) {
			return nil
		}
	}
	return dErrors.New(dErrors.CodeForbidden, "consent not granted for required purpose")
}
