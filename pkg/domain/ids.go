// Package domain holds shared value types used across services. Typed IDs
// prevent accidental cross-assignment between unrelated identifiers.
package domain

import (
	"github.com/google/uuid"

	dErrors "medguard/pkg/domain-errors"
)

// ActorID identifies the staff member or service account that performed an
// action. A nil pointer at call sites means "no authenticated actor".
type ActorID uuid.UUID

// PatientID identifies a patient whose records an event may concern.
type PatientID uuid.UUID

// AlertID identifies a compliance alert.
type AlertID uuid.UUID

// IncidentID identifies a breach incident.
type IncidentID uuid.UUID

func (id ActorID) String() string    { return uuid.UUID(id).String() }
func (id PatientID) String() string  { return uuid.UUID(id).String() }
func (id AlertID) String() string    { return uuid.UUID(id).String() }
func (id IncidentID) String() string { return uuid.UUID(id).String() }

func (id ActorID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id PatientID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// NewAlertID returns a fresh random alert identifier.
func NewAlertID() AlertID { return AlertID(uuid.New()) }

// NewIncidentID returns a fresh random incident identifier.
func NewIncidentID() IncidentID { return IncidentID(uuid.New()) }

// ParseActorID constructs an ActorID from external input.
// Errors: CodeInvalidInput when the value is empty, malformed, or nil.
func ParseActorID(s string) (ActorID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return ActorID{}, err
	}
	return ActorID(u), nil
}

// ParsePatientID constructs a PatientID from external input.
func ParsePatientID(s string) (PatientID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return PatientID{}, err
	}
	return PatientID(u), nil
}

// ParseAlertID constructs an AlertID from external input.
func ParseAlertID(s string) (AlertID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return AlertID{}, err
	}
	return AlertID(u), nil
}

// ParseIncidentID constructs an IncidentID from external input.
func ParseIncidentID(s string) (IncidentID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return IncidentID{}, err
	}
	return IncidentID(u), nil
}

// parseUUID enforces the shared invariant: IDs must be valid, non-empty,
// non-nil UUIDs.
func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be the nil UUID")
	}
	return u, nil
}
