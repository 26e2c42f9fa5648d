// Package alert manages compliance alerts: derived, mutable-state entities
// signaling that some aggregate condition over the event log needs human
// attention.
package alert

import (
	"time"

	id "medguard/pkg/domain"

	"medguard/internal/audit"
)

// Status is the lifecycle state of an alert.
type Status string

const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusInProgress   Status = "in_progress"
	StatusResolved     Status = "resolved"
	StatusDismissed    Status = "dismissed"
	StatusEscalated    Status = "escalated"
)

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusDismissed
}

// transitions is the allowed state machine. Dismissal from any non-terminal
// state is handled separately as a manual override.
var transitions = map[Status][]Status{
	StatusActive:       {StatusAcknowledged, StatusResolved, StatusEscalated},
	StatusAcknowledged: {StatusInProgress, StatusResolved},
	StatusInProgress:   {StatusResolved},
	StatusEscalated:    {StatusAcknowledged, StatusResolved},
}

// CanTransition reports whether moving from s to target is allowed.
func (s Status) CanTransition(target Status) bool {
	if target == StatusDismissed {
		return !s.IsTerminal()
	}
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Type classifies what condition raised the alert.
type Type string

const (
	TypeBreachNotificationOverdue Type = "breach_notification_overdue"
	TypeConsentExpired            Type = "consent_expired"
	TypeUnresolvedCritical        Type = "unresolved_critical_events"
	TypeExportOverdue             Type = "export_overdue"
)

// Alert is a derived entity with its own lifecycle, independent of the event
// rows that triggered it. Identity for deduplication is (Type, Title) among
// non-terminal alerts.
type Alert struct {
	ID              id.AlertID
	Type            Type
	Title           string
	Description     string
	Severity        audit.Severity
	Status          Status
	AffectedRecords int
	CreatedAt       time.Time
	UpdatedAt       time.Time

	AcknowledgedBy *id.ActorID
	AcknowledgedAt *time.Time
	ResolvedBy     *id.ActorID
	ResolvedAt     *time.Time
	ResolutionNote string
}
