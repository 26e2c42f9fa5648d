// Package breach tracks data-breach incidents and their notification
// deadlines. The window between detection and mandatory authority
// notification is a configuration input, not a constant: regulatory regimes
// disagree on the number.
package breach

import (
	"time"

	"medguard/internal/audit"
	id "medguard/pkg/domain"
)

// Incident is one detected breach and its notification state.
type Incident struct {
	ID         id.IncidentID
	Title      string
	Summary    string
	Severity   audit.Severity
	DetectedAt time.Time

	// NotifyBy is DetectedAt plus the configured notification window. Fixed
	// at reporting time so a later config change never shortens an existing
	// deadline retroactively.
	NotifyBy   time.Time
	NotifiedAt *time.Time
}

// Notified reports whether the authority notification has been sent.
func (i Incident) Notified() bool { return i.NotifiedAt != nil }

// Overdue reports whether the incident passed its deadline unnotified.
func (i Incident) Overdue(now time.Time) bool {
	return i.NotifiedAt == nil && now.After(i.NotifyBy)
}
