// Package audit is the event-record core: an append-only log of who did what,
// when, and in what context. Rows are immutable after creation except for the
// single resolution transition on security-variant events.
package audit

import (
	"time"

	id "medguard/pkg/domain"
)

// ActionKind is the closed set of auditable action tags. The set only ever
// grows; kinds are never removed or renamed once rows reference them.
type ActionKind string

const (
	KindCreate          ActionKind = "create"
	KindRead            ActionKind = "read"
	KindUpdate          ActionKind = "update"
	KindDelete          ActionKind = "delete"
	KindExport          ActionKind = "export"
	KindLoginSuccess    ActionKind = "login_success"
	KindLoginFailure    ActionKind = "login_failure"
	KindAccessDenied    ActionKind = "access_denied"
	KindBreachAttempt   ActionKind = "breach_attempt"
	KindSecurityEvent   ActionKind = "security_event"
	KindConsentGranted  ActionKind = "consent_granted"
	KindConsentRevoked  ActionKind = "consent_revoked"
	KindBreachReported  ActionKind = "breach_reported"
	KindBreachNotified  ActionKind = "breach_notified"
	KindAlertTransition ActionKind = "alert_transition"
	KindPurge           ActionKind = "purge"
)

// validKinds is the single source of truth for supported action kinds.
var validKinds = map[ActionKind]bool{
	KindCreate:          true,
	KindRead:            true,
	KindUpdate:          true,
	KindDelete:          true,
	KindExport:          true,
	KindLoginSuccess:    true,
	KindLoginFailure:    true,
	KindAccessDenied:    true,
	KindBreachAttempt:   true,
	KindSecurityEvent:   true,
	KindConsentGranted:  true,
	KindConsentRevoked:  true,
	KindBreachReported:  true,
	KindBreachNotified:  true,
	KindAlertTransition: true,
	KindPurge:           true,
}

// IsValid reports whether the kind belongs to the supported set.
func (k ActionKind) IsValid() bool { return validKinds[k] }

// preAuthKinds are the kinds for which a nil actor is expected: the event can
// legitimately occur before an identity is established, or from background
// system activity.
var preAuthKinds = map[ActionKind]bool{
	KindLoginFailure:  true,
	KindAccessDenied:  true,
	KindBreachAttempt: true,
	KindSecurityEvent: true,
	KindPurge:         true,
	// Generator-driven escalations transition alerts with no human actor.
	KindAlertTransition: true,
}

// PermitsNilActor reports whether an event of this kind may be recorded
// without an authenticated actor and not be flagged as anomalous.
func (k ActionKind) PermitsNilActor() bool { return preAuthKinds[k] }

// securityKinds are the kinds that carry the resolution workflow.
var securityKinds = map[ActionKind]bool{
	KindLoginFailure:  true,
	KindAccessDenied:  true,
	KindBreachAttempt: true,
	KindSecurityEvent: true,
}

// IsSecurity reports whether events of this kind can be resolved.
func (k ActionKind) IsSecurity() bool { return securityKinds[k] }

// Severity is an ordered classification of how urgent an event is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRanks = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns the ordering position of the severity; unknown values rank
// below low so they never trip threshold comparisons.
func (s Severity) Rank() int {
	if r, ok := severityRanks[s]; ok {
		return r
	}
	return -1
}

// IsValid reports whether the severity is one of the four defined levels.
func (s Severity) IsValid() bool {
	_, ok := severityRanks[s]
	return ok
}

// SubjectKind tags which domain entity a subject reference points at.
type SubjectKind string

const (
	SubjectPatientRecord SubjectKind = "patient_record"
	SubjectMedication    SubjectKind = "medication"
	SubjectPage          SubjectKind = "page"
	SubjectConsent       SubjectKind = "consent"
	SubjectBreach        SubjectKind = "breach_incident"
	SubjectAlert         SubjectKind = "alert"
	SubjectUserAccount   SubjectKind = "user_account"
)

// SubjectRef is an explicit tagged reference to the entity an event concerns.
// Replaces the generic polymorphic relation from the original system with a
// plain variant: the kind names the table, the ID names the row.
type SubjectRef struct {
	Kind SubjectKind `json:"kind"`
	ID   string      `json:"id"`
}

// EventRecord is one immutable row of the audit log.
//
// ID is assigned by the store from a monotonic sequence, so insertion order is
// recoverable and breaks occurred_at ties in queries. OccurredAt and
// RetentionUntil are always server-assigned; client-supplied values are
// ignored to prevent log forgery.
type EventRecord struct {
	ID          int64
	Actor       *id.ActorID
	Kind        ActionKind
	Severity    Severity
	Subject     *SubjectRef
	Description string
	Context     map[string]any
	OccurredAt  time.Time

	// RetentionUntil governs deletion eligibility; the sweep never removes a
	// row before this time, and no operation ever decreases it.
	RetentionUntil time.Time

	// Resolution state, meaningful only for security-variant kinds. Set at
	// most once, false to true.
	Resolved       bool
	ResolvedBy     *id.ActorID
	ResolutionNote string
	ResolvedAt     *time.Time
}

// Summary is the aggregate view over a filtered window.
type Summary struct {
	Total      int64                `json:"total"`
	ByKind     map[ActionKind]int64 `json:"by_kind"`
	BySeverity map[Severity]int64   `json:"by_severity"`
}

// Percent returns n as a percentage of the summary total; 0 when the window
// is empty, never a division fault.
func (s Summary) Percent(n int64) float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(n) / float64(s.Total) * 100
}

// Filter restricts queries to a time window and optional dimensions. The
// window is half-open: [From, To).
type Filter struct {
	From     time.Time
	To       time.Time
	Actor    *id.ActorID
	Kind     ActionKind
	Severity Severity
}
