package audit

import (
	"context"
	"time"

	id "medguard/pkg/domain"
)

// Store is the persistence contract for the event log. Implementations must
// assign ID, OccurredAt, and RetentionUntil at append time from their own
// clock and sequence so ordering invariants hold regardless of caller input.
type Store interface {
	// Append durably writes one event row and fills in the store-assigned
	// fields on the passed record. Each call is a single-row transaction.
	Append(ctx context.Context, record *EventRecord) error

	// List returns the most recent records matching the filter, ordered by
	// occurred_at descending with id ascending as tiebreaker.
	List(ctx context.Context, filter Filter, limit int) ([]EventRecord, error)

	// Summarize counts matching records in total and grouped by kind and
	// severity, in one consistent read.
	Summarize(ctx context.Context, filter Filter) (Summary, error)

	// Resolve performs the single false-to-true resolution transition on a
	// security-variant event. Returns sentinel.ErrNotFound for unknown ids and
	// sentinel.ErrInvalidState when the row is already resolved or its kind
	// has no resolution workflow.
	Resolve(ctx context.Context, eventID int64, resolver id.ActorID, note string, at time.Time) error

	// PurgeExpired deletes rows whose retention_until is at or before the
	// given time and reports how many were removed. Callers own the guarantee
	// that `before` never violates retention.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}
