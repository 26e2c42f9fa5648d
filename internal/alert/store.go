package alert

import (
	"context"
	"time"

	id "medguard/pkg/domain"
)

// Store is the persistence contract for alerts.
//
// Upsert implements the idempotent creation rule: if a non-terminal alert with
// the same (type, title) exists, its description, severity, affected-records
// count, and updated_at are refreshed and the existing alert is returned with
// created=false. Otherwise the given alert is inserted and returned with
// created=true. Implementations must make this safe under concurrent callers;
// the postgres store leans on a partial unique index and retries the insert
// race as an update.
type Store interface {
	Upsert(ctx context.Context, a Alert) (Alert, bool, error)

	Get(ctx context.Context, alertID id.AlertID) (Alert, error)

	// Update persists the mutable state of an existing alert. Returns
	// sentinel.ErrNotFound when the alert does not exist.
	Update(ctx context.Context, a Alert) error

	// List returns alerts filtered by status; an empty status means all.
	List(ctx context.Context, status Status, limit int) ([]Alert, error)

	// CountOpen returns the number of alerts not yet resolved or dismissed.
	CountOpen(ctx context.Context) (int, error)

	// ListActiveOlderThan returns alerts still in the active state that were
	// created at or before the cutoff, for deadline escalation.
	ListActiveOlderThan(ctx context.Context, cutoff time.Time) ([]Alert, error)
}
