package breach

import (
	"context"
	"time"

	id "medguard/pkg/domain"
)

// Store is the persistence contract for breach incidents.
type Store interface {
	Save(ctx context.Context, incident Incident) error
	Get(ctx context.Context, incidentID id.IncidentID) (Incident, error)

	// MarkNotified stamps the notification time exactly once. Returns
	// sentinel.ErrInvalidState when the incident was already notified.
	MarkNotified(ctx context.Context, incidentID id.IncidentID, at time.Time) error

	// ListOverdue returns unnotified incidents past their deadline as of now.
	ListOverdue(ctx context.Context, now time.Time) ([]Incident, error)

	// CountOverdue counts unnotified incidents past their deadline.
	CountOverdue(ctx context.Context, now time.Time) (int, error)
}
