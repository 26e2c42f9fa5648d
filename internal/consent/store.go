package consent

import (
	"context"
	"time"

	id "medguard/pkg/domain"
)

// Store is the persistence contract for consent records.
type Store interface {
	Save(ctx context.Context, record *Record) error
	ListByPatient(ctx context.Context, patientID id.PatientID) ([]Record, error)

	// Revoke stamps the active consent for (patient, purpose). Returns
	// sentinel.ErrNotFound when no active consent exists.
	Revoke(ctx context.Context, patientID id.PatientID, purpose Purpose, revokedAt time.Time) error

	// CountExpired counts consents past expiry that were never revoked.
	CountExpired(ctx context.Context, now time.Time) (int, error)
}
