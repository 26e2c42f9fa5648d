package consent

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "medguard/pkg/domain"
	"medguard/pkg/platform/sentinel"
)

// PostgresStore persists consent records in the consents table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a postgres-backed consent store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Save inserts one consent row.
func (s *PostgresStore) Save(ctx context.Context, record *Record) error {
	query := `
		INSERT INTO consents (patient_id, purpose, granted_at, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		uuid.UUID(record.PatientID),
		string(record.Purpose),
		record.GrantedAt,
		record.ExpiresAt,
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("insert consent: %w", err)
	}
	return nil
}

// ListByPatient returns all consent rows for a patient, newest grant first.
func (s *PostgresStore) ListByPatient(ctx context.Context, patientID id.PatientID) ([]Record, error) {
	query := `
		SELECT id, patient_id, purpose, granted_at, expires_at, revoked_at
		FROM consents
		WHERE patient_id = $1
		ORDER BY granted_at DESC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(patientID))
	if err != nil {
		return nil, fmt.Errorf("query consents: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r         Record
			patient   uuid.UUID
			purpose   string
			revokedAt sql.NullTime
		)
		if err := rows.Scan(&r.ID, &patient, &purpose, &r.GrantedAt, &r.ExpiresAt, &revokedAt); err != nil {
			return nil, fmt.Errorf("scan consent: %w", err)
		}
		r.PatientID = id.PatientID(patient)
		r.Purpose = Purpose(purpose)
		if revokedAt.Valid {
			at := revokedAt.Time
			r.RevokedAt = &at
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consents: %w", err)
	}
	return records, nil
}

// Revoke stamps the active consent for (patient, purpose).
func (s *PostgresStore) Revoke(ctx context.Context, patientID id.PatientID, purpose Purpose, revokedAt time.Time) error {
	query := `
		UPDATE consents
		SET revoked_at = $3
		WHERE patient_id = $1 AND purpose = $2
		  AND revoked_at IS NULL AND expires_at > $3
	`
	res, err := s.db.ExecContext(ctx, query, uuid.UUID(patientID), string(purpose), revokedAt)
	if err != nil {
		return fmt.Errorf("revoke consent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke consent rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// CountExpired counts lapsed, unrevoked consents.
func (s *PostgresStore) CountExpired(ctx context.Context, now time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM consents WHERE revoked_at IS NULL AND expires_at <= $1`, now,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count expired consents: %w", err)
	}
	return count, nil
}
