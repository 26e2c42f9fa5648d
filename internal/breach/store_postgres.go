package breach

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"medguard/internal/audit"
	id "medguard/pkg/domain"
	"medguard/pkg/platform/sentinel"
)

// PostgresStore persists incidents in the breach_incidents table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a postgres-backed incident store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Save inserts one incident row.
func (s *PostgresStore) Save(ctx context.Context, incident Incident) error {
	query := `
		INSERT INTO breach_incidents (id, title, summary, severity, detected_at, notify_by)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(incident.ID),
		incident.Title,
		incident.Summary,
		string(incident.Severity),
		incident.DetectedAt,
		incident.NotifyBy,
	)
	if err != nil {
		return fmt.Errorf("insert breach incident: %w", err)
	}
	return nil
}

// Get looks up one incident.
func (s *PostgresStore) Get(ctx context.Context, incidentID id.IncidentID) (Incident, error) {
	query := `
		SELECT id, title, summary, severity, detected_at, notify_by, notified_at
		FROM breach_incidents
		WHERE id = $1
	`
	incident, err := scanIncident(s.db.QueryRowContext(ctx, query, uuid.UUID(incidentID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Incident{}, sentinel.ErrNotFound
		}
		return Incident{}, fmt.Errorf("get breach incident: %w", err)
	}
	return incident, nil
}

// MarkNotified stamps the notification time exactly once.
func (s *PostgresStore) MarkNotified(ctx context.Context, incidentID id.IncidentID, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE breach_incidents SET notified_at = $2 WHERE id = $1 AND notified_at IS NULL`,
		uuid.UUID(incidentID), at,
	)
	if err != nil {
		return fmt.Errorf("mark incident notified: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark notified rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM breach_incidents WHERE id = $1)`, uuid.UUID(incidentID),
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check incident existence: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrInvalidState
}

// ListOverdue returns unnotified incidents past their deadline.
func (s *PostgresStore) ListOverdue(ctx context.Context, now time.Time) ([]Incident, error) {
	query := `
		SELECT id, title, summary, severity, detected_at, notify_by, notified_at
		FROM breach_incidents
		WHERE notified_at IS NULL AND notify_by < $1
		ORDER BY notify_by ASC
	`
	rows, err := s.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list overdue incidents: %w", err)
	}
	defer rows.Close()

	var incidents []Incident
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		incidents = append(incidents, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return incidents, nil
}

// CountOverdue counts unnotified incidents past their deadline.
func (s *PostgresStore) CountOverdue(ctx context.Context, now time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM breach_incidents WHERE notified_at IS NULL AND notify_by < $1`, now,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count overdue incidents: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (Incident, error) {
	var (
		incident   Incident
		incidentID uuid.UUID
		severity   string
		notifiedAt sql.NullTime
	)
	err := row.Scan(&incidentID, &incident.Title, &incident.Summary, &severity,
		&incident.DetectedAt, &incident.NotifyBy, &notifiedAt)
	if err != nil {
		return Incident{}, err
	}
	incident.ID = id.IncidentID(incidentID)
	incident.Severity = audit.Severity(severity)
	if notifiedAt.Valid {
		at := notifiedAt.Time
		incident.NotifiedAt = &at
	}
	return incident, nil
}
