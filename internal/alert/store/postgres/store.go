// Package postgres persists compliance alerts. Idempotent creation is backed
// by a partial unique index on (alert_type, title) over non-terminal rows;
// the insert losing that race falls back to an update, so concurrent
// generator runs never produce duplicate open alerts.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"medguard/internal/alert"
	"medguard/internal/audit"
	id "medguard/pkg/domain"
	"medguard/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// Store implements alert.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a postgres-backed alert store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Upsert refreshes the open (type, title) alert if present, otherwise inserts.
func (s *Store) Upsert(ctx context.Context, a alert.Alert) (alert.Alert, bool, error) {
	updated, err := s.refreshOpen(ctx, a)
	if err == nil {
		return updated, false, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return alert.Alert{}, false, err
	}

	insertQuery := `
		INSERT INTO compliance_alerts (
			id, alert_type, title, description, severity, status,
			affected_records, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.db.ExecContext(ctx, insertQuery,
		uuid.UUID(a.ID),
		string(a.Type),
		a.Title,
		a.Description,
		string(a.Severity),
		string(a.Status),
		a.AffectedRecords,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err == nil {
		return a, true, nil
	}

	// A concurrent run inserted the same open (type, title) first; fall back
	// to refreshing that row. Never a caller-visible error.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		updated, refreshErr := s.refreshOpen(ctx, a)
		if refreshErr != nil {
			return alert.Alert{}, false, fmt.Errorf("refresh after insert race: %w", refreshErr)
		}
		return updated, false, nil
	}

	return alert.Alert{}, false, fmt.Errorf("insert alert: %w", err)
}

// refreshOpen updates the mutable fields of the open alert with the same
// identity and returns the stored row. sentinel.ErrNotFound when no open
// alert matches.
func (s *Store) refreshOpen(ctx context.Context, a alert.Alert) (alert.Alert, error) {
	query := `
		UPDATE compliance_alerts
		SET description = $3, severity = $4, affected_records = $5, updated_at = $6
		WHERE alert_type = $1 AND title = $2
		  AND status NOT IN ('resolved', 'dismissed')
		RETURNING id, status, created_at
	`
	row := s.db.QueryRowContext(ctx, query,
		string(a.Type), a.Title,
		a.Description, string(a.Severity), a.AffectedRecords, a.UpdatedAt,
	)

	var existingID uuid.UUID
	var status string
	var createdAt time.Time
	if err := row.Scan(&existingID, &status, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return alert.Alert{}, sentinel.ErrNotFound
		}
		return alert.Alert{}, fmt.Errorf("refresh open alert: %w", err)
	}

	a.ID = id.AlertID(existingID)
	a.Status = alert.Status(status)
	a.CreatedAt = createdAt
	return a, nil
}

// Get looks up one alert by ID.
func (s *Store) Get(ctx context.Context, alertID id.AlertID) (alert.Alert, error) {
	query := selectColumns + ` FROM compliance_alerts WHERE id = $1`
	a, err := scanAlert(s.db.QueryRowContext(ctx, query, uuid.UUID(alertID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return alert.Alert{}, sentinel.ErrNotFound
		}
		return alert.Alert{}, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

// Update persists a state transition.
func (s *Store) Update(ctx context.Context, a alert.Alert) error {
	query := `
		UPDATE compliance_alerts
		SET description = $2, severity = $3, status = $4, affected_records = $5,
		    updated_at = $6, acknowledged_by = $7, acknowledged_at = $8,
		    resolved_by = $9, resolved_at = $10, resolution_note = $11
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(a.ID),
		a.Description,
		string(a.Severity),
		string(a.Status),
		a.AffectedRecords,
		a.UpdatedAt,
		actorUUID(a.AcknowledgedBy),
		a.AcknowledgedAt,
		actorUUID(a.ResolvedBy),
		a.ResolvedAt,
		a.ResolutionNote,
	)
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update alert rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// List returns alerts by status, newest first.
func (s *Store) List(ctx context.Context, status alert.Status, limit int) ([]alert.Alert, error) {
	query := selectColumns + ` FROM compliance_alerts`
	var args []any
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// CountOpen counts alerts that are not in a terminal state.
func (s *Store) CountOpen(ctx context.Context) (int, error) {
	query := `
		SELECT count(*) FROM compliance_alerts
		WHERE status NOT IN ('resolved', 'dismissed')
	`
	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count open alerts: %w", err)
	}
	return n, nil
}

// ListActiveOlderThan returns active alerts created at or before the cutoff.
func (s *Store) ListActiveOlderThan(ctx context.Context, cutoff time.Time) ([]alert.Alert, error) {
	query := selectColumns + `
		FROM compliance_alerts
		WHERE status = 'active' AND created_at <= $1
	`
	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale active alerts: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

const selectColumns = `
	SELECT id, alert_type, title, description, severity, status,
	       affected_records, created_at, updated_at,
	       acknowledged_by, acknowledged_at, resolved_by, resolved_at,
	       resolution_note
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (alert.Alert, error) {
	var (
		a              alert.Alert
		alertID        uuid.UUID
		alertType      string
		severity       string
		status         string
		acknowledgedBy *uuid.UUID
		ackAt          sql.NullTime
		resolvedBy     *uuid.UUID
		resolvedAt     sql.NullTime
		note           sql.NullString
	)

	err := row.Scan(
		&alertID, &alertType, &a.Title, &a.Description, &severity, &status,
		&a.AffectedRecords, &a.CreatedAt, &a.UpdatedAt,
		&acknowledgedBy, &ackAt, &resolvedBy, &resolvedAt, &note,
	)
	if err != nil {
		return alert.Alert{}, err
	}

	a.ID = id.AlertID(alertID)
	a.Type = alert.Type(alertType)
	a.Severity = audit.Severity(severity)
	a.Status = alert.Status(status)
	if acknowledgedBy != nil {
		actor := id.ActorID(*acknowledgedBy)
		a.AcknowledgedBy = &actor
	}
	if ackAt.Valid {
		at := ackAt.Time
		a.AcknowledgedAt = &at
	}
	if resolvedBy != nil {
		actor := id.ActorID(*resolvedBy)
		a.ResolvedBy = &actor
	}
	if resolvedAt.Valid {
		at := resolvedAt.Time
		a.ResolvedAt = &at
	}
	if note.Valid {
		a.ResolutionNote = note.String
	}
	return a, nil
}

func scanAlerts(rows *sql.Rows) ([]alert.Alert, error) {
	var alerts []alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}

func actorUUID(actor *id.ActorID) *uuid.UUID {
	if actor == nil {
		return nil
	}
	u := uuid.UUID(*actor)
	return &u
}
