// Package postgres persists audit events in the audit_events table. Every
// append is a single-row insert; reads are single consistent queries.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"medguard/internal/audit"
	id "medguard/pkg/domain"
	"medguard/pkg/platform/sentinel"
)

// Clock abstracts time for deterministic tests.
type Clock func() time.Time

// Store implements audit.Store on PostgreSQL.
type Store struct {
	db        *sql.DB
	retention time.Duration
	clock     Clock

	// occurred_at must never decrease in insertion order even if the host
	// clock steps backwards, so appends clamp against the last stamped value.
	mu           sync.Mutex
	lastOccurred time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithClock sets the clock function for testability.
func WithClock(clock Clock) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New creates a postgres-backed audit store stamping rows with the given
// retention period.
func New(db *sql.DB, retention time.Duration, opts ...Option) *Store {
	s := &Store{
		db:        db,
		retention: retention,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append inserts one event row and fills in the store-assigned fields.
func (s *Store) Append(ctx context.Context, record *audit.EventRecord) error {
	s.mu.Lock()
	now := s.clock()
	if now.Before(s.lastOccurred) {
		now = s.lastOccurred
	}
	s.lastOccurred = now
	s.mu.Unlock()

	contextJSON, err := json.Marshal(orEmpty(record.Context))
	if err != nil {
		return fmt.Errorf("marshal event context: %w", err)
	}

	var actorID *uuid.UUID
	if record.Actor != nil {
		u := uuid.UUID(*record.Actor)
		actorID = &u
	}
	var subjectKind, subjectID *string
	if record.Subject != nil {
		k := string(record.Subject.Kind)
		subjectKind = &k
		subjectID = &record.Subject.ID
	}

	retentionUntil := now.Add(s.retention)

	query := `
		INSERT INTO audit_events (
			actor_id, kind, severity, subject_kind, subject_id,
			description, context, occurred_at, retention_until
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	err = s.db.QueryRowContext(ctx, query,
		actorID,
		string(record.Kind),
		string(record.Severity),
		subjectKind,
		subjectID,
		record.Description,
		contextJSON,
		now,
		retentionUntil,
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	record.OccurredAt = now
	record.RetentionUntil = retentionUntil
	return nil
}

// List returns matching rows, most recent first, id ascending on ties.
func (s *Store) List(ctx context.Context, filter audit.Filter, limit int) ([]audit.EventRecord, error) {
	where, args := buildWhere(filter)

	query := `
		SELECT id, actor_id, kind, severity, subject_kind, subject_id,
			   description, context, occurred_at, retention_until,
			   resolved, resolved_by, resolution_note, resolved_at
		FROM audit_events
	` + where + `
		ORDER BY occurred_at DESC, id ASC
	`
	if limit > 0 {
		query += " LIMIT $" + strconv.Itoa(len(args)+1)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Summarize computes total plus per-kind and per-severity counts in a single
// statement via grouping sets, so the three views come from one snapshot.
func (s *Store) Summarize(ctx context.Context, filter audit.Filter) (audit.Summary, error) {
	where, args := buildWhere(filter)

	query := `
		SELECT kind, severity, COUNT(*)
		FROM audit_events
	` + where + `
		GROUP BY GROUPING SETS ((kind), (severity), ())
	`

	summary := audit.Summary{
		ByKind:     make(map[audit.ActionKind]int64),
		BySeverity: make(map[audit.Severity]int64),
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return audit.Summary{}, fmt.Errorf("summarize audit events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, severity sql.NullString
		var count int64
		if err := rows.Scan(&kind, &severity, &count); err != nil {
			return audit.Summary{}, fmt.Errorf("scan summary row: %w", err)
		}
		switch {
		case kind.Valid:
			summary.ByKind[audit.ActionKind(kind.String)] = count
		case severity.Valid:
			summary.BySeverity[audit.Severity(severity.String)] = count
		default:
			summary.Total = count
		}
	}
	if err := rows.Err(); err != nil {
		return audit.Summary{}, fmt.Errorf("iterate summary rows: %w", err)
	}

	return summary, nil
}

// Resolve performs the single false-to-true transition.
func (s *Store) Resolve(ctx context.Context, eventID int64, resolver id.ActorID, note string, at time.Time) error {
	query := `
		UPDATE audit_events
		SET resolved = TRUE, resolved_by = $2, resolution_note = $3, resolved_at = $4
		WHERE id = $1 AND resolved = FALSE
		  AND kind IN ('login_failure', 'access_denied', 'breach_attempt', 'security_event')
	`
	res, err := s.db.ExecContext(ctx, query, eventID, uuid.UUID(resolver), note, at)
	if err != nil {
		return fmt.Errorf("resolve audit event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve audit event rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// Distinguish a missing row from one that cannot (or can no longer) be
	// resolved.
	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM audit_events WHERE id = $1)`, eventID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check audit event existence: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrInvalidState
}

// PurgeExpired bulk-deletes rows whose retention has lapsed. The caller
// guarantees `before` never violates the retention invariant.
func (s *Store) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_events WHERE retention_until <= $1`, before,
	)
	if err != nil {
		return 0, fmt.Errorf("purge expired audit events: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge rows affected: %w", err)
	}
	return deleted, nil
}

// buildWhere renders the filter into a WHERE clause with positional args.
func buildWhere(f audit.Filter) (string, []any) {
	var clauses []string
	var args []any

	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if !f.From.IsZero() {
		add("occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("occurred_at < $%d", f.To)
	}
	if f.Actor != nil {
		add("actor_id = $%d", uuid.UUID(*f.Actor))
	}
	if f.Kind != "" {
		add("kind = $%d", string(f.Kind))
	}
	if f.Severity != "" {
		add("severity = $%d", string(f.Severity))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	where := " WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args
}

func scanEvents(rows *sql.Rows) ([]audit.EventRecord, error) {
	var events []audit.EventRecord

	for rows.Next() {
		var (
			ev          audit.EventRecord
			actorID     *uuid.UUID
			subjectKind sql.NullString
			subjectID   sql.NullString
			contextJSON []byte
			resolvedBy  *uuid.UUID
			note        sql.NullString
			resolvedAt  sql.NullTime
			kind        string
			severity    string
		)

		err := rows.Scan(
			&ev.ID, &actorID, &kind, &severity, &subjectKind, &subjectID,
			&ev.Description, &contextJSON, &ev.OccurredAt, &ev.RetentionUntil,
			&ev.Resolved, &resolvedBy, &note, &resolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		ev.Kind = audit.ActionKind(kind)
		ev.Severity = audit.Severity(severity)
		if actorID != nil {
			actor := id.ActorID(*actorID)
			ev.Actor = &actor
		}
		if subjectKind.Valid && subjectID.Valid {
			ev.Subject = &audit.SubjectRef{
				Kind: audit.SubjectKind(subjectKind.String),
				ID:   subjectID.String,
			}
		}
		if len(contextJSON) > 0 {
			if err := json.Unmarshal(contextJSON, &ev.Context); err != nil {
				return nil, fmt.Errorf("unmarshal event context: %w", err)
			}
		}
		if resolvedBy != nil {
			resolver := id.ActorID(*resolvedBy)
			ev.ResolvedBy = &resolver
		}
		if note.Valid {
			ev.ResolutionNote = note.String
		}
		if resolvedAt.Valid {
			at := resolvedAt.Time
			ev.ResolvedAt = &at
		}

		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
