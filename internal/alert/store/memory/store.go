// Package memory provides an in-memory alert store mirroring the postgres
// semantics, including single-winner upserts under concurrency.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"medguard/internal/alert"
	id "medguard/pkg/domain"
	"medguard/pkg/platform/sentinel"
)

// Store keeps alerts in a map guarded by a mutex. The mutex makes the
// check-then-insert of Upsert atomic, which is the property the postgres
// partial unique index provides.
type Store struct {
	mu     sync.Mutex
	alerts map[id.AlertID]alert.Alert
}

// New creates an empty in-memory alert store.
func New() *Store {
	return &Store{alerts: make(map[id.AlertID]alert.Alert)}
}

// Upsert refreshes an existing non-terminal (type, title) alert or inserts a
// new one.
func (s *Store) Upsert(_ context.Context, a alert.Alert) (alert.Alert, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, existing := range s.alerts {
		if existing.Type == a.Type && existing.Title == a.Title && !existing.Status.IsTerminal() {
			existing.Description = a.Description
			existing.Severity = a.Severity
			existing.AffectedRecords = a.AffectedRecords
			existing.UpdatedAt = a.UpdatedAt
			s.alerts[key] = existing
			return existing, false, nil
		}
	}

	s.alerts[a.ID] = a
	return a, true, nil
}

// Get looks up one alert.
func (s *Store) Get(_ context.Context, alertID id.AlertID) (alert.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[alertID]
	if !ok {
		return alert.Alert{}, sentinel.ErrNotFound
	}
	return a, nil
}

// Update overwrites an existing alert's state.
func (s *Store) Update(_ context.Context, a alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.alerts[a.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.alerts[a.ID] = a
	return nil
}

// List returns alerts by status, newest first.
func (s *Store) List(_ context.Context, status alert.Status, limit int) ([]alert.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []alert.Alert
	for _, a := range s.alerts {
		if status != "" && a.Status != status {
			continue
		}
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountOpen counts alerts that are not in a terminal state.
func (s *Store) CountOpen(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, a := range s.alerts {
		if !a.Status.IsTerminal() {
			n++
		}
	}
	return n, nil
}

// ListActiveOlderThan returns active alerts created at or before the cutoff.
func (s *Store) ListActiveOlderThan(_ context.Context, cutoff time.Time) ([]alert.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []alert.Alert
	for _, a := range s.alerts {
		if a.Status == alert.StatusActive && !a.CreatedAt.After(cutoff) {
			out = append(out, a)
		}
	}
	return out, nil
}
