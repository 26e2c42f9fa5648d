// Package memory provides an in-memory audit store with the same semantics as
// the postgres implementation. Used in unit tests and as the seam other
// services fake against.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"medguard/internal/audit"
	id "medguard/pkg/domain"
	"medguard/pkg/platform/sentinel"
)

// Clock abstracts time for deterministic tests.
type Clock func() time.Time

// Store keeps event rows in a slice guarded by a RWMutex. IDs come from a
// monotonic counter; timestamps are clamped so occurred_at never decreases
// across insertions even if the clock steps backwards.
type Store struct {
	mu           sync.RWMutex
	events       []audit.EventRecord
	nextID       int64
	lastOccurred time.Time
	clock        Clock
	retention    time.Duration
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

// New creates an in-memory store that stamps rows with the given retention
// period.
func New(retention time.Duration, opts ...Option) *Store {
	s := &Store{
		nextID:    1,
		clock:     time.Now,
		retention: retention,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append assigns id, occurred_at, and retention_until, then stores a copy of
// the record.
func (s *Store) Append(_ context.Context, record *audit.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	if now.Before(s.lastOccurred) {
		now = s.lastOccurred
	}
	s.lastOccurred = now

	record.ID = s.nextID
	s.nextID++
	record.OccurredAt = now
	record.RetentionUntil = now.Add(s.retention)

	s.events = append(s.events, cloneRecord(*record))
	return nil
}

// List returns matching rows ordered by occurred_at descending, id ascending
// on ties.
func (s *Store) List(_ context.Context, filter audit.Filter, limit int) ([]audit.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []audit.EventRecord
	for _, ev := range s.events {
		if matches(ev, filter) {
			matched = append(matched, cloneRecord(ev))
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].OccurredAt.Equal(matched[j].OccurredAt) {
			return matched[i].OccurredAt.After(matched[j].OccurredAt)
		}
		return matched[i].ID < matched[j].ID
	})

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// Summarize counts matching rows in total and by kind and severity.
func (s *Store) Summarize(_ context.Context, filter audit.Filter) (audit.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := audit.Summary{
		ByKind:     make(map[audit.ActionKind]int64),
		BySeverity: make(map[audit.Severity]int64),
	}
	for _, ev := range s.events {
		if !matches(ev, filter) {
			continue
		}
		summary.Total++
		summary.ByKind[ev.Kind]++
		summary.BySeverity[ev.Severity]++
	}
	return summary, nil
}

// Resolve flips the resolution state exactly once.
func (s *Store) Resolve(_ context.Context, eventID int64, resolver id.ActorID, note string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.events {
		if s.events[i].ID != eventID {
			continue
		}
		if !s.events[i].Kind.IsSecurity() || s.events[i].Resolved {
			return sentinel.ErrInvalidState
		}
		s.events[i].Resolved = true
		s.events[i].ResolvedBy = &resolver
		s.events[i].ResolutionNote = note
		resolvedAt := at
		s.events[i].ResolvedAt = &resolvedAt
		return nil
	}
	return sentinel.ErrNotFound
}

// PurgeExpired removes rows with retention_until at or before the cutoff.
func (s *Store) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var purged int64
	for _, ev := range s.events {
		if !ev.RetentionUntil.After(before) {
			purged++
			continue
		}
		kept = append(kept, ev)
	}
	s.events = kept
	return purged, nil
}

// Len reports the number of stored rows. Test helper.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func matches(ev audit.EventRecord, f audit.Filter) bool {
	if !f.From.IsZero() && ev.OccurredAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !ev.OccurredAt.Before(f.To) {
		return false
	}
	if f.Actor != nil {
		if ev.Actor == nil || *ev.Actor != *f.Actor {
			return false
		}
	}
	if f.Kind != "" && ev.Kind != f.Kind {
		return false
	}
	if f.Severity != "" && ev.Severity != f.Severity {
		return false
	}
	return true
}

// cloneRecord copies the record including its context map so callers cannot
// mutate stored rows.
func cloneRecord(ev audit.EventRecord) audit.EventRecord {
	if ev.Context != nil {
		ctx := make(map[string]any, len(ev.Context))
		for k, v := range ev.Context {
			ctx[k] = v
		}
		ev.Context = ctx
	}
	if ev.Actor != nil {
		actor := *ev.Actor
		ev.Actor = &actor
	}
	if ev.Subject != nil {
		subject := *ev.Subject
		ev.Subject = &subject
	}
	if ev.ResolvedBy != nil {
		resolver := *ev.ResolvedBy
		ev.ResolvedBy = &resolver
	}
	if ev.ResolvedAt != nil {
		at := *ev.ResolvedAt
		ev.ResolvedAt = &at
	}
	return ev
}
