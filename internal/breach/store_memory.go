package breach

import (
	"context"
	"sync"
	"time"

	id "medguard/pkg/domain"
	"medguard/pkg/platform/sentinel"
)

// MemoryStore is the in-memory incident store used in unit tests.
type MemoryStore struct {
	mu        sync.RWMutex
	incidents map[id.IncidentID]Incident
}

// NewMemoryStore creates an empty in-memory incident store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{incidents: make(map[id.IncidentID]Incident)}
}

// Save stores the incident.
func (s *MemoryStore) Save(_ context.Context, incident Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents[incident.ID] = incident
	return nil
}

// Get looks up one incident.
func (s *MemoryStore) Get(_ context.Context, incidentID id.IncidentID) (Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	incident, ok := s.incidents[incidentID]
	if !ok {
		return Incident{}, sentinel.ErrNotFound
	}
	return incident, nil
}

// MarkNotified stamps the notification time exactly once.
func (s *MemoryStore) MarkNotified(_ context.Context, incidentID id.IncidentID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	incident, ok := s.incidents[incidentID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if incident.NotifiedAt != nil {
		return sentinel.ErrInvalidState
	}
	stamped := at
	incident.NotifiedAt = &stamped
	s.incidents[incidentID] = incident
	return nil
}

// ListOverdue returns unnotified incidents past their deadline.
func (s *MemoryStore) ListOverdue(_ context.Context, now time.Time) ([]Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Incident
	for _, incident := range s.incidents {
		if incident.Overdue(now) {
			out = append(out, incident)
		}
	}
	return out, nil
}

// CountOverdue counts unnotified incidents past their deadline.
func (s *MemoryStore) CountOverdue(ctx context.Context, now time.Time) (int, error) {
	overdue, err := s.ListOverdue(ctx, now)
	if err != nil {
		return 0, err
	}
	return len(overdue), nil
}
