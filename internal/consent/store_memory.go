package consent

import (
	"context"
	"sync"
	"time"

	id "medguard/pkg/domain"
	"medguard/pkg/platform/sentinel"
)

// MemoryStore is the in-memory consent store used in unit tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	nextID  int64
}

// NewMemoryStore creates an empty in-memory consent store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

// Save assigns an ID and stores a copy of the record.
func (s *MemoryStore) Save(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record.ID = s.nextID
	s.nextID++
	s.records = append(s.records, *record)
	return nil
}

// ListByPatient returns all records for a patient.
func (s *MemoryStore) ListByPatient(_ context.Context, patientID id.PatientID) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, r := range s.records {
		if r.PatientID == patientID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Revoke stamps the active consent for (patient, purpose).
func (s *MemoryStore) Revoke(_ context.Context, patientID id.PatientID, purpose Purpose, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		r := &s.records[i]
		if r.PatientID == patientID && r.Purpose == purpose && r.IsActive(revokedAt) {
			at := revokedAt
			r.RevokedAt = &at
			return nil
		}
	}
	return sentinel.ErrNotFound
}

// CountExpired counts lapsed, unrevoked consents.
func (s *MemoryStore) CountExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, r := range s.records {
		if r.IsExpired(now) {
			count++
		}
	}
	return count, nil
}
