package consent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"medguard/internal/audit"
	id "medguard/pkg/domain"
	dErrors "medguard/pkg/domain-errors"
)

// Clock abstracts time for deterministic tests.
type Clock func() time.Time

// Service persists consent decisions and provides purpose-aware checks. Every
// grant and revocation is recorded in the audit log as a direct side effect.
type Service struct {
	store    Store
	recorder *audit.Recorder
	logger   *slog.Logger
	ttl      time.Duration
	clock    Clock
}

// ServiceOption configures the Service.
type ServiceOption func(*Service)

// WithClock sets the clock function for testability.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewService creates the consent service. ttl is how long granted consents
// remain valid.
func NewService(store Store, recorder *audit.Recorder, logger *slog.Logger, ttl time.Duration, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		recorder: recorder,
		logger:   logger,
		ttl:      ttl,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Grant validates and grants consent for the given purposes. All purposes are
// validated before any record is written.
func (s *Service) Grant(ctx context.Context, actor id.ActorID, patientID id.PatientID, purposes []Purpose) ([]Record, error) {
	if len(purposes) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "purposes must not be empty")
	}
	for _, p := range purposes {
		if !p.IsValid() {
			return nil, dErrors.New(dErrors.CodeBadRequest, "invalid purpose: "+string(p))
		}
	}

	now := s.clock()
	records := make([]Record, 0, len(purposes))
	for _, p := range purposes {
		record := Record{
			PatientID: patientID,
			Purpose:   p,
			GrantedAt: now,
			ExpiresAt: now.Add(s.ttl),
		}
		if err := s.store.Save(ctx, &record); err != nil {
			return nil, fmt.Errorf("save consent: %w", err)
		}
		records = append(records, record)

		s.audit(ctx, actor, audit.KindConsentGranted, record,
			fmt.Sprintf("consent granted for purpose %s", p))
	}
	return records, nil
}

// Revoke withdraws consent for one purpose.
func (s *Service) Revoke(ctx context.Context, actor id.ActorID, patientID id.PatientID, purpose Purpose) error {
	if !purpose.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "invalid purpose: "+string(purpose))
	}

	now := s.clock()
	if err := s.store.Revoke(ctx, patientID, purpose, now); err != nil {
		return fmt.Errorf("revoke consent: %w", err)
	}

	s.audit(ctx, actor, audit.KindConsentRevoked, Record{PatientID: patientID, Purpose: purpose},
		fmt.Sprintf("consent revoked for purpose %s", purpose))
	return nil
}

// Require returns an error when consent is missing, expired, or revoked.
func (s *Service) Require(ctx context.Context, patientID id.PatientID, purpose Purpose, now time.Time) error {
	records, err := s.store.ListByPatient(ctx, patientID)
	if err != nil {
		return fmt.Errorf("list consents: %w", err)
	}
	return EnsureConsent(records, purpose, now)
}

// List returns all consent records for a patient.
func (s *Service) List(ctx context.Context, patientID id.PatientID) ([]Record, error) {
	return s.store.ListByPatient(ctx, patientID)
}

// CountExpired counts lapsed, unrevoked consents. Feeds the alert generator.
func (s *Service) CountExpired(ctx context.Context, now time.Time) (int, error) {
	return s.store.CountExpired(ctx, now)
}

// audit records the consent action; a failed audit write is already surfaced
// on the recorder's fallback channel, so the consent operation proceeds.
func (s *Service) audit(ctx context.Context, actor id.ActorID, kind audit.ActionKind, record Record, description string) {
	_, err := s.recorder.Record(ctx, audit.Entry{
		Actor:       &actor,
		Kind:        kind,
		Severity:    audit.SeverityMedium,
		Subject:     &audit.SubjectRef{Kind: audit.SubjectConsent, ID: record.PatientID.String()},
		Description: description,
		Context: map[string]any{
			"purpose": string(record.Purpose),
		},
	})
	if err != nil {
		s.logger.WarnContext(ctx, "consent change applied but not audited", "error", err)
	}
}
