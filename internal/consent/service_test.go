package consent_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"medguard/internal/audit"
	auditmemory "medguard/internal/audit/store/memory"
	"medguard/internal/consent"
	id "medguard/pkg/domain"
	dErrors "medguard/pkg/domain-errors"
	"medguard/pkg/platform/sentinel"
)

const consentTTL = 365 * 24 * time.Hour

type ConsentServiceSuite struct {
	suite.Suite
	store      *consent.MemoryStore
	auditStore *auditmemory.Store
	service    *consent.Service
	actor      id.ActorID
	patient    id.PatientID
	now        time.Time
}

func TestConsentServiceSuite(t *testing.T) {
	suite.Run(t, new(ConsentServiceSuite))
}

func (s *ConsentServiceSuite) SetupTest() {
	logger := slog.New(slog.DiscardHandler)
	s.store = consent.NewMemoryStore()
	s.auditStore = auditmemory.New(time.Hour)
	recorder := audit.NewRecorder(s.auditStore, logger)
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.service = consent.NewService(s.store, recorder, logger, consentTTL,
		consent.WithClock(func() time.Time { return s.now }))
	s.actor = id.ActorID(uuid.New())
	s.patient = id.PatientID(uuid.New())
}

func (s *ConsentServiceSuite) TestGrant() {
	ctx := context.Background()

	s.Run("empty purposes rejected", func() {
		_, err := s.service.Grant(ctx, s.actor, s.patient, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("one invalid purpose fails the whole grant", func() {
		_, err := s.service.Grant(ctx, s.actor, s.patient,
			[]consent.Purpose{consent.PurposeTreatment, "advertising"})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

		records, listErr := s.service.List(ctx, s.patient)
		s.Require().NoError(listErr)
		s.Empty(records, "validation happens before any record is written")
	})

	s.Run("grants per purpose with the configured ttl", func() {
		records, err := s.service.Grant(ctx, s.actor, s.patient,
			[]consent.Purpose{consent.PurposeTreatment, consent.PurposeResearch})
		s.Require().NoError(err)
		s.Require().Len(records, 2)
		s.Equal(s.now, records[0].GrantedAt)
		s.Equal(s.now.Add(consentTTL), records[0].ExpiresAt)

		events, err := s.auditStore.List(ctx, audit.Filter{Kind: audit.KindConsentGranted}, 0)
		s.Require().NoError(err)
		s.Len(events, 2, "one audit event per purpose")
	})
}

func (s *ConsentServiceSuite) TestRevoke() {
	ctx := context.Background()

	_, err := s.service.Grant(ctx, s.actor, s.patient, []consent.Purpose{consent.PurposeResearch})
	s.Require().NoError(err)

	s.Run("revokes the active consent and audits it", func() {
		s.Require().NoError(s.service.Revoke(ctx, s.actor, s.patient, consent.PurposeResearch))

		err := s.service.Require(ctx, s.patient, consent.PurposeResearch, s.now.Add(time.Second))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		events, err := s.auditStore.List(ctx, audit.Filter{Kind: audit.KindConsentRevoked}, 0)
		s.Require().NoError(err)
		s.Len(events, 1)
	})

	s.Run("revoking again reports not found", func() {
		err := s.service.Revoke(ctx, s.actor, s.patient, consent.PurposeResearch)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *ConsentServiceSuite) TestRequire() {
	ctx := context.Background()

	_, err := s.service.Grant(ctx, s.actor, s.patient, []consent.Purpose{consent.PurposeTreatment})
	s.Require().NoError(err)

	s.Run("active consent passes", func() {
		s.NoError(s.service.Require(ctx, s.patient, consent.PurposeTreatment, s.now.Add(time.Hour)))
	})

	s.Run("purpose binding is exact", func() {
		err := s.service.Require(ctx, s.patient, consent.PurposeMarketing, s.now.Add(time.Hour))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("expired consent is refused", func() {
		err := s.service.Require(ctx, s.patient, consent.PurposeTreatment, s.now.Add(consentTTL))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden), "expiry boundary is exclusive")
	})
}

func (s *ConsentServiceSuite) TestCountExpired() {
	ctx := context.Background()

	_, err := s.service.Grant(ctx, s.actor, s.patient, []consent.Purpose{consent.PurposeTreatment})
	s.Require().NoError(err)

	otherPatient := id.PatientID(uuid.New())
	_, err = s.service.Grant(ctx, s.actor, otherPatient, []consent.Purpose{consent.PurposeResearch})
	s.Require().NoError(err)
	s.Require().NoError(s.service.Revoke(ctx, s.actor, otherPatient, consent.PurposeResearch))

	n, err := s.service.CountExpired(ctx, s.now.Add(consentTTL))
	s.Require().NoError(err)
	s.Equal(1, n, "revoked consents never count as expired")
}
