//go:build integration

package consent_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"medguard/internal/consent"
	pgplatform "medguard/internal/platform/postgres"
	"medguard/pkg/domain"
	"medguard/pkg/platform/sentinel"
	"medguard/pkg/testutil/containers"
)

type ConsentStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *consent.PostgresStore
}

func TestConsentStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ConsentStoreSuite))
}

func (s *ConsentStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.Require().NoError(pgplatform.Migrate(context.Background(), s.pg.DB))
	s.store = consent.NewPostgresStore(s.pg.DB)
}

func (s *ConsentStoreSuite) TearDownSuite() {
	if s.pg != nil {
		_ = s.pg.DB.Close()
		_ = s.pg.Container.Terminate(context.Background())
	}
}

func (s *ConsentStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateAll(context.Background(), "consents"))
}

func (s *ConsentStoreSuite) save(patient domain.PatientID, purpose consent.Purpose, granted time.Time) consent.Record {
	s.T().Helper()
	record := consent.Record{
		PatientID: patient,
		Purpose:   purpose,
		GrantedAt: granted,
		ExpiresAt: granted.Add(365 * 24 * time.Hour),
	}
	s.Require().NoError(s.store.Save(context.Background(), &record))
	return record
}

func (s *ConsentStoreSuite) TestSaveAssignsID() {
	patient := domain.PatientID(uuid.New())
	now := time.Now().UTC().Truncate(time.Microsecond)

	first := s.save(patient, consent.PurposeTreatment, now)
	second := s.save(patient, consent.PurposeResearch, now)

	s.Positive(first.ID)
	s.Equal(first.ID+1, second.ID)
}

func (s *ConsentStoreSuite) TestListByPatient() {
	patient := domain.PatientID(uuid.New())
	other := domain.PatientID(uuid.New())
	now := time.Now().UTC().Truncate(time.Microsecond)

	s.save(patient, consent.PurposeTreatment, now.Add(-time.Hour))
	s.save(patient, consent.PurposeResearch, now)
	s.save(other, consent.PurposeMarketing, now)

	records, err := s.store.ListByPatient(context.Background(), patient)
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.Equal(consent.PurposeResearch, records[0].Purpose)
	s.Equal(consent.PurposeTreatment, records[1].Purpose)
	s.Equal(patient, records[0].PatientID)
}

func (s *ConsentStoreSuite) TestRevoke() {
	ctx := context.Background()
	patient := domain.PatientID(uuid.New())
	now := time.Now().UTC().Truncate(time.Microsecond)
	s.save(patient, consent.PurposeResearch, now)

	s.Run("stamps the active row", func() {
		s.Require().NoError(s.store.Revoke(ctx, patient, consent.PurposeResearch, now))

		records, err := s.store.ListByPatient(ctx, patient)
		s.Require().NoError(err)
		s.Require().Len(records, 1)
		s.NotNil(records[0].RevokedAt)
	})

	s.Run("second revoke finds nothing", func() {
		err := s.store.Revoke(ctx, patient, consent.PurposeResearch, now)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("never granted", func() {
		err := s.store.Revoke(ctx, patient, consent.PurposeMarketing, now)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *ConsentStoreSuite) TestCountExpired() {
	ctx := context.Background()
	patient := domain.PatientID(uuid.New())
	now := time.Now().UTC().Truncate(time.Microsecond)

	lapsed := s.save(patient, consent.PurposeTreatment, now.Add(-2*365*24*time.Hour))
	s.save(patient, consent.PurposeResearch, now)

	count, err := s.store.CountExpired(ctx, now)
	s.Require().NoError(err)
	s.Equal(1, count)

	// A revoked consent no longer counts as expired even after its window.
	s.Require().NoError(s.store.Revoke(ctx, patient, consent.PurposeTreatment, lapsed.ExpiresAt.Add(-time.Hour)))
	count, err = s.store.CountExpired(ctx, now)
	s.Require().NoError(err)
	s.Zero(count)
}
