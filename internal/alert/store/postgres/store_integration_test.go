//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"medguard/internal/alert"
	"medguard/internal/alert/store/postgres"
	"medguard/internal/audit"
	pgplatform "medguard/internal/platform/postgres"
	"medguard/pkg/domain"
	"medguard/pkg/platform/sentinel"
	"medguard/pkg/testutil/containers"
)

type AlertStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *postgres.Store
}

func TestAlertStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(AlertStoreSuite))
}

func (s *AlertStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.Require().NoError(pgplatform.Migrate(context.Background(), s.pg.DB))
	s.store = postgres.New(s.pg.DB)
}

func (s *AlertStoreSuite) TearDownSuite() {
	if s.pg != nil {
		_ = s.pg.DB.Close()
		_ = s.pg.Container.Terminate(context.Background())
	}
}

func (s *AlertStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateAll(context.Background(), "compliance_alerts"))
}

func draftAlert(title string, affected int) alert.Alert {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return alert.Alert{
		ID:              domain.NewAlertID(),
		Type:            alert.TypeConsentExpired,
		Title:           title,
		Description:     "consents lapsed without renewal",
		Severity:        audit.SeverityMedium,
		Status:          alert.StatusActive,
		AffectedRecords: affected,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (s *AlertStoreSuite) TestUpsertDeduplicates() {
	ctx := context.Background()

	first, created, err := s.store.Upsert(ctx, draftAlert("Expired consents", 3))
	s.Require().NoError(err)
	s.True(created)

	second, created, err := s.store.Upsert(ctx, draftAlert("Expired consents", 7))
	s.Require().NoError(err)
	s.False(created)
	s.Equal(first.ID, second.ID)
	s.Equal(7, second.AffectedRecords)
	s.True(second.CreatedAt.Equal(first.CreatedAt))

	open, err := s.store.List(ctx, alert.StatusActive, 0)
	s.Require().NoError(err)
	s.Len(open, 1)
}

func (s *AlertStoreSuite) TestUpsertConcurrentSingleWinner() {
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	createdCount := make(chan bool, workers)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := s.store.Upsert(ctx, draftAlert("Race alert", 1))
			if s.NoError(err) {
				createdCount <- created
			}
		}()
	}
	wg.Wait()
	close(createdCount)

	var wins int
	for created := range createdCount {
		if created {
			wins++
		}
	}
	s.Equal(1, wins)

	open, err := s.store.List(ctx, alert.StatusActive, 0)
	s.Require().NoError(err)
	s.Len(open, 1)
}

func (s *AlertStoreSuite) TestTerminalRowFreesIdentity() {
	ctx := context.Background()

	stored, _, err := s.store.Upsert(ctx, draftAlert("Recurring alert", 1))
	s.Require().NoError(err)

	actor := domain.ActorID(uuid.New())
	now := time.Now().UTC().Truncate(time.Microsecond)
	stored.Status = alert.StatusResolved
	stored.ResolvedBy = &actor
	stored.ResolvedAt = &now
	stored.ResolutionNote = "renewals collected"
	stored.UpdatedAt = now
	s.Require().NoError(s.store.Update(ctx, stored))

	again, created, err := s.store.Upsert(ctx, draftAlert("Recurring alert", 2))
	s.Require().NoError(err)
	s.True(created)
	s.NotEqual(stored.ID, again.ID)
}

func (s *AlertStoreSuite) TestUpdateRoundTripsActorFields() {
	ctx := context.Background()

	stored, _, err := s.store.Upsert(ctx, draftAlert("Ack alert", 1))
	s.Require().NoError(err)

	actor := domain.ActorID(uuid.New())
	now := time.Now().UTC().Truncate(time.Microsecond)
	stored.Status = alert.StatusAcknowledged
	stored.AcknowledgedBy = &actor
	stored.AcknowledgedAt = &now
	stored.UpdatedAt = now
	s.Require().NoError(s.store.Update(ctx, stored))

	got, err := s.store.Get(ctx, stored.ID)
	s.Require().NoError(err)
	s.Equal(alert.StatusAcknowledged, got.Status)
	s.Require().NotNil(got.AcknowledgedBy)
	s.Equal(actor, *got.AcknowledgedBy)
	s.Require().NotNil(got.AcknowledgedAt)
	s.True(got.AcknowledgedAt.Equal(now))
}

func (s *AlertStoreSuite) TestUpdateUnknownAlert() {
	ghost := draftAlert("Ghost", 1)
	err := s.store.Update(context.Background(), ghost)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *AlertStoreSuite) TestCountOpen() {
	ctx := context.Background()

	a, _, err := s.store.Upsert(ctx, draftAlert("Open one", 1))
	s.Require().NoError(err)
	b := draftAlert("Open two", 1)
	b.Type = alert.TypeUnresolvedCritical
	_, _, err = s.store.Upsert(ctx, b)
	s.Require().NoError(err)

	n, err := s.store.CountOpen(ctx)
	s.Require().NoError(err)
	s.Equal(2, n)

	now := time.Now().UTC()
	a.Status = alert.StatusDismissed
	a.UpdatedAt = now
	s.Require().NoError(s.store.Update(ctx, a))

	n, err = s.store.CountOpen(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *AlertStoreSuite) TestListActiveOlderThan() {
	ctx := context.Background()

	old := draftAlert("Stale alert", 1)
	old.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	old.UpdatedAt = old.CreatedAt
	_, _, err := s.store.Upsert(ctx, old)
	s.Require().NoError(err)

	fresh := draftAlert("Fresh alert", 1)
	fresh.Type = alert.TypeUnresolvedCritical
	_, _, err = s.store.Upsert(ctx, fresh)
	s.Require().NoError(err)

	stale, err := s.store.ListActiveOlderThan(ctx, time.Now().UTC().Add(-24*time.Hour))
	s.Require().NoError(err)
	s.Require().Len(stale, 1)
	s.Equal("Stale alert", stale[0].Title)
}
