//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"medguard/internal/audit"
	"medguard/internal/audit/store/postgres"
	pgplatform "medguard/internal/platform/postgres"
	"medguard/pkg/domain"
	"medguard/pkg/platform/sentinel"
	"medguard/pkg/testutil/containers"
)

const testRetention = 7 * 365 * 24 * time.Hour

type AuditStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *postgres.Store
}

func TestAuditStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(AuditStoreSuite))
}

func (s *AuditStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.Require().NoError(pgplatform.Migrate(context.Background(), s.pg.DB))
}

func (s *AuditStoreSuite) TearDownSuite() {
	if s.pg != nil {
		_ = s.pg.DB.Close()
		_ = s.pg.Container.Terminate(context.Background())
	}
}

func (s *AuditStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateAll(context.Background(), "audit_events"))
	s.store = postgres.New(s.pg.DB, testRetention)
}

func (s *AuditStoreSuite) append(kind audit.ActionKind, severity audit.Severity, actor *domain.ActorID) audit.EventRecord {
	s.T().Helper()
	record := audit.EventRecord{
		Actor:       actor,
		Kind:        kind,
		Severity:    severity,
		Description: "test event",
		Context:     map[string]any{"source": "integration"},
	}
	s.Require().NoError(s.store.Append(context.Background(), &record))
	return record
}

func (s *AuditStoreSuite) TestAppendAssignsStoreFields() {
	actor := domain.ActorID(uuid.New())
	first := s.append(audit.KindRead, audit.SeverityLow, &actor)
	second := s.append(audit.KindExport, audit.SeverityMedium, nil)

	s.Positive(first.ID)
	s.Equal(first.ID+1, second.ID)
	s.False(first.OccurredAt.IsZero())
	s.Equal(first.OccurredAt.Add(testRetention), first.RetentionUntil)
}

func (s *AuditStoreSuite) TestAppendClampsBackwardClock() {
	base := time.Now().UTC().Truncate(time.Microsecond)
	times := []time.Time{base, base.Add(-time.Hour)}
	i := 0
	store := postgres.New(s.pg.DB, testRetention, postgres.WithClock(func() time.Time {
		t := times[i]
		i++
		return t
	}))

	var first, second audit.EventRecord
	first.Kind, first.Severity, first.Description = audit.KindRead, audit.SeverityLow, "a"
	second.Kind, second.Severity, second.Description = audit.KindRead, audit.SeverityLow, "b"
	s.Require().NoError(store.Append(context.Background(), &first))
	s.Require().NoError(store.Append(context.Background(), &second))

	s.False(second.OccurredAt.Before(first.OccurredAt))
}

func (s *AuditStoreSuite) TestListOrderingAndFilters() {
	actor := domain.ActorID(uuid.New())
	s.append(audit.KindRead, audit.SeverityLow, &actor)
	s.append(audit.KindLoginFailure, audit.SeverityMedium, nil)
	s.append(audit.KindBreachAttempt, audit.SeverityCritical, &actor)

	ctx := context.Background()

	s.Run("newest first, id ascending on equal timestamps", func() {
		events, err := s.store.List(ctx, audit.Filter{}, 0)
		s.Require().NoError(err)
		s.Require().Len(events, 3)
		for i := 1; i < len(events); i++ {
			prev, cur := events[i-1], events[i]
			s.False(prev.OccurredAt.Before(cur.OccurredAt))
			if prev.OccurredAt.Equal(cur.OccurredAt) {
				s.Less(prev.ID, cur.ID)
			}
		}
	})

	s.Run("filter by actor", func() {
		events, err := s.store.List(ctx, audit.Filter{Actor: &actor}, 0)
		s.Require().NoError(err)
		s.Len(events, 2)
	})

	s.Run("unattributed rows round-trip nil actor", func() {
		events, err := s.store.List(ctx, audit.Filter{Kind: audit.KindLoginFailure}, 0)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Nil(events[0].Actor)
	})

	s.Run("limit applies after ordering", func() {
		all, err := s.store.List(ctx, audit.Filter{}, 0)
		s.Require().NoError(err)
		limited, err := s.store.List(ctx, audit.Filter{}, 1)
		s.Require().NoError(err)
		s.Require().Len(limited, 1)
		s.Equal(all[0].ID, limited[0].ID)
	})

	s.Run("context survives the round trip", func() {
		events, err := s.store.List(ctx, audit.Filter{Kind: audit.KindRead}, 0)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal("integration", events[0].Context["source"])
	})
}

func (s *AuditStoreSuite) TestSummarizeGroupingSets() {
	for _, severity := range []audit.Severity{
		audit.SeverityLow, audit.SeverityMedium, audit.SeverityHigh,
		audit.SeverityCritical, audit.SeverityHigh,
	} {
		s.append(audit.KindRead, severity, nil)
	}

	summary, err := s.store.Summarize(context.Background(), audit.Filter{})
	s.Require().NoError(err)

	s.Equal(int64(5), summary.Total)
	s.Equal(int64(5), summary.ByKind[audit.KindRead])
	s.Equal(int64(1), summary.BySeverity[audit.SeverityLow])
	s.Equal(int64(1), summary.BySeverity[audit.SeverityMedium])
	s.Equal(int64(2), summary.BySeverity[audit.SeverityHigh])
	s.Equal(int64(1), summary.BySeverity[audit.SeverityCritical])
}

func (s *AuditStoreSuite) TestResolve() {
	ctx := context.Background()
	resolver := domain.ActorID(uuid.New())
	security := s.append(audit.KindBreachAttempt, audit.SeverityCritical, nil)
	routine := s.append(audit.KindRead, audit.SeverityLow, nil)

	s.Run("resolves a security event once", func() {
		now := time.Now().UTC()
		s.Require().NoError(s.store.Resolve(ctx, security.ID, resolver, "account locked", now))

		events, err := s.store.List(ctx, audit.Filter{Kind: audit.KindBreachAttempt}, 0)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.True(events[0].Resolved)
		s.Equal("account locked", events[0].ResolutionNote)
		s.Require().NotNil(events[0].ResolvedBy)
		s.Equal(resolver, *events[0].ResolvedBy)

		err = s.store.Resolve(ctx, security.ID, resolver, "again", now)
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("rejects non-security kinds", func() {
		err := s.store.Resolve(ctx, routine.ID, resolver, "note", time.Now().UTC())
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("unknown event", func() {
		err := s.store.Resolve(ctx, 99999, resolver, "note", time.Now().UTC())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *AuditStoreSuite) TestPurgeExpired() {
	ctx := context.Background()
	record := s.append(audit.KindRead, audit.SeverityLow, nil)

	deleted, err := s.store.PurgeExpired(ctx, record.RetentionUntil.Add(-time.Second))
	s.Require().NoError(err)
	s.Zero(deleted)

	deleted, err = s.store.PurgeExpired(ctx, record.RetentionUntil.Add(time.Second))
	s.Require().NoError(err)
	s.Equal(int64(1), deleted)

	events, err := s.store.List(ctx, audit.Filter{}, 0)
	s.Require().NoError(err)
	s.Empty(events)
}
