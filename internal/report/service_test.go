package report_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medguard/internal/audit"
	auditmemory "medguard/internal/audit/store/memory"
	"medguard/internal/report"
)

type stubAlerts struct{ open int }

func (s stubAlerts) CountOpen(context.Context) (int, error) { return s.open, nil }

type stubBreaches struct{ overdue int }

func (s stubBreaches) CountOverdue(context.Context, time.Time) (int, error) { return s.overdue, nil }

type stubConsents struct{ expired int }

func (s stubConsents) CountExpired(context.Context, time.Time) (int, error) { return s.expired, nil }

func TestOverview(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	auditStore := auditmemory.New(time.Hour, auditmemory.WithClock(func() time.Time { return now }))
	recorder := audit.NewRecorder(auditStore, logger)
	ctx := context.Background()

	for _, severity := range []audit.Severity{audit.SeverityLow, audit.SeverityHigh} {
		_, err := recorder.Record(ctx, audit.Entry{
			Kind:        audit.KindSecurityEvent,
			Severity:    severity,
			Description: "event",
		})
		require.NoError(t, err)
	}

	svc := report.New(
		audit.NewQuery(auditStore),
		stubAlerts{open: 2},
		stubBreaches{overdue: 1},
		stubConsents{expired: 3},
		logger,
		report.WithClock(func() time.Time { return now.Add(time.Minute) }),
	)

	overview, err := svc.Overview(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), overview.Events.Total)
	assert.Equal(t, 2, overview.OpenAlerts)
	assert.Equal(t, 1, overview.OverdueBreaches)
	assert.Equal(t, 3, overview.ExpiredConsents)
	assert.Equal(t, now.Add(time.Minute), overview.GeneratedAt)
	assert.Equal(t, now.Add(time.Minute).Add(-24*time.Hour), overview.Window.From)
}
