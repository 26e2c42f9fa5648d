package generator_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medguard/internal/alert"
	"medguard/internal/alert/generator"
	alertmemory "medguard/internal/alert/store/memory"
	"medguard/internal/audit"
	auditmemory "medguard/internal/audit/store/memory"
	id "medguard/pkg/domain"
)

var testLogger = slog.New(slog.DiscardHandler)

type stubCounter struct {
	n   int
	err error
}

func (c stubCounter) CountOverdue(context.Context, time.Time) (int, error) { return c.n, c.err }
func (c stubCounter) CountExpired(context.Context, time.Time) (int, error) { return c.n, c.err }

func newAlertService(t *testing.T) (*alert.Service, *alertmemory.Store) {
	t.Helper()
	store := alertmemory.New()
	recorder := audit.NewRecorder(auditmemory.New(time.Hour), testLogger)
	return alert.NewService(store, recorder, testLogger), store
}

func TestBreachNotificationRule(t *testing.T) {
	now := time.Now()

	t.Run("no overdue incidents, no draft", func(t *testing.T) {
		rule := &generator.BreachNotificationRule{Breaches: stubCounter{n: 0}}
		drafts, err := rule.Evaluate(context.Background(), now)
		require.NoError(t, err)
		assert.Empty(t, drafts)
	})

	t.Run("overdue incidents raise a critical draft", func(t *testing.T) {
		rule := &generator.BreachNotificationRule{Breaches: stubCounter{n: 2}}
		drafts, err := rule.Evaluate(context.Background(), now)
		require.NoError(t, err)
		require.Len(t, drafts, 1)
		assert.Equal(t, alert.TypeBreachNotificationOverdue, drafts[0].Type)
		assert.Equal(t, audit.SeverityCritical, drafts[0].Severity)
		assert.Equal(t, 2, drafts[0].AffectedRecords)
	})
}

func TestConsentExpiryRule(t *testing.T) {
	rule := &generator.ConsentExpiryRule{Consents: stubCounter{n: 4}}
	drafts, err := rule.Evaluate(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, alert.TypeConsentExpired, drafts[0].Type)
	assert.Equal(t, 4, drafts[0].AffectedRecords)
}

func TestUnresolvedCriticalRule(t *testing.T) {
	auditStore := auditmemory.New(time.Hour)
	recorder := audit.NewRecorder(auditStore, testLogger)
	ctx := context.Background()

	// One unresolved critical security event, one critical non-security event,
	// one resolved critical security event.
	_, err := recorder.Record(ctx, audit.Entry{
		Kind: audit.KindBreachAttempt, Severity: audit.SeverityCritical, Description: "attempt",
	})
	require.NoError(t, err)

	_, err = recorder.Record(ctx, audit.Entry{
		Kind: audit.KindPurge, Severity: audit.SeverityCritical, Description: "purge run",
	})
	require.NoError(t, err)

	resolved, err := recorder.Record(ctx, audit.Entry{
		Kind: audit.KindSecurityEvent, Severity: audit.SeverityCritical, Description: "handled",
	})
	require.NoError(t, err)
	require.NoError(t, recorder.ResolveSecurityEvent(ctx, resolved.ID, id.ActorID(uuid.New()), "handled"))

	rule := &generator.UnresolvedCriticalRule{Events: audit.NewQuery(auditStore), Window: time.Hour}
	drafts, err := rule.Evaluate(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, 1, drafts[0].AffectedRecords, "only unresolved security events count")
}

func TestRunOnce(t *testing.T) {
	t.Run("failing rule does not stop the others", func(t *testing.T) {
		alerts, _ := newAlertService(t)
		rules := []generator.Rule{
			&generator.BreachNotificationRule{Breaches: stubCounter{err: errors.New("db down")}},
			&generator.ConsentExpiryRule{Consents: stubCounter{n: 1}},
		}
		gen := generator.New(alerts, rules, 24*time.Hour, time.Minute, testLogger)

		gen.RunOnce(context.Background())

		open, err := alerts.List(context.Background(), alert.StatusActive, 0)
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, alert.TypeConsentExpired, open[0].Type)
	})

	t.Run("re-running updates rather than duplicates", func(t *testing.T) {
		alerts, _ := newAlertService(t)
		rules := []generator.Rule{&generator.ConsentExpiryRule{Consents: stubCounter{n: 3}}}
		gen := generator.New(alerts, rules, 24*time.Hour, time.Minute, testLogger)

		gen.RunOnce(context.Background())
		gen.RunOnce(context.Background())

		open, err := alerts.List(context.Background(), alert.StatusActive, 0)
		require.NoError(t, err)
		assert.Len(t, open, 1)
	})

	t.Run("escalates active alerts past the acknowledgment deadline", func(t *testing.T) {
		alerts, _ := newAlertService(t)
		rules := []generator.Rule{&generator.ConsentExpiryRule{Consents: stubCounter{n: 1}}}

		base := time.Now()
		clock := base
		gen := generator.New(alerts, rules, 24*time.Hour, time.Minute, testLogger,
			generator.WithClock(func() time.Time { return clock }))

		gen.RunOnce(context.Background())

		open, err := alerts.List(context.Background(), alert.StatusActive, 0)
		require.NoError(t, err)
		require.Len(t, open, 1)

		clock = base.Add(25 * time.Hour)
		gen.RunOnce(context.Background())

		escalated, err := alerts.List(context.Background(), alert.StatusEscalated, 0)
		require.NoError(t, err)
		assert.Len(t, escalated, 1)
	})
}
