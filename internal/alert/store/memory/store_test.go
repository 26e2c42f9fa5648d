package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medguard/internal/alert"
	"medguard/internal/audit"
	id "medguard/pkg/domain"
	"medguard/pkg/platform/sentinel"
)

func draftAlert(affected int) alert.Alert {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return alert.Alert{
		ID:              id.NewAlertID(),
		Type:            alert.TypeExportOverdue,
		Title:           "3 Data Export Requests Overdue",
		Description:     "exports past deadline",
		Severity:        audit.SeverityHigh,
		Status:          alert.StatusActive,
		AffectedRecords: affected,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestUpsertConcurrentSingleWinner(t *testing.T) {
	s := New()
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	created := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, wasCreated, err := s.Upsert(ctx, draftAlert(n))
			assert.NoError(t, err)
			created <- wasCreated
		}(i)
	}
	wg.Wait()
	close(created)

	inserts := 0
	for wasCreated := range created {
		if wasCreated {
			inserts++
		}
	}
	assert.Equal(t, 1, inserts, "exactly one goroutine wins the insert")

	open, err := s.List(ctx, alert.StatusActive, 0)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestUpsertIgnoresTerminalRows(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, created, err := s.Upsert(ctx, draftAlert(3))
	require.NoError(t, err)
	require.True(t, created)

	first.Status = alert.StatusResolved
	require.NoError(t, s.Update(ctx, first))

	second, created, err := s.Upsert(ctx, draftAlert(2))
	require.NoError(t, err)
	assert.True(t, created, "terminal alert frees the identity")
	assert.NotEqual(t, first.ID, second.ID)
}

func TestUpdateUnknownAlert(t *testing.T) {
	s := New()
	err := s.Update(context.Background(), draftAlert(1))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestListActiveOlderThan(t *testing.T) {
	s := New()
	ctx := context.Background()

	stale := draftAlert(1)
	fresh := draftAlert(1)
	fresh.Title = "a different alert"
	fresh.CreatedAt = stale.CreatedAt.Add(time.Hour)

	_, _, err := s.Upsert(ctx, stale)
	require.NoError(t, err)
	_, _, err = s.Upsert(ctx, fresh)
	require.NoError(t, err)

	out, err := s.ListActiveOlderThan(ctx, stale.CreatedAt.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, stale.ID, out[0].ID)
}
