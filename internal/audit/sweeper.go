package audit

import (
	"context"
	"log/slog"
	"time"

	"medguard/internal/platform/metrics"
)

// Sweeper periodically deletes rows whose retention period has lapsed. It
// always calls PurgeExpired with the current time, so a row is only ever
// removed at or after its retention_until.
type Sweeper struct {
	store    Store
	logger   *slog.Logger
	metrics  *metrics.Metrics
	interval time.Duration
}

// NewSweeper creates the retention sweep job.
func NewSweeper(store Store, logger *slog.Logger, m *metrics.Metrics, interval time.Duration) *Sweeper {
	return &Sweeper{store: store, logger: logger, metrics: m, interval: interval}
}

// Run loops until the context is cancelled. Sweep failures are logged and
// retried on the next tick; retention deletion is never urgent.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	deleted, err := s.store.PurgeExpired(ctx, time.Now())
	if err != nil {
		s.logger.ErrorContext(ctx, "retention sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		if s.metrics != nil {
			s.metrics.EventsPurged.Add(float64(deleted))
		}
		s.logger.InfoContext(ctx, "retention sweep completed", "deleted", deleted)
	}
}
