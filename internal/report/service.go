// Package report assembles the compliance dashboard overview from the audit
// log, alert queue, breach register, and consent ledger.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"medguard/internal/audit"
	"medguard/internal/platform/redis"
)

const cacheKey = "medguard:dashboard:overview"

// Overview is the dashboard snapshot returned to compliance officers.
type Overview struct {
	Events          audit.Summary `json:"events"`
	OpenAlerts      int           `json:"open_alerts"`
	OverdueBreaches int           `json:"overdue_breaches"`
	ExpiredConsents int           `json:"expired_consents"`
	Window          Window        `json:"window"`
	GeneratedAt     time.Time     `json:"generated_at"`
}

// Window is the event time range the overview covers.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// AlertCounter reports alerts awaiting attention.
type AlertCounter interface {
	CountOpen(ctx context.Context) (int, error)
}

// BreachCounter reports incidents past their notification deadline.
type BreachCounter interface {
	CountOverdue(ctx context.Context, now time.Time) (int, error)
}

// ConsentCounter reports consents that lapsed without renewal.
type ConsentCounter interface {
	CountExpired(ctx context.Context, now time.Time) (int, error)
}

// Clock returns the current time; injectable for tests.
type Clock func() time.Time

// Service builds dashboard overviews, with an optional Redis cache in front.
// A nil or failing cache degrades to direct reads; the dashboard never blocks
// on Redis being healthy.
type Service struct {
	query    *audit.Query
	alerts   AlertCounter
	breaches BreachCounter
	consents ConsentCounter
	cache    *redis.Client
	cacheTTL time.Duration
	logger   *slog.Logger
	clock    Clock
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(s *Service) { s.clock = clock }
}

// WithCache enables Redis caching of the overview.
func WithCache(cache *redis.Client, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

// New creates a dashboard report service.
func New(query *audit.Query, alerts AlertCounter, breaches BreachCounter, consents ConsentCounter, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		query:    query,
		alerts:   alerts,
		breaches: breaches,
		consents: consents,
		logger:   logger,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Overview returns the dashboard snapshot for the last 24 hours of events.
// Served from cache when fresh.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	if cached, ok := s.fromCache(ctx); ok {
		return cached, nil
	}

	now := s.clock()
	window := Window{From: now.Add(-24 * time.Hour), To: now}

	summary, err := s.query.Summarize(ctx, audit.Filter{From: window.From, To: window.To})
	if err != nil {
		return Overview{}, fmt.Errorf("summarize events: %w", err)
	}

	openAlerts, err := s.alerts.CountOpen(ctx)
	if err != nil {
		return Overview{}, fmt.Errorf("count open alerts: %w", err)
	}

	overdue, err := s.breaches.CountOverdue(ctx, now)
	if err != nil {
		return Overview{}, fmt.Errorf("count overdue breaches: %w", err)
	}

	expired, err := s.consents.CountExpired(ctx, now)
	if err != nil {
		return Overview{}, fmt.Errorf("count expired consents: %w", err)
	}

	overview := Overview{
		Events:          summary,
		OpenAlerts:      openAlerts,
		OverdueBreaches: overdue,
		ExpiredConsents: expired,
		Window:          window,
		GeneratedAt:     now,
	}
	s.toCache(ctx, overview)
	return overview, nil
}

func (s *Service) fromCache(ctx context.Context) (Overview, bool) {
	if s.cache == nil {
		return Overview{}, false
	}

	raw, err := s.cache.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			s.logger.WarnContext(ctx, "dashboard cache read failed", "error", err)
		}
		return Overview{}, false
	}

	var overview Overview
	if err := json.Unmarshal(raw, &overview); err != nil {
		s.logger.WarnContext(ctx, "dashboard cache entry corrupt", "error", err)
		return Overview{}, false
	}
	return overview, true
}

func (s *Service) toCache(ctx context.Context, overview Overview) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}

	raw, err := json.Marshal(overview)
	if err != nil {
		s.logger.WarnContext(ctx, "dashboard cache encode failed", "error", err)
		return
	}
	if err := s.cache.Set(ctx, cacheKey, raw, s.cacheTTL).Err(); err != nil {
		s.logger.WarnContext(ctx, "dashboard cache write failed", "error", err)
	}
}
