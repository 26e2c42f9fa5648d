// Package generator derives compliance alerts from aggregate conditions over
// the event log and its sibling stores. Rules are evaluated periodically and
// raise alerts idempotently, so re-running against unchanged data updates
// open alerts instead of duplicating them.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"medguard/internal/alert"
	"medguard/internal/audit"
)

// Rule evaluates one condition and returns the alert drafts it warrants.
// Returning no drafts means the condition currently holds no violation.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, now time.Time) ([]alert.Draft, error)
}

// Clock abstracts time for deterministic tests.
type Clock func() time.Time

// Generator runs the rule set and applies deadline escalation.
type Generator struct {
	alerts      *alert.Service
	rules       []Rule
	ackDeadline time.Duration
	logger      *slog.Logger
	clock       Clock
	interval    time.Duration
}

// Option configures the Generator.
type Option func(*Generator)

// WithClock sets the clock function for testability.
func WithClock(clock Clock) Option {
	return func(g *Generator) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// New creates a generator over the given rules.
func New(alerts *alert.Service, rules []Rule, ackDeadline, interval time.Duration, logger *slog.Logger, opts ...Option) *Generator {
	g := &Generator{
		alerts:      alerts,
		rules:       rules,
		ackDeadline: ackDeadline,
		interval:    interval,
		logger:      logger,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Run evaluates on a ticker until the context is cancelled.
func (g *Generator) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			g.RunOnce(ctx)
		}
	}
}

// RunOnce evaluates every rule and then escalates stale active alerts. A
// failing rule is logged and skipped; the remaining rules still run.
func (g *Generator) RunOnce(ctx context.Context) {
	now := g.clock()

	for _, rule := range g.rules {
		drafts, err := rule.Evaluate(ctx, now)
		if err != nil {
			g.logger.ErrorContext(ctx, "alert rule evaluation failed",
				"rule", rule.Name(),
				"error", err,
			)
			continue
		}
		for _, draft := range drafts {
			if _, err := g.alerts.Raise(ctx, draft); err != nil {
				g.logger.ErrorContext(ctx, "failed to raise alert",
					"rule", rule.Name(),
					"title", draft.Title,
					"error", err,
				)
			}
		}
	}

	g.escalateStale(ctx, now)
}

// escalateStale moves active alerts past the acknowledgment deadline into the
// escalated state.
func (g *Generator) escalateStale(ctx context.Context, now time.Time) {
	stale, err := g.alerts.ListActiveOlderThan(ctx, now.Add(-g.ackDeadline))
	if err != nil {
		g.logger.ErrorContext(ctx, "failed to list stale alerts", "error", err)
		return
	}
	for _, a := range stale {
		if _, err := g.alerts.Escalate(ctx, a.ID); err != nil {
			g.logger.ErrorContext(ctx, "failed to escalate alert",
				"alert_id", a.ID.String(),
				"error", err,
			)
		}
	}
}

// --- Rules ---

// OverdueCounter reports how many entities missed a deadline as of now.
type OverdueCounter interface {
	CountOverdue(ctx context.Context, now time.Time) (int, error)
}

// BreachNotificationRule raises an alert when breach incidents have passed
// their notification deadline without being notified.
type BreachNotificationRule struct {
	Breaches OverdueCounter
}

func (r *BreachNotificationRule) Name() string { return "breach_notification_overdue" }

func (r *BreachNotificationRule) Evaluate(ctx context.Context, now time.Time) ([]alert.Draft, error) {
	count, err := r.Breaches.CountOverdue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("count overdue breach notifications: %w", err)
	}
	if count == 0 {
		return nil, nil
	}
	return []alert.Draft{{
		Type:            alert.TypeBreachNotificationOverdue,
		Title:           "Breach notifications past deadline",
		Description:     fmt.Sprintf("%d breach incident(s) have passed their notification deadline without authority notification", count),
		Severity:        audit.SeverityCritical,
		AffectedRecords: count,
	}}, nil
}

// ExpiredConsentCounter reports consents past expiry that were never renewed
// or revoked.
type ExpiredConsentCounter interface {
	CountExpired(ctx context.Context, now time.Time) (int, error)
}

// ConsentExpiryRule raises an alert when granted consents have lapsed.
type ConsentExpiryRule struct {
	Consents ExpiredConsentCounter
}

func (r *ConsentExpiryRule) Name() string { return "consent_expired" }

func (r *ConsentExpiryRule) Evaluate(ctx context.Context, now time.Time) ([]alert.Draft, error) {
	count, err := r.Consents.CountExpired(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("count expired consents: %w", err)
	}
	if count == 0 {
		return nil, nil
	}
	return []alert.Draft{{
		Type:            alert.TypeConsentExpired,
		Title:           "Expired consents on record",
		Description:     fmt.Sprintf("%d consent record(s) have expired and require renewal or data-processing review", count),
		Severity:        audit.SeverityMedium,
		AffectedRecords: count,
	}}, nil
}

// UnresolvedCriticalRule raises an alert when critical security events from
// the recent window remain unresolved.
type UnresolvedCriticalRule struct {
	Events *audit.Query
	Window time.Duration
}

func (r *UnresolvedCriticalRule) Name() string { return "unresolved_critical_events" }

func (r *UnresolvedCriticalRule) Evaluate(ctx context.Context, now time.Time) ([]alert.Draft, error) {
	// Limit well above anything a healthy window produces; the alert counts
	// violations, it does not page through them.
	events, err := r.Events.ListEvents(ctx, audit.Filter{
		From:     now.Add(-r.Window),
		To:       now,
		Severity: audit.SeverityCritical,
	}, 10000)
	if err != nil {
		return nil, fmt.Errorf("list critical events: %w", err)
	}

	unresolved := 0
	for _, ev := range events {
		if ev.Kind.IsSecurity() && !ev.Resolved {
			unresolved++
		}
	}
	if unresolved == 0 {
		return nil, nil
	}
	return []alert.Draft{{
		Type:            alert.TypeUnresolvedCritical,
		Title:           "Unresolved critical security events",
		Description:     fmt.Sprintf("%d critical security event(s) in the last %s remain unresolved", unresolved, r.Window),
		Severity:        audit.SeverityHigh,
		AffectedRecords: unresolved,
	}}, nil
}
