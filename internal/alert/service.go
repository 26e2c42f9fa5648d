package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"medguard/internal/audit"
	"medguard/internal/platform/metrics"
	id "medguard/pkg/domain"
	dErrors "medguard/pkg/domain-errors"
)

// Clock abstracts time for deterministic tests.
type Clock func() time.Time

// Service owns alert lifecycle transitions. Every transition is validated
// against the state machine before any mutation, and every applied transition
// leaves an audit event behind.
type Service struct {
	store    Store
	recorder *audit.Recorder
	logger   *slog.Logger
	metrics  *metrics.Metrics
	clock    Clock
}

// ServiceOption configures the Service.
type ServiceOption func(*Service)

// WithClock sets the clock function for testability.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// NewService creates the alert service.
func NewService(store Store, recorder *audit.Recorder, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		recorder: recorder,
		logger:   logger,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Draft describes the condition a generator rule wants an alert for.
type Draft struct {
	Type            Type
	Title           string
	Description     string
	Severity        audit.Severity
	AffectedRecords int
}

// Raise creates or refreshes the open alert for the draft's (type, title)
// identity. Re-running against unchanged data updates the existing alert
// rather than duplicating it.
func (s *Service) Raise(ctx context.Context, draft Draft) (Alert, error) {
	if draft.Title == "" {
		return Alert{}, dErrors.New(dErrors.CodeInvalidInput, "alert title is required")
	}

	now := s.clock()
	candidate := Alert{
		ID:              id.NewAlertID(),
		Type:            draft.Type,
		Title:           draft.Title,
		Description:     draft.Description,
		Severity:        draft.Severity,
		Status:          StatusActive,
		AffectedRecords: draft.AffectedRecords,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	stored, created, err := s.store.Upsert(ctx, candidate)
	if err != nil {
		return Alert{}, fmt.Errorf("raise alert: %w", err)
	}

	if s.metrics != nil {
		if created {
			s.metrics.AlertsRaised.Inc()
		} else {
			s.metrics.AlertsDeduped.Inc()
		}
	}
	if created {
		s.logger.InfoContext(ctx, "compliance alert raised",
			"alert_id", stored.ID.String(),
			"type", string(stored.Type),
			"title", stored.Title,
		)
	}

	return stored, nil
}

// Acknowledge moves an alert to acknowledged, recording who and when.
func (s *Service) Acknowledge(ctx context.Context, alertID id.AlertID, actor id.ActorID) (Alert, error) {
	return s.transition(ctx, alertID, StatusAcknowledged, func(a *Alert) error {
		now := s.clock()
		a.AcknowledgedBy = &actor
		a.AcknowledgedAt = &now
		return nil
	}, &actor)
}

// Resolve closes an alert. A non-empty resolution note is required; the check
// happens before any state is touched.
func (s *Service) Resolve(ctx context.Context, alertID id.AlertID, actor id.ActorID, note string) (Alert, error) {
	if note == "" {
		return Alert{}, dErrors.New(dErrors.CodeBadRequest, "resolution note is required")
	}
	return s.transition(ctx, alertID, StatusResolved, func(a *Alert) error {
		now := s.clock()
		a.ResolvedBy = &actor
		a.ResolvedAt = &now
		a.ResolutionNote = note
		return nil
	}, &actor)
}

// Dismiss is the manual override out of any non-terminal state.
func (s *Service) Dismiss(ctx context.Context, alertID id.AlertID, actor id.ActorID) (Alert, error) {
	return s.transition(ctx, alertID, StatusDismissed, nil, &actor)
}

// StartProgress moves an acknowledged alert into in_progress.
func (s *Service) StartProgress(ctx context.Context, alertID id.AlertID, actor id.ActorID) (Alert, error) {
	return s.transition(ctx, alertID, StatusInProgress, nil, &actor)
}

// Escalate marks an active alert as escalated. Driven by the generator when
// the acknowledgment deadline passes; there is no human actor.
func (s *Service) Escalate(ctx context.Context, alertID id.AlertID) (Alert, error) {
	a, err := s.transition(ctx, alertID, StatusEscalated, nil, nil)
	if err == nil && s.metrics != nil {
		s.metrics.AlertsEscalated.Inc()
	}
	return a, err
}

// Get returns one alert.
func (s *Service) Get(ctx context.Context, alertID id.AlertID) (Alert, error) {
	return s.store.Get(ctx, alertID)
}

// List returns alerts filtered by status.
func (s *Service) List(ctx context.Context, status Status, limit int) ([]Alert, error) {
	return s.store.List(ctx, status, limit)
}

// ListActiveOlderThan returns active alerts created at or before the cutoff.
func (s *Service) ListActiveOlderThan(ctx context.Context, cutoff time.Time) ([]Alert, error) {
	return s.store.ListActiveOlderThan(ctx, cutoff)
}

// CountOpen returns the number of alerts awaiting attention.
func (s *Service) CountOpen(ctx context.Context) (int, error) {
	return s.store.CountOpen(ctx)
}

// transition loads the alert, validates the move, applies mutate, persists,
// and audits. The original state is untouched on any validation failure.
func (s *Service) transition(ctx context.Context, alertID id.AlertID, target Status, mutate func(*Alert) error, actor *id.ActorID) (Alert, error) {
	a, err := s.store.Get(ctx, alertID)
	if err != nil {
		return Alert{}, fmt.Errorf("load alert: %w", err)
	}

	if !a.Status.CanTransition(target) {
		return Alert{}, dErrors.New(dErrors.CodeInvalidState,
			fmt.Sprintf("cannot transition alert from %s to %s", a.Status, target))
	}

	from := a.Status
	a.Status = target
	a.UpdatedAt = s.clock()
	if mutate != nil {
		if err := mutate(&a); err != nil {
			return Alert{}, err
		}
	}

	if err := s.store.Update(ctx, a); err != nil {
		return Alert{}, fmt.Errorf("persist alert transition: %w", err)
	}

	subject := &audit.SubjectRef{Kind: audit.SubjectAlert, ID: a.ID.String()}
	if _, err := s.recorder.Record(ctx, audit.Entry{
		Actor:       actor,
		Kind:        audit.KindAlertTransition,
		Severity:    audit.SeverityLow,
		Subject:     subject,
		Description: fmt.Sprintf("alert %q moved from %s to %s", a.Title, from, target),
		Context: map[string]any{
			"alert_type": string(a.Type),
			"from":       string(from),
			"to":         string(target),
		},
	}); err != nil {
		// The transition itself succeeded; the missing audit row is already
		// on the fallback channel via the recorder.
		s.logger.WarnContext(ctx, "alert transition applied but not audited",
			"alert_id", a.ID.String(),
			"error", err,
		)
	}

	return a, nil
}
