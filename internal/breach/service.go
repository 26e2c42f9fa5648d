package breach

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"medguard/internal/audit"
	id "medguard/pkg/domain"
	dErrors "medguard/pkg/domain-errors"
)

// Clock abstracts time for deterministic tests.
type Clock func() time.Time

// Service owns the breach notification workflow: report, notify, and the
// overdue view the alert generator consumes.
type Service struct {
	store        Store
	recorder     *audit.Recorder
	logger       *slog.Logger
	notifyWindow time.Duration
	clock        Clock
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

// NewService creates the breach service. notifyWindow is the configured time
// allowed between detection and authority notification.
func NewService(store Store, recorder *audit.Recorder, logger *slog.Logger, notifyWindow time.Duration, opts ...ServiceOption) *Service {
	s := &Service{
		store:        store,
		recorder:     recorder,
		logger:       logger,
		notifyWindow: notifyWindow,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Report registers a newly detected breach and fixes its notification
// deadline.
func (s *Service) Report(ctx context.Context, actor id.ActorID, title, summary string, severity audit.Severity) (Incident, error) {
	if title == "" {
		return Incident{}, dErrors.New(dErrors.CodeBadRequest, "incident title is required")
	}
	if !severity.IsValid() {
		return Incident{}, dErrors.New(dErrors.CodeBadRequest, "invalid severity: "+string(severity))
	}

	now := s.clock()
	incident := Incident{
		ID:         id.NewIncidentID(),
		Title:      title,
		Summary:    summary,
		Severity:   severity,
		DetectedAt: now,
		NotifyBy:   now.Add(s.notifyWindow),
	}

	if err := s.store.Save(ctx, incident); err != nil {
		return Incident{}, fmt.Errorf("save breach incident: %w", err)
	}

	s.audit(ctx, &actor, audit.KindBreachReported, incident,
		fmt.Sprintf("breach incident reported: %s", title))
	return incident, nil
}

// MarkNotified records that the authority notification was sent. One-shot.
func (s *Service) MarkNotified(ctx context.Context, actor id.ActorID, incidentID id.IncidentID) (Incident, error) {
	now := s.clock()
	if err := s.store.MarkNotified(ctx, incidentID, now); err != nil {
		return Incident{}, fmt.Errorf("mark incident notified: %w", err)
	}

	incident, err := s.store.Get(ctx, incidentID)
	if err != nil {
		return Incident{}, fmt.Errorf("reload incident: %w", err)
	}

	s.audit(ctx, &actor, audit.KindBreachNotified, incident,
		fmt.Sprintf("authority notified for breach incident: %s", incident.Title))
	return incident, nil
}

// ListOverdue returns incidents past their deadline without notification.
func (s *Service) ListOverdue(ctx context.Context) ([]Incident, error) {
	return s.store.ListOverdue(ctx, s.clock())
}

// CountOverdue counts overdue incidents as of now. Feeds the alert generator.
func (s *Service) CountOverdue(ctx context.Context, now time.Time) (int, error) {
	return s.store.CountOverdue(ctx, now)
}

func (s *Service) audit(ctx context.Context, actor *id.ActorID, kind audit.ActionKind, incident Incident, description string) {
	_, err := s.recorder.Record(ctx, audit.Entry{
		Actor:       actor,
		Kind:        kind,
		Severity:    incident.Severity,
		Subject:     &audit.SubjectRef{Kind: audit.SubjectBreach, ID: incident.ID.String()},
		Description: description,
		Context: map[string]any{
			"notify_by": incident.NotifyBy.Format(time.RFC3339),
		},
	})
	if err != nil {
		s.logger.WarnContext(ctx, "breach change applied but not audited", "error", err)
	}
}
