package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"medguard/internal/platform/metrics"
	id "medguard/pkg/domain"
	"medguard/pkg/platform/sentinel"
)

// Entry is what callers supply when recording an action. Timestamps and
// retention are deliberately absent: the store assigns them.
type Entry struct {
	Actor       *id.ActorID
	Kind        ActionKind
	Severity    Severity
	Subject     *SubjectRef
	Description string
	Context     map[string]any
}

// Sink receives a copy of each successfully recorded event. Implementations
// must not block; the recorder calls them inline on the write path.
type Sink interface {
	Offer(record EventRecord)
}

// Recorder is the single write path into the event log. Every subsystem calls
// Record synchronously as a direct side effect of its action; nothing is
// deferred or buffered here.
type Recorder struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	sink    Sink
}

// RecorderOption configures the Recorder.
type RecorderOption func(*Recorder)

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

// WithSink attaches a post-persist sink (e.g. the SIEM forwarder).
func WithSink(sink Sink) RecorderOption {
	return func(r *Recorder) { r.sink = sink }
}

// NewRecorder creates the event writer.
func NewRecorder(store Store, logger *slog.Logger, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record validates the entry, appends exactly one durable row, and returns
// the stored record. Expected gaps in the entry (missing context, missing
// actor) never fail the call; only a hard storage failure does, wrapped in
// sentinel.ErrPersistence. A storage failure is additionally logged so the
// compliance gap is visible even when the caller swallows the error.
func (r *Recorder) Record(ctx context.Context, entry Entry) (EventRecord, error) {
	if !entry.Kind.IsValid() {
		return EventRecord{}, fmt.Errorf("unknown action kind %q", entry.Kind)
	}
	if !entry.Severity.IsValid() {
		return EventRecord{}, fmt.Errorf("unknown severity %q", entry.Severity)
	}

	description := entry.Description
	if entry.Actor == nil && !entry.Kind.PermitsNilActor() {
		// Fail open: record anyway, but flag that the actor should have been
		// known for this kind of action.
		description = "[unattributed] " + description
		if r.metrics != nil {
			r.metrics.AnomalousActors.Inc()
		}
		r.logger.WarnContext(ctx, "audit event recorded without actor for attributed kind",
			"kind", string(entry.Kind),
		)
	}

	record := EventRecord{
		Actor:       entry.Actor,
		Kind:        entry.Kind,
		Severity:    entry.Severity,
		Subject:     entry.Subject,
		Description: description,
		Context:     entry.Context,
	}

	start := time.Now()
	if err := r.store.Append(ctx, &record); err != nil {
		if r.metrics != nil {
			r.metrics.RecordFailures.Inc()
		}
		// The absence of an audit record is itself a compliance gap; surface
		// it on the fallback channel regardless of what the caller does.
		r.logger.ErrorContext(ctx, "CRITICAL: audit event persistence failed",
			"kind", string(entry.Kind),
			"severity", string(entry.Severity),
			"error", err,
		)
		return EventRecord{}, fmt.Errorf("%w: append audit event: %v", sentinel.ErrPersistence, err)
	}

	if r.metrics != nil {
		r.metrics.RecordDuration.Observe(time.Since(start).Seconds())
		r.metrics.EventsRecorded.WithLabelValues(string(record.Kind), string(record.Severity)).Inc()
	}

	if r.sink != nil {
		r.sink.Offer(record)
	}

	return record, nil
}

// ResolveSecurityEvent applies the one-shot resolution transition. The note
// is required; validation happens before any mutation.
func (r *Recorder) ResolveSecurityEvent(ctx context.Context, eventID int64, resolver id.ActorID, note string) error {
	if note == "" {
		return fmt.Errorf("resolution note is required")
	}
	if err := r.store.Resolve(ctx, eventID, resolver, note, time.Now()); err != nil {
		return fmt.Errorf("resolve security event %d: %w", eventID, err)
	}
	return nil
}
