// Package siem exports high-severity audit events to the SIEM Kafka topic.
// The forwarder sits behind the recorder as a non-blocking sink; a slow or
// unavailable broker never touches the primary write path.
package siem

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"medguard/internal/audit"
	"medguard/internal/platform/metrics"
)

// Publisher is the broker seam; satisfied by the platform Kafka producer.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

// Forwarder drains the ring buffer in batches and publishes each event as a
// JSON record keyed by event ID.
type Forwarder struct {
	buffer    *RingBuffer
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics

	batchSize int
	interval  time.Duration
}

// NewForwarder creates the export pipeline.
func NewForwarder(publisher Publisher, logger *slog.Logger, m *metrics.Metrics) *Forwarder {
	return &Forwarder{
		buffer:    NewRingBuffer(10000),
		publisher: publisher,
		logger:    logger,
		metrics:   m,
		batchSize: 100,
		interval:  time.Second,
	}
}

// Offer implements audit.Sink. Only security-relevant events at high severity
// or above are exported; everything else stays in the durable log only.
func (f *Forwarder) Offer(record audit.EventRecord) {
	if record.Severity.Rank() < audit.SeverityHigh.Rank() {
		return
	}
	before := f.buffer.Dropped()
	f.buffer.Enqueue(record)
	if f.metrics != nil {
		if d := f.buffer.Dropped() - before; d > 0 {
			f.metrics.SIEMDropped.Add(float64(d))
		}
	}
}

// Run drains the buffer until the context is cancelled, then flushes what
// remains.
func (f *Forwarder) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.flush(context.Background())
			return ctx.Err()
		case <-ticker.C:
			f.flush(ctx)
		}
	}
}

func (f *Forwarder) flush(ctx context.Context) {
	for {
		batch := f.buffer.DequeueBatch(f.batchSize)
		if len(batch) == 0 {
			return
		}
		for _, record := range batch {
			if err := f.publish(ctx, record); err != nil {
				f.logger.WarnContext(ctx, "siem export failed; event remains in durable log",
					"event_id", record.ID,
					"error", err,
				)
				continue
			}
			if f.metrics != nil {
				f.metrics.SIEMForwarded.Inc()
			}
		}
		if len(batch) < f.batchSize {
			return
		}
	}
}

// exportPayload is the JSON structure published to the SIEM topic.
type exportPayload struct {
	ID          int64          `json:"id"`
	Actor       string         `json:"actor,omitempty"`
	Kind        string         `json:"kind"`
	Severity    string         `json:"severity"`
	Description string         `json:"description"`
	Context     map[string]any `json:"context,omitempty"`
	OccurredAt  string         `json:"occurred_at"`
}

func (f *Forwarder) publish(ctx context.Context, record audit.EventRecord) error {
	payload := exportPayload{
		ID:          record.ID,
		Kind:        string(record.Kind),
		Severity:    string(record.Severity),
		Description: record.Description,
		Context:     record.Context,
		OccurredAt:  record.OccurredAt.Format(time.RFC3339Nano),
	}
	if record.Actor != nil {
		payload.Actor = record.Actor.String()
	}

	value, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return f.publisher.Publish(ctx, []byte(strconv.FormatInt(record.ID, 10)), value)
}
