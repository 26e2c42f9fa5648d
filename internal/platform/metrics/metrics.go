package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the audit service.
type Metrics struct {
	EventsRecorded  *prometheus.CounterVec
	RecordFailures  prometheus.Counter
	RecordDuration  prometheus.Histogram
	AnomalousActors prometheus.Counter

	AlertsRaised    prometheus.Counter
	AlertsDeduped   prometheus.Counter
	AlertsEscalated prometheus.Counter

	EventsPurged prometheus.Counter

	SIEMForwarded prometheus.Counter
	SIEMDropped   prometheus.Counter

	HTTPDuration *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		EventsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "medguard_audit_events_recorded_total",
			Help: "Total number of audit events recorded, by kind and severity",
		}, []string{"kind", "severity"}),
		RecordFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medguard_audit_record_failures_total",
			Help: "Total number of audit event persistence failures",
		}),
		RecordDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "medguard_audit_record_duration_seconds",
			Help:    "Latency of audit event persistence",
			Buckets: prometheus.DefBuckets,
		}),
		AnomalousActors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medguard_audit_anonymous_actor_anomalies_total",
			Help: "Events recorded without an actor for kinds that normally require one",
		}),
		AlertsRaised: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medguard_alerts_raised_total",
			Help: "Total number of new compliance alerts created",
		}),
		AlertsDeduped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medguard_alerts_deduplicated_total",
			Help: "Generator runs that updated an existing open alert instead of inserting",
		}),
		AlertsEscalated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medguard_alerts_escalated_total",
			Help: "Alerts escalated after missing the acknowledgment deadline",
		}),
		EventsPurged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medguard_audit_events_purged_total",
			Help: "Audit rows deleted by the retention sweep",
		}),
		SIEMForwarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medguard_siem_events_forwarded_total",
			Help: "Security events forwarded to the SIEM topic",
		}),
		SIEMDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "medguard_siem_events_dropped_total",
			Help: "Security events dropped because the forwarder buffer was full",
		}),
		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medguard_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}
