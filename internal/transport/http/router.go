package httptransport

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"medguard/internal/platform/metrics"
	"medguard/internal/platform/middleware"
	"medguard/internal/platform/redis"
	"medguard/internal/transport/http/shared"
)

// RouterDeps carries everything the router needs beyond the handlers.
type RouterDeps struct {
	Handler         *Handler
	Metrics         *metrics.Metrics
	JWTValidator    middleware.JWTValidator
	IngestTokenHash string

	// Health check targets; Redis may be nil when caching is disabled.
	DB    *sql.DB
	Redis *redis.Client
}

// NewRouter wires the public API surface. The ingest endpoint authenticates
// machine callers with the shared ingest token; everything else requires a
// staff JWT.
func NewRouter(deps RouterDeps) http.Handler {
	h := deps.Handler

	r := chi.NewRouter()
	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(h.logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.Latency(deps.Metrics))

	r.Get("/healthz", healthHandler(deps))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.CaptureRequestMeta)

		r.With(middleware.RequireIngestToken(deps.IngestTokenHash, deps.JWTValidator, h.logger)).
			Post("/events", h.handleRecordEvent)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(deps.JWTValidator, h.logger))

			r.Get("/events", h.handleListEvents)
			r.Get("/events/summary", h.handleEventSummary)
			r.Post("/events/{id}/resolve", h.handleResolveEvent)

			r.Get("/alerts", h.handleListAlerts)
			r.Get("/alerts/{id}", h.handleGetAlert)
			r.Post("/alerts/{id}/acknowledge", h.handleAcknowledgeAlert)
			r.Post("/alerts/{id}/progress", h.handleStartAlertProgress)
			r.Post("/alerts/{id}/resolve", h.handleResolveAlert)
			r.Post("/alerts/{id}/dismiss", h.handleDismissAlert)

			r.Post("/consents", h.handleGrantConsent)
			r.Post("/consents/revoke", h.handleRevokeConsent)
			r.Get("/consents", h.handleListConsents)

			r.Post("/breaches", h.handleReportBreach)
			r.Post("/breaches/{id}/notified", h.handleMarkBreachNotified)
			r.Get("/breaches/overdue", h.handleListOverdueBreaches)

			r.Get("/dashboard/overview", h.handleDashboardOverview)
		})
	})

	return r
}

// healthHandler reports dependency health. Redis is optional infrastructure,
// so its failure degrades the report but not the status code; the database is
// load-bearing and takes the service unhealthy with it.
func healthHandler(deps RouterDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		status := http.StatusOK
		checks := map[string]string{}

		if deps.DB != nil {
			if err := deps.DB.PingContext(ctx); err != nil {
				checks["postgres"] = "unhealthy"
				status = http.StatusServiceUnavailable
			} else {
				checks["postgres"] = "ok"
			}
		}
		if deps.Redis != nil {
			if err := deps.Redis.Health(ctx); err != nil {
				checks["redis"] = "unhealthy"
			} else {
				checks["redis"] = "ok"
			}
		}

		body := map[string]any{"status": "ok", "checks": checks}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		shared.WriteJSON(w, status, body)
	}
}
