package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"medguard/internal/alert"
	"medguard/internal/alert/generator"
	alertmemory "medguard/internal/alert/store/memory"
	alertpg "medguard/internal/alert/store/postgres"
	"medguard/internal/audit"
	auditmemory "medguard/internal/audit/store/memory"
	auditpg "medguard/internal/audit/store/postgres"
	"medguard/internal/breach"
	"medguard/internal/consent"
	jwttoken "medguard/internal/jwt_token"
	"medguard/internal/platform/config"
	"medguard/internal/platform/httpserver"
	"medguard/internal/platform/kafka"
	"medguard/internal/platform/logger"
	"medguard/internal/platform/metrics"
	"medguard/internal/platform/postgres"
	"medguard/internal/platform/redis"
	"medguard/internal/report"
	"medguard/internal/siem"
	httptransport "medguard/internal/transport/http"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	cfg.Validate(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Stores: postgres when a database is configured, in-memory otherwise so
	// the service still runs in local development.
	var (
		sqlDB        *sql.DB
		auditStore   audit.Store
		alertStore   alert.Store
		consentStore consent.Store
		breachStore  breach.Store
	)
	if cfg.DatabaseURL != "" {
		var err error
		sqlDB, err = postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer sqlDB.Close()
		if err := postgres.Migrate(ctx, sqlDB); err != nil {
			log.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		auditStore = auditpg.New(sqlDB, cfg.RetentionPeriod)
		alertStore = alertpg.New(sqlDB)
		consentStore = consent.NewPostgresStore(sqlDB)
		breachStore = breach.NewPostgresStore(sqlDB)
	} else {
		log.Warn("no database configured; using in-memory stores")
		auditStore = auditmemory.New(cfg.RetentionPeriod)
		alertStore = alertmemory.New()
		consentStore = consent.NewMemoryStore()
		breachStore = breach.NewMemoryStore()
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	producer, err := kafka.NewProducer(ctx, cfg.Kafka)
	if err != nil {
		log.Error("failed to connect to kafka", "error", err)
		os.Exit(1)
	}
	if producer != nil {
		defer producer.Close()
	}

	recorderOpts := []audit.RecorderOption{audit.WithMetrics(m)}
	var forwarder *siem.Forwarder
	if producer != nil {
		forwarder = siem.NewForwarder(producer, log, m)
		recorderOpts = append(recorderOpts, audit.WithSink(forwarder))
	}
	recorder := audit.NewRecorder(auditStore, log, recorderOpts...)
	query := audit.NewQuery(auditStore)
	sweeper := audit.NewSweeper(auditStore, log, m, cfg.SweepInterval)

	alerts := alert.NewService(alertStore, recorder, log, alert.WithMetrics(m))
	consents := consent.NewService(consentStore, recorder, log, cfg.ConsentTTL)
	breaches := breach.NewService(breachStore, recorder, log, cfg.BreachNotificationWindow)

	rules := []generator.Rule{
		&generator.BreachNotificationRule{Breaches: breaches},
		&generator.ConsentExpiryRule{Consents: consents},
		&generator.UnresolvedCriticalRule{Events: query, Window: 24 * time.Hour},
	}
	gen := generator.New(alerts, rules, cfg.AlertAckDeadline, cfg.GeneratorInterval, log)

	reportOpts := []report.Option{}
	if redisClient != nil {
		reportOpts = append(reportOpts, report.WithCache(redisClient, cfg.SummaryCacheTTL))
	}
	reports := report.New(query, alerts, breaches, consents, log, reportOpts...)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer)

	handler := httptransport.NewHandler(recorder, query, alerts, consents, breaches, reports, log)
	router := httptransport.NewRouter(httptransport.RouterDeps{
		Handler:         handler,
		Metrics:         m,
		JWTValidator:    jwtService,
		IngestTokenHash: cfg.IngestTokenHash,
		DB:              sqlDB,
		Redis:           redisClient,
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting medguard audit service", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return ignoreCancel(sweeper.Run(gctx)) })
	g.Go(func() error { return ignoreCancel(gen.Run(gctx)) })
	if forwarder != nil {
		g.Go(func() error { return ignoreCancel(forwarder.Run(gctx)) })
	}

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// ignoreCancel treats context cancellation as a clean exit for background
// loops, so shutdown does not report it as a failure.
func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
