package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Retention and notification timelines differ between regulatory regimes
// (HIPAA records retention vs POPIA breach notification, for example). They
// are configuration inputs with conservative defaults, and Validate flags
// suspicious combinations instead of silently normalizing them.
const (
	// DefaultRetentionPeriod keeps audit rows for seven years, the strictest
	// regime we operate under.
	DefaultRetentionPeriod = 7 * 365 * 24 * time.Hour

	// DefaultBreachNotificationWindow is the time allowed between detecting a
	// breach and notifying the authority.
	DefaultBreachNotificationWindow = 72 * time.Hour

	// DefaultAlertAckDeadline is how long an active alert may sit
	// unacknowledged before the generator escalates it.
	DefaultAlertAckDeadline = 24 * time.Hour

	// DefaultConsentTTL is how long a granted consent remains valid.
	DefaultConsentTTL = 365 * 24 * time.Hour
)

// Config captures all process-level configuration, built once from the
// environment so main stays lean.
type Config struct {
	Addr        string
	DatabaseURL string

	Redis RedisConfig
	Kafka KafkaConfig

	JWTSigningKey string
	JWTIssuer     string
	// IngestTokenHash is the bcrypt hash of the bearer token service-to-service
	// callers present on the event ingest endpoint.
	IngestTokenHash string

	RetentionPeriod          time.Duration
	BreachNotificationWindow time.Duration
	AlertAckDeadline         time.Duration
	ConsentTTL               time.Duration

	SweepInterval     time.Duration
	GeneratorInterval time.Duration
	SummaryCacheTTL   time.Duration
}

// RedisConfig holds connection settings for the summary cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig holds settings for the SIEM export producer.
type KafkaConfig struct {
	Brokers   []string
	SIEMTopic string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:            envOr("MEDGUARD_ADDR", ":8080"),
		DatabaseURL:     os.Getenv("MEDGUARD_DATABASE_URL"),
		JWTSigningKey:   envOr("MEDGUARD_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:       envOr("MEDGUARD_JWT_ISSUER", "medguard"),
		IngestTokenHash: os.Getenv("MEDGUARD_INGEST_TOKEN_HASH"),

		RetentionPeriod:          envDuration("MEDGUARD_RETENTION_PERIOD", DefaultRetentionPeriod),
		BreachNotificationWindow: envDuration("MEDGUARD_BREACH_NOTIFY_WINDOW", DefaultBreachNotificationWindow),
		AlertAckDeadline:         envDuration("MEDGUARD_ALERT_ACK_DEADLINE", DefaultAlertAckDeadline),
		ConsentTTL:               envDuration("MEDGUARD_CONSENT_TTL", DefaultConsentTTL),

		SweepInterval:     envDuration("MEDGUARD_SWEEP_INTERVAL", 24*time.Hour),
		GeneratorInterval: envDuration("MEDGUARD_GENERATOR_INTERVAL", 5*time.Minute),
		SummaryCacheTTL:   envDuration("MEDGUARD_SUMMARY_CACHE_TTL", 30*time.Second),

		Redis: RedisConfig{
			URL:          os.Getenv("MEDGUARD_REDIS_URL"),
			PoolSize:     envInt("MEDGUARD_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("MEDGUARD_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("MEDGUARD_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("MEDGUARD_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("MEDGUARD_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:   splitNonEmpty(os.Getenv("MEDGUARD_KAFKA_BROKERS")),
			SIEMTopic: envOr("MEDGUARD_SIEM_TOPIC", "medguard.security.events"),
		},
	}
	return cfg
}

// Validate logs warnings for regulatory-timing values that look wrong rather
// than failing startup; the discrepancy between regimes is a stakeholder
// decision, not something this process resolves.
func (c Config) Validate(logger *slog.Logger) {
	if c.RetentionPeriod < 6*365*24*time.Hour {
		logger.Warn("retention period below six years; verify against applicable record-keeping rules",
			"retention_period", c.RetentionPeriod.String(),
		)
	}
	if c.BreachNotificationWindow < 24*time.Hour {
		logger.Warn("breach notification window below 24h; stricter than any configured regime",
			"window", c.BreachNotificationWindow.String(),
		)
	}
	if c.BreachNotificationWindow > 72*time.Hour {
		logger.Warn("breach notification window above 72h; looser than HIPAA and POPIA defaults",
			"window", c.BreachNotificationWindow.String(),
		)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
