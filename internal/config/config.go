package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`

	DatabaseURL    string `env:"DATABASE_URL"`
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"postgres"`

	JWTIssuer          string        `env:"JWT_ISSUER" envDefault:"account-auth-service"`
	JWTAudience        string        `env:"JWT_AUDIENCE" envDefault:"account-auth-service-api"`
	JWTSecret          string        `env:"JWT_SECRET"`
	JWTTTL             time.Duration `env:"JWT_TTL" envDefault:"60m"`
	JWTRefreshTTL      time.Duration `env:"JWT_REFRESH_TTL" envDefault:"336h"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	RedisEnabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"auth"`

	TokenBlocklistCleanupInterval time.Duration `env:"TOKEN_BLOCKLIST_CLEANUP_INTERVAL" envDefault:"10m"`

	AppBaseURL             string        `env:"APP_BASE_URL" envDefault:"http://localhost:3000"`
	NotifySender           string        `env:"NOTIFY_SENDER" envDefault:"log"`
	SMTPHost               string        `env:"SMTP_HOST"`
	SMTPPort               int           `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername           string        `env:"SMTP_USERNAME"`
	SMTPPassword           string        `env:"SMTP_PASSWORD"`
	MailFromAddress        string        `env:"MAIL_FROM_ADDRESS" envDefault:"no-reply@localhost"`
	MailFromName           string        `env:"MAIL_FROM_NAME" envDefault:"Account Service"`
	NotifyDispatchInterval time.Duration `env:"NOTIFY_DISPATCH_INTERVAL" envDefault:"5s"`
	NotifyBatchSize        int           `env:"NOTIFY_BATCH_SIZE" envDefault:"50"`
	NotifyMaxAttempts      int           `env:"NOTIFY_MAX_ATTEMPTS" envDefault:"5"`
	NotifyRetention        time.Duration `env:"NOTIFY_RETENTION" envDefault:"168h"`
	NotifyClaimLease       time.Duration `env:"NOTIFY_CLAIM_LEASE" envDefault:"2m"`

	ReadinessProbeTimeout        time.Duration `env:"READINESS_PROBE_TIMEOUT" envDefault:"1s"`
	ShutdownTimeout              time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"20s"`
	ShutdownHTTPDrainTimeout     time.Duration `env:"SHUTDOWN_HTTP_DRAIN_TIMEOUT" envDefault:"10s"`
	ShutdownObservabilityTimeout time.Duration `env:"SHUTDOWN_OBSERVABILITY_TIMEOUT" envDefault:"8s"`

	OTELServiceName           string        `env:"OTEL_SERVICE_NAME" envDefault:"account-auth-service"`
	OTELEnvironment           string        `env:"OTEL_ENVIRONMENT"`
	OTELExporterOTLPEndpoint  string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTELExporterOTLPInsecure  bool          `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	OTELMetricsExportInterval time.Duration `env:"OTEL_METRICS_EXPORT_INTERVAL" envDefault:"10s"`
	OTELTraceSamplingRatio    float64       `env:"OTEL_TRACE_SAMPLING_RATIO" envDefault:"1.0"`
	OTELMetricsEnabled        bool          `env:"OTEL_METRICS_ENABLED" envDefault:"true"`
	OTELTracingEnabled        bool          `env:"OTEL_TRACING_ENABLED" envDefault:"true"`
	OTELLogsEnabled           bool          `env:"OTEL_LOGS_ENABLED" envDefault:"true"`
	OTELLogLevel              string        `env:"OTEL_LOG_LEVEL" envDefault:"info"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.DatabaseDriver = strings.ToLower(strings.TrimSpace(c.DatabaseDriver))
	c.NotifySender = strings.ToLower(strings.TrimSpace(c.NotifySender))
	c.OTELLogLevel = strings.ToLower(c.OTELLogLevel)
	c.AppBaseURL = strings.TrimRight(c.AppBaseURL, "/")
	c.CORSAllowedOrigins = compact(c.CORSAllowedOrigins)
	if c.OTELEnvironment == "" {
		c.OTELEnvironment = c.Env
	}
}

func (c *Config) Validate() error {
	var errs []string
	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.DatabaseDriver != "postgres" && c.DatabaseDriver != "sqlite" {
		errs = append(errs, "DATABASE_DRIVER must be one of postgres, sqlite")
	}
	if len(c.JWTSecret) < 32 {
		errs = append(errs, "JWT_SECRET must be at least 32 chars")
	}
	if c.JWTTTL <= 0 || c.JWTTTL > 24*time.Hour {
		errs = append(errs, "JWT_TTL must be between 1s and 24h")
	}
	if c.JWTRefreshTTL < c.JWTTTL || c.JWTRefreshTTL > (90*24*time.Hour) {
		errs = append(errs, "JWT_REFRESH_TTL must be between JWT_TTL and 90d")
	}
	if c.RedisEnabled && strings.TrimSpace(c.RedisAddr) == "" {
		errs = append(errs, "REDIS_ADDR is required when REDIS_ENABLED=true")
	}
	if c.TokenBlocklistCleanupInterval <= 0 {
		errs = append(errs, "TOKEN_BLOCKLIST_CLEANUP_INTERVAL must be > 0")
	}
	if u, err := url.Parse(c.AppBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "APP_BASE_URL must be an absolute URL")
	}
	switch c.NotifySender {
	case "log":
	case "smtp":
		if c.SMTPHost == "" {
			errs = append(errs, "SMTP_HOST is required when NOTIFY_SENDER=smtp")
		}
		if c.SMTPPort <= 0 || c.SMTPPort > 65535 {
			errs = append(errs, "SMTP_PORT must be a valid port")
		}
	default:
		errs = append(errs, "NOTIFY_SENDER must be one of log, smtp")
	}
	if c.MailFromAddress == "" {
		errs = append(errs, "MAIL_FROM_ADDRESS is required")
	}
	if c.NotifyDispatchInterval <= 0 {
		errs = append(errs, "NOTIFY_DISPATCH_INTERVAL must be > 0")
	}
	if c.NotifyBatchSize <= 0 {
		errs = append(errs, "NOTIFY_BATCH_SIZE must be > 0")
	}
	if c.NotifyMaxAttempts <= 0 {
		errs = append(errs, "NOTIFY_MAX_ATTEMPTS must be > 0")
	}
	if c.NotifyRetention < 0 {
		errs = append(errs, "NOTIFY_RETENTION must be >= 0")
	}
	if c.NotifyClaimLease < 0 {
		errs = append(errs, "NOTIFY_CLAIM_LEASE must be >= 0")
	}
	if c.ReadinessProbeTimeout <= 0 {
		errs = append(errs, "READINESS_PROBE_TIMEOUT must be > 0")
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, "SHUTDOWN_TIMEOUT must be > 0")
	}
	if c.ShutdownHTTPDrainTimeout <= 0 || c.ShutdownHTTPDrainTimeout > c.ShutdownTimeout {
		errs = append(errs, "SHUTDOWN_HTTP_DRAIN_TIMEOUT must be > 0 and <= SHUTDOWN_TIMEOUT")
	}
	if c.ShutdownObservabilityTimeout <= 0 || c.ShutdownObservabilityTimeout > c.ShutdownTimeout {
		errs = append(errs, "SHUTDOWN_OBSERVABILITY_TIMEOUT must be > 0 and <= SHUTDOWN_TIMEOUT")
	}
	if (c.OTELMetricsEnabled || c.OTELTracingEnabled || c.OTELLogsEnabled) && c.OTELExporterOTLPEndpoint == "" {
		errs = append(errs, "OTEL_EXPORTER_OTLP_ENDPOINT is required when OTel is enabled")
	}
	if c.OTELTraceSamplingRatio < 0 || c.OTELTraceSamplingRatio > 1 {
		errs = append(errs, "OTEL_TRACE_SAMPLING_RATIO must be between 0 and 1")
	}
	if c.OTELMetricsExportInterval <= 0 {
		errs = append(errs, "OTEL_METRICS_EXPORT_INTERVAL must be > 0")
	}
	if !isValidLogLevel(c.OTELLogLevel) {
		errs = append(errs, "OTEL_LOG_LEVEL must be one of debug, info, warn, error")
	}
	if !c.IsLocal() {
		errs = append(errs, c.productionErrors()...)
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// productionErrors holds the rules relaxed for local-like environments.
func (c *Config) productionErrors() []string {
	var errs []string
	if c.DatabaseDriver == "sqlite" {
		errs = append(errs, "DATABASE_DRIVER=sqlite is only allowed in local environments")
	}
	if c.NotifySender != "smtp" {
		errs = append(errs, "NOTIFY_SENDER must be smtp outside local environments")
	}
	if !strings.HasPrefix(c.AppBaseURL, "https://") {
		errs = append(errs, "APP_BASE_URL must use https outside local environments")
	}
	for _, origin := range c.CORSAllowedOrigins {
		if origin == "*" {
			errs = append(errs, "CORS_ALLOWED_ORIGINS must not contain * outside local environments")
			break
		}
	}
	return errs
}

// IsLocal reports whether APP_ENV names a development or test environment.
func (c *Config) IsLocal() bool { return isLocalLikeEnv(c.Env) }

func isLocalLikeEnv(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "development", "dev", "local", "test":
		return true
	default:
		return false
	}
}

func isValidLogLevel(v string) bool {
	switch strings.ToLower(v) {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func compact(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trim := strings.TrimSpace(p)
		if trim != "" {
			out = append(out, trim)
		}
	}
	return out
}
