// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq client, worker and periodic scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetWorkerConcurrency() int
	GetAutomationSweepCron() string
	GetAutomationLockTTL() time.Duration
	IsSchedulerEnabled() bool
}

// PipelineConfig provides settings for the lead store cache.
type PipelineConfig interface {
	GetCacheStaleAfter() time.Duration
	GetCacheGCAfter() time.Duration
	GetReconcileDelay() time.Duration
	GetLoadPageSize() int
	GetLoadMaxRows() int
}

// MessagingConfig provides settings for the outbound messaging gateway.
type MessagingConfig interface {
	GetMessagingGatewayURL() string
	GetMessagingGatewayKey() string
	GetMessagingRatePerSecond() float64
	GetMessagingDefaultRegion() string
	IsMessagingEnabled() bool
}

// SMTPConfig provides settings for the notification mail mirror.
type SMTPConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetSMTPFromAddress() string
	GetSMTPFromName() string
	GetSMTPNotifyAddress() string
	IsSMTPEnabled() bool
}

// MetricsConfig provides settings for the Prometheus endpoint.
type MetricsConfig interface {
	IsMetricsEnabled() bool
	GetMetricsPath() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                    string
	HTTPAddr               string
	DatabaseURL            string
	MigrationsDisabled     bool
	JWTAccessSecret        string
	CORSAllowAll           bool
	CORSOrigins            []string
	CORSAllowCreds         bool
	RedisURL               string
	RedisTLSInsecure       bool
	WorkerConcurrency      int
	AutomationSweepCron    string
	AutomationLockTTL      time.Duration
	CacheStaleAfter        time.Duration
	CacheGCAfter           time.Duration
	ReconcileDelay         time.Duration
	LoadPageSize           int
	LoadMaxRows            int
	MessagingGatewayURL    string
	MessagingGatewayKey    string
	MessagingRatePerSecond float64
	MessagingDefaultRegion string
	SMTPHost               string
	SMTPPort               int
	SMTPUsername           string
	SMTPPassword           string
	SMTPFromAddress        string
	SMTPFromName           string
	SMTPNotifyAddress      string
	MetricsEnabled         bool
	MetricsPath            string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string                 { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool           { return c.RedisTLSInsecure }
func (c *Config) GetWorkerConcurrency() int           { return c.WorkerConcurrency }
func (c *Config) GetAutomationSweepCron() string      { return c.AutomationSweepCron }
func (c *Config) GetAutomationLockTTL() time.Duration { return c.AutomationLockTTL }
func (c *Config) IsSchedulerEnabled() bool            { return c.RedisURL != "" }

// PipelineConfig implementation
func (c *Config) GetCacheStaleAfter() time.Duration { return c.CacheStaleAfter }
func (c *Config) GetCacheGCAfter() time.Duration    { return c.CacheGCAfter }
func (c *Config) GetReconcileDelay() time.Duration  { return c.ReconcileDelay }
func (c *Config) GetLoadPageSize() int              { return c.LoadPageSize }
func (c *Config) GetLoadMaxRows() int               { return c.LoadMaxRows }

// MessagingConfig implementation
func (c *Config) GetMessagingGatewayURL() string      { return c.MessagingGatewayURL }
func (c *Config) GetMessagingGatewayKey() string      { return c.MessagingGatewayKey }
func (c *Config) GetMessagingRatePerSecond() float64  { return c.MessagingRatePerSecond }
func (c *Config) GetMessagingDefaultRegion() string   { return c.MessagingDefaultRegion }
func (c *Config) IsMessagingEnabled() bool            { return c.MessagingGatewayURL != "" }

// SMTPConfig implementation
func (c *Config) GetSMTPHost() string          { return c.SMTPHost }
func (c *Config) GetSMTPPort() int             { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string      { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string      { return c.SMTPPassword }
func (c *Config) GetSMTPFromAddress() string   { return c.SMTPFromAddress }
func (c *Config) GetSMTPFromName() string      { return c.SMTPFromName }
func (c *Config) GetSMTPNotifyAddress() string { return c.SMTPNotifyAddress }
func (c *Config) IsSMTPEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFromAddress != "" && c.SMTPNotifyAddress != ""
}

// MetricsConfig implementation
func (c *Config) IsMetricsEnabled() bool { return c.MetricsEnabled }
func (c *Config) GetMetricsPath() string {
	if c.MetricsPath == "" {
		return "/metrics"
	}
	return c.MetricsPath
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                    getEnv("APP_ENV", "development"),
		HTTPAddr:               getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		MigrationsDisabled:     strings.EqualFold(getEnv("MIGRATIONS_DISABLED", "false"), "true"),
		JWTAccessSecret:        getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:           corsAllowAll,
		CORSOrigins:            corsOrigins,
		CORSAllowCreds:         strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RedisURL:               getEnv("REDIS_URL", ""),
		RedisTLSInsecure:       strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		WorkerConcurrency:      mustInt(getEnv("WORKER_CONCURRENCY", "10")),
		AutomationSweepCron:    getEnv("AUTOMATION_SWEEP_CRON", "@every 15m"),
		AutomationLockTTL:      mustDuration(getEnv("AUTOMATION_LOCK_TTL", "10m")),
		CacheStaleAfter:        mustDuration(getEnv("PIPELINE_CACHE_STALE_AFTER", "2m")),
		CacheGCAfter:           mustDuration(getEnv("PIPELINE_CACHE_GC_AFTER", "10m")),
		ReconcileDelay:         mustDuration(getEnv("PIPELINE_RECONCILE_DELAY", "5s")),
		LoadPageSize:           mustInt(getEnv("PIPELINE_LOAD_PAGE_SIZE", "1000")),
		LoadMaxRows:            mustInt(getEnv("PIPELINE_LOAD_MAX_ROWS", "20000")),
		MessagingGatewayURL:    strings.TrimRight(getEnv("MESSAGING_GATEWAY_URL", ""), "/"),
		MessagingGatewayKey:    getEnv("MESSAGING_GATEWAY_KEY", ""),
		MessagingRatePerSecond: mustFloat(getEnv("MESSAGING_RATE_PER_SECOND", "5")),
		MessagingDefaultRegion: getEnv("MESSAGING_DEFAULT_REGION", "NL"),
		SMTPHost:               getEnv("SMTP_HOST", ""),
		SMTPPort:               mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:           getEnv("SMTP_USERNAME", ""),
		SMTPPassword:           getEnv("SMTP_PASSWORD", ""),
		SMTPFromAddress:        getEnv("SMTP_FROM_ADDRESS", ""),
		SMTPFromName:           getEnv("SMTP_FROM_NAME", "Pipeline"),
		SMTPNotifyAddress:      getEnv("SMTP_NOTIFY_ADDRESS", ""),
		MetricsEnabled:         strings.EqualFold(getEnv("METRICS_ENABLED", "true"), "true"),
		MetricsPath:            getEnv("METRICS_PATH", "/metrics"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.CacheStaleAfter <= 0 || cfg.CacheGCAfter < cfg.CacheStaleAfter {
		return nil, fmt.Errorf("PIPELINE_CACHE_GC_AFTER must be >= PIPELINE_CACHE_STALE_AFTER > 0")
	}
	if cfg.LoadPageSize <= 0 {
		return nil, fmt.Errorf("PIPELINE_LOAD_PAGE_SIZE must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
