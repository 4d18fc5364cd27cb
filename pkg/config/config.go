package config

import (
	"os"
	"strconv"
	"time"

	"github.com/felixgeelhaar/memberly/internal/billing/infrastructure/gateway"
	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv   string
	LogLevel string

	// Database. An empty DatabaseURL selects the local SQLite file.
	DatabaseURL      string
	SQLitePath       string
	DatabaseMaxConns int

	// Redis enables the distributed subscription lock and the plan cache.
	RedisURL string

	// RabbitMQ. Empty means events are dispatched in-process.
	RabbitMQURL   string
	RabbitMQQueue string

	// Outbox
	OutboxPollInterval     time.Duration
	OutboxBatchSize        int
	OutboxMaxRetries       int
	OutboxStatsInterval    time.Duration
	OutboxRetentionDays    int
	OutboxCleanupInterval  time.Duration
	OutboxProcessorEnabled bool

	// Worker
	WorkerHealthAddr string
	WebhookAddr      string

	// Gateway
	GatewayBaseURL         string
	GatewayAccessToken     string
	GatewayNotificationURL string
	GatewayBackURL         string
	GatewayTimeout         time.Duration
	GatewayMaxRetries      int
	GatewayBreakerFailures int
	GatewayBreakerTimeout  time.Duration

	// Billing
	BillingMaxPaymentRetries int
	BillingCheckoutTTL       time.Duration
	BillingSweepSchedule     string
	BillingSweepBatchSize    int
	BillingLockTTL           time.Duration
	BillingPlanCacheTTL      time.Duration
	BillingCurrency          string

	// Mail
	MailFrom string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL:      getEnv("DATABASE_URL", ""),
		SQLitePath:       getEnv("SQLITE_PATH", ""),
		DatabaseMaxConns: getIntEnv("DATABASE_MAX_CONNS", 10),

		RedisURL:      getEnv("REDIS_URL", ""),
		RabbitMQURL:   getEnv("RABBITMQ_URL", ""),
		RabbitMQQueue: getEnv("RABBITMQ_QUEUE", "memberly.worker"),

		OutboxPollInterval:     getDurationEnv("OUTBOX_POLL_INTERVAL", time.Second),
		OutboxBatchSize:        getIntEnv("OUTBOX_BATCH_SIZE", 100),
		OutboxMaxRetries:       getIntEnv("OUTBOX_MAX_RETRIES", 5),
		OutboxStatsInterval:    getDurationEnv("OUTBOX_STATS_INTERVAL", 30*time.Second),
		OutboxRetentionDays:    getIntEnv("OUTBOX_RETENTION_DAYS", 7),
		OutboxCleanupInterval:  getDurationEnv("OUTBOX_CLEANUP_INTERVAL", time.Hour),
		OutboxProcessorEnabled: getBoolEnv("OUTBOX_PROCESSOR_ENABLED", true),

		WorkerHealthAddr: getEnv("WORKER_HEALTH_ADDR", "0.0.0.0:8081"),
		WebhookAddr:      getEnv("WEBHOOK_ADDR", "0.0.0.0:8080"),

		GatewayBaseURL:         getEnv("GATEWAY_BASE_URL", "https://api.mercadopago.com"),
		GatewayAccessToken:     getEnv("GATEWAY_ACCESS_TOKEN", ""),
		GatewayNotificationURL: getEnv("GATEWAY_NOTIFICATION_URL", ""),
		GatewayBackURL:         getEnv("GATEWAY_BACK_URL", ""),
		GatewayTimeout:         getDurationEnv("GATEWAY_TIMEOUT", 10*time.Second),
		GatewayMaxRetries:      getIntEnv("GATEWAY_MAX_RETRIES", 3),
		GatewayBreakerFailures: getIntEnv("GATEWAY_BREAKER_FAILURES", 5),
		GatewayBreakerTimeout:  getDurationEnv("GATEWAY_BREAKER_TIMEOUT", 30*time.Second),

		BillingMaxPaymentRetries: getIntEnv("BILLING_MAX_PAYMENT_RETRIES", 3),
		BillingCheckoutTTL:       getDurationEnv("BILLING_CHECKOUT_TTL", 24*time.Hour),
		BillingSweepSchedule:     getEnv("BILLING_SWEEP_SCHEDULE", "0 3 * * *"),
		BillingSweepBatchSize:    getIntEnv("BILLING_SWEEP_BATCH_SIZE", 500),
		BillingLockTTL:           getDurationEnv("BILLING_LOCK_TTL", 30*time.Second),
		BillingPlanCacheTTL:      getDurationEnv("BILLING_PLAN_CACHE_TTL", 5*time.Minute),
		BillingCurrency:          getEnv("BILLING_CURRENCY", "BRL"),

		MailFrom: getEnv("MAIL_FROM", "billing@memberly.local"),
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// IsLocalMode reports whether the engine runs on SQLite without external services.
func (c *Config) IsLocalMode() bool {
	return c.DatabaseURL == ""
}

// GatewayConfig returns the payment gateway client settings.
func (c *Config) GatewayConfig() gateway.Config {
	return gateway.Config{
		BaseURL:         c.GatewayBaseURL,
		AccessToken:     c.GatewayAccessToken,
		NotificationURL: c.GatewayNotificationURL,
		BackURL:         c.GatewayBackURL,
		Timeout:         c.GatewayTimeout,
		MaxRetries:      c.GatewayMaxRetries,
		BreakerFailures: c.GatewayBreakerFailures,
		BreakerTimeout:  c.GatewayBreakerTimeout,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
