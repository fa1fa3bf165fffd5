package config

import (
	"os"
	"strconv"
	"time"

	"github.com/govbridge/govchat/internal/models"
)

type Config struct {
	// NATS configuration
	NatsURL             string
	NatsInboundSubject  string
	NatsOutboundSubject string
	NatsPortalSubject   string
	NatsTimeout         time.Duration

	// Redis configuration (empty URL = in-memory stores)
	RedisURL string

	// LLM classifier configuration
	OpenAIAPIKey string
	OpenAIModel  string
	LLMTimeout   time.Duration

	// Session configuration
	SessionIdleTimeout time.Duration
	SessionSweepEvery  time.Duration
	SessionMaxAge      time.Duration
	HistoryCap         int

	// Queue configuration
	QueueCapacity   int
	WorkersPerQueue int

	// Retry configuration
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// Circuit breaker configuration
	BreakerThreshold int
	BreakerWindow    time.Duration
	BreakerCooldown  time.Duration

	// Automator configuration
	AutomatorTimeout time.Duration

	// Cache TTLs per service
	CacheTTLs map[models.Service]time.Duration

	// Alerting thresholds
	ErrorRateThreshold float64
	LatencyThreshold   time.Duration
	AlertWindow        time.Duration

	// Admin API
	AdminAddr string

	// Service configuration
	ServiceName string
}

func Load() *Config {
	return &Config{
		// NATS settings
		NatsURL:             getEnv("NATS_URL", "nats://localhost:4222"),
		NatsInboundSubject:  getEnv("NATS_INBOUND_SUBJECT", "citizen.message"),
		NatsOutboundSubject: getEnv("NATS_OUTBOUND_SUBJECT", "citizen.reply"),
		NatsPortalSubject:   getEnv("NATS_PORTAL_SUBJECT", "portal.execute"),
		NatsTimeout:         getDurationEnv("NATS_TIMEOUT", 30*time.Second),

		// Redis settings
		RedisURL: getEnv("REDIS_URL", ""),

		// LLM settings
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		LLMTimeout:   getDurationEnv("LLM_TIMEOUT", 30*time.Second),

		// Session settings. The idle timeout doubles as the Redis TTL.
		SessionIdleTimeout: getDurationEnv("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		SessionSweepEvery:  getDurationEnv("SESSION_SWEEP_EVERY", 5*time.Minute),
		SessionMaxAge:      getDurationEnv("SESSION_MAX_AGE", 2*time.Hour),
		HistoryCap:         getIntEnv("SESSION_HISTORY_CAP", 20),

		// Queue settings
		QueueCapacity:   getIntEnv("QUEUE_CAPACITY", 50),
		WorkersPerQueue: getIntEnv("WORKERS_PER_QUEUE", 2),

		// Retry settings
		MaxRetries:     getIntEnv("MAX_RETRIES", 3),
		RetryBaseDelay: getDurationEnv("RETRY_BASE_DELAY", 2*time.Second),
		RetryMaxDelay:  getDurationEnv("RETRY_MAX_DELAY", 30*time.Second),

		// Breaker settings
		BreakerThreshold: getIntEnv("BREAKER_THRESHOLD", 3),
		BreakerWindow:    getDurationEnv("BREAKER_WINDOW", 2*time.Minute),
		BreakerCooldown:  getDurationEnv("BREAKER_COOLDOWN", 5*time.Minute),

		// Automator settings
		AutomatorTimeout: getDurationEnv("AUTOMATOR_TIMEOUT", 60*time.Second),

		// Cache TTLs: long for records that rarely change, short for balances.
		CacheTTLs: map[models.Service]time.Duration{
			models.ServiceBirthCertificate: getDurationEnv("CACHE_TTL_BIRTH_CERTIFICATE", 12*time.Hour),
			models.ServiceNationalID:       getDurationEnv("CACHE_TTL_NATIONAL_ID", 12*time.Hour),
			models.ServiceTaxStatus:        getDurationEnv("CACHE_TTL_TAX_STATUS", 15*time.Minute),
			models.ServicePensionBalance:   getDurationEnv("CACHE_TTL_PENSION_BALANCE", 5*time.Minute),
			models.ServiceLandTitle:        getDurationEnv("CACHE_TTL_LAND_TITLE", 24*time.Hour),
		},

		// Alerting settings
		ErrorRateThreshold: getFloatEnv("ALERT_ERROR_RATE", 0.5),
		LatencyThreshold:   getDurationEnv("ALERT_LATENCY", 45*time.Second),
		AlertWindow:        getDurationEnv("ALERT_WINDOW", 5*time.Minute),

		// Admin settings
		AdminAddr: getEnv("ADMIN_ADDR", ":8090"),

		// Service settings
		ServiceName: getEnv("SERVICE_NAME", "govchat-core"),
	}
}

// CacheTTL returns the configured TTL for a service, defaulting to the
// shortest configured TTL for unknown services.
func (c *Config) CacheTTL(service models.Service) time.Duration {
	if ttl, ok := c.CacheTTLs[service]; ok {
		return ttl
	}
	return 5 * time.Minute
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
