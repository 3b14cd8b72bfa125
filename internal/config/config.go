package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Backend
	BackendURL  string        `envconfig:"BACKEND_URL" default:"http://localhost:3000"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`

	// Resilience
	MaxConcurrency      int           `envconfig:"MAX_CONCURRENCY" default:"50"`
	BreakerFailureRatio float64       `envconfig:"BREAKER_FAILURE_RATIO" default:"0.6"`
	BreakerMinRequests  uint32        `envconfig:"BREAKER_MIN_REQUESTS" default:"5"`
	BreakerOpenTimeout  time.Duration `envconfig:"BREAKER_OPEN_TIMEOUT" default:"10s"`

	// Console
	TimeZone         string        `envconfig:"CONSOLE_TIME_ZONE" default:"America/Mexico_City"`
	ControllerTTL    time.Duration `envconfig:"CONTROLLER_TTL" default:"30m"`
	CategoryCacheTTL time.Duration `envconfig:"CATEGORY_CACHE_TTL" default:"5m"`

	// Sessions
	SessionStore   string        `envconfig:"SESSION_STORE" default:"memory"`
	SessionTTL     time.Duration `envconfig:"SESSION_TTL" default:"12h"`
	RedisAddr      string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD"`
	RedisDB        int           `envconfig:"REDIS_DB" default:"0"`
	CookieSecure   bool          `envconfig:"COOKIE_SECURE" default:"false"`
	LoginRateLimit int           `envconfig:"LOGIN_RATE_LIMIT" default:"10"`

	// Observability
	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.BackendURL == "" {
		return errors.New("BACKEND_URL must be provided")
	}
	switch c.SessionStore {
	case "memory", "redis":
	default:
		return fmt.Errorf("SESSION_STORE must be memory or redis, got %q", c.SessionStore)
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	return nil
}
