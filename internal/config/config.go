package config

import (
	"fmt"
	"net/url"
	"slices"
	"time"

	pkgconfig "github.com/azuma-miyu/filatelier/pkg/config"
)

// Store backends.
const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendDisabled = "disabled"
)

// Catalog modes.
const (
	CatalogHTTP   = "http"
	CatalogMemory = "memory"
)

// Payment modes.
const (
	PaymentGateway = "gateway"
	PaymentMock    = "mock"
	PaymentDemo    = "demo"
)

// Config holds all configuration for the storefront.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"STOREFRONT_HTTP_PORT" envDefault:"8080"`

	// Cart persistence
	StoreBackend string        `env:"STORE_BACKEND" envDefault:"file"`
	StoreDir     string        `env:"STORE_DIR" envDefault:"./data"`
	StoreKey     string        `env:"STORE_KEY" envDefault:"shopping-cart"`
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"2s"`

	// Redis
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	RedisTTL      time.Duration `env:"REDIS_TTL" envDefault:"720h"`

	// PostgreSQL
	PostgresDSN          string `env:"POSTGRES_DSN"`
	SlowQueryThresholdMs int    `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`

	// Catalog
	CatalogURL  string `env:"CATALOG_URL" envDefault:"http://localhost:8001"`
	CatalogMode string `env:"CATALOG_MODE" envDefault:"memory"`

	// Backend hosting payments and orders. Empty records orders in memory.
	BackendURL string `env:"BACKEND_URL"`

	// Payments
	PaymentMode string        `env:"PAYMENT_MODE" envDefault:"mock"`
	DemoDelay   time.Duration `env:"DEMO_DELAY" envDefault:"1s"`

	// Checkout
	IntentTimeout   time.Duration `env:"INTENT_TIMEOUT" envDefault:"3s"`
	ConfirmTimeout  time.Duration `env:"CONFIRM_TIMEOUT" envDefault:"15s"`
	RecordTimeout   time.Duration `env:"RECORD_TIMEOUT" envDefault:"10s"`
	PreviewFallback bool          `env:"CHECKOUT_PREVIEW_FALLBACK" envDefault:"true"`
	Partial         bool          `env:"CHECKOUT_PARTIAL" envDefault:"false"`
	VerifyStock     bool          `env:"CHECKOUT_VERIFY_STOCK" envDefault:"false"`
	SessionTTL      time.Duration `env:"CHECKOUT_SESSION_TTL" envDefault:"30m"`

	SelectionEnabled bool `env:"CART_SELECTION_ENABLED" envDefault:"false"`

	// Auth
	JWTSecret string `env:"JWT_SECRET"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Checkout submission rate limit per client IP
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"2"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"5"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	switch c.StoreBackend {
	case BackendFile:
		if c.StoreDir == "" {
			return fmt.Errorf("STORE_DIR is required for the file backend")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis backend")
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for the postgres backend")
		}
	case BackendMemory, BackendDisabled:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.CatalogMode {
	case CatalogHTTP:
		if err := validURL("CATALOG_URL", c.CatalogURL); err != nil {
			return err
		}
	case CatalogMemory:
	default:
		return fmt.Errorf("unknown CATALOG_MODE %q", c.CatalogMode)
	}

	if !slices.Contains([]string{PaymentGateway, PaymentMock, PaymentDemo}, c.PaymentMode) {
		return fmt.Errorf("unknown PAYMENT_MODE %q", c.PaymentMode)
	}
	if c.PaymentMode == PaymentGateway && c.BackendURL == "" {
		return fmt.Errorf("BACKEND_URL is required when PAYMENT_MODE is %q", PaymentGateway)
	}
	if c.BackendURL != "" {
		if err := validURL("BACKEND_URL", c.BackendURL); err != nil {
			return err
		}
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("CHECKOUT_SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	return nil
}

// RateLimitEnabled reports whether checkout submissions are rate limited.
func (c *Config) RateLimitEnabled() bool {
	return c.RateLimitRPS > 0 && c.RateLimitBurst > 0
}

func validURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	if _, err := url.ParseRequestURI(raw); err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return nil
}
