package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	pkgconfig "github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/config"
)

// Config holds all configuration for the storefront service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"STOREFRONT_HTTP_PORT" envDefault:"8010"`

	// Browser origins allowed to call the API; any origin in development.
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// Addresses allowed to reach /debug/pprof.
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.0/8,::1/128" envSeparator:","`

	// Per-client limit on order submissions (POST /orders and checkout).
	// A rate of 0 disables it.
	SubmitRateLimitRPS   float64 `env:"SUBMIT_RATE_LIMIT_RPS" envDefault:"1"`
	SubmitRateLimitBurst int     `env:"SUBMIT_RATE_LIMIT_BURST" envDefault:"5"`

	// Load balancers whose X-Forwarded-For / X-Real-IP are believed. Empty
	// keys the limit on the peer address.
	TrustedProxyCIDRs []string `env:"TRUSTED_PROXY_CIDRS" envSeparator:","`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"ecommerce"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"ecommerce_secret"`
	PostgresDB   string `env:"STOREFRONT_DB_NAME" envDefault:"storefront_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`
	SlowQueryThresholdMs  int   `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"500"`

	// Redis (cart snapshots)
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Carts
	CartTTLHours         int `env:"CART_TTL_HOURS" envDefault:"168"`
	CartSessionCacheSize int `env:"CART_SESSION_CACHE_SIZE" envDefault:"10000"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Exchange rates. The rate service is asked first and the static rates
	// answer when it cannot; a zero static rate is not configured.
	RateServiceURL      string          `env:"RATE_SERVICE_URL"`
	RateStaticGeneral   decimal.Decimal `env:"RATE_STATIC_GENERAL" envDefault:"0"`
	RateStaticSpecial   decimal.Decimal `env:"RATE_STATIC_SPECIAL" envDefault:"0"`
	RateCacheTTLMinutes int             `env:"RATE_CACHE_TTL_MINUTES" envDefault:"15"`

	// Pricing categories
	DiscountExcludedCategories []string `env:"DISCOUNT_EXCLUDED_CATEGORIES" envSeparator:","`
	SpecialRateCategories      []string `env:"SPECIAL_RATE_CATEGORIES" envSeparator:","`

	// Circuit breaker settings for the rate service
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"15"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"4"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load(opts ...pkgconfig.Option) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg, opts...); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.SubmitRateLimitRPS < 0 || c.SubmitRateLimitBurst < 0 {
		return errors.New("SUBMIT_RATE_LIMIT_RPS and SUBMIT_RATE_LIMIT_BURST must not be negative")
	}
	if c.PostgresHost == "" {
		return errors.New("POSTGRES_HOST is required")
	}
	if c.PostgresUser == "" {
		return errors.New("POSTGRES_USER is required")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required")
	}
	if c.CartTTLHours < 1 {
		return fmt.Errorf("CART_TTL_HOURS must be positive, got %d", c.CartTTLHours)
	}
	if c.CartSessionCacheSize < 1 {
		return fmt.Errorf("CART_SESSION_CACHE_SIZE must be positive, got %d", c.CartSessionCacheSize)
	}
	if len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	if c.RateServiceURL != "" {
		if _, err := url.ParseRequestURI(c.RateServiceURL); err != nil {
			return fmt.Errorf("invalid RATE_SERVICE_URL %q: %w", c.RateServiceURL, err)
		}
	}
	if c.RateStaticGeneral.IsNegative() || c.RateStaticSpecial.IsNegative() {
		return errors.New("static exchange rates must not be negative")
	}
	if c.RateCacheTTLMinutes < 1 {
		return fmt.Errorf("RATE_CACHE_TTL_MINUTES must be positive, got %d", c.RateCacheTTLMinutes)
	}
	if c.CBFailureRatio <= 0 || c.CBFailureRatio > 1.0 {
		return fmt.Errorf("CB_FAILURE_RATIO must be in (0, 1], got %f", c.CBFailureRatio)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// CartTTL is how long an untouched cart snapshot is kept.
func (c *Config) CartTTL() time.Duration {
	return time.Duration(c.CartTTLHours) * time.Hour
}

// RateCacheTTL is how long a fetched exchange rate is reused.
func (c *Config) RateCacheTTL() time.Duration {
	return time.Duration(c.RateCacheTTLMinutes) * time.Minute
}
