package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/storefront"
	pkgconfig "github.com/utafrali/storefront/pkg/config"
	"github.com/utafrali/storefront/pkg/database"
	"github.com/utafrali/storefront/pkg/tracing"
)

// ServiceName identifies this service in logs, metrics and traces.
const ServiceName = "storefront-bff"

const defaultJWTSecret = "your-secret-key-change-in-production"

// Persistence backends for per-session state.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds all configuration for the storefront service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPPort    int    `env:"STOREFRONT_HTTP_PORT" envDefault:"8090"`

	// Commerce backend
	ShopDomain         string        `env:"SHOP_DOMAIN" envDefault:"localhost:8091"`
	ShopAPIVersion     string        `env:"SHOP_API_VERSION" envDefault:"2024-10"`
	ShopAccessToken    string        `env:"SHOP_STOREFRONT_TOKEN"`
	ShopEndpoint       string        `env:"SHOP_ENDPOINT"`
	ShopRequestTimeout time.Duration `env:"SHOP_REQUEST_TIMEOUT" envDefault:"10s"`

	// Locale
	DefaultCountry  string `env:"DEFAULT_COUNTRY" envDefault:"ES"`
	DefaultLanguage string `env:"DEFAULT_LANGUAGE" envDefault:"ES"`

	// Session state
	PersistenceBackend string        `env:"PERSISTENCE_BACKEND" envDefault:"redis"`
	StateTTL           time.Duration `env:"STATE_TTL" envDefault:"720h"`
	SessionIdleTTL     time.Duration `env:"SESSION_IDLE_TTL" envDefault:"30m"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Catalog cache (Redis)
	CatalogCacheEnabled bool          `env:"CATALOG_CACHE_ENABLED" envDefault:"true"`
	CatalogCacheTTL     time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"5m"`

	// PostgreSQL
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     int    `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"storefront"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"storefront"`
	DBName     string `env:"DB_NAME" envDefault:"storefront"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	// Kafka; empty disables event publishing.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// Identity
	JWTSecret string `env:"JWT_SECRET" envDefault:"your-secret-key-change-in-production"`
	JWTIssuer string `env:"JWT_ISSUER" envDefault:"user-service"`

	// HTTP surface
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	RateLimitRPS       int      `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst     int      `env:"RATE_LIMIT_BURST" envDefault:"40"`
	PprofAllowedCIDRs  []string `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`

	// Tracing
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
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
	if c.ShopDomain == "" && c.ShopEndpoint == "" {
		return fmt.Errorf("SHOP_DOMAIN or SHOP_ENDPOINT is required")
	}
	if c.Environment != "development" && c.ShopAccessToken == "" {
		return fmt.Errorf("SHOP_STOREFRONT_TOKEN is required in %s environment", c.Environment)
	}
	if !c.DefaultLocale().Valid() {
		return fmt.Errorf("DEFAULT_COUNTRY %q does not support DEFAULT_LANGUAGE %q", c.DefaultCountry, c.DefaultLanguage)
	}
	switch c.PersistenceBackend {
	case BackendRedis, BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("PERSISTENCE_BACKEND must be one of redis, postgres, memory; got %q", c.PersistenceBackend)
	}
	if c.SessionIdleTTL <= 0 {
		return fmt.Errorf("SESSION_IDLE_TTL must be positive")
	}
	if c.RateLimitRPS < 1 || c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %v", c.OTELSampleRate)
	}
	if c.Environment != "development" && c.JWTSecret == defaultJWTSecret {
		return fmt.Errorf("JWT_SECRET must be changed from default value in %s environment", c.Environment)
	}
	return nil
}

// DefaultLocale is the locale new sessions start in.
func (c *Config) DefaultLocale() domain.Locale {
	return domain.Locale{
		Country:  domain.Country(strings.ToUpper(c.DefaultCountry)),
		Language: domain.Language(strings.ToUpper(c.DefaultLanguage)),
	}
}

// Storefront returns the commerce API client configuration.
func (c *Config) Storefront() storefront.Config {
	return storefront.Config{
		Domain:      c.ShopDomain,
		APIVersion:  c.ShopAPIVersion,
		AccessToken: c.ShopAccessToken,
		Endpoint:    c.ShopEndpoint,
	}
}

// Redis returns the Redis connection configuration.
func (c *Config) Redis() database.RedisConfig {
	rc := database.DefaultRedisConfig()
	rc.Host = c.RedisHost
	rc.Port = c.RedisPort
	rc.Password = c.RedisPassword
	rc.DB = c.RedisDB
	return rc
}

// Postgres returns the PostgreSQL connection configuration.
func (c *Config) Postgres() database.PostgresConfig {
	pc := database.DefaultPostgresConfig()
	pc.Host = c.DBHost
	pc.Port = c.DBPort
	pc.User = c.DBUser
	pc.Password = c.DBPassword
	pc.DBName = c.DBName
	pc.SSLMode = c.DBSSLMode
	return pc
}

// Tracing returns the OpenTelemetry configuration.
func (c *Config) Tracing() tracing.Config {
	tc := tracing.DefaultConfig(ServiceName)
	tc.Environment = c.Environment
	tc.OTLPEndpoint = c.OTELEndpoint
	tc.SampleRate = c.OTELSampleRate
	tc.Enabled = c.OTELEnabled
	return tc
}

// NeedsRedis reports whether any component uses Redis.
func (c *Config) NeedsRedis() bool {
	return c.PersistenceBackend == BackendRedis || c.CatalogCacheEnabled
}
