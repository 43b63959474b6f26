package config

import (
	"errors"
	"fmt"
	"time"

	pkgconfig "github.com/Bulldog-Master/xxvpn-sub001/pkg/config"
	"github.com/Bulldog-Master/xxvpn-sub001/pkg/database"
	"github.com/Bulldog-Master/xxvpn-sub001/pkg/tracing"
)

const defaultJWTSecret = "change-this-to-a-secure-secret"

// Config holds all configuration for the xxvpn API.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	HTTPPort int `env:"HTTP_PORT" envDefault:"8080"`

	// PostgreSQL
	PostgresHost          string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort          int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser          string `env:"POSTGRES_USER" envDefault:"xxvpn"`
	PostgresPass          string `env:"POSTGRES_PASSWORD" envDefault:"xxvpn_secret"`
	PostgresDB            string `env:"POSTGRES_DB_NAME" envDefault:"xxvpn"`
	PostgresSSL           string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	DBMaxConns            int32  `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32  `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int    `env:"DB_MAX_CONN_LIFETIME_MINS" envDefault:"60"`
	DBMaxConnIdleTimeMins int    `env:"DB_MAX_CONN_IDLE_TIME_MINS" envDefault:"30"`
	SlowQueryThresholdMs  int    `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"200"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// JWT
	JWTSecret        string        `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTAccessExpiry  time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	JWTRefreshExpiry time.Duration `env:"JWT_REFRESH_TOKEN_EXPIRY" envDefault:"168h"`

	// Two-factor
	TOTPEncryptionKey string        `env:"TOTP_ENCRYPTION_KEY"`
	TOTPIssuer        string        `env:"TOTP_ISSUER" envDefault:"xxVPN"`
	TOTPRateLimit     int           `env:"TOTP_RATE_LIMIT" envDefault:"10"`
	TOTPChallengeTTL  time.Duration `env:"TOTP_CHALLENGE_TTL" envDefault:"5m"`

	WebhookSecret string `env:"WEBHOOK_SECRET"`

	// xx network
	NDFMirrors      []string      `env:"NDF_MIRRORS" envDefault:"https://elixxir-bins.s3.us-west-1.amazonaws.com/ndf/mainnet.json,https://gateway.xx.network/ndf,https://ndf.xxnetwork.io/mainnet.json" envSeparator:","`
	NDFCacheTTL     time.Duration `env:"NDF_CACHE_TTL" envDefault:"60s"`
	MixnetWASMPath  string        `env:"MIXNET_WASM_PATH" envDefault:""`
	MixnetBridgeURL string        `env:"MIXNET_BRIDGE_URL" envDefault:""`

	// SMTP; an empty host logs mail instead of sending it.
	SMTPHost     string `env:"SMTP_HOST" envDefault:""`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME" envDefault:""`
	SMTPPassword string `env:"SMTP_PASSWORD" envDefault:""`
	SMTPFrom     string `env:"SMTP_FROM" envDefault:"xxVPN <noreply@xxvpn.app>"`

	AuthRateLimitRPS   float64 `env:"AUTH_RATE_LIMIT_RPS" envDefault:"5"`
	AuthRateLimitBurst int     `env:"AUTH_RATE_LIMIT_BURST" envDefault:"10"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// OpenTelemetry
	OTelEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTelSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.1/32" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load xxvpn config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Validate is run by pkgconfig.Load after parsing.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port: %d", c.HTTPPort))
	}
	if !c.IsDevelopment() {
		if c.JWTSecret == defaultJWTSecret {
			errs = append(errs, fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", c.Environment))
		} else if len(c.JWTSecret) < 32 {
			errs = append(errs, fmt.Errorf("JWT_SECRET must be at least 32 characters long, got %d", len(c.JWTSecret)))
		}
		if c.WebhookSecret == "" {
			errs = append(errs, fmt.Errorf("WEBHOOK_SECRET is required in %q mode", c.Environment))
		}
	}
	if c.TOTPEncryptionKey == "" {
		errs = append(errs, errors.New("TOTP_ENCRYPTION_KEY is required"))
	}
	if c.TOTPRateLimit < 1 {
		errs = append(errs, fmt.Errorf("TOTP_RATE_LIMIT must be positive, got %d", c.TOTPRateLimit))
	}
	if c.TOTPChallengeTTL <= 0 {
		errs = append(errs, errors.New("TOTP_CHALLENGE_TTL must be positive"))
	}
	if c.JWTAccessExpiry <= 0 || c.JWTRefreshExpiry <= 0 {
		errs = append(errs, errors.New("JWT token expiries must be positive"))
	}
	if len(c.NDFMirrors) == 0 {
		errs = append(errs, errors.New("NDF_MIRRORS must list at least one mirror"))
	}
	if c.OTelSampleRate < 0 || c.OTelSampleRate > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATE must be within [0,1], got %v", c.OTelSampleRate))
	}
	return errors.Join(errs...)
}

func (c *Config) Postgres() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

func (c *Config) Tracing(service string) tracing.Config {
	return tracing.Config{
		ServiceName:  service,
		Environment:  c.Environment,
		OTLPEndpoint: c.OTelEndpoint,
		SampleRate:   c.OTelSampleRate,
		Enabled:      c.OTelEnabled,
	}
}
