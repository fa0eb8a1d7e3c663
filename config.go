package oauth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/giantswarm/player-oidc/instrumentation"
	"github.com/giantswarm/player-oidc/security"
	"github.com/giantswarm/player-oidc/server"
)

// EnvPrefix prefixes every environment variable read by LoadConfig
const EnvPrefix = "PLAYER_OIDC_"

// Storage backends for clients and the revocation ledger
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
)

// Config holds the deployable configuration of the authorization server.
// It is loaded from the environment and converted into the configuration
// of each component.
type Config struct {
	// Issuer is the public base URL of the server (required)
	Issuer string `env:"ISSUER,required,notEmpty"`

	// ListenAddr is the address the HTTP server binds to
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Token and code lifetimes. Zero keeps the server defaults.
	CodeMaxAge      time.Duration `env:"CODE_MAX_AGE"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL"`
	StoreTimeout    time.Duration `env:"STORE_TIMEOUT"`
	ClockSkew       time.Duration `env:"CLOCK_SKEW"`

	// AllowedAudiences restricts which clients' tokens resource servers accept
	AllowedAudiences []string `env:"ALLOWED_AUDIENCES" envSeparator:","`

	// SupportedScopes lists requestable scopes (default openid, profile)
	SupportedScopes []string `env:"SUPPORTED_SCOPES" envSeparator:","`

	// AllowInsecureHTTP permits an http:// issuer outside localhost
	AllowInsecureHTTP bool `env:"ALLOW_INSECURE_HTTP"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`

	// Storage selects and configures the client store and revocation ledger
	Storage StorageConfig `envPrefix:"STORAGE_"`

	// SigningKeyPath is where the RSA signing key is persisted (PEM)
	SigningKeyPath string `env:"SIGNING_KEY_PATH" envDefault:"signing-key.pem"`

	// EncryptionKey is a base64 AES-256 key sealing the signing key at rest.
	// Empty stores the key unencrypted.
	EncryptionKey string `env:"ENCRYPTION_KEY"`

	// AccountsFile is the YAML account directory
	AccountsFile string `env:"ACCOUNTS_FILE,required,notEmpty"`

	// EnableAuditLogging enables security audit logging
	EnableAuditLogging bool `env:"AUDIT_LOG" envDefault:"true"`

	// MetricsEnabled exposes Prometheus metrics on /metrics
	MetricsEnabled bool `env:"METRICS_ENABLED"`

	// LogClientIPs attaches client IPs to spans
	LogClientIPs bool `env:"LOG_CLIENT_IPS"`

	// LogFormat is "json" or "text"
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// LogLevel is debug, info, warn or error
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// RateLimitConfig holds per-IP rate limiting configuration
type RateLimitConfig struct {
	// Rate is requests per second allowed per IP. Zero disables limiting.
	Rate float64 `env:"RATE" envDefault:"10"`

	// Burst is the maximum burst size allowed per IP
	Burst int `env:"BURST" envDefault:"20"`

	// MaxEntries bounds the number of tracked IPs
	MaxEntries int `env:"MAX_ENTRIES" envDefault:"10000"`

	// TrustProxy enables trusting X-Forwarded-For headers.
	// Only enable behind a trusted reverse proxy.
	TrustProxy bool `env:"TRUST_PROXY"`

	// TrustedProxyCount is the number of proxies in front of the server
	TrustedProxyCount int `env:"TRUSTED_PROXY_COUNT" envDefault:"1"`
}

// StorageConfig selects the durable storage backend
type StorageConfig struct {
	// Backend is memory, sqlite or redis. Redis holds only the revocation
	// ledger; clients then live in SQLite.
	Backend string `env:"BACKEND" envDefault:"sqlite"`

	// SQLitePath is the database file for clients (and the ledger unless
	// Backend is redis)
	SQLitePath string `env:"SQLITE_PATH" envDefault:"player-oidc.db"`

	// RedisURL is a redis:// URL for the revocation ledger
	RedisURL string `env:"REDIS_URL"`

	// RedisKeyPrefix namespaces ledger keys
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX"`
}

// LoadConfig reads the configuration from the environment. Variables from
// .env files in the working directory are loaded first and never override
// variables already set.
func LoadConfig(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env.local", ".env"}
	}
	for _, f := range envFiles {
		// missing files are fine
		_ = godotenv.Load(f)
	}

	var c Config
	if err := env.ParseWithOptions(&c, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks values the environment parser cannot
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageMemory, StorageSQLite:
	case StorageRedis:
		if c.Storage.RedisURL == "" {
			return errors.New("storage backend redis requires " + EnvPrefix + "STORAGE_REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}

	if _, err := c.SlogLevel(); err != nil {
		return err
	}

	if c.RateLimit.Rate < 0 || c.RateLimit.Burst < 0 {
		return errors.New("rate limit values must not be negative")
	}
	return nil
}

// SlogLevel parses LogLevel
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// ServerConfig converts the configuration for server.New
func (c *Config) ServerConfig() *server.Config {
	return &server.Config{
		Issuer:               c.Issuer,
		CodeMaxAge:           c.CodeMaxAge,
		AccessTokenTTL:       c.AccessTokenTTL,
		RefreshTokenTTL:      c.RefreshTokenTTL,
		SweepInterval:        c.SweepInterval,
		StoreTimeout:         c.StoreTimeout,
		ClockSkewGracePeriod: c.ClockSkew,
		AllowedAudiences:     c.AllowedAudiences,
		SupportedScopes:      c.SupportedScopes,
		AllowInsecureHTTP:    c.AllowInsecureHTTP,
		TrustProxy:           c.RateLimit.TrustProxy,
		TrustedProxyCount:    c.RateLimit.TrustedProxyCount,
	}
}

// InstrumentationConfig converts the configuration for instrumentation.New
func (c *Config) InstrumentationConfig(version string) instrumentation.Config {
	cfg := instrumentation.Config{
		ServiceName:    "player-oidc",
		ServiceVersion: version,
		Enabled:        c.MetricsEnabled,
		LogClientIPs:   c.LogClientIPs,
	}
	if c.MetricsEnabled {
		cfg.MetricsExporter = instrumentation.MetricsExporterPrometheus
	}
	return cfg
}

// NewRateLimiter builds the per-IP limiter, or nil when limiting is disabled
func (c *Config) NewRateLimiter(logger *slog.Logger) *security.RateLimiter {
	if c.RateLimit.Rate <= 0 {
		return nil
	}
	return security.NewRateLimiter(c.RateLimit.Rate, c.RateLimit.Burst, c.RateLimit.MaxEntries, logger)
}

// NewEncryptor builds the signing key encryptor, or nil when no key is set
func (c *Config) NewEncryptor() (*security.Encryptor, error) {
	if c.EncryptionKey == "" {
		return nil, nil
	}
	key, err := security.KeyFromBase64(c.EncryptionKey)
	if err != nil {
		return nil, err
	}
	return security.NewEncryptor(key)
}
