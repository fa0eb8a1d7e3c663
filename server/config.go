package server

import (
	"log/slog"
	"slices"
	"time"
)

// Default lifetimes and intervals
const (
	DefaultCodeMaxAge      = 10 * time.Minute
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 4 * 7 * 24 * time.Hour
	DefaultSweepInterval   = 60 * time.Second
	DefaultStoreTimeout    = 3 * time.Second
	DefaultClockSkew       = 5 * time.Second
)

// Scopes understood by the server
const (
	ScopeOpenID  = "openid"
	ScopeProfile = "profile"
)

// Config holds authorization server configuration
type Config struct {
	// Issuer is the server's issuer identifier (base URL). It is the iss
	// claim of every token and the base of the discovery document.
	Issuer string

	// CodeMaxAge is how long an authorization code may wait for exchange
	// Default: 10 minutes
	CodeMaxAge time.Duration

	// AccessTokenTTL is how long access and ID tokens are valid
	// Default: 15 minutes
	AccessTokenTTL time.Duration

	// RefreshTokenTTL is how long refresh tokens are valid
	// Default: 4 weeks
	RefreshTokenTTL time.Duration

	// SweepInterval throttles sweeps of the authorization code store and
	// drives the background sweeper
	// Default: 60 seconds
	SweepInterval time.Duration

	// StoreTimeout bounds every call to the client store, revocation ledger
	// and identity directory. A timeout surfaces as temporarily_unavailable.
	// Default: 3 seconds
	StoreTimeout time.Duration

	// ClockSkewGracePeriod is tolerated when checking token expiry
	// Default: 5 seconds
	ClockSkewGracePeriod time.Duration

	// AllowedAudiences restricts which client ids may appear as the
	// audience of an access token presented to a resource server.
	// Empty allows every registered client.
	AllowedAudiences []string

	// SupportedScopes lists the scopes clients may request.
	// Default: openid, profile
	SupportedScopes []string

	// AllowInsecureHTTP permits an http:// issuer on a non-localhost host
	// WARNING: tokens and passwords travel in clear text
	// Default: false
	AllowInsecureHTTP bool

	// TrustProxy enables trusting X-Forwarded-For headers
	// WARNING: Only enable if behind a trusted reverse proxy
	// Default: false
	TrustProxy bool

	// TrustedProxyCount is the number of trusted proxies in front of this server
	// Default: 1
	TrustedProxyCount int
}

// applySecureDefaults fills unset values and logs warnings for risky settings
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	applyTimeDefaults(config)

	if len(config.SupportedScopes) == 0 {
		config.SupportedScopes = []string{ScopeOpenID, ScopeProfile}
	}
	if config.TrustedProxyCount == 0 {
		config.TrustedProxyCount = 1
	}

	logSecurityWarnings(config, logger)

	return config
}

// applyTimeDefaults sets default values for time-based configuration
func applyTimeDefaults(config *Config) {
	if config.CodeMaxAge <= 0 {
		config.CodeMaxAge = DefaultCodeMaxAge
	}
	if config.AccessTokenTTL <= 0 {
		config.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if config.RefreshTokenTTL <= 0 {
		config.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultSweepInterval
	}
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = DefaultStoreTimeout
	}
	if config.ClockSkewGracePeriod <= 0 {
		config.ClockSkewGracePeriod = DefaultClockSkew
	}
}

// logSecurityWarnings logs warnings for insecure configuration settings
func logSecurityWarnings(config *Config, logger *slog.Logger) {
	if config.CodeMaxAge > DefaultCodeMaxAge {
		logger.Warn("⚠️  SECURITY WARNING: Authorization code lifetime exceeds 10 minutes",
			"code_max_age", config.CodeMaxAge,
			"risk", "Intercepted codes stay exchangeable longer",
			"recommendation", "RFC 6749 4.1.2 recommends a maximum of 10 minutes")
	}
	if config.AccessTokenTTL > time.Hour {
		logger.Warn("⚠️  SECURITY WARNING: Long-lived access tokens",
			"access_token_ttl", config.AccessTokenTTL,
			"risk", "Stolen access tokens stay valid until revoked",
			"recommendation", "Keep access tokens short and use refresh tokens")
	}
	if config.ClockSkewGracePeriod > time.Minute {
		logger.Warn("⚠️  SECURITY WARNING: Large clock skew grace period",
			"clock_skew_grace_period", config.ClockSkewGracePeriod,
			"risk", "Expired tokens are accepted for longer than necessary",
			"recommendation", "Synchronize clocks and keep the grace period at a few seconds")
	}
	if config.TrustProxy {
		logger.Warn("⚠️  SECURITY WARNING: Trusting proxy headers",
			"trusted_proxy_count", config.TrustedProxyCount,
			"risk", "X-Forwarded-For can be spoofed when not behind a trusted proxy",
			"recommendation", "Only enable when running behind a reverse proxy you control")
	}
}

func (c *Config) isSupportedScope(scope string) bool {
	return slices.Contains(c.SupportedScopes, scope)
}

func (c *Config) isAllowedAudience(clientID string) bool {
	return len(c.AllowedAudiences) == 0 || slices.Contains(c.AllowedAudiences, clientID)
}
