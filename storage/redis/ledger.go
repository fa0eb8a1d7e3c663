package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/giantswarm/player-oidc/instrumentation"
	"github.com/giantswarm/player-oidc/storage"
)

const (
	backendName = "redis"

	// DefaultKeyPrefix namespaces ledger keys
	DefaultKeyPrefix = "player-oidc:"

	// expiryGrace keeps an entry past the token expiry to cover clock skew
	// between instances validating the token.
	expiryGrace = time.Minute

	// Default timeouts
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// Config holds the Redis connection settings
type Config struct {
	// URL is a redis:// or rediss:// URL (required)
	URL string

	// KeyPrefix namespaces keys (default "player-oidc:")
	KeyPrefix string
}

// storedEntry is the JSON value kept for each revoked token id
type storedEntry struct {
	TokenType string `json:"token_type"`
	ClientID  string `json:"client_id"`
	RevokedAt int64  `json:"revoked_at"`
	ExpiresAt int64  `json:"expires_at"`
}

// Ledger implements storage.RevocationLedger on Redis.
type Ledger struct {
	client    goredis.UniversalClient
	keyPrefix string
	now       func() time.Time
	recorder  *storage.OpRecorder
	logger    *slog.Logger
}

var _ storage.RevocationLedger = (*Ledger)(nil)

// New connects to Redis and verifies the connection
func New(ctx context.Context, cfg Config) (*Ledger, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis url is required")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewWithClient(client, cfg.KeyPrefix), nil
}

// NewWithClient wraps a pre-configured client. Useful with miniredis.
func NewWithClient(client goredis.UniversalClient, keyPrefix string) *Ledger {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Ledger{
		client:    client,
		keyPrefix: keyPrefix,
		now:       time.Now,
		logger:    slog.Default(),
	}
}

// SetClock replaces the time source used to compute entry TTLs
func (l *Ledger) SetClock(now func() time.Time) {
	if now != nil {
		l.now = now
	}
}

// SetLogger sets a custom logger
func (l *Ledger) SetLogger(logger *slog.Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// SetInstrumentation enables spans and operation metrics
func (l *Ledger) SetInstrumentation(inst *instrumentation.Instrumentation) {
	l.recorder = storage.NewOpRecorder(backendName, inst)
}

// Close closes the Redis client
func (l *Ledger) Close() error {
	return l.client.Close()
}

// Ping checks Redis connectivity
func (l *Ledger) Ping(ctx context.Context) error {
	return classify(l.client.Ping(ctx).Err())
}

func (l *Ledger) key(tokenID string) string {
	return l.keyPrefix + "revoked:" + tokenID
}

// classify maps transport failures to storage.ErrUnavailable. Context errors
// are returned as is so deadlines stay recognizable.
func classify(err error) error {
	if err == nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
}

// Revoke stores the entry until shortly after its expiry. An existing entry
// is kept; entries for tokens already past expiry are not stored.
func (l *Ledger) Revoke(ctx context.Context, entry *storage.RevokedToken) (err error) {
	ctx, span := l.recorder.Start(ctx, "revoke")
	defer func(start time.Time) { l.recorder.Done(ctx, span, "revoke", err, start) }(time.Now())

	if entry == nil || entry.TokenID == "" {
		return errors.New("revocation entry requires a token id")
	}

	ttl := entry.ExpiresAt.Sub(l.now()) + expiryGrace
	if ttl <= 0 {
		l.logger.Debug("Skipping revocation of already expired token", "token_type", entry.TokenType)
		return nil
	}

	data, err := json.Marshal(storedEntry{
		TokenType: entry.TokenType,
		ClientID:  entry.ClientID,
		RevokedAt: entry.RevokedAt.UnixMilli(),
		ExpiresAt: entry.ExpiresAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal revocation: %w", err)
	}

	if err := l.client.SetNX(ctx, l.key(entry.TokenID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to record revocation: %w", classify(err))
	}
	return nil
}

// IsRevoked reports whether tokenID has an entry
func (l *Ledger) IsRevoked(ctx context.Context, tokenID string) (revoked bool, err error) {
	ctx, span := l.recorder.Start(ctx, "is_revoked")
	defer func(start time.Time) { l.recorder.Done(ctx, span, "is_revoked", err, start) }(time.Now())

	n, err := l.client.Exists(ctx, l.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", classify(err))
	}
	return n > 0, nil
}

// GetRevoked returns the entry for tokenID or storage.ErrNotFound
func (l *Ledger) GetRevoked(ctx context.Context, tokenID string) (entry *storage.RevokedToken, err error) {
	ctx, span := l.recorder.Start(ctx, "get_revoked")
	defer func(start time.Time) { l.recorder.Done(ctx, span, "get_revoked", err, start) }(time.Now())

	data, err := l.client.Get(ctx, l.key(tokenID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get revocation: %w", classify(err))
	}

	var stored storedEntry
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal revocation: %w", err)
	}
	return &storage.RevokedToken{
		TokenID:   tokenID,
		TokenType: stored.TokenType,
		ClientID:  stored.ClientID,
		RevokedAt: time.UnixMilli(stored.RevokedAt).UTC(),
		ExpiresAt: time.UnixMilli(stored.ExpiresAt).UTC(),
	}, nil
}

// PurgeExpired is a no-op: Redis expires entries through their TTL.
func (l *Ledger) PurgeExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}
