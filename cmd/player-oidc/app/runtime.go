package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	oauth "github.com/giantswarm/player-oidc"
	"github.com/giantswarm/player-oidc/instrumentation"
	"github.com/giantswarm/player-oidc/providers"
	"github.com/giantswarm/player-oidc/providers/static"
	"github.com/giantswarm/player-oidc/security"
	"github.com/giantswarm/player-oidc/server"
	"github.com/giantswarm/player-oidc/signing"
	"github.com/giantswarm/player-oidc/storage"
	"github.com/giantswarm/player-oidc/storage/memory"
	"github.com/giantswarm/player-oidc/storage/redis"
	"github.com/giantswarm/player-oidc/storage/sqlite"
)

// runtime holds the wired components of a running process
type runtime struct {
	cfg    *oauth.Config
	logger *slog.Logger

	inst      *instrumentation.Instrumentation
	server    *server.Server
	directory *static.Directory
	codes     *memory.CodeStore
	limiter   *security.RateLimiter

	// memStore is set for the memory backend. It and the code store
	// register their own size gauges in SetInstrumentation.
	memStore *memory.Store

	checks  map[string]oauth.HealthCheck
	closers []func() error
}

// newRuntime opens storage, loads the signing key and the account file and
// builds the authorization server. On error everything opened so far is
// closed again.
func newRuntime(ctx context.Context, cfg *oauth.Config, logger *slog.Logger) (_ *runtime, err error) {
	rt := &runtime{
		cfg:    cfg,
		logger: logger,
		checks: make(map[string]oauth.HealthCheck),
	}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
		}
	}()

	rt.inst, err = instrumentation.New(cfg.InstrumentationConfig(version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize instrumentation: %w", err)
	}

	clients, ledger, err := rt.openStorage(ctx)
	if err != nil {
		return nil, err
	}

	serverCfg := cfg.ServerConfig()
	rt.codes = memory.NewCodeStore(
		cmp.Or(serverCfg.CodeMaxAge, server.DefaultCodeMaxAge),
		cmp.Or(serverCfg.SweepInterval, server.DefaultSweepInterval),
	)
	rt.codes.SetLogger(logger)
	rt.codes.SetInstrumentation(rt.inst)

	enc, err := cfg.NewEncryptor()
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	if !enc.IsEnabled() {
		logger.Warn("Signing key is stored unencrypted; set " + oauth.EnvPrefix + "ENCRYPTION_KEY to seal it")
	}
	keys, err := signing.LoadOrGenerate(cfg.SigningKeyPath, enc)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}

	rt.directory, err = static.Load(cfg.AccountsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	identity, err := providers.NewAuthenticator(rt.directory, rt.directory)
	if err != nil {
		return nil, err
	}

	rt.server, err = server.New(clients, ledger, rt.codes, keys, identity, serverCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization server: %w", err)
	}
	rt.server.SetInstrumentation(rt.inst)
	rt.server.SetAuditor(security.NewAuditor(logger, cfg.EnableAuditLogging))

	rt.limiter = cfg.NewRateLimiter(logger)
	if rt.limiter != nil {
		rt.server.SetRateLimiter(rt.limiter)
	}

	logger.Info("Authorization server ready",
		"issuer", cfg.Issuer,
		"storage", cfg.Storage.Backend,
		"key_id", keys.KeyID(),
		"accounts", rt.directory.Len())

	return rt, nil
}

// openStorage returns the client store and the revocation ledger for the
// configured backend. The redis backend keeps clients in SQLite.
func (rt *runtime) openStorage(ctx context.Context) (storage.ClientStore, storage.RevocationLedger, error) {
	cfg := rt.cfg.Storage

	if cfg.Backend == oauth.StorageMemory {
		rt.logger.Warn("Using in-memory storage; clients and revocations are lost on restart")
		store := memory.New()
		store.SetLogger(rt.logger)
		store.SetInstrumentation(rt.inst)
		rt.memStore = store
		return store, store, nil
	}

	db, err := sqlite.Open(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	db.SetLogger(rt.logger)
	db.SetInstrumentation(rt.inst)
	rt.closers = append(rt.closers, db.Close)
	rt.checks["sqlite"] = db.Ping

	if cfg.Backend != oauth.StorageRedis {
		return db, db, nil
	}

	ledger, err := redis.New(ctx, redis.Config{URL: cfg.RedisURL, KeyPrefix: cfg.RedisKeyPrefix})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	ledger.SetLogger(rt.logger)
	ledger.SetInstrumentation(rt.inst)
	rt.closers = append(rt.closers, ledger.Close)
	rt.checks["redis"] = ledger.Ping

	return db, ledger, nil
}

// handler builds the HTTP handler with a health check per external store
func (rt *runtime) handler() *oauth.Handler {
	h := oauth.NewHandler(rt.server, rt.logger)
	names := make([]string, 0, len(rt.checks))
	for name := range rt.checks {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		h.AddHealthCheck(name, rt.checks[name])
	}
	return h
}

// requireDurable rejects commands that would write to throwaway storage
func (rt *runtime) requireDurable() error {
	if rt.memStore != nil {
		return errors.New("client management requires the sqlite or redis storage backend")
	}
	return nil
}

// Close releases stores in reverse order of opening and flushes telemetry
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.limiter != nil {
		rt.limiter.Stop()
	}
	for _, closeFn := range slices.Backward(rt.closers) {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	if rt.inst != nil {
		if err := rt.inst.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down instrumentation: %w", err))
		}
	}
	return errors.Join(errs...)
}
