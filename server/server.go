package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/oauth2"

	"github.com/giantswarm/player-oidc/instrumentation"
	"github.com/giantswarm/player-oidc/providers"
	"github.com/giantswarm/player-oidc/security"
	"github.com/giantswarm/player-oidc/signing"
	"github.com/giantswarm/player-oidc/storage"
	"github.com/giantswarm/player-oidc/storage/memory"
)

// Server implements the authorization server flows: authorize, token
// exchange and refresh, revocation and resource-server validation.
type Server struct {
	clients  storage.ClientStore
	ledger   storage.RevocationLedger
	codes    *memory.CodeStore
	keys     *signing.KeyManager
	identity providers.Identity

	Auditor         *security.Auditor
	RateLimiter     *security.RateLimiter
	Instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
	metrics         *instrumentation.Metrics

	Logger *slog.Logger
	Config *Config

	now func() time.Time
}

// New creates a new authorization server. The code store is owned by the
// caller so it can be shared with metrics and shut down with the process.
func New(
	clients storage.ClientStore,
	ledger storage.RevocationLedger,
	codes *memory.CodeStore,
	keys *signing.KeyManager,
	identity providers.Identity,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if clients == nil {
		return nil, fmt.Errorf("client store is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("revocation ledger is required")
	}
	if codes == nil {
		return nil, fmt.Errorf("code store is required")
	}
	if keys == nil {
		return nil, fmt.Errorf("signing key is required")
	}
	if identity == nil {
		return nil, fmt.Errorf("identity provider is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applySecureDefaults(config, logger)

	srv := &Server{
		clients:  clients,
		ledger:   ledger,
		codes:    codes,
		keys:     keys,
		identity: identity,
		tracer:   tracenoop.NewTracerProvider().Tracer(""),
		Logger:   logger,
		Config:   config,
		now:      time.Now,
	}

	if err := srv.validateHTTPSEnforcement(); err != nil {
		return nil, err
	}

	if codes.MaxAge() != config.CodeMaxAge {
		logger.Warn("Code store max age differs from configured code max age",
			"store_max_age", codes.MaxAge(),
			"config_max_age", config.CodeMaxAge)
	}

	return srv, nil
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(auditor *security.Auditor) {
	s.Auditor = auditor
	if auditor != nil && s.metrics != nil {
		metrics := s.metrics
		auditor.SetObserver(func(eventType string) {
			metrics.RecordAuditEvent(context.Background(), eventType)
		})
	}
}

// SetRateLimiter sets the per-IP rate limiter used by the HTTP layer
func (s *Server) SetRateLimiter(rl *security.RateLimiter) {
	s.RateLimiter = rl
}

// SetInstrumentation enables tracing and metrics for the server flows
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.Instrumentation = inst
	if inst == nil {
		return
	}
	s.tracer = inst.Tracer("server")
	s.metrics = inst.Metrics()
	if s.Auditor != nil {
		s.SetAuditor(s.Auditor)
	}
}

// SetClock replaces the time source used for token timestamps and expiry
func (s *Server) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Keys returns the signing key manager
func (s *Server) Keys() *signing.KeyManager {
	return s.keys
}

// generateRandomToken returns a high-entropy URL-safe string (256 bits)
func generateRandomToken() string {
	return oauth2.GenerateVerifier()
}

// withStoreTimeout bounds a call to a backing store
func (s *Server) withStoreTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.Config.StoreTimeout)
}

// storeFailure converts a backend error into a protocol error. Timeouts and
// unavailable backends become temporarily_unavailable; anything else is a
// server_error. The cause is logged, never returned.
func (s *Server) storeFailure(ctx context.Context, err error, operation, clientID string) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, storage.ErrUnavailable) {
		s.Logger.WarnContext(ctx, "Backing store unavailable",
			"operation", operation,
			"client_id", clientID,
			"error", err)
		return ErrTemporarilyUnavailable("the server is temporarily unable to handle the request")
	}
	s.Logger.ErrorContext(ctx, "Backing store failure",
		"operation", operation,
		"client_id", clientID,
		"error", err)
	return ErrServerError("internal server error")
}

// lookupClient loads a client under the store timeout. Unknown ids are
// returned as storage.ErrClientNotFound; every other failure is an *Error.
func (s *Server) lookupClient(ctx context.Context, clientID string) (*storage.ClientRecord, error) {
	storeCtx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	client, err := s.clients.GetClient(storeCtx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return nil, storage.ErrClientNotFound
		}
		return nil, s.storeFailure(ctx, err, "get_client", clientID)
	}
	return client, nil
}

// isRevoked checks the ledger under the store timeout
func (s *Server) isRevoked(ctx context.Context, tokenID, clientID string) (bool, error) {
	storeCtx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	revoked, err := s.ledger.IsRevoked(storeCtx, tokenID)
	if err != nil {
		return false, s.storeFailure(ctx, err, "is_revoked", clientID)
	}
	return revoked, nil
}

// sweepCodes runs an opportunistic, throttled sweep of the code store
func (s *Server) sweepCodes(ctx context.Context) {
	removed := s.codes.SweepExpired(s.Config.CodeMaxAge)
	if removed > 0 && s.metrics != nil {
		s.metrics.RecordCodeSweep(ctx, removed)
	}
}
