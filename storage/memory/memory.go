package memory

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/giantswarm/player-oidc/instrumentation"
	"github.com/giantswarm/player-oidc/internal/util"
	"github.com/giantswarm/player-oidc/storage"
)

const (
	backendName = "memory"

	// tokenIDLogLength is the number of characters of a jti included in logs
	tokenIDLogLength = 8
)

// Store is an in-memory implementation of storage.ClientStore and
// storage.RevocationLedger.
type Store struct {
	mu sync.RWMutex

	clients map[string]*storage.ClientRecord
	revoked map[string]*storage.RevokedToken

	// Atomic counters for metrics (lock-free access during metric collection)
	clientsCountAtomic atomic.Int64
	revokedCountAtomic atomic.Int64

	recorder *storage.OpRecorder
	logger   *slog.Logger
}

// Compile-time interface checks
var (
	_ storage.ClientStore      = (*Store)(nil)
	_ storage.RevocationLedger = (*Store)(nil)
)

// New creates an empty in-memory store
func New() *Store {
	return &Store{
		clients: make(map[string]*storage.ClientRecord),
		revoked: make(map[string]*storage.RevokedToken),
		logger:  slog.Default(),
	}
}

// SetLogger sets a custom logger for the store
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store and
// registers the clients and revoked-entries gauges.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.recorder = storage.NewOpRecorder(backendName, inst)
	s.clientsCountAtomic.Store(int64(len(s.clients)))
	s.revokedCountAtomic.Store(int64(len(s.revoked)))
	s.mu.Unlock()

	if inst != nil {
		err := inst.RegisterStorageSizeCallbacks(
			func() int64 { return s.clientsCountAtomic.Load() },
			nil,
			func() int64 { return s.revokedCountAtomic.Load() },
		)
		if err != nil {
			s.logger.Warn("Failed to register storage size callbacks", "error", err)
		}
	}
}

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient inserts or replaces a client record
func (s *Store) SaveClient(ctx context.Context, client *storage.ClientRecord) (err error) {
	ctx, span := s.recorder.Start(ctx, "save_client")
	defer func(start time.Time) { s.recorder.Done(ctx, span, "save_client", err, start) }(time.Now())

	if client == nil {
		return fmt.Errorf("client cannot be nil")
	}
	if err := client.Validate(); err != nil {
		return fmt.Errorf("invalid client: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.clients[client.ClientID] = storage.CloneClient(client)
	s.clientsCountAtomic.Store(int64(len(s.clients)))
	return nil
}

// GetClient returns a copy of the client record or storage.ErrClientNotFound
func (s *Store) GetClient(ctx context.Context, clientID string) (client *storage.ClientRecord, err error) {
	ctx, span := s.recorder.Start(ctx, "get_client")
	defer func(start time.Time) { s.recorder.Done(ctx, span, "get_client", err, start) }(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
	}
	return storage.CloneClient(c), nil
}

// DeleteClient removes a client record
func (s *Store) DeleteClient(ctx context.Context, clientID string) (err error) {
	ctx, span := s.recorder.Start(ctx, "delete_client")
	defer func(start time.Time) { s.recorder.Done(ctx, span, "delete_client", err, start) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[clientID]; !ok {
		return fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
	}
	delete(s.clients, clientID)
	s.clientsCountAtomic.Store(int64(len(s.clients)))
	return nil
}

// ListClientsByOwner returns the clients registered by an account, oldest first
func (s *Store) ListClientsByOwner(ctx context.Context, ownerAccountID string) (clients []*storage.ClientRecord, err error) {
	ctx, span := s.recorder.Start(ctx, "list_clients_by_owner")
	defer func(start time.Time) { s.recorder.Done(ctx, span, "list_clients_by_owner", err, start) }(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.clients {
		if c.OwnerAccountID == ownerAccountID {
			clients = append(clients, storage.CloneClient(c))
		}
	}
	slices.SortFunc(clients, func(a, b *storage.ClientRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ClientID, b.ClientID)
	})
	return clients, nil
}

// ============================================================
// RevocationLedger Implementation
// ============================================================

// Revoke records a ledger entry. Revoking an id twice keeps the first entry.
func (s *Store) Revoke(ctx context.Context, entry *storage.RevokedToken) (err error) {
	ctx, span := s.recorder.Start(ctx, "revoke")
	defer func(start time.Time) { s.recorder.Done(ctx, span, "revoke", err, start) }(time.Now())

	if entry == nil || entry.TokenID == "" {
		return fmt.Errorf("revocation entry requires a token id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.revoked[entry.TokenID]; exists {
		return nil
	}
	cp := *entry
	s.revoked[entry.TokenID] = &cp
	s.revokedCountAtomic.Store(int64(len(s.revoked)))

	s.logger.Debug("Recorded token revocation",
		"jti_prefix", util.SafeTruncate(entry.TokenID, tokenIDLogLength),
		"token_type", entry.TokenType,
		"client_id", entry.ClientID)
	return nil
}

// IsRevoked reports whether tokenID has a ledger entry
func (s *Store) IsRevoked(ctx context.Context, tokenID string) (revoked bool, err error) {
	ctx, span := s.recorder.Start(ctx, "is_revoked")
	defer func(start time.Time) { s.recorder.Done(ctx, span, "is_revoked", err, start) }(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, revoked = s.revoked[tokenID]
	return revoked, nil
}

// GetRevoked returns the ledger entry for tokenID or storage.ErrNotFound
func (s *Store) GetRevoked(ctx context.Context, tokenID string) (entry *storage.RevokedToken, err error) {
	ctx, span := s.recorder.Start(ctx, "get_revoked")
	defer func(start time.Time) { s.recorder.Done(ctx, span, "get_revoked", err, start) }(time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.revoked[tokenID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

// PurgeExpired removes entries whose ExpiresAt is before now
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (removed int, err error) {
	ctx, span := s.recorder.Start(ctx, "purge_expired")
	defer func(start time.Time) { s.recorder.Done(ctx, span, "purge_expired", err, start) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.revoked {
		if e.ExpiresAt.Before(now) {
			delete(s.revoked, id)
			removed++
		}
	}
	s.revokedCountAtomic.Store(int64(len(s.revoked)))

	if removed > 0 {
		s.logger.Debug("Purged expired revocation entries", "count", removed)
	}
	return removed, nil
}

// ClientCount returns the number of registered clients
func (s *Store) ClientCount() int {
	return int(s.clientsCountAtomic.Load())
}

// RevokedCount returns the number of ledger entries
func (s *Store) RevokedCount() int {
	return int(s.revokedCountAtomic.Load())
}
