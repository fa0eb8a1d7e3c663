// Package mock provides mock implementations of storage interfaces for testing.
//
// Every method delegates to an overridable Func field whose default is backed
// by an in-memory store, so tests replace only the calls they need to fail.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/giantswarm/player-oidc/storage"
	"github.com/giantswarm/player-oidc/storage/memory"
)

// MockClientStore is a mock implementation of storage.ClientStore
type MockClientStore struct {
	mu                     sync.Mutex
	SaveClientFunc         func(ctx context.Context, client *storage.ClientRecord) error
	GetClientFunc          func(ctx context.Context, clientID string) (*storage.ClientRecord, error)
	DeleteClientFunc       func(ctx context.Context, clientID string) error
	ListClientsByOwnerFunc func(ctx context.Context, ownerAccountID string) ([]*storage.ClientRecord, error)
	CallCounts             map[string]int
}

// NewMockClientStore creates a mock client store backed by memory
func NewMockClientStore() *MockClientStore {
	backing := memory.New()
	return &MockClientStore{
		SaveClientFunc:         backing.SaveClient,
		GetClientFunc:          backing.GetClient,
		DeleteClientFunc:       backing.DeleteClient,
		ListClientsByOwnerFunc: backing.ListClientsByOwner,
		CallCounts:             make(map[string]int),
	}
}

func (m *MockClientStore) count(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCounts[name]++
}

// Calls returns how many times the named method was called
func (m *MockClientStore) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCounts[name]
}

// SaveClient calls SaveClientFunc
func (m *MockClientStore) SaveClient(ctx context.Context, client *storage.ClientRecord) error {
	m.count("SaveClient")
	return m.SaveClientFunc(ctx, client)
}

// GetClient calls GetClientFunc
func (m *MockClientStore) GetClient(ctx context.Context, clientID string) (*storage.ClientRecord, error) {
	m.count("GetClient")
	return m.GetClientFunc(ctx, clientID)
}

// DeleteClient calls DeleteClientFunc
func (m *MockClientStore) DeleteClient(ctx context.Context, clientID string) error {
	m.count("DeleteClient")
	return m.DeleteClientFunc(ctx, clientID)
}

// ListClientsByOwner calls ListClientsByOwnerFunc
func (m *MockClientStore) ListClientsByOwner(ctx context.Context, ownerAccountID string) ([]*storage.ClientRecord, error) {
	m.count("ListClientsByOwner")
	return m.ListClientsByOwnerFunc(ctx, ownerAccountID)
}

// MockLedger is a mock implementation of storage.RevocationLedger
type MockLedger struct {
	mu               sync.Mutex
	RevokeFunc       func(ctx context.Context, entry *storage.RevokedToken) error
	IsRevokedFunc    func(ctx context.Context, tokenID string) (bool, error)
	GetRevokedFunc   func(ctx context.Context, tokenID string) (*storage.RevokedToken, error)
	PurgeExpiredFunc func(ctx context.Context, now time.Time) (int, error)
	CallCounts       map[string]int
}

// NewMockLedger creates a mock ledger backed by memory
func NewMockLedger() *MockLedger {
	backing := memory.New()
	return &MockLedger{
		RevokeFunc:       backing.Revoke,
		IsRevokedFunc:    backing.IsRevoked,
		GetRevokedFunc:   backing.GetRevoked,
		PurgeExpiredFunc: backing.PurgeExpired,
		CallCounts:       make(map[string]int),
	}
}

func (m *MockLedger) count(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCounts[name]++
}

// Calls returns how many times the named method was called
func (m *MockLedger) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCounts[name]
}

// Revoke calls RevokeFunc
func (m *MockLedger) Revoke(ctx context.Context, entry *storage.RevokedToken) error {
	m.count("Revoke")
	return m.RevokeFunc(ctx, entry)
}

// IsRevoked calls IsRevokedFunc
func (m *MockLedger) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	m.count("IsRevoked")
	return m.IsRevokedFunc(ctx, tokenID)
}

// GetRevoked calls GetRevokedFunc
func (m *MockLedger) GetRevoked(ctx context.Context, tokenID string) (*storage.RevokedToken, error) {
	m.count("GetRevoked")
	return m.GetRevokedFunc(ctx, tokenID)
}

// PurgeExpired calls PurgeExpiredFunc
func (m *MockLedger) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	m.count("PurgeExpired")
	return m.PurgeExpiredFunc(ctx, now)
}

// Hang blocks until ctx is done and returns its error. Assign it to a Func
// field to simulate a store that exceeds the caller's deadline.
func Hang(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// HangingClientLookup is a GetClientFunc that never answers before the deadline
func HangingClientLookup(ctx context.Context, _ string) (*storage.ClientRecord, error) {
	return nil, Hang(ctx)
}

// HangingRevocationCheck is an IsRevokedFunc that never answers before the deadline
func HangingRevocationCheck(ctx context.Context, _ string) (bool, error) {
	return false, Hang(ctx)
}

// UnavailableRevoke is a RevokeFunc failing with storage.ErrUnavailable
func UnavailableRevoke(context.Context, *storage.RevokedToken) error {
	return storage.ErrUnavailable
}
