// Package mock provides mock implementations of the provider interfaces for testing.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/giantswarm/player-oidc/providers"
)

// MockDirectory is a mock implementation of providers.Directory and
// providers.CredentialVerifier backed by a map of accounts and passwords.
type MockDirectory struct {
	// LookupByNameFunc is called when LookupByName() is invoked
	LookupByNameFunc func(ctx context.Context, name string) (*providers.Account, error)

	// LookupByIDFunc is called when LookupByID() is invoked
	LookupByIDFunc func(ctx context.Context, accountID string) (*providers.Account, error)

	// VerifyPasswordFunc is called when VerifyPassword() is invoked
	VerifyPasswordFunc func(ctx context.Context, accountID, password string) (bool, error)

	// CallCounts tracks how many times each method was called
	CallCounts map[string]int

	mu        sync.RWMutex
	accounts  map[string]*providers.Account
	passwords map[string]string
}

var (
	_ providers.Directory          = (*MockDirectory)(nil)
	_ providers.CredentialVerifier = (*MockDirectory)(nil)
)

// NewMockDirectory creates a new mock directory with map-backed defaults
func NewMockDirectory() *MockDirectory {
	m := &MockDirectory{
		CallCounts: make(map[string]int),
		accounts:   make(map[string]*providers.Account),
		passwords:  make(map[string]string),
	}

	m.LookupByNameFunc = func(_ context.Context, name string) (*providers.Account, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		for _, a := range m.accounts {
			if strings.EqualFold(a.Name, name) {
				cp := *a
				return &cp, nil
			}
		}
		return nil, providers.ErrAccountNotFound
	}

	m.LookupByIDFunc = func(_ context.Context, accountID string) (*providers.Account, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		a, ok := m.accounts[accountID]
		if !ok {
			return nil, providers.ErrAccountNotFound
		}
		cp := *a
		return &cp, nil
	}

	m.VerifyPasswordFunc = func(_ context.Context, accountID, password string) (bool, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		want, ok := m.passwords[accountID]
		if !ok {
			return false, providers.ErrNoCredentials
		}
		return want == password, nil
	}

	return m
}

// AddAccount registers an account. An empty password leaves it without credentials.
func (m *MockDirectory) AddAccount(account providers.Account, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ID] = &account
	if password != "" {
		m.passwords[account.ID] = password
	}
}

func (m *MockDirectory) count(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCounts[name]++
}

// Calls returns how many times the named method was called
func (m *MockDirectory) Calls(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CallCounts[name]
}

// LookupByName calls LookupByNameFunc
func (m *MockDirectory) LookupByName(ctx context.Context, name string) (*providers.Account, error) {
	m.count("LookupByName")
	return m.LookupByNameFunc(ctx, name)
}

// LookupByID calls LookupByIDFunc
func (m *MockDirectory) LookupByID(ctx context.Context, accountID string) (*providers.Account, error) {
	m.count("LookupByID")
	return m.LookupByIDFunc(ctx, accountID)
}

// VerifyPassword calls VerifyPasswordFunc
func (m *MockDirectory) VerifyPassword(ctx context.Context, accountID, password string) (bool, error) {
	m.count("VerifyPassword")
	return m.VerifyPasswordFunc(ctx, accountID, password)
}

// NewIdentity returns a providers.Identity over a mock directory
func NewIdentity(m *MockDirectory) providers.Identity {
	auth, err := providers.NewAuthenticator(m, m)
	if err != nil {
		panic(err)
	}
	return auth
}
