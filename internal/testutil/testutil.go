package testutil

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/giantswarm/player-oidc/storage"
)

// MockTime provides a controllable, goroutine-safe time source
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// DiscardLogger returns a logger that drops all output
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// GenerateRandomString returns a URL-safe random string of the given length
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate random string: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}

// GeneratePKCEPair returns an S256 (challenge, verifier) pair
func GeneratePKCEPair() (challenge, verifier string) {
	verifier = oauth2.GenerateVerifier()
	return oauth2.S256ChallengeFromVerifier(verifier), verifier
}

// HashSecret bcrypt-hashes a client secret at minimum cost to keep tests fast
func HashSecret(t testing.TB, secret string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt.GenerateFromPassword() error = %v", err)
	}
	return string(hash)
}

// NewConfidentialClient returns a confidential client record whose secret is secret
func NewConfidentialClient(t testing.TB, clientID, secret, redirectPattern string) *storage.ClientRecord {
	t.Helper()
	now := time.Now()
	return &storage.ClientRecord{
		ClientID:           clientID,
		ClientName:         "Test Confidential Client",
		ClientType:         storage.ClientTypeConfidential,
		RedirectURIPattern: redirectPattern,
		SecretHash:         HashSecret(t, secret),
		OwnerAccountID:     "owner-account",
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// NewPublicClient returns a public client record
func NewPublicClient(clientID, redirectPattern string) *storage.ClientRecord {
	now := time.Now()
	return &storage.ClientRecord{
		ClientID:           clientID,
		ClientName:         "Test Public Client",
		ClientType:         storage.ClientTypePublic,
		RedirectURIPattern: redirectPattern,
		OwnerAccountID:     "owner-account",
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// PostForm builds a form-encoded POST request
func PostForm(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}
