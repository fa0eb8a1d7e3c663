// Package storage defines the persistence boundary of the authorization server:
// registered OAuth clients, the token revocation ledger, and the record type for
// pending authorization codes. Backends live in sub-packages (memory, sqlite, redis).
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Client type constants
const (
	// ClientTypeConfidential is a client able to hold a secret
	ClientTypeConfidential = "confidential"

	// ClientTypePublic is a browser or native client without a secret
	ClientTypePublic = "public"
)

// Token type values carried in the token_type claim and in ledger entries
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
	TokenTypeID      = "id"
)

var (
	// ErrClientNotFound is returned when no client has the requested id
	ErrClientNotFound = errors.New("client not found")

	// ErrNotFound is returned when a ledger entry or other record does not exist
	ErrNotFound = errors.New("not found")

	// ErrUnavailable marks a backend failure the caller may retry later
	// (connection refused, pool exhausted, timeout)
	ErrUnavailable = errors.New("storage unavailable")
)

// ClientRecord is a registered OAuth client.
type ClientRecord struct {
	ClientID           string
	ClientName         string
	ClientType         string
	RedirectURIPattern string
	SecretHash         string // bcrypt hash; empty for public clients
	OwnerAccountID     string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsConfidential reports whether the client authenticates with a secret.
func (c *ClientRecord) IsConfidential() bool {
	return c.ClientType == ClientTypeConfidential
}

// Validate checks the structural invariants of a client record:
// a public client never has a secret and a confidential client always has one.
func (c *ClientRecord) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("client_id cannot be empty")
	}
	if c.RedirectURIPattern == "" {
		return fmt.Errorf("redirect uri pattern cannot be empty")
	}
	switch c.ClientType {
	case ClientTypePublic:
		if c.SecretHash != "" {
			return fmt.Errorf("public client %s must not have a secret", c.ClientID)
		}
	case ClientTypeConfidential:
		if c.SecretHash == "" {
			return fmt.Errorf("confidential client %s must have a secret", c.ClientID)
		}
	default:
		return fmt.Errorf("unknown client type %q", c.ClientType)
	}
	return nil
}

// PendingAuthorization is one in-flight grant between the authorize and
// token endpoints, keyed by its single-use code.
type PendingAuthorization struct {
	Code                string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	SubjectAccountID    string
	Nonce               string
	AuthTime            time.Time
}

// RevokedToken is a revocation ledger entry keyed by the token's jti.
type RevokedToken struct {
	TokenID   string
	TokenType string
	ClientID  string
	RevokedAt time.Time
	ExpiresAt time.Time
}

// ClientStore is the durable client repository.
// All methods accept context.Context for deadlines and tracing.
type ClientStore interface {
	// SaveClient inserts or replaces a client record
	SaveClient(ctx context.Context, client *ClientRecord) error

	// GetClient returns ErrClientNotFound for unknown ids
	GetClient(ctx context.Context, clientID string) (*ClientRecord, error)

	// DeleteClient returns ErrClientNotFound for unknown ids
	DeleteClient(ctx context.Context, clientID string) error

	// ListClientsByOwner returns the clients registered by an account, oldest first
	ListClientsByOwner(ctx context.Context, ownerAccountID string) ([]*ClientRecord, error)
}

// RevocationLedger is the persistent blacklist of revoked token ids.
type RevocationLedger interface {
	// Revoke records an entry. Revoking an id twice is not an error.
	Revoke(ctx context.Context, entry *RevokedToken) error

	// IsRevoked reports whether tokenID has an entry
	IsRevoked(ctx context.Context, tokenID string) (bool, error)

	// GetRevoked returns the entry for tokenID or ErrNotFound
	GetRevoked(ctx context.Context, tokenID string) (*RevokedToken, error)

	// PurgeExpired deletes entries whose ExpiresAt is before now and
	// returns how many were removed
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}
