package providers

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAccountNotFound is returned by a Directory for unknown names or ids
	ErrAccountNotFound = errors.New("account not found")

	// ErrNoCredentials is returned by a CredentialVerifier when the account
	// has no password set
	ErrNoCredentials = errors.New("no credentials for account")
)

// Account is a player as known to the host directory
type Account struct {
	// ID is the stable account identifier used as the token subject
	ID string

	// Name is the human-readable player name used to log in
	Name string

	// Nickname is an optional display name
	Nickname string

	// Picture is an optional avatar URL
	Picture string

	// Online reports whether the player is currently connected to the host
	Online bool

	// Registered reports whether the player has linked a web account
	Registered bool
}

// Directory resolves players. Implementations must be safe for concurrent use.
type Directory interface {
	// LookupByName returns ErrAccountNotFound for unknown names
	LookupByName(ctx context.Context, name string) (*Account, error)

	// LookupByID returns ErrAccountNotFound for unknown ids
	LookupByID(ctx context.Context, accountID string) (*Account, error)
}

// CredentialVerifier checks account passwords
type CredentialVerifier interface {
	// VerifyPassword reports whether password matches the account's
	// credential. It returns ErrNoCredentials when none is set.
	VerifyPassword(ctx context.Context, accountID, password string) (bool, error)
}

// FailureReason says why a login attempt was refused
type FailureReason string

const (
	// FailurePlayerUnknown means no player has the submitted name
	FailurePlayerUnknown FailureReason = "player_unknown"

	// FailureAccountNotLinked means the player exists but has no web account
	FailureAccountNotLinked FailureReason = "account_not_linked"

	// FailureBadCredentials means the password did not match
	FailureBadCredentials FailureReason = "bad_credentials"
)

// Description returns the end-user facing error_description for a reason
func (r FailureReason) Description() string {
	switch r {
	case FailurePlayerUnknown:
		return "Unknown player"
	case FailureAccountNotLinked:
		return "Player has no linked account"
	case FailureBadCredentials:
		return "Invalid credentials"
	default:
		return "Authentication failed"
	}
}

// AuthResult is the outcome of a login attempt: either AccountID is set or
// Failure names the reason.
type AuthResult struct {
	AccountID string
	Failure   FailureReason
}

// OK reports whether authentication succeeded
func (r AuthResult) OK() bool {
	return r.Failure == "" && r.AccountID != ""
}

// Identity is what the authorization server needs from the host
type Identity interface {
	// Authenticate verifies a login. Refused logins are reported in the
	// result; the error is reserved for infrastructure failures.
	Authenticate(ctx context.Context, username, password string) (AuthResult, error)

	// LookupAccount returns ErrAccountNotFound for unknown ids
	LookupAccount(ctx context.Context, accountID string) (*Account, error)
}

// Authenticator implements Identity over a Directory and a CredentialVerifier
type Authenticator struct {
	directory   Directory
	credentials CredentialVerifier
}

var _ Identity = (*Authenticator)(nil)

// NewAuthenticator composes a directory and a credential verifier
func NewAuthenticator(directory Directory, credentials CredentialVerifier) (*Authenticator, error) {
	if directory == nil {
		return nil, errors.New("directory cannot be nil")
	}
	if credentials == nil {
		return nil, errors.New("credential verifier cannot be nil")
	}
	return &Authenticator{directory: directory, credentials: credentials}, nil
}

// Authenticate resolves username and checks the password
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (AuthResult, error) {
	account, err := a.directory.LookupByName(ctx, username)
	if errors.Is(err, ErrAccountNotFound) {
		return AuthResult{Failure: FailurePlayerUnknown}, nil
	}
	if err != nil {
		return AuthResult{}, fmt.Errorf("directory lookup failed: %w", err)
	}

	if !account.Registered {
		return AuthResult{Failure: FailureAccountNotLinked}, nil
	}

	ok, err := a.credentials.VerifyPassword(ctx, account.ID, password)
	if errors.Is(err, ErrNoCredentials) {
		return AuthResult{Failure: FailureAccountNotLinked}, nil
	}
	if err != nil {
		return AuthResult{}, fmt.Errorf("credential check failed: %w", err)
	}
	if !ok {
		return AuthResult{Failure: FailureBadCredentials}, nil
	}

	return AuthResult{AccountID: account.ID}, nil
}

// LookupAccount resolves an account id
func (a *Authenticator) LookupAccount(ctx context.Context, accountID string) (*Account, error) {
	return a.directory.LookupByID(ctx, accountID)
}
