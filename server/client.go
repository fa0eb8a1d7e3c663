package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/giantswarm/player-oidc/security"
	"github.com/giantswarm/player-oidc/storage"
)

// dummySecretHash is compared against when a client is unknown or public so
// a failed authentication takes as long as a real comparison.
const dummySecretHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// MaxClientNameLength bounds client_name on registration and update
const MaxClientNameLength = 100

// CredentialSource says where client credentials were presented
type CredentialSource int

const (
	// CredentialsNone means no secret was presented (public clients)
	CredentialsNone CredentialSource = iota
	// CredentialsBasic means HTTP Basic authentication
	CredentialsBasic
	// CredentialsBody means client_id/client_secret form parameters
	CredentialsBody
)

// ClientCredentials are the client identity and secret of a token or
// revocation request.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
	Source       CredentialSource
}

// ResolveClientCredentials picks the single authentication method of a
// request (RFC 6749 2.3). Presenting a secret through both HTTP Basic and the
// form body, or two different client ids, is invalid_request.
func ResolveClientCredentials(basicID, basicSecret string, hasBasic bool, formID, formSecret string) (ClientCredentials, error) {
	if hasBasic {
		if formSecret != "" {
			return ClientCredentials{}, ErrInvalidRequest("client credentials must be sent either in the Authorization header or in the body, not both")
		}
		if formID != "" && formID != basicID {
			return ClientCredentials{}, ErrInvalidRequest("client_id does not match the Authorization header")
		}
		if basicID == "" {
			return ClientCredentials{}, ErrInvalidClient("client authentication failed")
		}
		return ClientCredentials{ClientID: basicID, ClientSecret: basicSecret, Source: CredentialsBasic}, nil
	}

	if formSecret != "" {
		return ClientCredentials{ClientID: formID, ClientSecret: formSecret, Source: CredentialsBody}, nil
	}
	return ClientCredentials{ClientID: formID, Source: CredentialsNone}, nil
}

// FindClient returns a registered client or storage.ErrClientNotFound
func (s *Server) FindClient(ctx context.Context, clientID string) (*storage.ClientRecord, error) {
	if clientID == "" {
		return nil, storage.ErrClientNotFound
	}
	return s.lookupClient(ctx, clientID)
}

// VerifyClientSecret reports whether secret authenticates the confidential
// client clientID. Unknown and public clients always fail, after a bcrypt
// comparison against a dummy hash.
func (s *Server) VerifyClientSecret(ctx context.Context, clientID, secret string) bool {
	client, err := s.FindClient(ctx, clientID)
	if err != nil {
		_ = bcrypt.CompareHashAndPassword([]byte(dummySecretHash), []byte(secret))
		return false
	}
	return compareClientSecret(client, secret)
}

func compareClientSecret(client *storage.ClientRecord, secret string) bool {
	if !client.IsConfidential() || client.SecretHash == "" || secret == "" {
		_ = bcrypt.CompareHashAndPassword([]byte(dummySecretHash), []byte(secret))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(secret)) == nil
}

// authenticateClient resolves the client of a token request. Confidential
// clients must present their secret; public clients must not present one.
func (s *Server) authenticateClient(ctx context.Context, creds ClientCredentials, clientIP string) (*storage.ClientRecord, error) {
	if creds.ClientID == "" {
		return nil, ErrInvalidClient("client_id is required")
	}

	client, err := s.FindClient(ctx, creds.ClientID)
	if err != nil {
		if !errors.Is(err, storage.ErrClientNotFound) {
			return nil, err
		}
		_ = bcrypt.CompareHashAndPassword([]byte(dummySecretHash), []byte(creds.ClientSecret))
		s.Auditor.LogAuthFailure("", creds.ClientID, clientIP, "unknown_client")
		return nil, ErrInvalidClient("client authentication failed")
	}

	if client.IsConfidential() {
		if !compareClientSecret(client, creds.ClientSecret) {
			s.Auditor.LogAuthFailure("", client.ClientID, clientIP, "invalid_client_secret")
			return nil, ErrInvalidClient("client authentication failed")
		}
		return client, nil
	}

	if creds.Source != CredentialsNone {
		s.Auditor.LogAuthFailure("", client.ClientID, clientIP, "public_client_presented_secret")
		return nil, ErrInvalidClient("public clients do not authenticate with a secret")
	}
	return client, nil
}

// RegisterClientRequest describes a new client owned by an account
type RegisterClientRequest struct {
	ClientName         string
	ClientType         string
	RedirectURIPattern string
	OwnerAccountID     string
}

// RegisterClient creates a client. For a confidential client the plaintext
// secret is returned; it is not stored and cannot be recovered.
func (s *Server) RegisterClient(ctx context.Context, req RegisterClientRequest) (*storage.ClientRecord, string, error) {
	if req.OwnerAccountID == "" {
		return nil, "", ErrInvalidRequest("owner account is required")
	}
	name, err := validateClientName(req.ClientName)
	if err != nil {
		return nil, "", err
	}
	if err := ValidateRedirectPattern(req.RedirectURIPattern); err != nil {
		return nil, "", err
	}

	clientType := req.ClientType
	if clientType == "" {
		clientType = storage.ClientTypeConfidential
	}
	if clientType != storage.ClientTypeConfidential && clientType != storage.ClientTypePublic {
		return nil, "", ErrInvalidRequest(fmt.Sprintf("unsupported client type %q", clientType))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate client id: %w", err)
	}

	secret, hash, err := generateClientSecret(clientType)
	if err != nil {
		return nil, "", err
	}

	now := s.now()
	client := &storage.ClientRecord{
		ClientID:           id.String(),
		ClientName:         name,
		ClientType:         clientType,
		RedirectURIPattern: req.RedirectURIPattern,
		SecretHash:         hash,
		OwnerAccountID:     req.OwnerAccountID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.saveClient(ctx, client); err != nil {
		return nil, "", err
	}

	s.Auditor.LogClientChange(security.EventClientRegistered, client.ClientID, client.ClientType, client.OwnerAccountID)
	s.Logger.InfoContext(ctx, "Registered new OAuth client",
		"client_id", client.ClientID,
		"client_name", client.ClientName,
		"client_type", client.ClientType)

	return client, secret, nil
}

// UpdateClient changes the name and redirect pattern of a client owned by
// ownerAccountID. Clients of other owners are reported as not found.
func (s *Server) UpdateClient(ctx context.Context, ownerAccountID, clientID, clientName, redirectURIPattern string) (*storage.ClientRecord, error) {
	client, err := s.ownedClient(ctx, ownerAccountID, clientID)
	if err != nil {
		return nil, err
	}

	name, err := validateClientName(clientName)
	if err != nil {
		return nil, err
	}
	if err := ValidateRedirectPattern(redirectURIPattern); err != nil {
		return nil, err
	}

	client.ClientName = name
	client.RedirectURIPattern = redirectURIPattern
	client.UpdatedAt = s.now()

	if err := s.saveClient(ctx, client); err != nil {
		return nil, err
	}

	s.Auditor.LogClientChange(security.EventClientUpdated, client.ClientID, client.ClientType, client.OwnerAccountID)
	return client, nil
}

// RotateClientSecret replaces the secret of a confidential client and
// returns the new plaintext secret. The old secret stops working at once.
func (s *Server) RotateClientSecret(ctx context.Context, ownerAccountID, clientID string) (string, error) {
	client, err := s.ownedClient(ctx, ownerAccountID, clientID)
	if err != nil {
		return "", err
	}
	if !client.IsConfidential() {
		return "", ErrInvalidRequest("public clients have no secret")
	}

	secret, hash, err := generateClientSecret(client.ClientType)
	if err != nil {
		return "", err
	}
	client.SecretHash = hash
	client.UpdatedAt = s.now()

	if err := s.saveClient(ctx, client); err != nil {
		return "", err
	}

	s.Auditor.LogClientChange(security.EventClientSecretRotated, client.ClientID, client.ClientType, client.OwnerAccountID)
	return secret, nil
}

// DeleteClient removes a client owned by ownerAccountID. Its tokens fail
// resource-server validation from then on.
func (s *Server) DeleteClient(ctx context.Context, ownerAccountID, clientID string) error {
	client, err := s.ownedClient(ctx, ownerAccountID, clientID)
	if err != nil {
		return err
	}

	storeCtx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	if err := s.clients.DeleteClient(storeCtx, client.ClientID); err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return storage.ErrClientNotFound
		}
		return s.storeFailure(ctx, err, "delete_client", clientID)
	}

	s.Auditor.LogClientChange(security.EventClientDeleted, client.ClientID, client.ClientType, client.OwnerAccountID)
	s.Logger.InfoContext(ctx, "Deleted OAuth client", "client_id", client.ClientID)
	return nil
}

// ListClientsByOwner returns the clients of an account, oldest first
func (s *Server) ListClientsByOwner(ctx context.Context, ownerAccountID string) ([]*storage.ClientRecord, error) {
	storeCtx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	clients, err := s.clients.ListClientsByOwner(storeCtx, ownerAccountID)
	if err != nil {
		return nil, s.storeFailure(ctx, err, "list_clients", "")
	}
	return clients, nil
}

func (s *Server) ownedClient(ctx context.Context, ownerAccountID, clientID string) (*storage.ClientRecord, error) {
	client, err := s.FindClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if ownerAccountID == "" || client.OwnerAccountID != ownerAccountID {
		return nil, storage.ErrClientNotFound
	}
	return client, nil
}

func (s *Server) saveClient(ctx context.Context, client *storage.ClientRecord) error {
	storeCtx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	if err := s.clients.SaveClient(storeCtx, client); err != nil {
		return s.storeFailure(ctx, err, "save_client", client.ClientID)
	}
	return nil
}

func validateClientName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidRequest("client_name is required")
	}
	if len(name) > MaxClientNameLength {
		return "", ErrInvalidRequest(fmt.Sprintf("client_name must be at most %d characters", MaxClientNameLength))
	}
	return name, nil
}

// generateClientSecret generates a secret for confidential clients
func generateClientSecret(clientType string) (string, string, error) {
	if clientType != storage.ClientTypeConfidential {
		return "", "", nil
	}

	secret := generateRandomToken()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash client secret: %w", err)
	}
	return secret, string(hash), nil
}
