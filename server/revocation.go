package server

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/player-oidc/instrumentation"
	"github.com/giantswarm/player-oidc/internal/util"
	"github.com/giantswarm/player-oidc/storage"
)

// RevocationRequest holds the parameters of an RFC 7009 revocation request
type RevocationRequest struct {
	Token         string
	TokenTypeHint string
	Client        ClientCredentials
	ClientIP      string
}

// Reasons a revocation is acknowledged without a ledger write
const (
	revocationIgnoredSignature = "unverifiable_token"
	revocationIgnoredForeign   = "foreign_client"
	revocationIgnoredNoID      = "missing_jti"
)

// RevokeToken revokes an access or refresh token. Only confidential clients
// may revoke, and only their own tokens. Tokens that do not verify, belong
// to another client or carry no jti are acknowledged without a ledger write
// so the response reveals nothing about them (RFC 7009 2.2).
func (s *Server) RevokeToken(ctx context.Context, req *RevocationRequest) error {
	if req == nil {
		return ErrInvalidRequest("missing revocation request")
	}

	ctx, span := s.tracer.Start(ctx, "server.RevokeToken")
	defer span.End()

	written, err := s.revokeToken(ctx, req)
	if err != nil {
		recordError(span, err)
		return err
	}

	instrumentation.AddFlowAttributes(span, req.Client.ClientID, "", "")
	instrumentation.SetSpanAttributes(span, attribute.Bool(instrumentation.AttrRevokeWritten, written))
	instrumentation.SetSpanSuccess(span)
	if s.metrics != nil {
		s.metrics.RecordTokenRevocation(ctx, req.Client.ClientID, written)
	}
	return nil
}

func (s *Server) revokeToken(ctx context.Context, req *RevocationRequest) (bool, error) {
	if req.Token == "" {
		return false, ErrInvalidRequest("token is required")
	}

	client, err := s.authenticateRevokingClient(ctx, req.Client, req.ClientIP)
	if err != nil {
		return false, err
	}

	claims, err := s.keys.Verify(req.Token)
	if err != nil {
		s.ignoreRevocation(ctx, client.ClientID, req, revocationIgnoredSignature)
		return false, nil
	}
	if claims.ClientID != client.ClientID {
		s.ignoreRevocation(ctx, client.ClientID, req, revocationIgnoredForeign)
		return false, nil
	}
	if claims.ID == "" {
		s.ignoreRevocation(ctx, client.ClientID, req, revocationIgnoredNoID)
		return false, nil
	}

	now := s.now()
	expiresAt := now.Add(s.Config.RefreshTokenTTL)
	if claims.Expiry != nil {
		expiresAt = claims.Expiry.Time()
	}

	entry := &storage.RevokedToken{
		TokenID:   claims.ID,
		TokenType: claims.TokenType,
		ClientID:  client.ClientID,
		RevokedAt: now,
		ExpiresAt: expiresAt,
	}

	instrumentation.SetSpanAttributes(trace.SpanFromContext(ctx),
		attribute.String(instrumentation.AttrTokenType, claims.TokenType))

	storeCtx, cancel := s.withStoreTimeout(ctx)
	defer cancel()
	if err := s.ledger.Revoke(storeCtx, entry); err != nil {
		return false, s.storeFailure(ctx, err, "revoke", client.ClientID)
	}

	s.Auditor.LogTokenRevoked(claims.Subject, client.ClientID, req.ClientIP, claims.TokenType)
	s.Logger.InfoContext(ctx, "Revoked token",
		"client_id", client.ClientID,
		"token_type", claims.TokenType,
		"jti", claims.ID)
	return true, nil
}

// authenticateRevokingClient requires a confidential client with a valid secret
func (s *Server) authenticateRevokingClient(ctx context.Context, creds ClientCredentials, clientIP string) (*storage.ClientRecord, error) {
	if creds.ClientID == "" {
		return nil, ErrInvalidClient("client authentication failed")
	}

	client, err := s.FindClient(ctx, creds.ClientID)
	if err != nil {
		if !errors.Is(err, storage.ErrClientNotFound) {
			return nil, err
		}
		// compare anyway so unknown ids cost the same as known ones
		_ = compareClientSecret(&storage.ClientRecord{}, creds.ClientSecret)
		s.Auditor.LogAuthFailure("", creds.ClientID, clientIP, "unknown_client")
		return nil, ErrInvalidClient("client authentication failed")
	}

	if !client.IsConfidential() {
		return nil, ErrUnauthorizedClient("public clients may not revoke tokens")
	}
	if !compareClientSecret(client, creds.ClientSecret) {
		s.Auditor.LogAuthFailure("", client.ClientID, clientIP, "invalid_client_secret")
		return nil, ErrInvalidClient("client authentication failed")
	}
	return client, nil
}

func (s *Server) ignoreRevocation(ctx context.Context, clientID string, req *RevocationRequest, reason string) {
	s.Logger.DebugContext(ctx, "Revocation acknowledged without ledger write",
		"client_id", clientID,
		"reason", reason,
		"token_prefix", util.SafeTruncate(req.Token, 8))
	s.Auditor.LogRevocationIgnored(clientID, req.ClientIP, reason)
}
