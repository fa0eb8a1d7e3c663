package server

import (
	"context"
	"errors"

	"github.com/giantswarm/player-oidc/instrumentation"
	"github.com/giantswarm/player-oidc/internal/util"
	"github.com/giantswarm/player-oidc/providers"
	"github.com/giantswarm/player-oidc/security"
	"github.com/giantswarm/player-oidc/signing"
	"github.com/giantswarm/player-oidc/storage"
)

// invalidTokenDescription is the only description a failed validation gets
const invalidTokenDescription = "The access token is invalid"

// ValidateAccessToken checks a bearer token presented to a resource server:
// signature, issuer, audience, token type, expiry, that its client still
// exists and that it is not revoked. Every failed check returns the same
// invalid_token error; backend failures return temporarily_unavailable.
func (s *Server) ValidateAccessToken(ctx context.Context, token string) (*signing.Claims, error) {
	ctx, span := s.tracer.Start(ctx, "server.ValidateAccessToken")
	defer span.End()

	claims, reason, err := s.validateAccessToken(ctx, token)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	if reason != "" {
		s.Logger.DebugContext(ctx, "Access token rejected",
			"reason", reason,
			"token_prefix", util.SafeTruncate(token, 8))
		instrumentation.SetSpanError(span, reason)
		return nil, ErrInvalidToken(invalidTokenDescription)
	}

	instrumentation.AddFlowAttributes(span, claims.ClientID, claims.Subject, claims.Scope)
	instrumentation.SetSpanSuccess(span)
	return claims, nil
}

func (s *Server) validateAccessToken(ctx context.Context, token string) (*signing.Claims, string, error) {
	if token == "" {
		return nil, "missing_token", nil
	}

	claims, err := s.keys.Verify(token)
	if err != nil {
		return nil, "signature", nil
	}

	switch {
	case claims.Issuer != s.Config.Issuer:
		return nil, "issuer", nil
	case claims.TokenType != storage.TokenTypeAccess:
		return nil, "token_type", nil
	case claims.ClientID == "" || len(claims.Audience) != 1 || claims.Audience[0] != claims.ClientID:
		return nil, "audience", nil
	case !s.Config.isAllowedAudience(claims.ClientID):
		return nil, "audience_not_allowed", nil
	case claims.Expiry == nil || security.IsExpired(claims.Expiry.Time(), s.now(), s.Config.ClockSkewGracePeriod):
		return nil, "expired", nil
	case claims.ID == "":
		return nil, "missing_jti", nil
	}

	if _, err := s.FindClient(ctx, claims.ClientID); err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return nil, "client_deleted", nil
		}
		return nil, "", err
	}

	revoked, err := s.isRevoked(ctx, claims.ID, claims.ClientID)
	if err != nil {
		return nil, "", err
	}
	if revoked {
		return nil, "revoked", nil
	}

	return claims, "", nil
}

// UserInfo returns the OIDC userinfo claims of a validated access token.
// sub is always present; name, nickname and picture need the profile scope.
func (s *Server) UserInfo(ctx context.Context, claims *signing.Claims) (map[string]any, error) {
	if claims == nil || claims.Subject == "" {
		return nil, ErrInvalidToken(invalidTokenDescription)
	}

	info := map[string]any{"sub": claims.Subject}
	if !util.HasScope(claims.Scope, ScopeProfile) {
		return info, nil
	}

	lookupCtx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	account, err := s.identity.LookupAccount(lookupCtx, claims.Subject)
	if err != nil {
		if errors.Is(err, providers.ErrAccountNotFound) {
			return nil, ErrInvalidToken(invalidTokenDescription)
		}
		return nil, s.storeFailure(ctx, err, "lookup_account", claims.ClientID)
	}

	info["name"] = account.Name
	nickname := account.Nickname
	if nickname == "" {
		nickname = account.Name
	}
	info["nickname"] = nickname
	if account.Picture != "" {
		info["picture"] = account.Picture
	}
	return info, nil
}
