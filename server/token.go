package server

import (
	"context"
	"slices"
	"time"

	"github.com/go-jose/go-jose/v4/jwt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/player-oidc/instrumentation"
	"github.com/giantswarm/player-oidc/internal/util"
	"github.com/giantswarm/player-oidc/security"
	"github.com/giantswarm/player-oidc/signing"
	"github.com/giantswarm/player-oidc/storage"
)

// Grant types
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
)

// TokenTypeBearer is the token_type of every token response
const TokenTypeBearer = "Bearer"

// TokenRequest holds the parameters of a token endpoint request
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	CodeVerifier string
	RefreshToken string
	Client       ClientCredentials
	ClientIP     string
}

// TokenResponse is the RFC 6749 5.1 success body
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Token dispatches a token request on its grant_type
func (s *Server) Token(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	if req == nil {
		return nil, ErrInvalidRequest("missing token request")
	}
	switch req.GrantType {
	case GrantTypeAuthorizationCode:
		return s.ExchangeAuthorizationCode(ctx, req)
	case GrantTypeRefreshToken:
		return s.RefreshAccessToken(ctx, req)
	case "":
		return nil, ErrInvalidRequest("grant_type is required")
	default:
		return nil, ErrUnsupportedGrantType("supported grant types are authorization_code and refresh_token")
	}
}

// ExchangeAuthorizationCode redeems an authorization code. The code is
// consumed by the first attempt whatever its outcome.
func (s *Server) ExchangeAuthorizationCode(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	ctx, span := s.tracer.Start(ctx, "server.ExchangeAuthorizationCode")
	defer span.End()
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrGrantType, GrantTypeAuthorizationCode))

	resp, err := s.exchangeAuthorizationCode(ctx, span, req)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	instrumentation.SetSpanSuccess(span)
	return resp, nil
}

func (s *Server) exchangeAuthorizationCode(ctx context.Context, span trace.Span, req *TokenRequest) (*TokenResponse, error) {
	if req.Code == "" {
		return nil, ErrInvalidRequest("code is required")
	}

	s.sweepCodes(ctx)

	pending, ok := s.codes.Take(req.Code)
	if !ok {
		s.Logger.DebugContext(ctx, "Authorization code not found or expired",
			"client_id", req.Client.ClientID,
			"code_prefix", util.SafeTruncate(req.Code, 8))
		s.Auditor.LogEvent(security.Event{
			Type:      security.EventAuthorizationCodeReuse,
			ClientID:  req.Client.ClientID,
			IPAddress: req.ClientIP,
		})
		if s.metrics != nil {
			s.metrics.RecordCodeReuseDetected(ctx)
		}
		return nil, ErrInvalidGrant("authorization code is invalid or expired")
	}

	// the code is spent from here on, whatever the outcome
	switch {
	case req.RedirectURI == "":
		return nil, ErrInvalidRequest("redirect_uri is required")
	case req.CodeVerifier == "":
		return nil, ErrInvalidRequest("code_verifier is required")
	case req.Client.ClientID == "":
		return nil, ErrInvalidRequest("client_id is required")
	}

	if pending.ClientID != req.Client.ClientID {
		s.Auditor.LogAuthFailure(pending.SubjectAccountID, req.Client.ClientID, req.ClientIP, "code_client_mismatch")
		return nil, ErrInvalidGrant("authorization code is invalid or expired")
	}
	if pending.RedirectURI != req.RedirectURI {
		s.Auditor.LogAuthFailure(pending.SubjectAccountID, req.Client.ClientID, req.ClientIP, "redirect_uri_mismatch")
		return nil, ErrInvalidGrant("redirect_uri does not match the authorization request")
	}

	client, err := s.authenticateClient(ctx, req.Client, req.ClientIP)
	if err != nil {
		return nil, err
	}

	if !ValidateVerifier(pending.CodeChallenge, req.CodeVerifier) {
		s.Auditor.LogEvent(security.Event{
			Type:      security.EventPKCEValidationFailed,
			AccountID: pending.SubjectAccountID,
			ClientID:  client.ClientID,
			IPAddress: req.ClientIP,
		})
		if s.metrics != nil {
			s.metrics.RecordPKCEValidationFailed(ctx, client.ClientID)
		}
		return nil, ErrInvalidGrant("code_verifier does not match the code_challenge")
	}

	withIDToken := util.HasScope(pending.Scope, ScopeOpenID)
	instrumentation.AddFlowAttributes(span, client.ClientID, pending.SubjectAccountID, pending.Scope)
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrClientType, client.ClientType),
		attribute.Bool(instrumentation.AttrIDTokenIssued, withIDToken))

	now := s.now()
	access, err := s.issueToken(storage.TokenTypeAccess, pending.SubjectAccountID, client.ClientID, pending.Scope, now, s.Config.AccessTokenTTL)
	if err != nil {
		return nil, s.signingFailure(ctx, err, client.ClientID)
	}
	refresh, err := s.issueToken(storage.TokenTypeRefresh, pending.SubjectAccountID, client.ClientID, pending.Scope, now, s.Config.RefreshTokenTTL)
	if err != nil {
		return nil, s.signingFailure(ctx, err, client.ClientID)
	}

	resp := &TokenResponse{
		AccessToken:  access,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int64(s.Config.AccessTokenTTL / time.Second),
		RefreshToken: refresh,
		Scope:        pending.Scope,
	}

	if withIDToken {
		idToken, err := s.issueIDToken(pending, access, now)
		if err != nil {
			return nil, s.signingFailure(ctx, err, client.ClientID)
		}
		resp.IDToken = idToken
	}

	s.Auditor.LogTokenIssued(pending.SubjectAccountID, client.ClientID, req.ClientIP, pending.Scope, withIDToken)
	if s.metrics != nil {
		s.metrics.RecordCodeExchange(ctx, client.ClientID, withIDToken)
	}
	s.Logger.DebugContext(ctx, "Exchanged authorization code",
		"client_id", client.ClientID,
		"code_prefix", util.SafeTruncate(req.Code, 8),
		"id_token", withIDToken)

	return resp, nil
}

// RefreshAccessToken issues a new access token from a refresh token. The
// refresh token is returned unchanged and no ID token is issued.
func (s *Server) RefreshAccessToken(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	ctx, span := s.tracer.Start(ctx, "server.RefreshAccessToken")
	defer span.End()
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrGrantType, GrantTypeRefreshToken))

	resp, err := s.refreshAccessToken(ctx, span, req)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	instrumentation.SetSpanSuccess(span)
	return resp, nil
}

func (s *Server) refreshAccessToken(ctx context.Context, span trace.Span, req *TokenRequest) (*TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, ErrInvalidRequest("refresh_token is required")
	}
	if req.Client.ClientID == "" {
		return nil, ErrInvalidRequest("client_id is required")
	}

	client, err := s.authenticateClient(ctx, req.Client, req.ClientIP)
	if err != nil {
		return nil, err
	}

	if !client.IsConfidential() && !MatchRedirectURI(client.RedirectURIPattern, req.RedirectURI) {
		s.Auditor.LogAuthFailure("", client.ClientID, req.ClientIP, "refresh_redirect_uri_mismatch")
		return nil, ErrInvalidGrant("redirect_uri does not match the registered pattern")
	}

	claims, err := s.keys.Verify(req.RefreshToken)
	if err != nil {
		s.Logger.DebugContext(ctx, "Refresh token failed signature verification",
			"client_id", client.ClientID,
			"token_prefix", util.SafeTruncate(req.RefreshToken, 8))
		return nil, ErrInvalidGrant("refresh token is invalid")
	}

	now := s.now()
	if reason := s.checkRefreshClaims(claims, client.ClientID, now); reason != "" {
		s.Auditor.LogAuthFailure(claims.Subject, client.ClientID, req.ClientIP, reason)
		return nil, ErrInvalidGrant("refresh token is invalid")
	}

	revoked, err := s.isRevoked(ctx, claims.ID, client.ClientID)
	if err != nil {
		return nil, err
	}
	if revoked {
		s.Auditor.LogAuthFailure(claims.Subject, client.ClientID, req.ClientIP, "refresh_token_revoked")
		return nil, ErrInvalidGrant("refresh token is invalid")
	}

	instrumentation.AddFlowAttributes(span, client.ClientID, claims.Subject, claims.Scope)

	access, err := s.issueToken(storage.TokenTypeAccess, claims.Subject, client.ClientID, claims.Scope, now, s.Config.AccessTokenTTL)
	if err != nil {
		return nil, s.signingFailure(ctx, err, client.ClientID)
	}

	s.Auditor.LogTokenRefreshed(claims.Subject, client.ClientID, req.ClientIP)
	if s.metrics != nil {
		s.metrics.RecordTokenRefresh(ctx, client.ClientID)
	}

	return &TokenResponse{
		AccessToken:  access,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int64(s.Config.AccessTokenTTL / time.Second),
		RefreshToken: req.RefreshToken,
		Scope:        claims.Scope,
	}, nil
}

// checkRefreshClaims returns a non-empty reason when a verified refresh
// token may not be used by clientID
func (s *Server) checkRefreshClaims(claims *signing.Claims, clientID string, now time.Time) string {
	switch {
	case claims.TokenType != storage.TokenTypeRefresh:
		return "not_a_refresh_token"
	case claims.Issuer != s.Config.Issuer:
		return "issuer_mismatch"
	case claims.ClientID != clientID || !slices.Contains([]string(claims.Audience), clientID):
		return "refresh_token_client_mismatch"
	case claims.Expiry == nil || security.IsExpired(claims.Expiry.Time(), now, s.Config.ClockSkewGracePeriod):
		return "refresh_token_expired"
	case claims.ID == "" || claims.Subject == "":
		return "refresh_token_incomplete"
	}
	return ""
}

// issueToken signs an access or refresh token
func (s *Server) issueToken(tokenType, subject, clientID, scope string, now time.Time, ttl time.Duration) (string, error) {
	jti, err := signing.NewTokenID()
	if err != nil {
		return "", err
	}
	return s.keys.Sign(&signing.Claims{
		Claims: jwt.Claims{
			Issuer:    s.Config.Issuer,
			Subject:   subject,
			Audience:  jwt.Audience{clientID},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Expiry:    jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
		TokenType: tokenType,
		Scope:     scope,
		ClientID:  clientID,
	})
}

// issueIDToken signs the OIDC ID token of a code exchange
func (s *Server) issueIDToken(pending *storage.PendingAuthorization, accessToken string, now time.Time) (string, error) {
	jti, err := signing.NewTokenID()
	if err != nil {
		return "", err
	}
	authTime := pending.AuthTime
	if authTime.IsZero() {
		authTime = now
	}
	return s.keys.Sign(&signing.Claims{
		Claims: jwt.Claims{
			Issuer:   s.Config.Issuer,
			Subject:  pending.SubjectAccountID,
			Audience: jwt.Audience{pending.ClientID},
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(s.Config.AccessTokenTTL)),
			ID:       jti,
		},
		TokenType: storage.TokenTypeID,
		ClientID:  pending.ClientID,
		AuthTime:  jwt.NewNumericDate(authTime),
		Nonce:     pending.Nonce,
		ATHash:    signing.ATHash(accessToken),
	})
}

func (s *Server) signingFailure(ctx context.Context, err error, clientID string) *Error {
	s.Logger.ErrorContext(ctx, "Failed to sign token",
		"client_id", clientID,
		"error", err)
	return ErrServerError("internal server error")
}
