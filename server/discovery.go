package server

import (
	"strings"

	"github.com/go-jose/go-jose/v4"
)

// Endpoint paths, relative to the issuer
const (
	PathAuthorize = "/oauth2/authorize"
	PathToken     = "/oauth2/token"
	PathRevoke    = "/oauth2/revoke"
	PathUserInfo  = "/oauth2/userinfo"
	PathJWKS      = "/.well-known/jwks.json"
	PathDiscovery = "/.well-known/openid-configuration"
	PathHealth    = "/healthz"
)

// Token endpoint client authentication methods
const (
	AuthMethodBasic = "client_secret_basic"
	AuthMethodPost  = "client_secret_post"
	AuthMethodNone  = "none"
)

// ProviderMetadata is the OpenID Connect discovery document
// (OpenID Connect Discovery 1.0 section 3, RFC 8414)
type ProviderMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserInfoEndpoint                  string   `json:"userinfo_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	ScopesSupported                   []string `json:"scopes_supported"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	RevocationEndpointAuthMethods     []string `json:"revocation_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	ClaimsSupported                   []string `json:"claims_supported"`
}

// AuthorizationEndpoint returns the full authorization endpoint URL
func (c *Config) AuthorizationEndpoint() string {
	return c.endpoint(PathAuthorize)
}

// TokenEndpoint returns the full token endpoint URL
func (c *Config) TokenEndpoint() string {
	return c.endpoint(PathToken)
}

func (c *Config) endpoint(path string) string {
	return strings.TrimSuffix(c.Issuer, "/") + path
}

// Discovery returns the provider metadata served at PathDiscovery
func (s *Server) Discovery() *ProviderMetadata {
	return &ProviderMetadata{
		Issuer:                            s.Config.Issuer,
		AuthorizationEndpoint:             s.Config.AuthorizationEndpoint(),
		TokenEndpoint:                     s.Config.TokenEndpoint(),
		UserInfoEndpoint:                  s.Config.endpoint(PathUserInfo),
		RevocationEndpoint:                s.Config.endpoint(PathRevoke),
		JWKSURI:                           s.Config.endpoint(PathJWKS),
		ScopesSupported:                   s.Config.SupportedScopes,
		ResponseTypesSupported:            []string{ResponseTypeCode},
		GrantTypesSupported:               []string{GrantTypeAuthorizationCode, GrantTypeRefreshToken},
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{string(jose.RS256)},
		TokenEndpointAuthMethodsSupported: []string{AuthMethodBasic, AuthMethodPost, AuthMethodNone},
		RevocationEndpointAuthMethods:     []string{AuthMethodBasic, AuthMethodPost},
		CodeChallengeMethodsSupported:     []string{PKCEMethodS256},
		ClaimsSupported: []string{
			"iss", "sub", "aud", "exp", "iat", "jti",
			"auth_time", "nonce", "at_hash",
			"name", "nickname", "picture",
		},
	}
}

// JWKS returns the public key set served at PathJWKS
func (s *Server) JWKS() jose.JSONWebKeySet {
	return s.keys.JWKS()
}
