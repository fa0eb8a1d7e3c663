package oauth

import "github.com/giantswarm/player-oidc/server"

// ErrorResponse represents an OAuth error response
type ErrorResponse struct {
	// Error is the error code
	Error string `json:"error"`

	// ErrorDescription provides additional information
	ErrorDescription string `json:"error_description,omitempty"`
}

// TokenResponse is the token endpoint success body
type TokenResponse = server.TokenResponse

// ProviderMetadata is the OpenID Connect discovery document
type ProviderMetadata = server.ProviderMetadata

// HealthResponse is the body of the health endpoint
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// loginPageData feeds the login template. The hidden fields carry the
// original authorization request through the POST.
type loginPageData struct {
	ClientName          string
	Action              string
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	Scopes              []string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	Nonce               string
}
