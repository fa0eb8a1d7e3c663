package oauth

import (
	"net/http"

	"github.com/giantswarm/player-oidc/server"
)

// Error is an OAuth 2.0 protocol error carrying its HTTP status
type Error = server.Error

// OAuth error codes as constants
const (
	ErrorCodeInvalidRequest          = server.ErrorCodeInvalidRequest
	ErrorCodeInvalidClient           = server.ErrorCodeInvalidClient
	ErrorCodeInvalidGrant            = server.ErrorCodeInvalidGrant
	ErrorCodeInvalidScope            = server.ErrorCodeInvalidScope
	ErrorCodeInvalidToken            = server.ErrorCodeInvalidToken
	ErrorCodeUnauthorizedClient      = server.ErrorCodeUnauthorizedClient
	ErrorCodeUnsupportedGrantType    = server.ErrorCodeUnsupportedGrantType
	ErrorCodeUnsupportedResponseType = server.ErrorCodeUnsupportedResponseType
	ErrorCodeAccessDenied            = server.ErrorCodeAccessDenied
	ErrorCodeTemporarilyUnavailable  = server.ErrorCodeTemporarilyUnavailable
	ErrorCodeServerError             = server.ErrorCodeServerError

	// ErrorCodeRateLimitExceeded is only produced by the HTTP layer
	ErrorCodeRateLimitExceeded = "rate_limit_exceeded"
)

// Constructors for the protocol errors, shared with the server package
var (
	NewError                   = server.NewError
	ErrInvalidRequest          = server.ErrInvalidRequest
	ErrInvalidClient           = server.ErrInvalidClient
	ErrInvalidGrant            = server.ErrInvalidGrant
	ErrInvalidScope            = server.ErrInvalidScope
	ErrInvalidToken            = server.ErrInvalidToken
	ErrUnauthorizedClient      = server.ErrUnauthorizedClient
	ErrUnsupportedGrantType    = server.ErrUnsupportedGrantType
	ErrUnsupportedResponseType = server.ErrUnsupportedResponseType
	ErrAccessDenied            = server.ErrAccessDenied
	ErrTemporarilyUnavailable  = server.ErrTemporarilyUnavailable
	ErrServerError             = server.ErrServerError

	// AsError converts any error into a protocol error
	AsError = server.AsError
)

// ErrRateLimitExceeded indicates the caller's IP exceeded its request budget
func ErrRateLimitExceeded(desc string) *Error {
	return NewError(ErrorCodeRateLimitExceeded, desc, http.StatusTooManyRequests)
}
