package security

// Event type constants for security audit logging.
const (
	// EventTokenIssued is logged when tokens are minted from an authorization code
	EventTokenIssued = "token_issued"

	// EventTokenRefreshed is logged when an access token is minted from a refresh token
	EventTokenRefreshed = "token_refreshed"

	// EventTokenRevoked is logged when a ledger entry is written
	EventTokenRevoked = "token_revoked"

	// EventRevocationIgnored is logged when a revocation request is acknowledged
	// without a ledger write (bad signature, foreign client, missing jti)
	EventRevocationIgnored = "revocation_ignored"

	// EventAuthorizationGranted is logged when an authorization code is issued
	EventAuthorizationGranted = "authorization_granted"

	// EventAuthorizationDenied is logged when the end user fails the login step
	EventAuthorizationDenied = "authorization_denied"

	// EventAuthorizationCodeReuse is logged when an unknown, expired or consumed code is presented
	EventAuthorizationCodeReuse = "authorization_code_reuse"

	// EventPKCEValidationFailed is logged when a code_verifier does not match its challenge
	EventPKCEValidationFailed = "pkce_validation_failed"

	// EventAuthFailure is logged when client authentication fails
	EventAuthFailure = "auth_failure"

	// EventInvalidRedirect is logged when a redirect_uri does not match the registered pattern
	EventInvalidRedirect = "invalid_redirect"

	// EventRateLimitExceeded is logged when a per-IP rate limit is exceeded
	EventRateLimitExceeded = "rate_limit_exceeded"

	// EventClientRegistered is logged when a client is created
	EventClientRegistered = "client_registered"

	// EventClientUpdated is logged when a client's name or redirect pattern changes
	EventClientUpdated = "client_updated"

	// EventClientSecretRotated is logged when a confidential client's secret is replaced
	EventClientSecretRotated = "client_secret_rotated" //nolint:gosec // event name, not a credential

	// EventClientDeleted is logged when a client is removed
	EventClientDeleted = "client_deleted"
)
