package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor writes security events to a structured logger. Account ids are
// hashed before they are logged.
type Auditor struct {
	logger   *slog.Logger
	enabled  bool
	observer func(eventType string)
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// SetObserver registers a callback invoked with the type of every logged
// event. The server uses it to count audit events in metrics.
func (a *Auditor) SetObserver(fn func(eventType string)) {
	a.observer = fn
}

// Event represents a security audit event
type Event struct {
	Type      string
	AccountID string
	ClientID  string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with the account id hashed
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"account_id_hash", hashForLogging(event.AccountID),
		"client_id", event.ClientID,
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)

	if a.observer != nil {
		a.observer(event.Type)
	}
}

// LogTokenIssued logs a successful code exchange
func (a *Auditor) LogTokenIssued(accountID, clientID, ipAddress, scope string, idToken bool) {
	a.LogEvent(Event{
		Type:      EventTokenIssued,
		AccountID: accountID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"scope":    scope,
			"id_token": idToken,
		},
	})
}

// LogTokenRefreshed logs a refresh_token grant
func (a *Auditor) LogTokenRefreshed(accountID, clientID, ipAddress string) {
	a.LogEvent(Event{
		Type:      EventTokenRefreshed,
		AccountID: accountID,
		ClientID:  clientID,
		IPAddress: ipAddress,
	})
}

// LogTokenRevoked logs a ledger write
func (a *Auditor) LogTokenRevoked(accountID, clientID, ipAddress, tokenType string) {
	a.LogEvent(Event{
		Type:      EventTokenRevoked,
		AccountID: accountID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"token_type": tokenType,
		},
	})
}

// LogRevocationIgnored logs a revocation request answered without a ledger write
func (a *Auditor) LogRevocationIgnored(clientID, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventRevocationIgnored,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogAuthFailure logs a client authentication failure
func (a *Auditor) LogAuthFailure(accountID, clientID, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventAuthFailure,
		AccountID: accountID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogAuthorizationDenied logs an end-user login failure at the authorize endpoint
func (a *Auditor) LogAuthorizationDenied(username, clientID, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      EventAuthorizationDenied,
		AccountID: username,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(ipAddress, endpoint string) {
	a.LogEvent(Event{
		Type:      EventRateLimitExceeded,
		IPAddress: ipAddress,
		Details: map[string]any{
			"endpoint": endpoint,
		},
	})
}

// LogClientChange logs a client lifecycle event (registered, updated, rotated, deleted)
func (a *Auditor) LogClientChange(eventType, clientID, clientType, ownerAccountID string) {
	a.LogEvent(Event{
		Type:      eventType,
		AccountID: ownerAccountID,
		ClientID:  clientID,
		Details: map[string]any{
			"client_type": clientType,
		},
	})
}

// hashForLogging creates a truncated SHA-256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
