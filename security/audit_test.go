package security

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newBufferedAuditor(enabled bool) (*Auditor, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	return NewAuditor(logger, enabled), &buf
}

func TestNewAuditor(t *testing.T) {
	auditor := NewAuditor(nil, true)
	if auditor.logger == nil {
		t.Error("logger should default to slog.Default()")
	}
	if !auditor.enabled {
		t.Error("enabled = false, want true")
	}
}

func TestAuditor_LogEvent(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		wantLog bool
	}{
		{name: "enabled", enabled: true, wantLog: true},
		{name: "disabled", enabled: false, wantLog: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditor, buf := newBufferedAuditor(tt.enabled)
			auditor.LogEvent(Event{Type: "test_event", AccountID: "acct-1", ClientID: "client-1"})

			if got := buf.Len() > 0; got != tt.wantLog {
				t.Errorf("logged = %v, want %v (output %q)", got, tt.wantLog, buf.String())
			}
		})
	}
}

func TestAuditor_NilSafe(t *testing.T) {
	var auditor *Auditor
	auditor.LogTokenRevoked("acct", "client", "ip", "access")
}

func TestAuditor_HashesAccountID(t *testing.T) {
	auditor, buf := newBufferedAuditor(true)
	auditor.LogTokenIssued("steve", "client-1", "10.0.0.1", "openid", true)

	out := buf.String()
	if strings.Contains(out, "steve") {
		t.Errorf("account id leaked into audit log: %s", out)
	}
	if !strings.Contains(out, hashForLogging("steve")) {
		t.Errorf("audit log missing hashed account id: %s", out)
	}
	if !strings.Contains(out, EventTokenIssued) {
		t.Errorf("audit log missing event type: %s", out)
	}
}

func TestAuditor_Helpers(t *testing.T) {
	tests := []struct {
		name      string
		log       func(a *Auditor)
		wantEvent string
	}{
		{"refreshed", func(a *Auditor) { a.LogTokenRefreshed("acct", "client", "ip") }, EventTokenRefreshed},
		{"revoked", func(a *Auditor) { a.LogTokenRevoked("acct", "client", "ip", "refresh") }, EventTokenRevoked},
		{"revocation ignored", func(a *Auditor) { a.LogRevocationIgnored("client", "ip", "foreign_client") }, EventRevocationIgnored},
		{"auth failure", func(a *Auditor) { a.LogAuthFailure("", "client", "ip", "bad_secret") }, EventAuthFailure},
		{"denied", func(a *Auditor) { a.LogAuthorizationDenied("alex", "client", "ip", "bad_credentials") }, EventAuthorizationDenied},
		{"rate limit", func(a *Auditor) { a.LogRateLimitExceeded("ip", "token") }, EventRateLimitExceeded},
		{"client deleted", func(a *Auditor) { a.LogClientChange(EventClientDeleted, "client", "public", "acct") }, EventClientDeleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditor, buf := newBufferedAuditor(true)
			var observed []string
			auditor.SetObserver(func(eventType string) { observed = append(observed, eventType) })

			tt.log(auditor)

			if !strings.Contains(buf.String(), tt.wantEvent) {
				t.Errorf("log output %q missing event %q", buf.String(), tt.wantEvent)
			}
			if len(observed) != 1 || observed[0] != tt.wantEvent {
				t.Errorf("observer saw %v, want [%s]", observed, tt.wantEvent)
			}
		})
	}
}

func Test_hashForLogging(t *testing.T) {
	if got := hashForLogging(""); got != "<empty>" {
		t.Errorf("hashForLogging(\"\") = %q, want <empty>", got)
	}
	a := hashForLogging("acct-1")
	if len(a) != 16 {
		t.Errorf("len(hash) = %d, want 16", len(a))
	}
	if a != hashForLogging("acct-1") {
		t.Error("hash is not deterministic")
	}
	if a == hashForLogging("acct-2") {
		t.Error("different inputs produced the same hash")
	}
}
