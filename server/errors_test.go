package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "with description",
			err:  ErrInvalidGrant("code expired"),
			want: "invalid_grant: code expired",
		},
		{
			name: "without description",
			err:  NewError(ErrorCodeServerError, "", http.StatusInternalServerError),
			want: "server_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *Error
		wantCode   string
		wantStatus int
	}{
		{"invalid_request", ErrInvalidRequest("d"), ErrorCodeInvalidRequest, http.StatusBadRequest},
		{"invalid_client", ErrInvalidClient("d"), ErrorCodeInvalidClient, http.StatusUnauthorized},
		{"invalid_grant", ErrInvalidGrant("d"), ErrorCodeInvalidGrant, http.StatusBadRequest},
		{"invalid_scope", ErrInvalidScope("d"), ErrorCodeInvalidScope, http.StatusBadRequest},
		{"unauthorized_client", ErrUnauthorizedClient("d"), ErrorCodeUnauthorizedClient, http.StatusBadRequest},
		{"unsupported_grant_type", ErrUnsupportedGrantType("d"), ErrorCodeUnsupportedGrantType, http.StatusBadRequest},
		{"unsupported_response_type", ErrUnsupportedResponseType("d"), ErrorCodeUnsupportedResponseType, http.StatusBadRequest},
		{"access_denied", ErrAccessDenied("d"), ErrorCodeAccessDenied, http.StatusForbidden},
		{"invalid_token", ErrInvalidToken("d"), ErrorCodeInvalidToken, http.StatusUnauthorized},
		{"temporarily_unavailable", ErrTemporarilyUnavailable("d"), ErrorCodeTemporarilyUnavailable, http.StatusServiceUnavailable},
		{"server_error", ErrServerError("d"), ErrorCodeServerError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.wantCode)
			}
			if tt.err.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", tt.err.Status, tt.wantStatus)
			}
			if tt.err.Description != "d" {
				t.Errorf("Description = %q, want %q", tt.err.Description, "d")
			}
		})
	}
}

func TestAsError(t *testing.T) {
	if AsError(nil) != nil {
		t.Error("AsError(nil) should be nil")
	}

	grant := ErrInvalidGrant("used")
	if got := AsError(grant); got != grant {
		t.Errorf("AsError(*Error) = %v, want same error", got)
	}

	wrapped := fmt.Errorf("exchange: %w", grant)
	if got := AsError(wrapped); got != grant {
		t.Errorf("AsError(wrapped) = %v, want unwrapped error", got)
	}

	internal := errors.New("database exploded at 10.0.0.5")
	got := AsError(internal)
	if got.Code != ErrorCodeServerError || got.Status != http.StatusInternalServerError {
		t.Errorf("AsError(plain) = %+v, want server_error 500", got)
	}
	if got.Description != "internal server error" {
		t.Errorf("AsError(plain) leaked description %q", got.Description)
	}
}
