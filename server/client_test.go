package server

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/giantswarm/player-oidc/storage"
	"github.com/giantswarm/player-oidc/storage/mock"
)

func TestResolveClientCredentials(t *testing.T) {
	tests := []struct {
		name        string
		basicID     string
		basicSecret string
		hasBasic    bool
		formID      string
		formSecret  string
		want        ClientCredentials
		wantCode    string
	}{
		{
			name:        "basic",
			basicID:     "c1",
			basicSecret: "s1",
			hasBasic:    true,
			want:        ClientCredentials{ClientID: "c1", ClientSecret: "s1", Source: CredentialsBasic},
		},
		{
			name:        "basic with matching body client_id",
			basicID:     "c1",
			basicSecret: "s1",
			hasBasic:    true,
			formID:      "c1",
			want:        ClientCredentials{ClientID: "c1", ClientSecret: "s1", Source: CredentialsBasic},
		},
		{
			name:       "body",
			formID:     "c1",
			formSecret: "s1",
			want:       ClientCredentials{ClientID: "c1", ClientSecret: "s1", Source: CredentialsBody},
		},
		{
			name:   "public client",
			formID: "c1",
			want:   ClientCredentials{ClientID: "c1", Source: CredentialsNone},
		},
		{
			name:        "basic and body secret",
			basicID:     "c1",
			basicSecret: "s1",
			hasBasic:    true,
			formID:      "c1",
			formSecret:  "s1",
			wantCode:    ErrorCodeInvalidRequest,
		},
		{
			name:        "basic and different body client_id",
			basicID:     "c1",
			basicSecret: "s1",
			hasBasic:    true,
			formID:      "c2",
			wantCode:    ErrorCodeInvalidRequest,
		},
		{
			name:     "empty basic user",
			hasBasic: true,
			wantCode: ErrorCodeInvalidClient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveClientCredentials(tt.basicID, tt.basicSecret, tt.hasBasic, tt.formID, tt.formSecret)
			if tt.wantCode != "" {
				assertErrorCode(t, err, tt.wantCode)
				return
			}
			if err != nil {
				t.Fatalf("ResolveClientCredentials() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveClientCredentials() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestServer_VerifyClientSecret(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		clientID string
		secret   string
		want     bool
	}{
		{name: "correct secret", clientID: testConfClientID, secret: testClientSecret, want: true},
		{name: "wrong secret", clientID: testConfClientID, secret: "wrong", want: false},
		{name: "empty secret", clientID: testConfClientID, secret: "", want: false},
		{name: "public client", clientID: testPublicClient, secret: "anything", want: false},
		{name: "unknown client", clientID: "ghost", secret: testClientSecret, want: false},
		{name: "empty client id", clientID: "", secret: testClientSecret, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := env.srv.VerifyClientSecret(ctx, tt.clientID, tt.secret); got != tt.want {
				t.Errorf("VerifyClientSecret() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServer_FindClient(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	client, err := env.srv.FindClient(ctx, testConfClientID)
	if err != nil {
		t.Fatalf("FindClient() error = %v", err)
	}
	if client.ClientID != testConfClientID {
		t.Errorf("ClientID = %q, want %q", client.ClientID, testConfClientID)
	}

	if _, err := env.srv.FindClient(ctx, "ghost"); !errors.Is(err, storage.ErrClientNotFound) {
		t.Errorf("FindClient(unknown) error = %v, want ErrClientNotFound", err)
	}

	env.clients.GetClientFunc = mock.HangingClientLookup
	_, err = env.srv.FindClient(ctx, testConfClientID)
	assertErrorCode(t, err, ErrorCodeTemporarilyUnavailable)
}

func TestServer_RegisterClient(t *testing.T) {
	tests := []struct {
		name       string
		req        RegisterClientRequest
		wantType   string
		wantSecret bool
		wantCode   string
	}{
		{
			name: "confidential client",
			req: RegisterClientRequest{
				ClientName:         "Game Portal",
				ClientType:         storage.ClientTypeConfidential,
				RedirectURIPattern: "https://portal.example.com/callback",
				OwnerAccountID:     testAccountID,
			},
			wantType:   storage.ClientTypeConfidential,
			wantSecret: true,
		},
		{
			name: "public client",
			req: RegisterClientRequest{
				ClientName:         "Stats SPA",
				ClientType:         storage.ClientTypePublic,
				RedirectURIPattern: "https://stats.example.com/",
				OwnerAccountID:     testAccountID,
			},
			wantType: storage.ClientTypePublic,
		},
		{
			name: "default type is confidential",
			req: RegisterClientRequest{
				ClientName:         "Default",
				RedirectURIPattern: "https://default.example.com/cb",
				OwnerAccountID:     testAccountID,
			},
			wantType:   storage.ClientTypeConfidential,
			wantSecret: true,
		},
		{
			name: "missing owner",
			req: RegisterClientRequest{
				ClientName:         "Orphan",
				RedirectURIPattern: "https://orphan.example.com/cb",
			},
			wantCode: ErrorCodeInvalidRequest,
		},
		{
			name: "missing name",
			req: RegisterClientRequest{
				ClientName:         "   ",
				RedirectURIPattern: "https://noname.example.com/cb",
				OwnerAccountID:     testAccountID,
			},
			wantCode: ErrorCodeInvalidRequest,
		},
		{
			name: "name too long",
			req: RegisterClientRequest{
				ClientName:         strings.Repeat("n", MaxClientNameLength+1),
				RedirectURIPattern: "https://long.example.com/cb",
				OwnerAccountID:     testAccountID,
			},
			wantCode: ErrorCodeInvalidRequest,
		},
		{
			name: "invalid pattern",
			req: RegisterClientRequest{
				ClientName:         "Bad Pattern",
				RedirectURIPattern: "not a url",
				OwnerAccountID:     testAccountID,
			},
			wantCode: ErrorCodeInvalidRequest,
		},
		{
			name: "unknown type",
			req: RegisterClientRequest{
				ClientName:         "Weird",
				ClientType:         "service",
				RedirectURIPattern: "https://weird.example.com/cb",
				OwnerAccountID:     testAccountID,
			},
			wantCode: ErrorCodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()

			client, secret, err := env.srv.RegisterClient(ctx, tt.req)
			if tt.wantCode != "" {
				assertErrorCode(t, err, tt.wantCode)
				return
			}
			if err != nil {
				t.Fatalf("RegisterClient() error = %v", err)
			}

			id, err := uuid.Parse(client.ClientID)
			if err != nil {
				t.Fatalf("client id %q is not a UUID: %v", client.ClientID, err)
			}
			if id.Version() != 7 {
				t.Errorf("client id version = %d, want 7", id.Version())
			}
			if client.ClientType != tt.wantType {
				t.Errorf("ClientType = %q, want %q", client.ClientType, tt.wantType)
			}

			if tt.wantSecret {
				if secret == "" {
					t.Fatal("expected a plaintext secret")
				}
				if client.SecretHash == secret {
					t.Error("secret must be stored hashed")
				}
				if err := bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(secret)); err != nil {
					t.Errorf("secret hash does not match: %v", err)
				}
				if !env.srv.VerifyClientSecret(ctx, client.ClientID, secret) {
					t.Error("VerifyClientSecret() = false for the returned secret")
				}
			} else if secret != "" || client.SecretHash != "" {
				t.Error("public clients must not get a secret")
			}

			stored, err := env.srv.FindClient(ctx, client.ClientID)
			if err != nil {
				t.Fatalf("FindClient() error = %v", err)
			}
			if stored.OwnerAccountID != tt.req.OwnerAccountID {
				t.Errorf("OwnerAccountID = %q, want %q", stored.OwnerAccountID, tt.req.OwnerAccountID)
			}
		})
	}
}

func TestServer_ClientManagement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	client, secret, err := env.srv.RegisterClient(ctx, RegisterClientRequest{
		ClientName:         "Portal",
		RedirectURIPattern: "https://portal.example.com/cb",
		OwnerAccountID:     testAccountID,
	})
	if err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}

	t.Run("update by another owner is not found", func(t *testing.T) {
		_, err := env.srv.UpdateClient(ctx, "someone-else", client.ClientID, "Stolen", "https://evil.example.com/")
		if !errors.Is(err, storage.ErrClientNotFound) {
			t.Errorf("UpdateClient() error = %v, want ErrClientNotFound", err)
		}
	})

	t.Run("update", func(t *testing.T) {
		updated, err := env.srv.UpdateClient(ctx, testAccountID, client.ClientID, "Portal v2", "https://portal.example.com/v2")
		if err != nil {
			t.Fatalf("UpdateClient() error = %v", err)
		}
		if updated.ClientName != "Portal v2" || updated.RedirectURIPattern != "https://portal.example.com/v2" {
			t.Errorf("UpdateClient() = %+v", updated)
		}
	})

	t.Run("rotate secret", func(t *testing.T) {
		newSecret, err := env.srv.RotateClientSecret(ctx, testAccountID, client.ClientID)
		if err != nil {
			t.Fatalf("RotateClientSecret() error = %v", err)
		}
		if newSecret == secret {
			t.Error("rotated secret equals the old one")
		}
		if env.srv.VerifyClientSecret(ctx, client.ClientID, secret) {
			t.Error("old secret still verifies after rotation")
		}
		if !env.srv.VerifyClientSecret(ctx, client.ClientID, newSecret) {
			t.Error("new secret does not verify")
		}
	})

	t.Run("rotate public client", func(t *testing.T) {
		_, err := env.srv.RotateClientSecret(ctx, "owner-account", testPublicClient)
		assertErrorCode(t, err, ErrorCodeInvalidRequest)
	})

	t.Run("list by owner", func(t *testing.T) {
		clients, err := env.srv.ListClientsByOwner(ctx, testAccountID)
		if err != nil {
			t.Fatalf("ListClientsByOwner() error = %v", err)
		}
		if len(clients) != 1 || clients[0].ClientID != client.ClientID {
			t.Errorf("ListClientsByOwner() = %v", clients)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := env.srv.DeleteClient(ctx, testAccountID, client.ClientID); err != nil {
			t.Fatalf("DeleteClient() error = %v", err)
		}
		if _, err := env.srv.FindClient(ctx, client.ClientID); !errors.Is(err, storage.ErrClientNotFound) {
			t.Errorf("FindClient() after delete error = %v, want ErrClientNotFound", err)
		}
		if err := env.srv.DeleteClient(ctx, testAccountID, client.ClientID); !errors.Is(err, storage.ErrClientNotFound) {
			t.Errorf("second DeleteClient() error = %v, want ErrClientNotFound", err)
		}
	})
}
