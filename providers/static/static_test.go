package static

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/giantswarm/player-oidc/providers"
)

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt error = %v", err)
	}
	return string(hash)
}

func testDirectory(t *testing.T) *Directory {
	t.Helper()
	data := []byte(`
accounts:
  - id: acc-steve
    name: Steve
    nickname: steve_builds
    picture: https://example.com/steve.png
    online: true
    registered: true
    password_hash: "` + hashPassword(t, "diamond") + `"
  - id: acc-alex
    name: Alex
    registered: false
`)
	d, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return d
}

func TestParse_Lookups(t *testing.T) {
	d := testDirectory(t)
	ctx := context.Background()

	if d.Len() != 2 {
		t.Errorf("Len() = %d, want 2", d.Len())
	}

	acct, err := d.LookupByName(ctx, "STEVE")
	if err != nil {
		t.Fatalf("LookupByName() error = %v", err)
	}
	if acct.ID != "acc-steve" || acct.Nickname != "steve_builds" || !acct.Online || !acct.Registered {
		t.Errorf("LookupByName() = %+v", acct)
	}

	acct, err = d.LookupByID(ctx, "acc-alex")
	if err != nil {
		t.Fatalf("LookupByID() error = %v", err)
	}
	if acct.Name != "Alex" || acct.Registered {
		t.Errorf("LookupByID() = %+v", acct)
	}

	if _, err := d.LookupByName(ctx, "Notch"); !errors.Is(err, providers.ErrAccountNotFound) {
		t.Errorf("LookupByName(unknown) error = %v", err)
	}
	if _, err := d.LookupByID(ctx, "nobody"); !errors.Is(err, providers.ErrAccountNotFound) {
		t.Errorf("LookupByID(unknown) error = %v", err)
	}
}

func TestVerifyPassword(t *testing.T) {
	d := testDirectory(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		accountID string
		password  string
		want      bool
		wantErr   error
	}{
		{"match", "acc-steve", "diamond", true, nil},
		{"mismatch", "acc-steve", "dirt", false, nil},
		{"no credentials", "acc-alex", "x", false, providers.ErrNoCredentials},
		{"unknown", "nobody", "x", false, providers.ErrAccountNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.VerifyPassword(ctx, tt.accountID, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("VerifyPassword() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("VerifyPassword() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"invalid yaml", "accounts: [\n"},
		{"missing id", "accounts:\n  - name: Steve\n"},
		{"missing name", "accounts:\n  - id: a\n"},
		{"duplicate id", "accounts:\n  - {id: a, name: A}\n  - {id: a, name: B}\n"},
		{"duplicate name", "accounts:\n  - {id: a, name: Steve}\n  - {id: b, name: steve}\n"},
		{"plaintext password", "accounts:\n  - {id: a, name: A, password_hash: hunter2}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("Parse() expected error")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	if err := os.WriteFile(path, []byte("accounts:\n  - {id: a, name: A, registered: true}\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	d, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if d.Len() != 1 {
		t.Errorf("Len() = %d, want 1", d.Len())
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load(missing) expected error")
	}
}

func TestDirectory_WithAuthenticator(t *testing.T) {
	d := testDirectory(t)
	auth, err := providers.NewAuthenticator(d, d)
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}

	res, err := auth.Authenticate(context.Background(), "steve", "diamond")
	if err != nil || !res.OK() || res.AccountID != "acc-steve" {
		t.Errorf("Authenticate() = %+v, %v", res, err)
	}
}
