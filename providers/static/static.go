package static

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/giantswarm/player-oidc/providers"
)

// dummyHash is compared against when an account has no password so the
// response time does not reveal which accounts have credentials.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

type fileAccount struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Nickname     string `yaml:"nickname"`
	Picture      string `yaml:"picture"`
	Online       bool   `yaml:"online"`
	Registered   bool   `yaml:"registered"`
	PasswordHash string `yaml:"password_hash"`
}

type file struct {
	Accounts []fileAccount `yaml:"accounts"`
}

// Directory is an immutable account set loaded from YAML. It is safe for
// concurrent use.
type Directory struct {
	byID   map[string]fileAccount
	byName map[string]string // lower-cased name -> id
}

var (
	_ providers.Directory          = (*Directory)(nil)
	_ providers.CredentialVerifier = (*Directory)(nil)
)

// Load reads and parses the accounts file at path
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}
	return Parse(data)
}

// Parse builds a directory from YAML. Ids and names must be unique and
// password hashes must be bcrypt.
func Parse(data []byte) (*Directory, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse accounts file: %w", err)
	}

	d := &Directory{
		byID:   make(map[string]fileAccount, len(f.Accounts)),
		byName: make(map[string]string, len(f.Accounts)),
	}
	for i, a := range f.Accounts {
		if a.ID == "" || a.Name == "" {
			return nil, fmt.Errorf("account %d: id and name are required", i)
		}
		if _, dup := d.byID[a.ID]; dup {
			return nil, fmt.Errorf("account %d: duplicate id %q", i, a.ID)
		}
		key := strings.ToLower(a.Name)
		if _, dup := d.byName[key]; dup {
			return nil, fmt.Errorf("account %d: duplicate name %q", i, a.Name)
		}
		if a.PasswordHash != "" {
			if _, err := bcrypt.Cost([]byte(a.PasswordHash)); err != nil {
				return nil, fmt.Errorf("account %d: password_hash is not a bcrypt hash: %w", i, err)
			}
		}
		d.byID[a.ID] = a
		d.byName[key] = a.ID
	}
	return d, nil
}

func toAccount(a fileAccount) *providers.Account {
	return &providers.Account{
		ID:         a.ID,
		Name:       a.Name,
		Nickname:   a.Nickname,
		Picture:    a.Picture,
		Online:     a.Online,
		Registered: a.Registered,
	}
}

// LookupByName resolves a player name case-insensitively
func (d *Directory) LookupByName(_ context.Context, name string) (*providers.Account, error) {
	id, ok := d.byName[strings.ToLower(name)]
	if !ok {
		return nil, providers.ErrAccountNotFound
	}
	return toAccount(d.byID[id]), nil
}

// LookupByID resolves an account id
func (d *Directory) LookupByID(_ context.Context, accountID string) (*providers.Account, error) {
	a, ok := d.byID[accountID]
	if !ok {
		return nil, providers.ErrAccountNotFound
	}
	return toAccount(a), nil
}

// VerifyPassword compares password with the account's bcrypt hash
func (d *Directory) VerifyPassword(_ context.Context, accountID, password string) (bool, error) {
	a, ok := d.byID[accountID]

	if !ok || a.PasswordHash == "" {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		if !ok {
			return false, providers.ErrAccountNotFound
		}
		return false, providers.ErrNoCredentials
	}

	err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to compare password: %w", err)
	}
	return true, nil
}

// Len returns the number of accounts
func (d *Directory) Len() int {
	return len(d.byID)
}
