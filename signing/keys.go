package signing

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-jose/go-jose/v4"

	"github.com/giantswarm/player-oidc/security"
)

const (
	// MinKeyBits is the smallest accepted RSA modulus
	MinKeyBits = 2048

	// DefaultKeyBits is the size of generated keys
	DefaultKeyBits = 2048

	pemTypePKCS8  = "PRIVATE KEY"
	pemTypePKCS1  = "RSA PRIVATE KEY"
	pemTypeSealed = "SEALED PRIVATE KEY"
)

// sealAAD binds a sealed key file to its purpose
var sealAAD = []byte("player-oidc signing key")

// KeyManager holds the RSA key pair and its key id.
// It is immutable after construction and safe for concurrent use.
type KeyManager struct {
	privateKey *rsa.PrivateKey
	keyID      string
	signer     jose.Signer
}

// NewKeyManager wraps an existing private key
func NewKeyManager(key *rsa.PrivateKey) (*KeyManager, error) {
	if key == nil {
		return nil, errors.New("private key cannot be nil")
	}
	if bits := key.N.BitLen(); bits < MinKeyBits {
		return nil, fmt.Errorf("RSA key must be at least %d bits, got %d", MinKeyBits, bits)
	}

	kid, err := deriveKeyID(&key.PublicKey)
	if err != nil {
		return nil, err
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{
			Algorithm: jose.RS256,
			Key:       jose.JSONWebKey{Key: key, KeyID: kid, Algorithm: string(jose.RS256)},
		},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}

	return &KeyManager{privateKey: key, keyID: kid, signer: signer}, nil
}

// Generate creates a key manager with a fresh in-memory key
func Generate(bits int) (*KeyManager, error) {
	if bits == 0 {
		bits = DefaultKeyBits
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	return NewKeyManager(key)
}

// LoadOrGenerate loads the key at path, or generates and writes one when the
// file does not exist. When enc is enabled new keys are sealed with it and
// sealed keys can be read back. The file is created with O_EXCL so two
// processes starting together never overwrite each other's key.
func LoadOrGenerate(path string, enc *security.Encryptor) (*KeyManager, error) {
	if path == "" {
		return nil, errors.New("key path cannot be empty")
	}

	data, err := os.ReadFile(path) // #nosec G304 - path comes from operator configuration
	if err == nil {
		return parseKeyFile(data, enc)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}

	key, err := rsa.GenerateKey(rand.Reader, DefaultKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	encoded, err := encodeKeyFile(key, enc)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600) // #nosec G304
	if errors.Is(err, fs.ErrExist) {
		// lost a race with another process; use its key
		return LoadOrGenerate(path, enc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create signing key file: %w", err)
	}
	if _, err := f.Write(encoded); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to write signing key: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to write signing key: %w", err)
	}

	return NewKeyManager(key)
}

func encodeKeyFile(key *rsa.PrivateKey, enc *security.Encryptor) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signing key: %w", err)
	}

	if !enc.IsEnabled() {
		return pem.EncodeToMemory(&pem.Block{Type: pemTypePKCS8, Bytes: der}), nil
	}

	sealed, err := enc.Seal(der, sealAAD)
	if err != nil {
		return nil, fmt.Errorf("failed to seal signing key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemTypeSealed, Bytes: sealed}), nil
}

func parseKeyFile(data []byte, enc *security.Encryptor) (*KeyManager, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode PEM block from signing key")
	}

	der := block.Bytes
	switch block.Type {
	case pemTypeSealed:
		if !enc.IsEnabled() {
			return nil, errors.New("signing key is sealed but no encryption key is configured")
		}
		opened, err := enc.Open(block.Bytes, sealAAD)
		if err != nil {
			return nil, fmt.Errorf("failed to open sealed signing key: %w", err)
		}
		der = opened
	case pemTypePKCS1:
		key, err := x509.ParsePKCS1PrivateKey(der)
		if err != nil {
			return nil, fmt.Errorf("failed to parse signing key: %w", err)
		}
		return NewKeyManager(key)
	case pemTypePKCS8:
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signing key must be RSA, got %T", parsed)
	}
	return NewKeyManager(key)
}

// deriveKeyID computes the RFC 7638 JWK thumbprint of the public key
func deriveKeyID(pub *rsa.PublicKey) (string, error) {
	jwk := jose.JSONWebKey{Key: pub}
	thumbprint, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("failed to compute key thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(thumbprint), nil
}

// KeyID returns the key identifier placed in the kid header
func (k *KeyManager) KeyID() string {
	return k.keyID
}

// PublicKey returns the verification key
func (k *KeyManager) PublicKey() *rsa.PublicKey {
	return &k.privateKey.PublicKey
}

// JWKS returns the public key set served at /.well-known/jwks.json
func (k *KeyManager) JWKS() jose.JSONWebKeySet {
	return jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{
			Key:       k.PublicKey(),
			KeyID:     k.keyID,
			Algorithm: string(jose.RS256),
			Use:       "sig",
		}},
	}
}
