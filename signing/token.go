package signing

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
)

// ErrInvalidSignature is returned by Verify for any token that does not
// parse or whose signature does not verify with this key.
var ErrInvalidSignature = errors.New("invalid token signature")

// Claims is the payload of every issued token. Registered claims come from
// jwt.Claims; the rest are specific to this server.
type Claims struct {
	jwt.Claims

	TokenType string `json:"token_type"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id"`

	// ID token only
	AuthTime *jwt.NumericDate `json:"auth_time,omitempty"`
	Nonce    string           `json:"nonce,omitempty"`
	ATHash   string           `json:"at_hash,omitempty"`
}

// NewTokenID returns a fresh time-ordered jti
func NewTokenID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate token id: %w", err)
	}
	return id.String(), nil
}

// Sign serializes claims as a compact RS256 JWS
func (k *KeyManager) Sign(claims *Claims) (string, error) {
	if claims == nil {
		return "", errors.New("claims cannot be nil")
	}
	token, err := jwt.Signed(k.signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Verify checks the signature of token and returns its claims. It does not
// validate issuer, audience or expiry; callers check those.
func (k *KeyManager) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.RS256})
	if err != nil {
		return nil, ErrInvalidSignature
	}

	var claims Claims
	if err := parsed.Claims(k.PublicKey(), &claims); err != nil {
		return nil, ErrInvalidSignature
	}
	return &claims, nil
}

// ATHash computes the OIDC at_hash of an access token: the left half of its
// SHA-256 digest, base64url encoded without padding.
func ATHash(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}
