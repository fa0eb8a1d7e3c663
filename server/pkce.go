package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// PKCE constants (RFC 7636)
const (
	MinCodeVerifierLength = 43
	MaxCodeVerifierLength = 128
	PKCEMethodS256        = "S256"

	// s256ChallengeLength is the base64url length of a SHA-256 digest without padding
	s256ChallengeLength = 43
)

// ValidateChallenge reports whether a code_challenge and its method are
// acceptable. Only S256 is supported.
func ValidateChallenge(challenge, method string) bool {
	if method != PKCEMethodS256 {
		return false
	}
	if len(challenge) != s256ChallengeLength {
		return false
	}
	return isBase64URL(challenge)
}

// ValidateVerifier reports whether verifier matches the stored S256 challenge.
// The verifier must be 43-128 characters from the RFC 7636 unreserved set.
func ValidateVerifier(challenge, verifier string) bool {
	if len(verifier) < MinCodeVerifierLength || len(verifier) > MaxCodeVerifierLength {
		return false
	}
	for i := 0; i < len(verifier); i++ {
		if !isUnreserved(verifier[i]) {
			return false
		}
	}

	sum := sha256.Sum256([]byte(verifier))
	computed := base64.RawURLEncoding.EncodeToString(sum[:])

	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

// isUnreserved reports whether c is in [A-Za-z0-9-._~]
func isUnreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}

func isBase64URL(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-' || c == '_') {
			return false
		}
	}
	return true
}
