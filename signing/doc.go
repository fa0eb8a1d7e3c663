// Package signing holds the server's RSA signing key and produces and
// verifies RS256 JSON Web Tokens with go-jose.
//
// The key is generated once and persisted as PEM (optionally sealed with
// security.Encryptor). An existing key file is never overwritten: replacing
// it would invalidate every outstanding token.
package signing
