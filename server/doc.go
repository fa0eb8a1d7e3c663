// Package server implements the protocol logic of the player OpenID Connect
// provider.
//
// The Server type owns the authorization code grant with mandatory PKCE
// (S256), the refresh token grant, RFC 7009 revocation and the checks a
// resource server applies to bearer tokens. It coordinates between:
//   - the client directory and revocation ledger (storage package)
//   - the in-memory authorization code store (storage/memory)
//   - the RS256 signing key (signing package)
//   - the player directory and credential store (providers package)
//   - auditing, rate limiting and time helpers (security package)
//
// Tokens are stateless JWTs. Only revocations are persisted, keyed by jti.
//
// Flows return *Error for protocol failures. The HTTP layer in the root
// package renders them as RFC 6749 error responses.
//
// Example usage:
//
//	keys, _ := signing.LoadOrGenerate("signing-key.pem", nil)
//	store := memory.New()
//	codes := memory.NewCodeStore(server.DefaultCodeMaxAge, server.DefaultSweepInterval)
//
//	srv, err := server.New(store, store, codes, keys, identity,
//	    &server.Config{Issuer: "https://auth.example.com"}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv.StartSweeper(ctx)
package server
