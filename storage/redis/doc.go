// Package redis provides a revocation ledger on Redis using go-redis.
//
// Each revoked token id is stored under "<prefix>revoked:<jti>" as JSON with
// a TTL that ends shortly after the token's own expiry, so Redis drops the
// entry once the token could no longer be accepted. Client records stay in a
// durable store; this package only implements storage.RevocationLedger.
package redis
