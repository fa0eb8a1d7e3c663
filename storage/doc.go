// Package storage defines the persistence interfaces of the authorization server.
//
//   - ClientStore: registered OAuth clients (the Client Directory backend)
//   - RevocationLedger: revoked token ids, kept until the token would have expired
//
// PendingAuthorization is defined here as well, but pending codes are never
// persisted; they live in the in-memory memory.CodeStore for the process lifetime.
//
// Implementations are provided in subpackages:
//   - storage/memory: in-memory clients, ledger and the authorization code store
//   - storage/sqlite: durable clients and ledger on SQLite with goose migrations
//   - storage/redis: revocation ledger on Redis with per-entry TTL
//   - storage/mock: fault-injecting stores for error path tests
package storage
