// Package memory provides in-memory storage for the authorization server.
//
// Store implements storage.ClientStore and storage.RevocationLedger behind a
// sync.RWMutex. It is suitable for development, tests and single-instance
// deployments where losing clients and revocations on restart is acceptable.
//
// CodeStore holds pending authorization codes. Codes are never persisted:
// they live for the process lifetime at most and are removed on first
// exchange attempt or by a throttled sweep once older than the maximum age.
//
// Example usage:
//
//	store := memory.New()
//	codes := memory.NewCodeStore(10*time.Minute, time.Minute)
//	srv, err := server.New(store, store, codes, keys, authenticator, config, logger)
package memory
