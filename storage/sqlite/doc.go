// Package sqlite provides durable storage for registered clients and the
// token revocation ledger on top of modernc.org/sqlite (pure Go, no cgo).
//
// The schema is embedded and migrated with goose when the store is opened.
// Timestamps are stored as UTC epoch milliseconds.
//
// Example usage:
//
//	store, err := sqlite.Open(ctx, "/var/lib/player-oidc/oidc.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
package sqlite
