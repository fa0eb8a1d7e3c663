package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	sqlite3 "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/giantswarm/player-oidc/instrumentation"
	"github.com/giantswarm/player-oidc/storage"
)

const backendName = "sqlite"

// toMillis normalizes timestamps into millisecond precision for storage
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores a stored timestamp in UTC
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store implements storage.ClientStore and storage.RevocationLedger over SQLite.
type Store struct {
	db       *sql.DB
	recorder *storage.OpRecorder
	logger   *slog.Logger
}

// Compile-time interface checks
var (
	_ storage.ClientStore      = (*Store)(nil)
	_ storage.RevocationLedger = (*Store)(nil)
)

// Open opens (creating if needed) the database at path and applies migrations.
// ":memory:" opens a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := ":memory:"
	if path != ":memory:" {
		dsn = "file:" + filepath.Clean(path)
	}
	dsn += "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, logger: slog.Default()}, nil
}

// Close releases the underlying database
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SetLogger sets a custom logger for the store
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetInstrumentation enables spans and operation metrics
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.recorder = storage.NewOpRecorder(backendName, inst)
}

// Ping checks that the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// classify marks lock contention as storage.ErrUnavailable so callers answer
// temporarily_unavailable instead of server_error.
func classify(err error) error {
	var sqliteErr *sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
		}
	}
	return err
}

// ============================================================
// ClientStore Implementation
// ============================================================

const clientColumns = `client_id, client_name, client_type, redirect_uri_pattern,
	secret_hash, owner_account_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*storage.ClientRecord, error) {
	var c storage.ClientRecord
	var createdAt, updatedAt int64
	if err := row.Scan(&c.ClientID, &c.ClientName, &c.ClientType, &c.RedirectURIPattern,
		&c.SecretHash, &c.OwnerAccountID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return &c, nil
}

// SaveClient inserts or replaces a client record
func (s *Store) SaveClient(ctx context.Context, client *storage.ClientRecord) (err error) {
	ctx, span := s.recorder.Start(ctx, "save_client")
	defer func(start time.Time) { s.recorder.Done(ctx, span, "save_client", err, start) }(time.Now())

	if client == nil {
		return fmt.Errorf("client cannot be nil")
	}
	if err := client.Validate(); err != nil {
		return fmt.Errorf("invalid client: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (client_id) DO UPDATE SET
			client_name = excluded.client_name,
			client_type = excluded.client_type,
			redirect_uri_pattern = excluded.redirect_uri_pattern,
			secret_hash = excluded.secret_hash,
			owner_account_id = excluded.owner_account_id,
			updated_at = excluded.updated_at`,
		client.ClientID,
		client.ClientName,
		client.ClientType,
		client.RedirectURIPattern,
		client.SecretHash,
		client.OwnerAccountID,
		toMillis(client.CreatedAt),
		toMillis(client.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving client: %w", classify(err))
	}
	return nil
}

// GetClient returns the client record or storage.ErrClientNotFound
func (s *Store) GetClient(ctx context.Context, clientID string) (client *storage.ClientRecord, err error) {
	ctx, span := s.recorder.Start(ctx, "get_client")
	defer func(start time.Time) { s.recorder.Done(ctx, span, "get_client", err, start) }(time.Now())

	row := s.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE client_id = ?`, clientID)
	client, err = scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
	}
	if err != nil {
		return nil, fmt.Errorf("getting client: %w", classify(err))
	}
	return client, nil
}

// DeleteClient removes a client record
func (s *Store) DeleteClient(ctx context.Context, clientID string) (err error) {
	ctx, span := s.recorder.Start(ctx, "delete_client")
	defer func(start time.Time) { s.recorder.Done(ctx, span, "delete_client", err, start) }(time.Now())

	res, err := s.db.ExecContext(ctx, `DELETE FROM clients WHERE client_id = ?`, clientID)
	if err != nil {
		return fmt.Errorf("deleting client: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting client: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
	}
	return nil
}

// ListClientsByOwner returns the clients registered by an account, oldest first
func (s *Store) ListClientsByOwner(ctx context.Context, ownerAccountID string) (clients []*storage.ClientRecord, err error) {
	ctx, span := s.recorder.Start(ctx, "list_clients_by_owner")
	defer func(start time.Time) { s.recorder.Done(ctx, span, "list_clients_by_owner", err, start) }(time.Now())

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE owner_account_id = ? ORDER BY created_at, client_id`,
		ownerAccountID)
	if err != nil {
		return nil, fmt.Errorf("listing clients: %w", classify(err))
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning client: %w", err)
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing clients: %w", classify(err))
	}
	return clients, nil
}

// ============================================================
// RevocationLedger Implementation
// ============================================================

// Revoke records a ledger entry. Revoking an id twice keeps the first entry.
func (s *Store) Revoke(ctx context.Context, entry *storage.RevokedToken) (err error) {
	ctx, span := s.recorder.Start(ctx, "revoke")
	defer func(start time.Time) { s.recorder.Done(ctx, span, "revoke", err, start) }(time.Now())

	if entry == nil || entry.TokenID == "" {
		return fmt.Errorf("revocation entry requires a token id")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (token_id, token_type, client_id, revoked_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (token_id) DO NOTHING`,
		entry.TokenID,
		entry.TokenType,
		entry.ClientID,
		toMillis(entry.RevokedAt),
		toMillis(entry.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("recording revocation: %w", classify(err))
	}
	return nil
}

// IsRevoked reports whether tokenID has a ledger entry
func (s *Store) IsRevoked(ctx context.Context, tokenID string) (revoked bool, err error) {
	ctx, span := s.recorder.Start(ctx, "is_revoked")
	defer func(start time.Time) { s.recorder.Done(ctx, span, "is_revoked", err, start) }(time.Now())

	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_id = ?)`, tokenID).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("checking revocation: %w", classify(err))
	}
	return revoked, nil
}

// GetRevoked returns the ledger entry for tokenID or storage.ErrNotFound
func (s *Store) GetRevoked(ctx context.Context, tokenID string) (entry *storage.RevokedToken, err error) {
	ctx, span := s.recorder.Start(ctx, "get_revoked")
	defer func(start time.Time) { s.recorder.Done(ctx, span, "get_revoked", err, start) }(time.Now())

	var e storage.RevokedToken
	var revokedAt, expiresAt int64
	err = s.db.QueryRowContext(ctx, `
		SELECT token_id, token_type, client_id, revoked_at, expires_at
		FROM revoked_tokens WHERE token_id = ?`, tokenID).
		Scan(&e.TokenID, &e.TokenType, &e.ClientID, &revokedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting revocation: %w", classify(err))
	}
	e.RevokedAt = fromMillis(revokedAt)
	e.ExpiresAt = fromMillis(expiresAt)
	return &e, nil
}

// PurgeExpired deletes entries whose ExpiresAt is before now
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (removed int, err error) {
	ctx, span := s.recorder.Start(ctx, "purge_expired")
	defer func(start time.Time) { s.recorder.Done(ctx, span, "purge_expired", err, start) }(time.Now())

	res, err := s.db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at < ?`, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("purging revocations: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purging revocations: %w", err)
	}
	if n > 0 {
		s.logger.Debug("Purged expired revocation entries", "count", n)
	}
	return int(n), nil
}
