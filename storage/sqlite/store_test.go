package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/player-oidc/internal/testutil"
	"github.com/giantswarm/player-oidc/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.Context(), filepath.Join(t.TempDir(), "oidc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpen_RequiresPath(t *testing.T) {
	t.Parallel()
	_, err := Open(context.Background(), "  ")
	require.Error(t, err)
}

func TestOpen_InMemory(t *testing.T) {
	t.Parallel()
	store, err := Open(t.Context(), ":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.Ping(t.Context()))
	require.NoError(t, store.SaveClient(t.Context(), testutil.NewPublicClient("c1", "https://a.example/cb")))
}

func TestOpen_MigrationsIdempotent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "oidc.db")

	first, err := Open(t.Context(), path)
	require.NoError(t, err)
	require.NoError(t, first.SaveClient(t.Context(), testutil.NewPublicClient("c1", "https://a.example/cb")))
	require.NoError(t, first.Close())

	second, err := Open(t.Context(), path)
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	got, err := second.GetClient(t.Context(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "https://a.example/cb", got.RedirectURIPattern)
}

func TestStore_ClientRoundTrip(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := t.Context()

	client := testutil.NewConfidentialClient(t, "c1", "s3cret", "https://a.example/cb")
	client.CreatedAt = time.Date(2026, 2, 3, 4, 5, 6, 789_000_000, time.UTC)
	client.UpdatedAt = client.CreatedAt
	require.NoError(t, store.SaveClient(ctx, client))

	got, err := store.GetClient(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, client.ClientID, got.ClientID)
	assert.Equal(t, client.ClientName, got.ClientName)
	assert.Equal(t, storage.ClientTypeConfidential, got.ClientType)
	assert.Equal(t, client.SecretHash, got.SecretHash)
	assert.Equal(t, client.OwnerAccountID, got.OwnerAccountID)
	assert.True(t, client.CreatedAt.Equal(got.CreatedAt), "CreatedAt = %v, want %v", got.CreatedAt, client.CreatedAt)

	// Upsert keeps created_at and replaces mutable fields
	client.ClientName = "Renamed"
	client.UpdatedAt = client.CreatedAt.Add(time.Hour)
	require.NoError(t, store.SaveClient(ctx, client))

	got, err = store.GetClient(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.ClientName)
	assert.True(t, client.UpdatedAt.Equal(got.UpdatedAt))
}

func TestStore_SaveClient_RejectsInvalid(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	bad := testutil.NewPublicClient("c1", "https://a.example/cb")
	bad.SecretHash = "not-allowed"
	require.Error(t, store.SaveClient(t.Context(), bad))
	require.Error(t, store.SaveClient(t.Context(), nil))
}

func TestStore_GetClient_NotFound(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	_, err := store.GetClient(t.Context(), "missing")
	require.ErrorIs(t, err, storage.ErrClientNotFound)
}

func TestStore_DeleteClient(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := t.Context()

	require.NoError(t, store.SaveClient(ctx, testutil.NewPublicClient("c1", "https://a.example/cb")))
	require.NoError(t, store.DeleteClient(ctx, "c1"))
	require.ErrorIs(t, store.DeleteClient(ctx, "c1"), storage.ErrClientNotFound)

	_, err := store.GetClient(ctx, "c1")
	require.ErrorIs(t, err, storage.ErrClientNotFound)
}

func TestStore_ListClientsByOwner(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := t.Context()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"c3", "c1", "c2"} {
		c := testutil.NewPublicClient(id, "https://a.example/cb")
		c.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if id == "c2" {
			c.OwnerAccountID = "other"
		}
		require.NoError(t, store.SaveClient(ctx, c))
	}

	got, err := store.ListClientsByOwner(ctx, "owner-account")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c3", got[0].ClientID)
	assert.Equal(t, "c1", got[1].ClientID)

	none, err := store.ListClientsByOwner(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_Ledger(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := t.Context()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	entry := &storage.RevokedToken{
		TokenID:   "jti-1",
		TokenType: storage.TokenTypeRefresh,
		ClientID:  "c1",
		RevokedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
	require.NoError(t, store.Revoke(ctx, entry))
	require.NoError(t, store.Revoke(ctx, entry), "second revoke must be idempotent")

	revoked, err := store.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	got, err := store.GetRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.Equal(t, storage.TokenTypeRefresh, got.TokenType)
	assert.Equal(t, "c1", got.ClientID)
	assert.True(t, entry.ExpiresAt.Equal(got.ExpiresAt))

	revoked, err = store.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)

	_, err = store.GetRevoked(ctx, "jti-2")
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.Error(t, store.Revoke(ctx, &storage.RevokedToken{}))
}

func TestStore_PurgeExpired(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := t.Context()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	for id, exp := range map[string]time.Time{
		"expired":  now.Add(-time.Minute),
		"boundary": now,
		"live":     now.Add(time.Minute),
	} {
		require.NoError(t, store.Revoke(ctx, &storage.RevokedToken{
			TokenID: id, TokenType: storage.TokenTypeAccess, ClientID: "c1",
			RevokedAt: now, ExpiresAt: exp,
		}))
	}

	removed, err := store.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	for id, want := range map[string]bool{"expired": false, "boundary": true, "live": true} {
		got, err := store.IsRevoked(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got, id)
	}
}

func TestStore_ContextCanceled(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := store.GetClient(ctx, "c1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrClientNotFound)
}
