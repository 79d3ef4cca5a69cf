package boltstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tangled.org/arabica.social/sanctions/internal/moderation"
)

func setupTestIdentityStore(t *testing.T) *IdentityStore {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := Open(Options{Path: dbPath})
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store.IdentityStore()
}

func TestIdentityStore(t *testing.T) {
	ctx := context.Background()
	store := setupTestIdentityStore(t)

	t.Run("put and get", func(t *testing.T) {
		err := store.PutIdentity(ctx, moderation.Identity{ID: "u1", Username: "Alice", PermissionLevel: 1})
		require.NoError(t, err)

		got, err := store.GetIdentity(ctx, "u1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Alice", got.Username)
		assert.Equal(t, 1, got.PermissionLevel)
	})

	t.Run("find by username is case insensitive", func(t *testing.T) {
		got, err := store.FindIdentityByUsername(ctx, "alice")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "u1", got.ID)

		got, err = store.FindIdentityByUsername(ctx, "ALICE")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "u1", got.ID)
	})

	t.Run("unknown identity", func(t *testing.T) {
		got, err := store.GetIdentity(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = store.FindIdentityByUsername(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("rename moves the username index", func(t *testing.T) {
		err := store.PutIdentity(ctx, moderation.Identity{ID: "u2", Username: "carol"})
		require.NoError(t, err)
		err = store.PutIdentity(ctx, moderation.Identity{ID: "u2", Username: "caroline"})
		require.NoError(t, err)

		got, err := store.FindIdentityByUsername(ctx, "carol")
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = store.FindIdentityByUsername(ctx, "caroline")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "u2", got.ID)
	})

	t.Run("username owned by another id", func(t *testing.T) {
		err := store.PutIdentity(ctx, moderation.Identity{ID: "u3", Username: "alice"})
		assert.Error(t, err)
	})

	t.Run("missing fields", func(t *testing.T) {
		assert.Error(t, store.PutIdentity(ctx, moderation.Identity{ID: "u4"}))
		assert.Error(t, store.PutIdentity(ctx, moderation.Identity{Username: "dave"}))
	})

	t.Run("count", func(t *testing.T) {
		assert.Equal(t, 2, store.Count())
	})
}
