package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/louisbranch/linkpage/internal/services/linkpage/api"
	"github.com/louisbranch/linkpage/internal/services/linkpage/credentials"
)

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	require.Error(t, err)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "credentials.db")

	store, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, credentials.SaveTokens(ctx, store, api.TokenPair{AccessToken: "access", RefreshToken: "refresh"}))
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, reopened.Close()) })

	access, err := credentials.AccessToken(ctx, reopened)
	require.NoError(t, err)
	require.Equal(t, "access", access)

	refresh, err := credentials.RefreshToken(ctx, reopened)
	require.NoError(t, err)
	require.Equal(t, "refresh", refresh)
}

func TestStoreOverwriteAndRemove(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "credentials.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	require.NoError(t, store.Set(ctx, credentials.KeyAccessToken, "one"))
	require.NoError(t, store.Set(ctx, credentials.KeyAccessToken, "two"))
	value, ok, err := store.Get(ctx, credentials.KeyAccessToken)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "two", value)

	require.NoError(t, credentials.ClearTokens(ctx, store))
	_, ok, err = store.Get(ctx, credentials.KeyAccessToken)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, store.Remove(ctx, "missing"))
}

func TestNilStoreReportsUnconfigured(t *testing.T) {
	var store *Store
	_, _, err := store.Get(context.Background(), credentials.KeyAccessToken)
	require.Error(t, err)
	require.NoError(t, store.Close())
}
