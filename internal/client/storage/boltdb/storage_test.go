package boltdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/iudanet/playerid/internal/client/storage"
	"github.com/iudanet/playerid/internal/models"
)

// создаём тестовое BoltDB хранилище во временной директории
func createTestStorage(t *testing.T) *Storage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "client_test.db")

	store, err := New(context.Background(), dbPath)
	require.NoError(t, err)
	require.NotNil(t, store)

	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func TestNew_Success(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "testdb.db")

	ctx := context.Background()
	store, err := New(ctx, dbPath)
	require.NoError(t, err)
	require.NotNil(t, store)
	defer func() {
		require.NoError(t, store.Close())
	}()

	// Проверяем что файл БД действительно создан
	info, err := os.Stat(dbPath)
	require.NoError(t, err)
	assert.False(t, info.IsDir())

	// Проверяем, что бакеты существуют
	err = store.db.View(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketAuth, bucketLinks, bucketMetadata} {
			if tx.Bucket(b) == nil {
				return os.ErrNotExist
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestNew_InvalidPath(t *testing.T) {
	store, err := New(context.Background(), filepath.Join(t.TempDir(), "missing", "dir", "db"))
	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestClose(t *testing.T) {
	store, err := New(context.Background(), filepath.Join(t.TempDir(), "close.db"))
	require.NoError(t, err)

	require.NoError(t, store.Close())

	empty := &Storage{}
	assert.NoError(t, empty.Close())
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	store := createTestStorage(t)

	require.NoError(t, store.SaveAuth(ctx, &storage.AuthData{UserID: "p1"}))
	require.NoError(t, store.SaveLink(ctx, models.Link{Provider: models.ProviderGoogle, PartyUserID: "g"}))
	require.NoError(t, store.SavePlayerInfo(ctx, models.UserInfo{Username: "u"}))

	require.NoError(t, store.Clear(ctx))

	_, err := store.GetAuth(ctx)
	assert.ErrorIs(t, err, storage.ErrAuthNotFound)
	links, err := store.ListLinks(ctx)
	require.NoError(t, err)
	assert.Empty(t, links)
	_, err = store.GetPlayerInfo(ctx)
	assert.ErrorIs(t, err, storage.ErrPlayerInfoNotFound)
}
