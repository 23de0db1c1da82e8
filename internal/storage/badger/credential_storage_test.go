package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/tario-you/pollevbot/internal/interfaces"
	"github.com/tario-you/pollevbot/internal/models"
)

func newTestStorage(t *testing.T) interfaces.CredentialStore {
	t.Helper()

	tmpDir := t.TempDir()

	options := badgerhold.DefaultOptions
	options.Dir = tmpDir
	options.ValueDir = tmpDir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	db := &BadgerDB{store: store}
	return NewCredentialStorage(db, arbor.NewLogger())
}

func TestCredentialStorage_SaveAndLoad(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	cred := &models.StoredCredential{
		Host:    "prof101",
		Cookies: map[string]string{"pe_auth_token": "abc123"},
		Token:   "firehose-token",
	}
	require.NoError(t, storage.Save(ctx, cred))

	loaded, err := storage.Load(ctx, "prof101")
	require.NoError(t, err)
	assert.Equal(t, "prof101", loaded.Host)
	assert.Equal(t, "abc123", loaded.Cookies["pe_auth_token"])
	assert.Equal(t, "firehose-token", loaded.Token)
	assert.False(t, loaded.FetchedAt.IsZero())
	assert.False(t, loaded.UpdatedAt.IsZero())
}

func TestCredentialStorage_LoadIsCaseInsensitive(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.Save(ctx, &models.StoredCredential{
		Host:  "Prof101",
		Token: "tok",
	}))

	loaded, err := storage.Load(ctx, "PROF101")
	require.NoError(t, err)
	assert.Equal(t, "tok", loaded.Token)
}

func TestCredentialStorage_LoadMissing(t *testing.T) {
	storage := newTestStorage(t)

	_, err := storage.Load(context.Background(), "nobody")
	assert.ErrorIs(t, err, interfaces.ErrCredentialNotFound)
}

func TestCredentialStorage_SavePreservesFetchedAt(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	fetched := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, storage.Save(ctx, &models.StoredCredential{
		Host:      "prof101",
		Token:     "tok",
		FetchedAt: fetched,
	}))

	loaded, err := storage.Load(ctx, "prof101")
	require.NoError(t, err)
	assert.True(t, loaded.FetchedAt.Equal(fetched))
}

func TestCredentialStorage_Evict(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.Save(ctx, &models.StoredCredential{
		Host:  "prof101",
		Token: "stale",
	}))
	require.NoError(t, storage.Evict(ctx, "prof101"))

	_, err := storage.Load(ctx, "prof101")
	assert.ErrorIs(t, err, interfaces.ErrCredentialNotFound)

	// Evicting an already missing host is not an error
	assert.NoError(t, storage.Evict(ctx, "prof101"))
}
