package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/stevedore/internal/transfer"
)

func newTestLocalStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir(), nil)
	require.NoError(t, err)
	return store
}

func seed(t *testing.T, store *LocalStore, uri string, data []byte) {
	t.Helper()
	p, err := store.path(uri)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0750))
	require.NoError(t, os.WriteFile(p, data, 0600))
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()

	t.Run("copy duplicates an object", func(t *testing.T) {
		store := newTestLocalStore(t)
		seed(t, store, "local://src/a/b.txt", []byte("payload"))

		require.NoError(t, store.Copy(ctx, "local://src/a/b.txt", "local://dst/a/b.txt"))

		ok, err := store.Exists(ctx, "local://dst/a/b.txt")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("copy of a missing object is not-found", func(t *testing.T) {
		store := newTestLocalStore(t)

		err := store.Copy(ctx, "local://src/missing", "local://dst/missing")

		var nf *transfer.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, transfer.KindNotFound, transfer.Kind(err))
	})

	t.Run("download and upload round-trip", func(t *testing.T) {
		store := newTestLocalStore(t)
		seed(t, store, "local://src/obj", []byte("staged bytes"))

		localPath := filepath.Join(t.TempDir(), "obj")
		require.NoError(t, store.Download(ctx, "local://src/obj", localPath))
		require.NoError(t, store.Upload(ctx, localPath, "local://dst/obj"))

		p, err := store.path("local://dst/obj")
		require.NoError(t, err)
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Equal(t, []byte("staged bytes"), data)
	})

	t.Run("exists is false for absent objects", func(t *testing.T) {
		store := newTestLocalStore(t)

		ok, err := store.Exists(ctx, "local://src/nothing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("invalid uri is rejected", func(t *testing.T) {
		store := newTestLocalStore(t)
		assert.Error(t, store.Copy(ctx, "not-a-uri", "local://dst/x"))
	})

	t.Run("canceled context aborts before IO", func(t *testing.T) {
		store := newTestLocalStore(t)
		seed(t, store, "local://src/obj", []byte("x"))

		canceled, cancel := context.WithCancel(ctx)
		cancel()

		err := store.Copy(canceled, "local://src/obj", "local://dst/obj")
		assert.ErrorIs(t, err, context.Canceled)
	})
}
