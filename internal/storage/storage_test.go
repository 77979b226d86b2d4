package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func testBackends(t *testing.T) map[string]Storage {
	t.Helper()
	file, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	return map[string]Storage{
		"memory": NewMemoryStorage(16),
		"file":   file,
	}
}

func TestStoreLoadDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			blob := []byte("serialized ciphertext bytes")

			handle, err := s.Store(ctx, blob)
			require.NoError(t, err)
			require.True(t, handle.Valid())

			ok, err := s.Exists(ctx, handle)
			require.NoError(t, err)
			require.True(t, ok)

			got, err := s.Load(ctx, handle)
			require.NoError(t, err)
			require.Equal(t, blob, got)

			require.NoError(t, s.Delete(ctx, handle))
			_, err = s.Load(ctx, handle)
			require.ErrorIs(t, err, ErrNotFound)
			require.ErrorIs(t, s.Delete(ctx, handle), ErrNotFound)
		})
	}
}

func TestContentAddressing(t *testing.T) {
	ctx := context.Background()
	for name, s := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			h1, err := s.Store(ctx, []byte("same"))
			require.NoError(t, err)
			h2, err := s.Store(ctx, []byte("same"))
			require.NoError(t, err)
			h3, err := s.Store(ctx, []byte("different"))
			require.NoError(t, err)

			require.Equal(t, h1, h2, "identical blobs must share a handle")
			require.NotEqual(t, h1, h3)
		})
	}
}

func TestMemoryStorageCapacity(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage(0) // zero MB
	_, err := s.Store(ctx, []byte("does not fit"))
	require.ErrorIs(t, err, ErrStorageFull)
}

func TestInvalidHandleRejected(t *testing.T) {
	ctx := context.Background()
	file, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	// A path-traversal attempt is not a valid digest.
	_, err = file.Load(ctx, Handle("../../etc/passwd"))
	require.ErrorIs(t, err, ErrInvalidHandle)
	require.ErrorIs(t, file.Delete(ctx, Handle("zz")), ErrInvalidHandle)
}

func TestLoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage(16)
	handle, err := s.Store(ctx, []byte{1, 2, 3})
	require.NoError(t, err)

	got, err := s.Load(ctx, handle)
	require.NoError(t, err)
	got[0] = 99

	again, err := s.Load(ctx, handle)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, again, "mutating a loaded blob must not corrupt the store")
}
