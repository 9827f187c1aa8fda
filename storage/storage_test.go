package storage_test

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/classdesk/go-session-client/storage"
	"github.com/stretchr/testify/require"
)

func TestMemoryRoundTrip(t *testing.T) {
	kv := storage.NewMemory()

	_, err := kv.Get("missing")
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, kv.Set("guard", "1"))
	v, err := kv.Get("guard")
	require.NoError(t, err)
	require.Equal(t, "1", v)

	require.NoError(t, kv.Delete("guard"))
	require.NoError(t, kv.Delete("guard")) // absent key is not an error
	_, err = kv.Get("guard")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func newFileStore(t *testing.T) (*storage.File, string, []byte) {
	t.Helper()

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "state", "store.bin")
	kv, err := storage.NewFile(path, key)
	require.NoError(t, err)
	return kv, path, key
}

func TestFileRoundTripAcrossReopen(t *testing.T) {
	kv, path, key := newFileStore(t)

	require.NoError(t, kv.Set("google_pending_password", "1"))
	require.NoError(t, kv.Set("identity_tokens", `{"provider":"google"}`))

	// A fresh handle over the same file sees the same values.
	reopened, err := storage.NewFile(path, key)
	require.NoError(t, err)

	v, err := reopened.Get("google_pending_password")
	require.NoError(t, err)
	require.Equal(t, "1", v)

	require.NoError(t, reopened.Delete("google_pending_password"))
	_, err = reopened.Get("google_pending_password")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFileRejectsBadKeySize(t *testing.T) {
	_, err := storage.NewFile(filepath.Join(t.TempDir(), "s.bin"), []byte("short"))
	require.Error(t, err)
}

func TestFileRejectsTamperedStore(t *testing.T) {
	kv, path, key := newFileStore(t)
	require.NoError(t, kv.Set("k", "v"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	reopened, err := storage.NewFile(path, key)
	require.NoError(t, err)
	_, err = reopened.Get("k")
	require.Error(t, err)
	require.NotErrorIs(t, err, storage.ErrNotFound)
}

func TestFileNeverStoresPlaintext(t *testing.T) {
	kv, path, _ := newFileStore(t)
	require.NoError(t, kv.Set("secret", "hunter2-access-token"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "hunter2-access-token")
}
