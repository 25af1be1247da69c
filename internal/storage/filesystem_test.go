package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorePutWritesAndReturnsPublicURL(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileStore(root, "https://cdn.test/")
	require.NoError(t, err)

	url, err := store.Put(context.Background(), "generated/image/user-1/out.png", []byte("png-bytes"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/generated/image/user-1/out.png", url)

	data, err := os.ReadFile(filepath.Join(root, "generated", "image", "user-1", "out.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
}

func TestFileStoreRejectsTraversalKeys(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "https://cdn.test")
	require.NoError(t, err)

	for _, key := range []string{"../escape.png", "a/../../escape.png", "", "   ", "."} {
		_, err := store.Put(context.Background(), key, []byte("x"), "image/png")
		assert.Error(t, err, "key %q should be rejected", key)
	}
}

func TestFileStoreNormalizesLeadingSlash(t *testing.T) {
	root := t.TempDir()
	store, err := NewFileStore(root, "https://cdn.test")
	require.NoError(t, err)

	url, err := store.Put(context.Background(), "/generated/out.png", []byte("x"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/generated/out.png", url)
}

func TestFileStorePutHonorsCanceledContext(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "https://cdn.test")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Put(ctx, "generated/out.png", []byte("x"), "image/png")
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewFileStoreValidatesConfig(t *testing.T) {
	_, err := NewFileStore("", "https://cdn.test")
	assert.Error(t, err)
	_, err = NewFileStore(t.TempDir(), "  ")
	assert.Error(t, err)
}
