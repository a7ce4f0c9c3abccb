package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blob"), []byte("0123456789"), 0o644))

	store := NewLocalStore(dir)
	blob, err := store.Open(context.Background(), "blob")
	require.NoError(t, err)
	defer blob.Close()

	assert.Equal(t, int64(10), blob.Size())

	buf := make([]byte, 4)
	n, err := blob.ReadAt(buf, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "3456", string(buf))

	// A read past EOF is short.
	n, err = blob.ReadAt(buf, 8)
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, io.EOF)

	// Zero-copy access.
	m, ok := Blob(blob).(Mappable)
	require.True(t, ok)
	data, err := m.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))
}

func TestLocalStoreMissingFile(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	_, err := store.Open(context.Background(), "missing")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
