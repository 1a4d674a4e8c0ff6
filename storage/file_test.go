package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/tee-enclave-agent/interfaces"
)

func TestFileBackendRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir, discardLogger())
	require.NoError(t, err)
	ctx := context.Background()

	assert.True(t, b.Available(ctx))
	assert.Equal(t, "file://"+dir, b.LocationURI())

	data := []byte{0x00, 0x01, 0xfe, 0xff}
	id, err := b.Store(ctx, data, interfaces.EncryptedObjectType)
	require.NoError(t, err)
	assert.Equal(t, interfaces.ComputeID(data), id)
	assert.FileExists(t, filepath.Join(dir, "encrypted-objects", id.String()))

	got, err := b.Fetch(ctx, id, interfaces.EncryptedObjectType)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// Content types do not share a namespace.
	_, err = b.Fetch(ctx, id, interfaces.KeyResponsesType)
	require.ErrorIs(t, err, interfaces.ErrContentNotFound)

	// Storing again is idempotent and leaves no temporary files behind.
	_, err = b.Store(ctx, data, interfaces.EncryptedObjectType)
	require.NoError(t, err)
	entries, err := os.ReadDir(filepath.Join(dir, "encrypted-objects"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileBackendUnsupportedType(t *testing.T) {
	b, err := NewFileBackend(t.TempDir(), discardLogger())
	require.NoError(t, err)

	_, err = b.Store(context.Background(), []byte("x"), interfaces.ContentType(42))
	require.ErrorIs(t, err, interfaces.ErrUnsupportedContentType)
}

func TestFileBackendUnavailableWhenRemoved(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	b, err := NewFileBackend(dir, discardLogger())
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))
	assert.False(t, b.Available(context.Background()))
}
