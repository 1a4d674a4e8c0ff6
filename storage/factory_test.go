package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/tee-enclave-agent/interfaces"
)

func TestStorageBackendFor(t *testing.T) {
	factory := NewStorageBackendFactory(discardLogger())
	dir := t.TempDir()

	tests := []struct {
		uri      string
		wantName string
	}{
		{"file://" + dir, ""},
		{"s3://AKID:secret@objects/agent?region=eu-west-1&endpoint=http://localhost:9000&path_style=true", "s3-objects"},
		{"ipfs://localhost:5001/agent?timeout=5s", "ipfs-localhost:5001"},
		{"ipfs://", "ipfs-127.0.0.1:5001"},
		{"vault://vault.local:8200/secret/agent?tls=false", "vault-secret-agent"},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			backend, err := factory.StorageBackendFor(tt.uri)
			require.NoError(t, err)
			if tt.wantName != "" {
				assert.Equal(t, tt.wantName, backend.Name())
			}
			assert.NotContains(t, backend.LocationURI(), "secret@")
		})
	}
}

func TestStorageBackendForInvalid(t *testing.T) {
	factory := NewStorageBackendFactory(discardLogger())

	for _, uri := range []string{
		"ftp://example.com/x",
		"s3:///prefix-only",
		"ipfs://localhost:5001/?timeout=soon",
		"vault://vault.local:8200",
		"file://",
		"://bad",
	} {
		_, err := factory.StorageBackendFor(uri)
		assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI, uri)
	}
}

func TestCreateMultiBackend(t *testing.T) {
	factory := NewStorageBackendFactory(discardLogger())

	multi, err := factory.CreateMultiBackend([]string{"ftp://nowhere", "file://" + t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "multi-storage", multi.Name())

	_, err = factory.CreateMultiBackend([]string{"ftp://nowhere"})
	require.Error(t, err)
}

func TestRedactURI(t *testing.T) {
	assert.Equal(t, "s3://AKID:xxxxx@bucket/p", redactURI("s3://AKID:secret@bucket/p"))
}
