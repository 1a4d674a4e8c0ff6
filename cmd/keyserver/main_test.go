package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/tee-enclave-agent/config"
	"github.com/ruteri/tee-enclave-agent/seal"
)

func TestConfigSnippetLoads(t *testing.T) {
	master, err := seal.MasterKeyFromSeed(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)

	objectID, err := serverObjectID("", master.PublicKey())
	require.NoError(t, err)
	again, err := serverObjectID("", master.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, objectID, again)

	var buf bytes.Buffer
	require.NoError(t, configSnippet(objectID, master.PublicKey(), "dev", "0.0.0.0:2025").WriteSnippet(&buf))

	path := filepath.Join(t.TempDir(), "seal_config.yaml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)

	dir, err := cfg.Chain.Directory()
	require.NoError(t, err)
	require.Len(t, dir, 1)
	assert.Equal(t, objectID, dir[0].ObjectID)
	assert.Equal(t, "http://127.0.0.1:2025", dir[0].URL)

	keys, err := cfg.Seal.ServerPublicKeys()
	require.NoError(t, err)
	assert.True(t, keys[0].Equal(master.PublicKey()))
}
