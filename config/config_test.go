package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/tee-enclave-agent/chain"
	"github.com/ruteri/tee-enclave-agent/seal"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seal_config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func testPublicKeys(t *testing.T, n int) []string {
	t.Helper()
	out := make([]string, n)
	for i := range out {
		mk, err := seal.MasterKeyFromSeed(bytes.Repeat([]byte{byte(i + 1)}, 32))
		require.NoError(t, err)
		out[i] = mk.PublicKey().Hex()
	}
	return out
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "seal:\n  threshold: 1\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultKeyID, cfg.Seal.KeyID)
	assert.Equal(t, uint8(1), cfg.Seal.Threshold)
	assert.Equal(t, chain.ModeMock, cfg.Chain.Mode)
	assert.Equal(t, uint64(175), cfg.Chain.PoolInitialSharedVersion)
	assert.Equal(t, uint64(chain.DefaultSwapGasBudget), cfg.Chain.SwapGasBudget)
	assert.Equal(t, uint64(chain.DefaultTransferGasBudget), cfg.Chain.TransferGasBudget)
	assert.Equal(t, DefaultKeyID, cfg.Agent.WeatherSecret)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "chain:\n  mode: mock\n")
	t.Setenv("ENCLAVE_CHAIN_MODE", "live")
	t.Setenv("ENCLAVE_SEAL_PACKAGE_ID", "0x2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "live", cfg.Chain.Mode)
	assert.Equal(t, "0x2", cfg.Seal.PackageID)
}

func TestSealLoaderConfig(t *testing.T) {
	cfg := SealConfig{
		PackageID:                   "0x1234",
		EnclaveID:                   "0x5678",
		EnclaveInitialSharedVersion: 7,
		KeyServers:                  []string{"0xa1", "0xa2", "0xa3"},
		PublicKeys:                  testPublicKeys(t, 3),
		Threshold:                   2,
	}

	lc, err := cfg.LoaderConfig()
	require.NoError(t, err)
	assert.Equal(t, []byte(DefaultKeyID), lc.KeyID)
	assert.Equal(t, uint8(2), lc.Threshold)
	assert.Len(t, lc.KeyServers, 3)
	assert.Equal(t, uint64(7), lc.EnclaveInitialSharedVersion)

	bad := cfg
	bad.Threshold = 4
	_, err = bad.LoaderConfig()
	require.Error(t, err)

	bad = cfg
	bad.PublicKeys = bad.PublicKeys[:2]
	_, err = bad.LoaderConfig()
	require.Error(t, err)

	bad = cfg
	bad.PublicKeys = []string{"zz", "zz", "zz"}
	_, err = bad.LoaderConfig()
	require.Error(t, err)

	bad = cfg
	bad.PackageID = "not-an-id"
	_, err = bad.LoaderConfig()
	require.Error(t, err)
}

func TestChainSection(t *testing.T) {
	c := ChainConfig{
		Mode:         chain.ModeLive,
		RPCURL:       "http://localhost:9000",
		DexPackageID: "0xde",
		PoolID:       "0xf0",
		KeyServers: []KeyServerEntry{
			{ObjectID: "0xa1", Name: "one", URL: "http://localhost:2024"},
		},
	}

	live, err := c.LiveConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000", live.RPCURL)

	dir, err := c.Directory()
	require.NoError(t, err)
	require.Len(t, dir, 1)
	assert.Equal(t, "one", dir[0].Name)

	c.KeyServers[0].URL = ""
	_, err = c.Directory()
	require.Error(t, err)

	c.PoolID = ""
	_, err = c.LiveConfig()
	require.Error(t, err)
}

func TestWriteSnippetLoadsBack(t *testing.T) {
	keys := testPublicKeys(t, 2)
	orig := &Config{
		Seal: SealConfig{
			PackageID:  "0x1234",
			EnclaveID:  "0x5678",
			KeyServers: []string{"0xa1", "0xa2"},
			PublicKeys: keys,
			Threshold:  2,
		},
		Chain: ChainConfig{
			Mode: chain.ModeMock,
			KeyServers: []KeyServerEntry{
				{ObjectID: "0xa1", Name: "ks-0", URL: "http://127.0.0.1:2024"},
				{ObjectID: "0xa2", Name: "ks-1", URL: "http://127.0.0.1:2025"},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, orig.WriteSnippet(&buf))
	assert.Contains(t, buf.String(), "key_servers:")

	loaded, err := Load(writeConfig(t, buf.String()))
	require.NoError(t, err)
	assert.Equal(t, orig.Seal.KeyServers, loaded.Seal.KeyServers)
	assert.Equal(t, orig.Seal.PublicKeys, loaded.Seal.PublicKeys)
	assert.Equal(t, orig.Chain.KeyServers, loaded.Chain.KeyServers)
	require.NoError(t, loaded.Validate())
}
