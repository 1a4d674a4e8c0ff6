package kms

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/tee-enclave-agent/cryptoutils"
	"github.com/ruteri/tee-enclave-agent/interfaces"
	"github.com/ruteri/tee-enclave-agent/seal"
	"github.com/ruteri/tee-enclave-agent/sui"
)

var (
	testPackage = sui.MustParseAddress("0xc0ffee")
	testEnclave = sui.MustParseAddress("0xe1")
)

type committee struct {
	servers []*seal.KeyServer
	cfg     LoaderConfig
}

func newCommittee(t *testing.T, n int, threshold uint8) *committee {
	t.Helper()
	c := &committee{cfg: LoaderConfig{
		PackageID:                   testPackage,
		EnclaveID:                   testEnclave,
		EnclaveInitialSharedVersion: 7,
		KeyID:                       []byte("API_KEY"),
		Threshold:                   threshold,
	}}
	for i := 0; i < n; i++ {
		master, err := seal.MasterKeyFromSeed(bytes.Repeat([]byte{byte(0x40 + i)}, 32))
		require.NoError(t, err)
		id := sui.MustParseAddress(fmt.Sprintf("0x%x", 0x500+i))
		ks := seal.NewKeyServer(id, master, []sui.ObjectID{testPackage})
		c.servers = append(c.servers, ks)
		c.cfg.KeyServers = append(c.cfg.KeyServers, id)
		c.cfg.PublicKeys = append(c.cfg.PublicKeys, ks.PublicKey())
	}
	return c
}

func (c *committee) encrypt(t *testing.T, secret string) *seal.EncryptedObject {
	t.Helper()
	obj, err := seal.Encrypt(c.cfg.PackageID, c.cfg.KeyID, c.cfg.KeyServers, c.cfg.PublicKeys, c.cfg.Threshold, []byte(secret), nil)
	require.NoError(t, err)
	return obj
}

func (c *committee) answer(t *testing.T, req *seal.FetchKeyRequest, which ...int) []seal.ServerResponse {
	t.Helper()
	var out []seal.ServerResponse
	for _, i := range which {
		resp, err := c.servers[i].FetchKey(req)
		require.NoError(t, err, "key server %d", i)
		out = append(out, seal.ServerResponse{ServerID: c.servers[i].ObjectID(), Response: *resp})
	}
	return out
}

func newTestLoader(t *testing.T, cfg LoaderConfig) *KeyLoader {
	t.Helper()
	identity, err := cryptoutils.GenerateKeypair()
	require.NoError(t, err)
	loader, err := NewKeyLoader(cfg, identity, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err, "Failed to create key loader")
	return loader
}

func TestKeyLoader_Liveness(t *testing.T) {
	ctx := context.Background()
	c := newCommittee(t, 3, 2)
	obj := c.encrypt(t, "weather-api-key")

	for _, subset := range [][]int{{0, 1}, {1, 2}, {2, 0}} {
		loader := newTestLoader(t, c.cfg)
		req, err := loader.BeginRetrieval(ctx)
		require.NoError(t, err)
		assert.True(t, loader.Pending())

		secret, err := loader.CompleteRetrieval(ctx, obj, c.answer(t, req, subset...))
		require.NoError(t, err, "subset %v", subset)
		assert.Equal(t, []byte("weather-api-key"), secret)
		assert.False(t, loader.Pending(), "Completed retrieval should clear the pending secret")

		stored, ok := loader.Secret("API_KEY")
		require.True(t, ok)
		assert.Equal(t, secret, stored)
	}
}

func TestKeyLoader_InsufficientShares(t *testing.T) {
	ctx := context.Background()
	c := newCommittee(t, 3, 2)
	obj := c.encrypt(t, "secret")
	loader := newTestLoader(t, c.cfg)

	req, err := loader.BeginRetrieval(ctx)
	require.NoError(t, err)

	secret, err := loader.CompleteRetrieval(ctx, obj, c.answer(t, req, 1))
	assert.ErrorIs(t, err, interfaces.ErrInsufficientShares)
	assert.Nil(t, secret)
	assert.True(t, loader.Pending(), "Failed retrieval should keep the pending secret")

	_, ok := loader.Secret("API_KEY")
	assert.False(t, ok)

	// The same session can still complete once enough answers arrive.
	secret, err = loader.CompleteRetrieval(ctx, obj, c.answer(t, req, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), secret)
}

func TestKeyLoader_NoPendingSession(t *testing.T) {
	ctx := context.Background()
	c := newCommittee(t, 2, 1)
	obj := c.encrypt(t, "secret")
	loader := newTestLoader(t, c.cfg)

	_, err := loader.CompleteRetrieval(ctx, obj, nil)
	assert.ErrorIs(t, err, interfaces.ErrNoPendingSession)

	req, err := loader.BeginRetrieval(ctx)
	require.NoError(t, err)
	responses := c.answer(t, req, 0)
	_, err = loader.CompleteRetrieval(ctx, obj, responses)
	require.NoError(t, err)

	_, err = loader.CompleteRetrieval(ctx, obj, responses)
	assert.ErrorIs(t, err, interfaces.ErrNoPendingSession)
}

func TestKeyLoader_SupersededSession(t *testing.T) {
	ctx := context.Background()
	c := newCommittee(t, 3, 2)
	obj := c.encrypt(t, "secret")
	loader := newTestLoader(t, c.cfg)

	first, err := loader.BeginRetrieval(ctx)
	require.NoError(t, err)
	second, err := loader.BeginRetrieval(ctx)
	require.NoError(t, err)

	stale := c.answer(t, first, 0, 1, 2)
	for i := 0; i < 3; i++ {
		secret, err := loader.CompleteRetrieval(ctx, obj, stale)
		assert.ErrorIs(t, err, interfaces.ErrDecryptionFailed)
		assert.Nil(t, secret)
	}

	secret, err := loader.CompleteRetrieval(ctx, obj, c.answer(t, second, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), secret)
}

func TestKeyLoader_SkipsResponsesForOtherIdentities(t *testing.T) {
	ctx := context.Background()
	c := newCommittee(t, 2, 2)
	loader := newTestLoader(t, c.cfg)

	other, err := seal.Encrypt(testPackage, []byte("OTHER"), c.cfg.KeyServers, c.cfg.PublicKeys, 2, []byte("x"), nil)
	require.NoError(t, err)

	req, err := loader.BeginRetrieval(ctx)
	require.NoError(t, err)

	_, err = loader.CompleteRetrieval(ctx, other, c.answer(t, req, 0, 1))
	assert.ErrorIs(t, err, interfaces.ErrInsufficientShares)
}

func TestKeyLoader_RequestShape(t *testing.T) {
	c := newCommittee(t, 1, 1)
	loader := newTestLoader(t, c.cfg)

	req, err := loader.BeginRetrieval(context.Background())
	require.NoError(t, err)

	assert.Equal(t, loader.signer.Address(), req.Certificate.User)
	assert.Equal(t, seal.SessionTTLMin, req.Certificate.TTLMin)

	ptb, _, err := req.DecodePTB()
	require.NoError(t, err)
	ids, err := seal.ApprovedIdentities(ptb)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, testPackage, ids[0].PackageID)
	assert.Equal(t, []byte("API_KEY"), ids[0].ID)
	require.Len(t, ptb.Inputs, 2)
	assert.Equal(t, testEnclave, ptb.Inputs[1].Object.Shared.ID)
	assert.Equal(t, uint64(7), ptb.Inputs[1].Object.Shared.InitialSharedVersion)
}

func TestLoaderConfig_Validate(t *testing.T) {
	c := newCommittee(t, 2, 2)

	cfg := c.cfg
	cfg.Threshold = 3
	assert.Error(t, cfg.Validate())

	cfg = c.cfg
	cfg.Threshold = 0
	assert.Error(t, cfg.Validate())

	cfg = c.cfg
	cfg.PublicKeys = cfg.PublicKeys[:1]
	assert.Error(t, cfg.Validate())

	cfg = c.cfg
	cfg.KeyID = nil
	assert.Error(t, cfg.Validate())

	assert.NoError(t, c.cfg.Validate())
}
