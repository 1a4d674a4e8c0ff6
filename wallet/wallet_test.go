package wallet

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/tee-enclave-agent/cryptoutils"
	"github.com/ruteri/tee-enclave-agent/interfaces"
	"github.com/ruteri/tee-enclave-agent/sui"
)

func TestInitializeOnce(t *testing.T) {
	w := New()
	assert.Equal(t, StateUninitialized, w.State())
	assert.False(t, w.Snapshot().Initialized)

	snap, err := w.Initialize("alice")
	require.NoError(t, err)
	require.True(t, snap.Initialized)
	assert.Equal(t, "alice", *snap.Owner)
	assert.True(t, strings.HasPrefix(*snap.Address, "0x"))
	assert.Len(t, *snap.Address, 66)
	assert.Equal(t, StateInitialized, w.State())

	for _, owner := range []string{"alice", "bob", ""} {
		_, err := w.Initialize(owner)
		assert.ErrorIs(t, err, interfaces.ErrAlreadyInitialized)
	}

	after := w.Snapshot()
	assert.Equal(t, *snap.Address, *after.Address)
	assert.Equal(t, "alice", *after.Owner)
}

func TestConcurrentInitialize(t *testing.T) {
	w := New()

	var wg sync.WaitGroup
	results := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.Initialize("alice")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, interfaces.ErrAlreadyInitialized)
	}
	assert.Equal(t, 1, succeeded)
}

func TestAuthorize(t *testing.T) {
	w := New()
	assert.ErrorIs(t, w.Authorize("alice"), interfaces.ErrNotInitialized)

	_, err := w.Initialize("alice")
	require.NoError(t, err)

	assert.NoError(t, w.Authorize("alice"))
	assert.ErrorIs(t, w.Authorize("bob"), interfaces.ErrUnauthorized)
	assert.ErrorIs(t, w.Authorize("Alice"), interfaces.ErrUnauthorized)

	// A later initialize attempt must not change the owner.
	_, _ = w.Initialize("bob")
	assert.ErrorIs(t, w.Authorize("bob"), interfaces.ErrUnauthorized)
}

func TestSigner(t *testing.T) {
	w := New()
	_, _, err := w.Signer()
	assert.ErrorIs(t, err, interfaces.ErrNotInitialized)

	snap, err := w.Initialize("alice")
	require.NoError(t, err)

	kp, addr, err := w.Signer()
	require.NoError(t, err)
	assert.Equal(t, *snap.Address, addr.String())
	assert.Equal(t, kp.Address(), addr)
}

func TestInitializeKeyFailureLeavesWalletUninitialized(t *testing.T) {
	w := New()
	w.generate = func() (*cryptoutils.Keypair, error) { return nil, errors.New("no entropy") }

	_, err := w.Initialize("alice")
	assert.Error(t, err)
	assert.Equal(t, StateUninitialized, w.State())
}

func TestResourceIDSetOnce(t *testing.T) {
	w := New()
	id := sui.MustParseAddress("0xba1")
	assert.ErrorIs(t, w.SetResourceID(id), interfaces.ErrNotInitialized)

	_, err := w.Initialize("alice")
	require.NoError(t, err)

	_, ok := w.ResourceID()
	assert.False(t, ok)

	require.NoError(t, w.SetResourceID(id))
	assert.ErrorIs(t, w.SetResourceID(sui.MustParseAddress("0xba2")), ErrResourceAlreadySet)

	got, ok := w.ResourceID()
	assert.True(t, ok)
	assert.Equal(t, id, got)
}
