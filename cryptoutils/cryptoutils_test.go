package cryptoutils

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/tee-enclave-agent/sui"
)

func TestKeypairAddressIsStable(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)

	first := kp.Address().String()
	assert.Equal(t, first, kp.Address().String())
	assert.Len(t, first, 66)
	assert.True(t, strings.HasPrefix(first, "0x"))
	assert.Equal(t, sui.AddressFromPublicKey(kp.PublicKey()), kp.Address())

	other, err := GenerateKeypair()
	require.NoError(t, err)
	assert.NotEqual(t, kp.Address(), other.Address())
}

func TestKeypairFromSeed(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 32)
	a, err := KeypairFromSeed(seed)
	require.NoError(t, err)
	b, err := KeypairFromSeed(seed)
	require.NoError(t, err)
	assert.Equal(t, a.Address(), b.Address())

	_, err = KeypairFromSeed(seed[:31])
	assert.Error(t, err)
}

func TestSignatures(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)

	msg := []byte("message")
	assert.True(t, ed25519.Verify(kp.PublicKey(), msg, kp.Sign(msg)))

	signer, err := kp.SignPersonalMessage(msg).VerifyPersonalMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, kp.Address(), signer)

	txSig := kp.SignTransaction([]byte{0, 0, 1})
	sig, pub, err := txSig.Ed25519Parts()
	require.NoError(t, err)
	digest := sui.TransactionDigest([]byte{0, 0, 1})
	assert.True(t, ed25519.Verify(pub, digest[:], sig))
}

func TestAESGCM(t *testing.T) {
	key, err := DeriveKey([]byte("secret"), nil, []byte("info"))
	require.NoError(t, err)
	otherKey, err := DeriveKey([]byte("secret"), nil, []byte("other"))
	require.NoError(t, err)
	assert.NotEqual(t, key, otherKey)

	blob, err := EncryptAESGCM(key, []byte("plaintext"), []byte("aad"))
	require.NoError(t, err)

	plaintext, err := DecryptAESGCM(key, blob, []byte("aad"))
	require.NoError(t, err)
	assert.Equal(t, []byte("plaintext"), plaintext)

	_, err = DecryptAESGCM(key, blob, []byte("other aad"))
	assert.Error(t, err)
	_, err = DecryptAESGCM(otherKey, blob, []byte("aad"))
	assert.Error(t, err)
	_, err = DecryptAESGCM(key, blob[:5], nil)
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestAttestationProviders(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)
	reportData := ReportDataForPublicKey(kp.PublicKey())
	assert.Equal(t, []byte(kp.PublicKey()), reportData[:32])

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/attest/"))
		_, _ = w.Write([]byte("quote"))
	}))
	defer srv.Close()

	remote, err := AttestationProviderFor(RemoteAttestation.StringID, srv.URL)
	require.NoError(t, err)
	quote, err := remote.Attest(context.Background(), reportData)
	require.NoError(t, err)
	assert.Equal(t, []byte("quote"), quote)

	dummy, err := AttestationProviderFor("dummy", "")
	require.NoError(t, err)
	assert.Equal(t, DummyAttestation, dummy.AttestationType())

	_, err = AttestationProviderFor("sgx", "")
	assert.Error(t, err)
	_, err = AttestationProviderFor(RemoteAttestation.StringID, "")
	assert.Error(t, err)
}
