package seal

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/tee-enclave-agent/bcs"
	"github.com/ruteri/tee-enclave-agent/cryptoutils"
	"github.com/ruteri/tee-enclave-agent/interfaces"
	"github.com/ruteri/tee-enclave-agent/sui"
)

var testPackage = sui.MustParseAddress("0xc0ffee")

type testServers struct {
	ids     []sui.ObjectID
	masters []*MasterKey
	pks     []G2Element
}

func newTestServers(t *testing.T, n int) *testServers {
	t.Helper()
	s := &testServers{}
	for i := 0; i < n; i++ {
		seed := bytes.Repeat([]byte{byte(i + 1)}, 32)
		master, err := MasterKeyFromSeed(seed)
		require.NoError(t, err)
		s.ids = append(s.ids, sui.MustParseAddress("0x5e"+strings.Repeat("0", i)+"1"))
		s.masters = append(s.masters, master)
		s.pks = append(s.pks, master.PublicKey())
	}
	return s
}

func (s *testServers) keys(t *testing.T, fullID []byte, which ...int) map[sui.ObjectID]G1Element {
	t.Helper()
	out := make(map[sui.ObjectID]G1Element)
	for _, i := range which {
		usk, err := s.masters[i].Extract(fullID)
		require.NoError(t, err)
		out[s.ids[i]] = usk
	}
	return out
}

func (s *testServers) publicKeyMap() map[sui.ObjectID]G2Element {
	out := make(map[sui.ObjectID]G2Element)
	for i, id := range s.ids {
		out[id] = s.pks[i]
	}
	return out
}

func TestElGamal(t *testing.T) {
	sk, encKey, vk, err := GenerateElGamalKey()
	require.NoError(t, err)
	require.NoError(t, VerifyEncryptionKey(encKey, vk))

	master, err := GenerateMasterKey()
	require.NoError(t, err)
	msg, err := master.Extract([]byte("id"))
	require.NoError(t, err)

	ct, err := ElGamalEncrypt(encKey, msg)
	require.NoError(t, err)
	assert.True(t, sk.Decrypt(ct).Equal(msg))

	_, _, otherVK, err := GenerateElGamalKey()
	require.NoError(t, err)
	assert.ErrorIs(t, VerifyEncryptionKey(encKey, otherVK), ErrInvalidVerificationKey)
}

func TestEncryptDecryptThreshold(t *testing.T) {
	servers := newTestServers(t, 3)
	obj, err := Encrypt(testPackage, []byte("API_KEY"), servers.ids, servers.pks, 2, []byte("weather-api-key"), nil)
	require.NoError(t, err)
	fullID := obj.FullID()

	for _, subset := range [][]int{{0, 1}, {0, 2}, {1, 2}, {0, 1, 2}} {
		plaintext, err := Decrypt(obj, servers.keys(t, fullID, subset...), servers.publicKeyMap())
		require.NoError(t, err, "subset %v", subset)
		assert.Equal(t, []byte("weather-api-key"), plaintext)
	}

	_, err = Decrypt(obj, servers.keys(t, fullID, 1), nil)
	assert.ErrorIs(t, err, interfaces.ErrInsufficientShares)

	_, err = Decrypt(obj, nil, nil)
	assert.ErrorIs(t, err, interfaces.ErrInsufficientShares)
}

func TestDecryptRejectsForgedShare(t *testing.T) {
	servers := newTestServers(t, 3)
	obj, err := Encrypt(testPackage, []byte("API_KEY"), servers.ids, servers.pks, 2, []byte("secret"), nil)
	require.NoError(t, err)

	keys := servers.keys(t, obj.FullID(), 0, 1)
	rogue, err := GenerateMasterKey()
	require.NoError(t, err)
	forged, err := rogue.Extract(obj.FullID())
	require.NoError(t, err)
	keys[servers.ids[1]] = forged

	plaintext, err := Decrypt(obj, keys, servers.publicKeyMap())
	assert.ErrorIs(t, err, interfaces.ErrDecryptionFailed)
	assert.Nil(t, plaintext)

	// A key for another identity is as good as a forgery.
	keys = servers.keys(t, FullID(testPackage, []byte("OTHER")), 0, 1)
	_, err = Decrypt(obj, keys, nil)
	assert.ErrorIs(t, err, interfaces.ErrDecryptionFailed)
}

func TestThresholdOne(t *testing.T) {
	servers := newTestServers(t, 2)
	obj, err := Encrypt(testPackage, []byte("k"), servers.ids, servers.pks, 1, []byte("s"), []byte("aad"))
	require.NoError(t, err)

	plaintext, err := Decrypt(obj, servers.keys(t, obj.FullID(), 1), servers.publicKeyMap())
	require.NoError(t, err)
	assert.Equal(t, []byte("s"), plaintext)
}

func TestEncryptValidatesParameters(t *testing.T) {
	servers := newTestServers(t, 2)
	_, err := Encrypt(testPackage, nil, servers.ids, servers.pks, 3, nil, nil)
	assert.Error(t, err)
	_, err = Encrypt(testPackage, nil, servers.ids, servers.pks[:1], 1, nil, nil)
	assert.Error(t, err)
	_, err = Encrypt(testPackage, nil, nil, nil, 1, nil, nil)
	assert.Error(t, err)
}

func TestEncryptedObjectBCS(t *testing.T) {
	servers := newTestServers(t, 2)
	aad := []byte("context")
	obj, err := Encrypt(testPackage, []byte("API_KEY"), servers.ids, servers.pks, 2, []byte("secret"), aad)
	require.NoError(t, err)

	encoded, err := bcs.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, byte(EncryptedObjectVersion), encoded[0])

	var decoded EncryptedObject
	require.NoError(t, bcs.Unmarshal(encoded, &decoded))
	reencoded, err := bcs.Marshal(&decoded)
	require.NoError(t, err)
	assert.Equal(t, encoded, reencoded)

	plaintext, err := Decrypt(&decoded, servers.keys(t, decoded.FullID(), 0, 1), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), plaintext)
}

func newRequest(t *testing.T, user *cryptoutils.Keypair, now time.Time) (*FetchKeyRequest, *ElGamalSecretKey) {
	t.Helper()
	sk, encKey, vk, err := GenerateElGamalKey()
	require.NoError(t, err)
	session, err := cryptoutils.GenerateKeypair()
	require.NoError(t, err)

	ptb, err := PolicyTransaction(testPackage, []byte("API_KEY"), sui.MustParseAddress("0xe1"), 1)
	require.NoError(t, err)
	cert := NewCertificate(user, session.PublicKey(), testPackage, now)
	req, err := NewFetchKeyRequest(ptb, encKey, vk, session, cert)
	require.NoError(t, err)
	return req, sk
}

func TestKeyServerFetchKey(t *testing.T) {
	user, err := cryptoutils.GenerateKeypair()
	require.NoError(t, err)
	now := time.Now()
	req, sk := newRequest(t, user, now)

	servers := newTestServers(t, 1)
	ks := NewKeyServer(servers.ids[0], servers.masters[0], []sui.ObjectID{testPackage})

	resp, err := ks.FetchKey(req)
	require.NoError(t, err)
	require.Len(t, resp.DecryptionKeys, 1)

	fullID := FullID(testPackage, []byte("API_KEY"))
	assert.Equal(t, ByteList(fullID), resp.DecryptionKeys[0].ID)
	expected, err := servers.masters[0].Extract(fullID)
	require.NoError(t, err)
	assert.True(t, sk.Decrypt(resp.DecryptionKeys[0].EncryptedKey).Equal(expected))
}

func TestKeyServerRejections(t *testing.T) {
	user, err := cryptoutils.GenerateKeypair()
	require.NoError(t, err)
	servers := newTestServers(t, 1)
	now := time.Now()

	t.Run("expired certificate", func(t *testing.T) {
		req, _ := newRequest(t, user, now.Add(-11*time.Minute))
		_, err := NewKeyServer(servers.ids[0], servers.masters[0], nil).FetchKey(req)
		assert.ErrorIs(t, err, ErrCertificateExpired)
	})

	t.Run("certificate for another user", func(t *testing.T) {
		req, _ := newRequest(t, user, now)
		req.Certificate.User = sui.MustParseAddress("0xbad")
		_, err := NewKeyServer(servers.ids[0], servers.masters[0], nil).FetchKey(req)
		assert.ErrorIs(t, err, ErrInvalidCertificate)
	})

	t.Run("tampered request", func(t *testing.T) {
		req, _ := newRequest(t, user, now)
		_, otherKey, otherVK, err := GenerateElGamalKey()
		require.NoError(t, err)
		req.EncKey, req.EncVerificationKey = otherKey, otherVK
		_, err = NewKeyServer(servers.ids[0], servers.masters[0], nil).FetchKey(req)
		assert.ErrorIs(t, err, ErrInvalidRequestSignature)
	})

	t.Run("package not allowed", func(t *testing.T) {
		req, _ := newRequest(t, user, now)
		ks := NewKeyServer(servers.ids[0], servers.masters[0], []sui.ObjectID{sui.MustParseAddress("0x1")})
		_, err := ks.FetchKey(req)
		assert.ErrorIs(t, err, ErrPolicyDenied)
	})
}

func TestCertificateExpiryBoundary(t *testing.T) {
	user, err := cryptoutils.GenerateKeypair()
	require.NoError(t, err)
	session, err := cryptoutils.GenerateKeypair()
	require.NoError(t, err)

	created := time.UnixMilli(1744038900000)
	cert := NewCertificate(user, session.PublicKey(), testPackage, created)
	require.NoError(t, cert.Verify(testPackage, created.Add(10*time.Minute)))
	assert.ErrorIs(t, cert.Verify(testPackage, created.Add(10*time.Minute+time.Millisecond)), ErrCertificateExpired)
	assert.ErrorIs(t, cert.Verify(sui.MustParseAddress("0x1"), created), ErrInvalidCertificate)
}

func TestWireJSON(t *testing.T) {
	user, err := cryptoutils.GenerateKeypair()
	require.NoError(t, err)
	req, _ := newRequest(t, user, time.Now())

	data, err := json.Marshal(req)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	cert := fields["certificate"].(map[string]any)
	assert.Equal(t, user.Address().String(), cert["user"])
	assert.Nil(t, cert["mvr_name"])

	var decoded FetchKeyRequest
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, bcs.MustMarshal(req), bcs.MustMarshal(&decoded))

	servers := newTestServers(t, 1)
	resp, err := NewKeyServer(servers.ids[0], servers.masters[0], nil).FetchKey(req)
	require.NoError(t, err)
	data, err = json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id":[`)

	var decodedResp FetchKeyResponse
	require.NoError(t, json.Unmarshal(data, &decodedResp))
	assert.Equal(t, bcs.MustMarshal(resp), bcs.MustMarshal(&decodedResp))
}

func TestApprovedIdentities(t *testing.T) {
	ptb, err := PolicyTransaction(testPackage, []byte("API_KEY"), sui.MustParseAddress("0xe1"), 1)
	require.NoError(t, err)
	ids, err := ApprovedIdentities(ptb)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, testPackage, ids[0].PackageID)
	assert.Equal(t, []byte("API_KEY"), ids[0].ID)

	b := sui.NewPTBBuilder()
	b.SplitCoins(sui.GasCoin)
	other := b.Finish()
	_, err = ApprovedIdentities(&other)
	assert.ErrorIs(t, err, ErrPolicyDenied)
}
