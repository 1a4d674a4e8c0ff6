package envelope

import (
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/tee-enclave-agent/cryptoutils"
)

type weather struct {
	Location    string `json:"location"`
	Temperature uint64 `json:"temperature"`
}

func TestIntentMessageGoldenVector(t *testing.T) {
	msg := IntentMessage[weather]{
		Intent:      ProcessData,
		TimestampMs: 1744038900000,
		Data:        weather{Location: "San Francisco", Temperature: 13},
	}
	encoded, err := msg.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "0020b1d110960100000d53616e204672616e636973636f0d00000000000000", hex.EncodeToString(encoded))

	again, err := msg.Bytes()
	require.NoError(t, err)
	assert.Equal(t, encoded, again)
}

func TestSignAndVerify(t *testing.T) {
	kp, err := cryptoutils.GenerateKeypair()
	require.NoError(t, err)

	resp, err := Sign(kp, weather{Location: "San Francisco", Temperature: 13}, 1744038900000, ProcessData)
	require.NoError(t, err)
	require.NoError(t, Verify(kp.PublicKey(), resp))

	encoded, err := resp.Response.Bytes()
	require.NoError(t, err)
	for i := range encoded {
		flipped := append([]byte(nil), encoded...)
		flipped[i] ^= 0x01
		assert.ErrorIs(t, VerifyBytes(kp.PublicKey(), flipped, resp.Signature), ErrInvalidSignature, "byte %d", i)
	}

	tampered := *resp
	tampered.Response.Data.Temperature = 14
	assert.ErrorIs(t, Verify(kp.PublicKey(), &tampered), ErrInvalidSignature)

	other, err := cryptoutils.GenerateKeypair()
	require.NoError(t, err)
	assert.ErrorIs(t, Verify(other.PublicKey(), resp), ErrInvalidSignature)

	assert.ErrorIs(t, VerifyBytes(kp.PublicKey(), encoded, "zz"), ErrInvalidSignature)
}

func TestSignedResponseJSON(t *testing.T) {
	kp, err := cryptoutils.GenerateKeypair()
	require.NoError(t, err)
	resp, err := Sign(kp, weather{Location: "Paris", Temperature: 20}, 42, ProcessData)
	require.NoError(t, err)

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var body struct {
		Response struct {
			Intent      int             `json:"intent"`
			TimestampMs uint64          `json:"timestamp_ms"`
			Data        json.RawMessage `json:"data"`
		} `json:"response"`
		Signature string `json:"signature"`
	}
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, 0, body.Response.Intent)
	assert.Equal(t, uint64(42), body.Response.TimestampMs)
	assert.JSONEq(t, `{"location":"Paris","temperature":20}`, string(body.Response.Data))
	assert.Len(t, body.Signature, 128)

	var decoded SignedResponse[weather]
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.NoError(t, Verify(kp.PublicKey(), &decoded))
}
