// Package envelope signs endpoint responses with the enclave's process key.
//
// A relying party that trusts the attested public key checks the signature over
// intent ‖ timestamp_ms ‖ bcs(data), so the data it reads from the JSON body is
// exactly what the enclave produced.
package envelope

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ruteri/tee-enclave-agent/bcs"
)

// IntentScope says which kind of enclave output a signature covers.
type IntentScope uint8

const (
	ProcessData IntentScope = 0
)

var ErrInvalidSignature = errors.New("invalid envelope signature")

// Signer is satisfied by cryptoutils.Keypair.
type Signer interface {
	Sign(msg []byte) []byte
}

// IntentMessage is the signed part of a response. Field order is the wire order.
type IntentMessage[T any] struct {
	Intent      IntentScope `json:"intent"`
	TimestampMs uint64      `json:"timestamp_ms"`
	Data        T           `json:"data"`
}

// Bytes is the BCS encoding the signature is computed over.
func (m *IntentMessage[T]) Bytes() ([]byte, error) {
	return bcs.Marshal(m)
}

type SignedResponse[T any] struct {
	Response  IntentMessage[T] `json:"response"`
	Signature string           `json:"signature"`
}

// Sign wraps payload in an intent message and signs it. The envelope is built fresh
// for every call and holds no reference to the signer.
func Sign[T any](signer Signer, payload T, timestampMs uint64, scope IntentScope) (*SignedResponse[T], error) {
	msg := IntentMessage[T]{Intent: scope, TimestampMs: timestampMs, Data: payload}
	encoded, err := msg.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	return &SignedResponse[T]{
		Response:  msg,
		Signature: hex.EncodeToString(signer.Sign(encoded)),
	}, nil
}

// Verify re-encodes the response and checks its signature against pub.
func Verify[T any](pub ed25519.PublicKey, resp *SignedResponse[T]) error {
	encoded, err := resp.Response.Bytes()
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	return VerifyBytes(pub, encoded, resp.Signature)
}

// VerifyBytes checks a hex signature over already encoded message bytes.
func VerifyBytes(pub ed25519.PublicKey, msg []byte, signatureHex string) error {
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(pub) != ed25519.PublicKeySize || !ed25519.Verify(pub, msg, sig) {
		return ErrInvalidSignature
	}
	return nil
}
