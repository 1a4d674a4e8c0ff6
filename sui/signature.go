package sui

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Ed25519Flag is the signature scheme flag for ed25519 keys.
const Ed25519Flag byte = 0x00

// Ed25519SignatureLength is flag ‖ signature ‖ public key.
const Ed25519SignatureLength = 1 + ed25519.SignatureSize + ed25519.PublicKeySize

var ErrInvalidSignature = errors.New("invalid signature")

// AddressFromPublicKey derives the account address of an ed25519 public key:
// blake2b-256(flag ‖ public key).
func AddressFromPublicKey(pub ed25519.PublicKey) Address {
	h, _ := blake2b.New256(nil)
	h.Write([]byte{Ed25519Flag})
	h.Write(pub)
	var addr Address
	copy(addr[:], h.Sum(nil))
	return addr
}

// Signature is a serialized user signature as accepted by Sui nodes and Seal key servers.
// It travels as a BCS byte vector and as base64 in JSON.
type Signature []byte

// NewEd25519Signature serializes an ed25519 signature together with its public key.
func NewEd25519Signature(sig []byte, pub ed25519.PublicKey) Signature {
	out := make([]byte, 0, Ed25519SignatureLength)
	out = append(out, Ed25519Flag)
	out = append(out, sig...)
	out = append(out, pub...)
	return out
}

// Ed25519Parts splits the signature and checks the scheme flag and length.
func (s Signature) Ed25519Parts() (sig []byte, pub ed25519.PublicKey, err error) {
	if len(s) != Ed25519SignatureLength {
		return nil, nil, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(s))
	}
	if s[0] != Ed25519Flag {
		return nil, nil, fmt.Errorf("%w: unsupported scheme flag %d", ErrInvalidSignature, s[0])
	}
	return s[1 : 1+ed25519.SignatureSize], ed25519.PublicKey(s[1+ed25519.SignatureSize:]), nil
}

// VerifyPersonalMessage checks the signature over msg and returns the signer's address.
func (s Signature) VerifyPersonalMessage(msg []byte) (Address, error) {
	sig, pub, err := s.Ed25519Parts()
	if err != nil {
		return Address{}, err
	}
	digest := PersonalMessageDigest(msg)
	if !ed25519.Verify(pub, digest[:], sig) {
		return Address{}, ErrInvalidSignature
	}
	return AddressFromPublicKey(pub), nil
}

func (s Signature) Base64() string {
	return base64.StdEncoding.EncodeToString(s)
}

func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Base64())
}

func (s *Signature) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	raw, err := base64.StdEncoding.DecodeString(str)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	*s = raw
	return nil
}
