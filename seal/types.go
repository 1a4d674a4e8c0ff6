package seal

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/ruteri/tee-enclave-agent/bcs"
	"github.com/ruteri/tee-enclave-agent/sui"
)

const EncryptedObjectVersion uint8 = 0

// KeyServerRef names a key server holding one share of an encrypted object.
type KeyServerRef struct {
	ObjectID sui.ObjectID
	Index    uint8
}

// BonehFranklinShares holds the per-server encrypted key shares.
type BonehFranklinShares struct {
	Nonce               G2Element
	EncryptedShares     [][]byte
	EncryptedRandomness [32]byte
}

type bonehFranklinFields BonehFranklinShares

func (s *BonehFranklinShares) MarshalBCS(e *bcs.Encoder) error {
	e.WriteULEB128(0)
	return e.Encode((*bonehFranklinFields)(s))
}

func (s *BonehFranklinShares) UnmarshalBCS(d *bcs.Decoder) error {
	if err := expectVariant(d, "encrypted shares"); err != nil {
		return err
	}
	return d.Decode((*bonehFranklinFields)(s))
}

// AESCiphertext is the AES-256-GCM data encapsulation of an encrypted object.
type AESCiphertext struct {
	Blob []byte
	AAD  *[]byte
}

type aesCiphertextFields AESCiphertext

func (c *AESCiphertext) MarshalBCS(e *bcs.Encoder) error {
	e.WriteULEB128(0)
	return e.Encode((*aesCiphertextFields)(c))
}

func (c *AESCiphertext) UnmarshalBCS(d *bcs.Decoder) error {
	if err := expectVariant(d, "ciphertext"); err != nil {
		return err
	}
	return d.Decode((*aesCiphertextFields)(c))
}

func expectVariant(d *bcs.Decoder, what string) error {
	v, err := d.ReadULEB128()
	if err != nil {
		return err
	}
	if v != 0 {
		return fmt.Errorf("%w: %s variant %d", bcs.ErrInvalidEncoding, what, v)
	}
	return nil
}

// EncryptedObject is a secret encrypted under the identity PackageID ‖ ID so that any
// Threshold of the listed key servers can release it.
type EncryptedObject struct {
	Version         uint8
	PackageID       sui.ObjectID
	ID              []byte
	Services        []KeyServerRef
	Threshold       uint8
	EncryptedShares BonehFranklinShares
	Ciphertext      AESCiphertext
}

func (o *EncryptedObject) FullID() []byte {
	return FullID(o.PackageID, o.ID)
}

// ByteList is a byte vector that appears in JSON as an array of numbers.
type ByteList []byte

func (b ByteList) MarshalJSON() ([]byte, error) {
	nums := make([]uint16, len(b))
	for i, v := range b {
		nums[i] = uint16(v)
	}
	return json.Marshal(nums)
}

func (b *ByteList) UnmarshalJSON(data []byte) error {
	// encoding/json decodes []uint8 from base64, so go through a wider type.
	var wide []uint16
	if err := json.Unmarshal(data, &wide); err != nil {
		return err
	}
	out := make([]byte, len(wide))
	for i, v := range wide {
		if v > 0xff {
			return fmt.Errorf("byte value %d out of range", v)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

func (c ElGamalCiphertext) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]G1Element{c.C1, c.C2})
}

func (c *ElGamalCiphertext) UnmarshalJSON(data []byte) error {
	var pair [2]G1Element
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	c.C1, c.C2 = pair[0], pair[1]
	return nil
}

// DecryptionKey is a user secret key for one full identity, encrypted to the requester.
type DecryptionKey struct {
	ID           ByteList          `json:"id"`
	EncryptedKey ElGamalCiphertext `json:"encrypted_key"`
}

// FetchKeyResponse is a key server's reply to /v1/fetch_key.
type FetchKeyResponse struct {
	DecryptionKeys []DecryptionKey `json:"decryption_keys"`
}

// ServerResponse pairs a key server's response with the server that produced it.
type ServerResponse struct {
	ServerID sui.ObjectID
	Response FetchKeyResponse
}

// Ed25519PublicKey is a session verification key. Fixed bytes in BCS, base64 in JSON.
type Ed25519PublicKey [ed25519.PublicKeySize]byte

func (k Ed25519PublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.StdEncoding.EncodeToString(k[:]))
}

func (k *Ed25519PublicKey) UnmarshalJSON(data []byte) error {
	raw, err := unmarshalBase64(data)
	if err != nil {
		return err
	}
	if len(raw) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid session key length %d", len(raw))
	}
	copy(k[:], raw)
	return nil
}

func (k Ed25519PublicKey) String() string {
	return base64.StdEncoding.EncodeToString(k[:])
}

// Ed25519Signature is a raw ed25519 signature. Fixed bytes in BCS, base64 in JSON.
type Ed25519Signature [ed25519.SignatureSize]byte

func (s Ed25519Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.StdEncoding.EncodeToString(s[:]))
}

func (s *Ed25519Signature) UnmarshalJSON(data []byte) error {
	raw, err := unmarshalBase64(data)
	if err != nil {
		return err
	}
	if len(raw) != ed25519.SignatureSize {
		return fmt.Errorf("invalid signature length %d", len(raw))
	}
	copy(s[:], raw)
	return nil
}

// Certificate authorizes a session key to request keys on behalf of User.
type Certificate struct {
	User         sui.Address      `json:"user"`
	SessionVK    Ed25519PublicKey `json:"session_vk"`
	CreationTime uint64           `json:"creation_time"`
	TTLMin       uint16           `json:"ttl_min"`
	Signature    sui.Signature    `json:"signature"`
	MVRName      *string          `json:"mvr_name"`
}

// FetchKeyRequest is sent verbatim to every key server.
type FetchKeyRequest struct {
	PTB                string           `json:"ptb"`
	EncKey             G1Element        `json:"enc_key"`
	EncVerificationKey G2Element        `json:"enc_verification_key"`
	RequestSignature   Ed25519Signature `json:"request_signature"`
	Certificate        Certificate      `json:"certificate"`
}
