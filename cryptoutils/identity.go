package cryptoutils

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/ruteri/tee-enclave-agent/sui"
)

// Keypair is an in-memory ed25519 signing identity. The private key never leaves it.
type Keypair struct {
	priv ed25519.PrivateKey
}

// GenerateKeypair creates a keypair from the system's secure random source.
func GenerateKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

// KeypairFromSeed derives a keypair from a 32-byte seed.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid seed length %d, expected %d", len(seed), ed25519.SeedSize)
	}
	return &Keypair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

func (k *Keypair) PublicKey() ed25519.PublicKey {
	return k.priv.Public().(ed25519.PublicKey)
}

// Address is derived from the public key on every call.
func (k *Keypair) Address() sui.Address {
	return sui.AddressFromPublicKey(k.PublicKey())
}

// Sign returns the raw ed25519 signature over msg.
func (k *Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.priv, msg)
}

// SignPersonalMessage produces a serialized signature over a personal message intent.
func (k *Keypair) SignPersonalMessage(msg []byte) sui.Signature {
	digest := sui.PersonalMessageDigest(msg)
	return sui.NewEd25519Signature(k.Sign(digest[:]), k.PublicKey())
}

// SignTransaction produces a serialized signature over BCS-encoded TransactionData.
func (k *Keypair) SignTransaction(txBytes []byte) sui.Signature {
	digest := sui.TransactionDigest(txBytes)
	return sui.NewEd25519Signature(k.Sign(digest[:]), k.PublicKey())
}
