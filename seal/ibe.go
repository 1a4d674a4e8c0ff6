package seal

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/ruteri/tee-enclave-agent/cryptoutils"
	"github.com/ruteri/tee-enclave-agent/sui"
)

// MasterKey is a key server's Boneh-Franklin master secret. Its public key lives in G2
// and the user secret key for an identity is H(id)^x in G1.
type MasterKey struct {
	x fr.Element
}

func GenerateMasterKey() (*MasterKey, error) {
	x, err := randomScalar()
	if err != nil {
		return nil, err
	}
	return &MasterKey{x: x}, nil
}

// MasterKeyFromSeed derives a master key deterministically, for dev key servers.
func MasterKeyFromSeed(seed []byte) (*MasterKey, error) {
	if len(seed) < 32 {
		return nil, fmt.Errorf("master key seed must be at least 32 bytes, got %d", len(seed))
	}
	wide, err := cryptoutils.DeriveKey(seed, nil, []byte("seal-master-key"))
	if err != nil {
		return nil, err
	}
	var x fr.Element
	x.SetBytes(wide[:])
	if x.IsZero() {
		return nil, fmt.Errorf("degenerate master key seed")
	}
	return &MasterKey{x: x}, nil
}

func (k *MasterKey) PublicKey() G2Element {
	return G2Element{p: g2Mul(&g2Gen, &k.x)}
}

// Extract returns the user secret key for a full identity.
func (k *MasterKey) Extract(fullID []byte) (G1Element, error) {
	h, err := hashToG1(fullID)
	if err != nil {
		return G1Element{}, fmt.Errorf("failed to hash identity: %w", err)
	}
	return G1Element{p: g1Mul(&h, &k.x)}, nil
}

// FullID binds an identity to the package whose policy governs it.
func FullID(packageID sui.ObjectID, id []byte) []byte {
	out := make([]byte, 0, sui.AddressLength+len(id))
	out = append(out, packageID[:]...)
	return append(out, id...)
}
