package seal

import (
	"errors"
	"fmt"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

var ErrInvalidVerificationKey = errors.New("encryption key does not match verification key")

// ElGamalSecretKey decrypts key shares returned by key servers. It is never serialized.
type ElGamalSecretKey struct {
	x fr.Element
}

// ElGamalCiphertext encrypts a G1 element: (g1^r, m + pk^r).
type ElGamalCiphertext struct {
	C1 G1Element
	C2 G1Element
}

// GenerateElGamalKey returns a fresh secret key, its G1 encryption key and the matching G2
// verification key that lets a key server check the encryption key is well formed.
func GenerateElGamalKey() (*ElGamalSecretKey, G1Element, G2Element, error) {
	x, err := randomScalar()
	if err != nil {
		return nil, G1Element{}, G2Element{}, err
	}
	return &ElGamalSecretKey{x: x}, G1Element{p: g1Mul(&g1Gen, &x)}, G2Element{p: g2Mul(&g2Gen, &x)}, nil
}

// VerifyEncryptionKey checks e(encKey, g2) == e(g1, verificationKey).
func VerifyEncryptionKey(encKey G1Element, verificationKey G2Element) error {
	var negG1 bls12381.G1Affine
	negG1.Neg(&g1Gen)
	ok, err := bls12381.PairingCheck(
		[]bls12381.G1Affine{encKey.p, negG1},
		[]bls12381.G2Affine{g2Gen, verificationKey.p},
	)
	if err != nil {
		return fmt.Errorf("pairing check failed: %w", err)
	}
	if !ok {
		return ErrInvalidVerificationKey
	}
	return nil
}

// ElGamalEncrypt encrypts msg to encKey.
func ElGamalEncrypt(encKey G1Element, msg G1Element) (ElGamalCiphertext, error) {
	r, err := randomScalar()
	if err != nil {
		return ElGamalCiphertext{}, err
	}
	shared := g1Mul(&encKey.p, &r)
	return ElGamalCiphertext{
		C1: G1Element{p: g1Mul(&g1Gen, &r)},
		C2: G1Element{p: g1Add(&msg.p, &shared)},
	}, nil
}

func (sk *ElGamalSecretKey) Decrypt(ct ElGamalCiphertext) G1Element {
	shared := g1Mul(&ct.C1.p, &sk.x)
	return G1Element{p: g1Sub(&ct.C2.p, &shared)}
}
