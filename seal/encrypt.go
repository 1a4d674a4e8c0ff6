package seal

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/hashicorp/vault/shamir"
	"golang.org/x/crypto/hkdf"

	"github.com/ruteri/tee-enclave-agent/cryptoutils"
	"github.com/ruteri/tee-enclave-agent/interfaces"
	"github.com/ruteri/tee-enclave-agent/sui"
)

const (
	baseKeySize = 32
	shareSize   = baseKeySize + 1 // shamir appends the x coordinate
)

var (
	randomnessInfo = []byte("seal-randomness")
	demInfo        = []byte("seal-dem")
)

// Encrypt seals plaintext under packageID ‖ id for the given key servers. Any threshold
// of them can later release the user secret keys needed to decrypt it.
func Encrypt(packageID sui.ObjectID, id []byte, servers []sui.ObjectID, publicKeys []G2Element, threshold uint8, plaintext, aad []byte) (*EncryptedObject, error) {
	n := len(servers)
	switch {
	case n == 0 || n > 255:
		return nil, fmt.Errorf("invalid number of key servers: %d", n)
	case len(publicKeys) != n:
		return nil, fmt.Errorf("got %d public keys for %d key servers", len(publicKeys), n)
	case threshold == 0 || int(threshold) > n:
		return nil, fmt.Errorf("invalid threshold %d for %d key servers", threshold, n)
	}

	baseKey := make([]byte, baseKeySize)
	if _, err := io.ReadFull(rand.Reader, baseKey); err != nil {
		return nil, fmt.Errorf("failed to generate base key: %w", err)
	}
	shares, err := splitKey(baseKey, n, int(threshold))
	if err != nil {
		return nil, err
	}

	r, err := randomScalar()
	if err != nil {
		return nil, err
	}
	nonce := G2Element{p: g2Mul(&g2Gen, &r)}

	fullID := FullID(packageID, id)
	h, err := hashToG1(fullID)
	if err != nil {
		return nil, fmt.Errorf("failed to hash identity: %w", err)
	}
	hr := g1Mul(&h, &r)

	obj := &EncryptedObject{
		Version:   EncryptedObjectVersion,
		PackageID: packageID,
		ID:        id,
		Threshold: threshold,
		EncryptedShares: BonehFranklinShares{
			Nonce:           nonce,
			EncryptedShares: make([][]byte, n),
		},
	}
	for i, server := range servers {
		obj.Services = append(obj.Services, KeyServerRef{ObjectID: server, Index: uint8(i)})
		mask, err := shareMask(&hr, &publicKeys[i].p, nonce, fullID, server, uint8(i))
		if err != nil {
			return nil, err
		}
		obj.EncryptedShares.EncryptedShares[i] = xorBytes(shares[i], mask)
	}

	randomnessKey, err := cryptoutils.DeriveKey(baseKey, nil, randomnessInfo)
	if err != nil {
		return nil, err
	}
	rBytes := r.Bytes()
	copy(obj.EncryptedShares.EncryptedRandomness[:], xorBytes(rBytes[:], randomnessKey[:]))

	demKey, err := cryptoutils.DeriveKey(baseKey, nil, demInfo)
	if err != nil {
		return nil, err
	}
	blob, err := cryptoutils.EncryptAESGCM(demKey, plaintext, aad)
	if err != nil {
		return nil, err
	}
	obj.Ciphertext.Blob = blob
	if aad != nil {
		obj.Ciphertext.AAD = &aad
	}
	return obj, nil
}

// Decrypt opens obj with user secret keys keyed by key server object id.
//
// Fewer usable keys than the object's threshold fails with ErrInsufficientShares.
// Reconstructed key material that is inconsistent with the object's nonce, or a
// ciphertext that does not authenticate, fails with ErrDecryptionFailed. When
// publicKeys is given, every share of the object is also recomputed and checked to
// reconstruct the same key, so that any threshold subset yields the same plaintext.
// The individual user secret keys are not verified against the public keys.
func Decrypt(obj *EncryptedObject, keys map[sui.ObjectID]G1Element, publicKeys map[sui.ObjectID]G2Element) ([]byte, error) {
	if obj.Version != EncryptedObjectVersion {
		return nil, fmt.Errorf("unsupported encrypted object version %d", obj.Version)
	}
	bf := &obj.EncryptedShares
	if len(bf.EncryptedShares) != len(obj.Services) {
		return nil, fmt.Errorf("malformed encrypted object: %d shares for %d services", len(bf.EncryptedShares), len(obj.Services))
	}
	if obj.Threshold == 0 {
		return nil, fmt.Errorf("malformed encrypted object: zero threshold")
	}
	for i, s := range bf.EncryptedShares {
		if len(s) != shareSize {
			return nil, fmt.Errorf("malformed encrypted object: share %d has length %d", i, len(s))
		}
	}

	fullID := obj.FullID()
	var shares [][]byte
	for i, svc := range obj.Services {
		usk, ok := keys[svc.ObjectID]
		if !ok {
			continue
		}
		ikm, err := pairingBytes(&usk.p, &bf.Nonce.p)
		if err != nil {
			return nil, err
		}
		shares = append(shares, xorBytes(bf.EncryptedShares[i], deriveMask(ikm, bf.Nonce, fullID, svc)))
	}
	if len(shares) < int(obj.Threshold) {
		return nil, fmt.Errorf("%w: have %d, need %d", interfaces.ErrInsufficientShares, len(shares), obj.Threshold)
	}

	baseKey, err := combineShares(shares, int(obj.Threshold))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrDecryptionFailed, err)
	}

	r, err := recoverRandomness(baseKey, bf)
	if err != nil {
		return nil, err
	}

	if publicKeys != nil {
		if err := checkConsistency(obj, fullID, &r, baseKey, publicKeys); err != nil {
			return nil, err
		}
	}

	demKey, err := cryptoutils.DeriveKey(baseKey, nil, demInfo)
	if err != nil {
		return nil, err
	}
	var aad []byte
	if obj.Ciphertext.AAD != nil {
		aad = *obj.Ciphertext.AAD
	}
	plaintext, err := cryptoutils.DecryptAESGCM(demKey, obj.Ciphertext.Blob, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// recoverRandomness decrypts the encryption randomness with the base key and checks it
// reproduces the object's nonce. A wrong base key fails here.
func recoverRandomness(baseKey []byte, bf *BonehFranklinShares) (fr.Element, error) {
	var r fr.Element
	randomnessKey, err := cryptoutils.DeriveKey(baseKey, nil, randomnessInfo)
	if err != nil {
		return r, err
	}
	r.SetBytes(xorBytes(bf.EncryptedRandomness[:], randomnessKey[:]))

	expected := g2Mul(&g2Gen, &r)
	if !expected.Equal(&bf.Nonce.p) {
		return r, fmt.Errorf("%w: nonce mismatch", interfaces.ErrDecryptionFailed)
	}
	return r, nil
}

func checkConsistency(obj *EncryptedObject, fullID []byte, r *fr.Element, baseKey []byte, publicKeys map[sui.ObjectID]G2Element) error {
	h, err := hashToG1(fullID)
	if err != nil {
		return fmt.Errorf("failed to hash identity: %w", err)
	}
	hr := g1Mul(&h, r)

	bf := &obj.EncryptedShares
	all := make([][]byte, len(obj.Services))
	for i, svc := range obj.Services {
		pk, ok := publicKeys[svc.ObjectID]
		if !ok {
			return fmt.Errorf("no public key for key server %s", svc.ObjectID)
		}
		mask, err := shareMask(&hr, &pk.p, bf.Nonce, fullID, svc.ObjectID, svc.Index)
		if err != nil {
			return err
		}
		all[i] = xorBytes(bf.EncryptedShares[i], mask)
	}

	combined, err := combineShares(all, int(obj.Threshold))
	if err != nil || !bytes.Equal(combined, baseKey) {
		return fmt.Errorf("%w: inconsistent shares", interfaces.ErrDecryptionFailed)
	}
	return nil
}

// shareMask is the one-time pad for a server's share, computed by the encryptor as
// KDF(e(H(id)^r, pk)). The holder of H(id)^x computes the same value as e(usk, g2^r).
func shareMask(hr *bls12381.G1Affine, pk *bls12381.G2Affine, nonce G2Element, fullID []byte, server sui.ObjectID, index uint8) ([]byte, error) {
	ikm, err := pairingBytes(hr, pk)
	if err != nil {
		return nil, err
	}
	return deriveMask(ikm, nonce, fullID, KeyServerRef{ObjectID: server, Index: index}), nil
}

func deriveMask(ikm []byte, nonce G2Element, fullID []byte, svc KeyServerRef) []byte {
	info := make([]byte, 0, len(fullID)+sui.AddressLength+5)
	info = binary.LittleEndian.AppendUint32(info, uint32(len(fullID)))
	info = append(info, fullID...)
	info = append(info, svc.ObjectID[:]...)
	info = append(info, svc.Index)

	mask := make([]byte, shareSize)
	// hkdf can always produce shareSize bytes.
	_, _ = io.ReadFull(hkdf.New(sha256.New, ikm, nonce.Bytes(), info), mask)
	return mask
}

// splitKey shares key among n holders. Shamir needs a threshold of at least two, so a
// threshold of one gives every holder the key itself.
func splitKey(key []byte, n, threshold int) ([][]byte, error) {
	if threshold == 1 {
		shares := make([][]byte, n)
		for i := range shares {
			shares[i] = append(append([]byte{}, key...), 0)
		}
		return shares, nil
	}
	shares, err := shamir.Split(key, n, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to split key: %w", err)
	}
	return shares, nil
}

func combineShares(shares [][]byte, threshold int) ([]byte, error) {
	for _, s := range shares {
		if len(s) != shareSize {
			return nil, fmt.Errorf("invalid share length %d", len(s))
		}
	}
	if threshold == 1 {
		for _, s := range shares[1:] {
			if !bytes.Equal(s, shares[0]) {
				return nil, fmt.Errorf("replicated shares differ")
			}
		}
		return shares[0][:baseKeySize], nil
	}
	return shamir.Combine(shares)
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}
