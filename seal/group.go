package seal

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/ruteri/tee-enclave-agent/bcs"
)

const (
	G1Size = bls12381.SizeOfG1AffineCompressed
	G2Size = bls12381.SizeOfG2AffineCompressed
)

var ErrInvalidPoint = errors.New("invalid group element")

var (
	g1Gen bls12381.G1Affine
	g2Gen bls12381.G2Affine
)

func init() {
	_, _, g1Gen, g2Gen = bls12381.Generators()
}

// G1Element is a point of the BLS12-381 G1 group. It travels as its 48-byte compressed
// form: fixed bytes in BCS, base64 in JSON.
type G1Element struct {
	p bls12381.G1Affine
}

// G2Element is a point of the BLS12-381 G2 group, 96 bytes compressed.
type G2Element struct {
	p bls12381.G2Affine
}

func (e G1Element) Bytes() []byte {
	b := e.p.Bytes()
	return b[:]
}

func (e G2Element) Bytes() []byte {
	b := e.p.Bytes()
	return b[:]
}

func (e G1Element) Equal(other G1Element) bool { return e.p.Equal(&other.p) }
func (e G2Element) Equal(other G2Element) bool { return e.p.Equal(&other.p) }

// G1FromBytes decodes a compressed point and checks it is in the prime-order subgroup.
func G1FromBytes(b []byte) (G1Element, error) {
	if len(b) != G1Size {
		return G1Element{}, fmt.Errorf("%w: G1 length %d", ErrInvalidPoint, len(b))
	}
	var e G1Element
	if _, err := e.p.SetBytes(b); err != nil {
		return G1Element{}, fmt.Errorf("%w: %v", ErrInvalidPoint, err)
	}
	return e, nil
}

func G2FromBytes(b []byte) (G2Element, error) {
	if len(b) != G2Size {
		return G2Element{}, fmt.Errorf("%w: G2 length %d", ErrInvalidPoint, len(b))
	}
	var e G2Element
	if _, err := e.p.SetBytes(b); err != nil {
		return G2Element{}, fmt.Errorf("%w: %v", ErrInvalidPoint, err)
	}
	return e, nil
}

// G2FromHex parses a hex-encoded public key as found in configuration files.
func G2FromHex(s string) (G2Element, error) {
	raw, err := hex.DecodeString(trimHexPrefix(s))
	if err != nil {
		return G2Element{}, fmt.Errorf("%w: %v", ErrInvalidPoint, err)
	}
	return G2FromBytes(raw)
}

func (e G2Element) Hex() string {
	return hex.EncodeToString(e.Bytes())
}

func (e *G1Element) MarshalBCS(enc *bcs.Encoder) error {
	enc.WriteFixedBytes(e.Bytes())
	return nil
}

func (e *G1Element) UnmarshalBCS(d *bcs.Decoder) error {
	raw, err := d.ReadFixedBytes(G1Size)
	if err != nil {
		return err
	}
	*e, err = G1FromBytes(raw)
	return err
}

func (e *G2Element) MarshalBCS(enc *bcs.Encoder) error {
	enc.WriteFixedBytes(e.Bytes())
	return nil
}

func (e *G2Element) UnmarshalBCS(d *bcs.Decoder) error {
	raw, err := d.ReadFixedBytes(G2Size)
	if err != nil {
		return err
	}
	*e, err = G2FromBytes(raw)
	return err
}

func (e G1Element) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.StdEncoding.EncodeToString(e.Bytes()))
}

func (e *G1Element) UnmarshalJSON(data []byte) error {
	raw, err := unmarshalBase64(data)
	if err != nil {
		return err
	}
	*e, err = G1FromBytes(raw)
	return err
}

func (e G2Element) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.StdEncoding.EncodeToString(e.Bytes()))
}

func (e *G2Element) UnmarshalJSON(data []byte) error {
	raw, err := unmarshalBase64(data)
	if err != nil {
		return err
	}
	*e, err = G2FromBytes(raw)
	return err
}

func unmarshalBase64(data []byte) ([]byte, error) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(s)
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

func randomScalar() (fr.Element, error) {
	var s fr.Element
	if _, err := s.SetRandom(); err != nil {
		return s, fmt.Errorf("failed to sample scalar: %w", err)
	}
	return s, nil
}

func scalarBig(s *fr.Element) *big.Int {
	return s.BigInt(new(big.Int))
}

func g1Mul(p *bls12381.G1Affine, s *fr.Element) bls12381.G1Affine {
	var out bls12381.G1Affine
	out.ScalarMultiplication(p, scalarBig(s))
	return out
}

func g2Mul(p *bls12381.G2Affine, s *fr.Element) bls12381.G2Affine {
	var out bls12381.G2Affine
	out.ScalarMultiplication(p, scalarBig(s))
	return out
}

func g1Add(a, b *bls12381.G1Affine) bls12381.G1Affine {
	var ja, jb bls12381.G1Jac
	ja.FromAffine(a)
	jb.FromAffine(b)
	ja.AddAssign(&jb)
	var out bls12381.G1Affine
	out.FromJacobian(&ja)
	return out
}

func g1Sub(a, b *bls12381.G1Affine) bls12381.G1Affine {
	var neg bls12381.G1Affine
	neg.Neg(b)
	return g1Add(a, &neg)
}

// hashToG1 maps an identity to G1 for Boneh-Franklin key extraction.
func hashToG1(id []byte) (bls12381.G1Affine, error) {
	return bls12381.HashToG1(id, []byte("SEAL-BF-IBE-BLS12381-H1_XMD:SHA-256_SSWU_RO_"))
}

// pairingBytes returns the canonical encoding of e(p, q).
func pairingBytes(p *bls12381.G1Affine, q *bls12381.G2Affine) ([]byte, error) {
	gt, err := bls12381.Pair([]bls12381.G1Affine{*p}, []bls12381.G2Affine{*q})
	if err != nil {
		return nil, fmt.Errorf("pairing failed: %w", err)
	}
	b := gt.Bytes()
	return b[:], nil
}
