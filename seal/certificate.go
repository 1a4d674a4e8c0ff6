package seal

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/ruteri/tee-enclave-agent/bcs"
	"github.com/ruteri/tee-enclave-agent/cryptoutils"
	"github.com/ruteri/tee-enclave-agent/sui"
)

// SessionTTLMin is how long a session certificate stays valid.
const SessionTTLMin uint16 = 10

var (
	ErrInvalidCertificate      = errors.New("invalid certificate")
	ErrCertificateExpired      = errors.New("certificate expired")
	ErrInvalidRequestSignature = errors.New("invalid request signature")
)

// SignedMessage is the personal message a user signs to delegate key access for
// packageID to a session key.
func SignedMessage(packageID sui.ObjectID, sessionVK ed25519.PublicKey, creationTime uint64, ttlMin uint16) []byte {
	created := time.UnixMilli(int64(creationTime)).UTC().Format("2006-01-02 15:04:05.999 UTC")
	return []byte(fmt.Sprintf("Accessing keys of package %s for %d mins from %s, session key %s",
		packageID, ttlMin, created, base64.StdEncoding.EncodeToString(sessionVK)))
}

// NewCertificate delegates to session for SessionTTLMin minutes, signed by user.
func NewCertificate(user *cryptoutils.Keypair, session ed25519.PublicKey, packageID sui.ObjectID, now time.Time) Certificate {
	creationTime := uint64(now.UnixMilli())
	cert := Certificate{
		User:         user.Address(),
		CreationTime: creationTime,
		TTLMin:       SessionTTLMin,
	}
	copy(cert.SessionVK[:], session)
	cert.Signature = user.SignPersonalMessage(SignedMessage(packageID, session, creationTime, SessionTTLMin))
	return cert
}

// Verify checks that the certificate is unexpired at now and signed by User.
func (c *Certificate) Verify(packageID sui.ObjectID, now time.Time) error {
	expiry := time.UnixMilli(int64(c.CreationTime)).Add(time.Duration(c.TTLMin) * time.Minute)
	if now.After(expiry) {
		return fmt.Errorf("%w: expired at %s", ErrCertificateExpired, expiry.UTC().Format(time.RFC3339))
	}

	msg := SignedMessage(packageID, c.SessionVK[:], c.CreationTime, c.TTLMin)
	signer, err := c.Signature.VerifyPersonalMessage(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	if signer != c.User {
		return fmt.Errorf("%w: signed by %s, not %s", ErrInvalidCertificate, signer, c.User)
	}
	return nil
}

type requestFormat struct {
	PTB                []byte
	EncKey             []byte
	EncVerificationKey []byte
}

// SignedRequest is the byte string a session key signs to bind a policy payload to the
// ElGamal key its shares are encrypted to.
func SignedRequest(ptb []byte, encKey G1Element, encVerificationKey G2Element) []byte {
	return bcs.MustMarshal(&requestFormat{
		PTB:                ptb,
		EncKey:             encKey.Bytes(),
		EncVerificationKey: encVerificationKey.Bytes(),
	})
}

// NewFetchKeyRequest signs the request with the session key that cert delegates to.
func NewFetchKeyRequest(ptb *sui.ProgrammableTransaction, encKey G1Element, encVerificationKey G2Element, session *cryptoutils.Keypair, cert Certificate) (*FetchKeyRequest, error) {
	ptbBytes, err := bcs.Marshal(ptb)
	if err != nil {
		return nil, fmt.Errorf("failed to encode policy transaction: %w", err)
	}

	req := &FetchKeyRequest{
		PTB:                base64.StdEncoding.EncodeToString(ptbBytes),
		EncKey:             encKey,
		EncVerificationKey: encVerificationKey,
		Certificate:        cert,
	}
	copy(req.RequestSignature[:], session.Sign(SignedRequest(ptbBytes, encKey, encVerificationKey)))
	return req, nil
}

// DecodePTB returns the policy transaction and its raw encoding.
func (r *FetchKeyRequest) DecodePTB() (*sui.ProgrammableTransaction, []byte, error) {
	raw, err := base64.StdEncoding.DecodeString(r.PTB)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid ptb encoding: %w", err)
	}
	var ptb sui.ProgrammableTransaction
	if err := bcs.Unmarshal(raw, &ptb); err != nil {
		return nil, nil, fmt.Errorf("invalid ptb: %w", err)
	}
	return &ptb, raw, nil
}

// VerifySignature checks the request signature against the certificate's session key.
func (r *FetchKeyRequest) VerifySignature(ptbBytes []byte) error {
	msg := SignedRequest(ptbBytes, r.EncKey, r.EncVerificationKey)
	if !ed25519.Verify(r.Certificate.SessionVK[:], msg, r.RequestSignature[:]) {
		return ErrInvalidRequestSignature
	}
	return nil
}
