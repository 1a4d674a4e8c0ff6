package seal

import (
	"fmt"
	"time"

	"github.com/ruteri/tee-enclave-agent/sui"
)

// KeyServer answers fetch key requests with user secret keys derived from its master
// key. Instead of dry-running the policy transaction on chain it only accepts
// seal_approve calls on allowed packages, which makes it suitable for development
// and tests.
type KeyServer struct {
	objectID sui.ObjectID
	master   *MasterKey
	allowed  map[sui.ObjectID]struct{}
	now      func() time.Time
}

// NewKeyServer creates a key server registered as objectID. An empty allowlist accepts
// every package.
func NewKeyServer(objectID sui.ObjectID, master *MasterKey, allowedPackages []sui.ObjectID) *KeyServer {
	allowed := make(map[sui.ObjectID]struct{}, len(allowedPackages))
	for _, pkg := range allowedPackages {
		allowed[pkg] = struct{}{}
	}
	return &KeyServer{
		objectID: objectID,
		master:   master,
		allowed:  allowed,
		now:      time.Now,
	}
}

// WithClock replaces the time source used for certificate expiry.
func (s *KeyServer) WithClock(now func() time.Time) *KeyServer {
	s.now = now
	return s
}

func (s *KeyServer) ObjectID() sui.ObjectID { return s.objectID }

func (s *KeyServer) PublicKey() G2Element { return s.master.PublicKey() }

// FetchKey validates req and returns one encrypted user secret key per requested identity.
func (s *KeyServer) FetchKey(req *FetchKeyRequest) (*FetchKeyResponse, error) {
	ptb, ptbBytes, err := req.DecodePTB()
	if err != nil {
		return nil, err
	}

	identities, err := ApprovedIdentities(ptb)
	if err != nil {
		return nil, err
	}
	packageID := identities[0].PackageID
	if len(s.allowed) > 0 {
		if _, ok := s.allowed[packageID]; !ok {
			return nil, fmt.Errorf("%w: package %s", ErrPolicyDenied, packageID)
		}
	}

	if err := req.Certificate.Verify(packageID, s.now()); err != nil {
		return nil, err
	}
	if err := req.VerifySignature(ptbBytes); err != nil {
		return nil, err
	}
	if err := VerifyEncryptionKey(req.EncKey, req.EncVerificationKey); err != nil {
		return nil, err
	}

	resp := &FetchKeyResponse{}
	for _, identity := range identities {
		fullID := identity.FullID()
		usk, err := s.master.Extract(fullID)
		if err != nil {
			return nil, err
		}
		encrypted, err := ElGamalEncrypt(req.EncKey, usk)
		if err != nil {
			return nil, err
		}
		resp.DecryptionKeys = append(resp.DecryptionKeys, DecryptionKey{ID: fullID, EncryptedKey: encrypted})
	}
	return resp, nil
}
