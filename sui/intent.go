package sui

import (
	"golang.org/x/crypto/blake2b"

	"github.com/ruteri/tee-enclave-agent/bcs"
)

// IntentScope is the first byte of an intent and says what kind of value is being signed.
type IntentScope uint8

const (
	TransactionDataScope IntentScope = 0
	PersonalMessageScope IntentScope = 3
)

// Intent is prepended to every value signed by a Sui key so a signature over one kind of
// value can never be replayed as another.
type Intent struct {
	Scope   IntentScope
	Version uint8
	AppID   uint8
}

var (
	TransactionIntent     = Intent{Scope: TransactionDataScope}
	PersonalMessageIntent = Intent{Scope: PersonalMessageScope}
)

func (i Intent) Bytes() []byte {
	return []byte{byte(i.Scope), i.Version, i.AppID}
}

// IntentDigest is blake2b-256(intent ‖ value), where value is already BCS-encoded.
func IntentDigest(intent Intent, value []byte) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write(intent.Bytes())
	h.Write(value)
	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest
}

// PersonalMessageDigest is the digest signed for a personal message. The message is
// encoded as a BCS vector<u8>.
func PersonalMessageDigest(msg []byte) [32]byte {
	e := bcs.NewEncoder()
	e.WriteBytes(msg)
	return IntentDigest(PersonalMessageIntent, e.Bytes())
}

// TransactionDigest is the digest signed for BCS-encoded TransactionData.
func TransactionDigest(txBytes []byte) [32]byte {
	return IntentDigest(TransactionIntent, txBytes)
}
