// Package wallet holds the agent's single in-memory trading wallet.
package wallet

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ruteri/tee-enclave-agent/cryptoutils"
	"github.com/ruteri/tee-enclave-agent/interfaces"
	"github.com/ruteri/tee-enclave-agent/sui"
)

var ErrResourceAlreadySet = errors.New("wallet resource already set")

// State is the lifecycle of a Wallet. The only transition is Uninitialized to
// Initialized, and it cannot be undone.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	default:
		return "unknown"
	}
}

// Snapshot is a consistent read of the wallet. Address and Owner are nil until the
// wallet is initialized.
type Snapshot struct {
	Initialized bool
	Address     *string
	Owner       *string
}

// Wallet owns a keypair generated inside the enclave on behalf of an owner.
type Wallet struct {
	mu sync.RWMutex

	state      State
	keypair    *cryptoutils.Keypair
	address    sui.Address
	owner      string
	resourceID *sui.ObjectID

	generate func() (*cryptoutils.Keypair, error)
}

func New() *Wallet {
	return &Wallet{generate: cryptoutils.GenerateKeypair}
}

// Initialize generates the wallet keypair and records owner. It fails with
// ErrAlreadyInitialized on every call after the first.
func (w *Wallet) Initialize(owner string) (Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateInitialized {
		return Snapshot{}, interfaces.ErrAlreadyInitialized
	}

	kp, err := w.generate()
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to generate wallet key: %w", err)
	}

	w.keypair = kp
	w.address = kp.Address()
	w.owner = owner
	w.state = StateInitialized
	return w.snapshotLocked(), nil
}

func (w *Wallet) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *Wallet) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshotLocked()
}

func (w *Wallet) snapshotLocked() Snapshot {
	if w.state != StateInitialized {
		return Snapshot{}
	}
	address := w.address.String()
	owner := w.owner
	return Snapshot{Initialized: true, Address: &address, Owner: &owner}
}

// Authorize succeeds iff caller is exactly the owner string given at initialization.
// Nothing proves the caller's identity; this only guards against mistaken recipients.
func (w *Wallet) Authorize(caller string) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.state != StateInitialized {
		return interfaces.ErrNotInitialized
	}
	if caller != w.owner {
		return interfaces.ErrUnauthorized
	}
	return nil
}

// Signer returns the wallet keypair and address. Callers use them after the lock is
// released, so chain calls never hold it.
func (w *Wallet) Signer() (*cryptoutils.Keypair, sui.Address, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.state != StateInitialized {
		return nil, sui.Address{}, interfaces.ErrNotInitialized
	}
	return w.keypair, w.address, nil
}

// SetResourceID records the on-chain object the wallet trades through. It can be set once.
func (w *Wallet) SetResourceID(id sui.ObjectID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateInitialized {
		return interfaces.ErrNotInitialized
	}
	if w.resourceID != nil {
		return ErrResourceAlreadySet
	}
	w.resourceID = &id
	return nil
}

func (w *Wallet) ResourceID() (sui.ObjectID, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.resourceID == nil {
		return sui.ObjectID{}, false
	}
	return *w.resourceID, true
}
