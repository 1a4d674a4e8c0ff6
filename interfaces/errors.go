package interfaces

import (
	"errors"
	"fmt"

	"github.com/ruteri/tee-enclave-agent/sui"
)

var (
	// ErrAlreadyInitialized is returned when the wallet is initialized a second time.
	ErrAlreadyInitialized = errors.New("wallet already initialized")

	// ErrNotInitialized is returned by wallet operations that run before initialization.
	ErrNotInitialized = errors.New("wallet not initialized")

	// ErrUnauthorized is returned when a withdrawal recipient is not the wallet owner.
	ErrUnauthorized = errors.New("unauthorized: recipient must be owner")

	// ErrInvalidAddressFormat is returned when an address or object id cannot be parsed.
	ErrInvalidAddressFormat = sui.ErrInvalidAddressFormat

	// ErrNoPendingSession is returned when a key retrieval is completed without having begun.
	ErrNoPendingSession = errors.New("no pending key retrieval session")

	// ErrInsufficientShares is returned when fewer than threshold key shares are available.
	ErrInsufficientShares = errors.New("insufficient key shares")

	// ErrDecryptionFailed is returned when reconstructed key material does not decrypt the object.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrExternalService matches every ExternalServiceError.
	ErrExternalService = errors.New("external service error")

	// ErrInvalidTradeAction is returned for trade actions other than buy_sui and sell_sui.
	ErrInvalidTradeAction = errors.New("invalid trade action")
)

// ExternalServiceError wraps a failed call to a chain node, key server or storage service.
type ExternalServiceError struct {
	Service string
	Op      string
	Err     error
}

func NewExternalServiceError(service, op string, err error) *ExternalServiceError {
	return &ExternalServiceError{Service: service, Op: op, Err: err}
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrExternalService, e.Service, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

func (e *ExternalServiceError) Is(target error) bool {
	return target == ErrExternalService
}
