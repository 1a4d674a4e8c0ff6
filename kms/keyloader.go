package kms

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/tee-enclave-agent/cryptoutils"
	"github.com/ruteri/tee-enclave-agent/interfaces"
	"github.com/ruteri/tee-enclave-agent/seal"
	"github.com/ruteri/tee-enclave-agent/sui"
)

// LoaderConfig identifies the secret a KeyLoader retrieves and the key servers that
// guard it.
type LoaderConfig struct {
	// PackageID is the package whose seal_approve policy the key servers evaluate
	PackageID sui.ObjectID
	// EnclaveID is the shared enclave object passed to the policy
	EnclaveID sui.ObjectID
	// EnclaveInitialSharedVersion is the initial shared version of EnclaveID
	EnclaveInitialSharedVersion uint64
	// KeyID is the identity the secret is encrypted under, also used as its name
	KeyID []byte
	// KeyServers are the key server object ids, in configured order
	KeyServers []sui.ObjectID
	// PublicKeys are the master public keys of KeyServers, in the same order
	PublicKeys []seal.G2Element
	// Threshold is the number of key servers needed to decrypt
	Threshold uint8
}

// Validate checks that the configuration describes a usable t-of-n setup.
func (c *LoaderConfig) Validate() error {
	if len(c.KeyServers) == 0 {
		return errors.New("no key servers configured")
	}
	if len(c.KeyServers) != len(c.PublicKeys) {
		return fmt.Errorf("%d key servers but %d public keys", len(c.KeyServers), len(c.PublicKeys))
	}
	if c.Threshold == 0 || int(c.Threshold) > len(c.KeyServers) {
		return fmt.Errorf("threshold %d out of range for %d key servers", c.Threshold, len(c.KeyServers))
	}
	if len(c.KeyID) == 0 {
		return errors.New("key id must not be empty")
	}
	return nil
}

// pendingSecret is the ElGamal secret of the outstanding retrieval. Key servers
// encrypt their answers to its public half.
type pendingSecret struct {
	session   uuid.UUID
	secret    *seal.ElGamalSecretKey
	startedAt time.Time
}

// KeyLoader drives the enclave side of a threshold key retrieval.
//
// A retrieval has two phases. BeginRetrieval produces a signed FetchKeyRequest the
// host forwards to the key servers, and remembers the ElGamal secret the answers are
// encrypted to. CompleteRetrieval takes the encrypted object and the collected server
// answers, recovers the plaintext and stores it as a loaded secret.
//
// Only one retrieval is pending at a time. Starting a new one replaces the secret of
// the previous one, whose answers then no longer decrypt.
type KeyLoader struct {
	cfg        LoaderConfig
	publicKeys map[sui.ObjectID]seal.G2Element
	signer     *cryptoutils.Keypair
	now        func() time.Time
	log        *slog.Logger

	mu      sync.RWMutex
	pending *pendingSecret

	secretsMu sync.RWMutex
	secrets   map[string][]byte
}

// NewKeyLoader creates a KeyLoader.
//
// Parameters:
//   - cfg: The secret and key server configuration
//   - signer: The long-lived keypair certificates are issued by
//   - log: Logger for retrieval events
//
// Returns:
//   - The key loader
//   - Error if cfg is invalid
func NewKeyLoader(cfg LoaderConfig, signer *cryptoutils.Keypair, log *slog.Logger) (*KeyLoader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid seal configuration: %w", err)
	}
	if signer == nil {
		return nil, errors.New("certificate signer is required")
	}

	publicKeys := make(map[sui.ObjectID]seal.G2Element, len(cfg.KeyServers))
	for i, id := range cfg.KeyServers {
		publicKeys[id] = cfg.PublicKeys[i]
	}

	return &KeyLoader{
		cfg:        cfg,
		publicKeys: publicKeys,
		signer:     signer,
		now:        time.Now,
		log:        log,
		secrets:    make(map[string][]byte),
	}, nil
}

// WithClock replaces the time source used for certificate creation times.
func (k *KeyLoader) WithClock(now func() time.Time) *KeyLoader {
	k.now = now
	return k
}

func (k *KeyLoader) Config() LoaderConfig {
	return k.cfg
}

// BeginRetrieval starts a retrieval of the configured key.
//
// It generates a fresh ElGamal keypair and session key, certifies the session key
// with the long-lived signer and signs the policy transaction with the session key.
// The ElGamal secret replaces any previously pending one.
//
// Returns:
//   - The request to forward to the key servers
//   - Error if key generation or encoding fails
func (k *KeyLoader) BeginRetrieval(ctx context.Context) (*seal.FetchKeyRequest, error) {
	secret, encKey, verificationKey, err := seal.GenerateElGamalKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	session, err := cryptoutils.GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session key: %w", err)
	}

	now := k.now()
	cert := seal.NewCertificate(k.signer, session.PublicKey(), k.cfg.PackageID, now)

	ptb, err := seal.PolicyTransaction(k.cfg.PackageID, k.cfg.KeyID, k.cfg.EnclaveID, k.cfg.EnclaveInitialSharedVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to build policy transaction: %w", err)
	}

	req, err := seal.NewFetchKeyRequest(ptb, encKey, verificationKey, session, cert)
	if err != nil {
		return nil, err
	}

	pending := &pendingSecret{session: uuid.New(), secret: secret, startedAt: now}

	k.mu.Lock()
	replaced := k.pending != nil
	k.pending = pending
	k.mu.Unlock()

	k.log.InfoContext(ctx, "Started key retrieval",
		"session", pending.session.String(),
		"keyID", string(k.cfg.KeyID),
		"replacedPending", replaced)
	return req, nil
}

// CompleteRetrieval decrypts obj with the key server answers to the pending request.
//
// Each response contributes the user secret key for obj's identity, decrypted with the
// pending ElGamal secret. Answers that carry no key for the identity are skipped.
//
// Parameters:
//   - obj: The encrypted object holding the secret
//   - responses: Key server answers, keyed by server object id
//
// Returns:
//   - The plaintext, also stored as the secret named after obj's id
//   - ErrNoPendingSession if BeginRetrieval has not been called
//   - ErrInsufficientShares if fewer than threshold answers are usable
//   - ErrDecryptionFailed if the recovered key does not decrypt obj
func (k *KeyLoader) CompleteRetrieval(ctx context.Context, obj *seal.EncryptedObject, responses []seal.ServerResponse) ([]byte, error) {
	k.mu.RLock()
	pending := k.pending
	k.mu.RUnlock()

	if pending == nil {
		return nil, interfaces.ErrNoPendingSession
	}

	fullID := obj.FullID()
	keys := make(map[sui.ObjectID]seal.G1Element, len(responses))
	for _, resp := range responses {
		found := false
		for _, dk := range resp.Response.DecryptionKeys {
			if !bytes.Equal(dk.ID, fullID) {
				continue
			}
			keys[resp.ServerID] = pending.secret.Decrypt(dk.EncryptedKey)
			found = true
			break
		}
		if !found {
			k.log.WarnContext(ctx, "Key server response has no key for object", "server", resp.ServerID.String())
		}
	}

	plaintext, err := seal.Decrypt(obj, keys, k.publicKeys)
	if err != nil {
		k.log.ErrorContext(ctx, "Key retrieval failed",
			"session", pending.session.String(),
			"responses", len(responses),
			"err", err)
		return nil, err
	}

	k.mu.Lock()
	if k.pending == pending {
		k.pending = nil
	}
	k.mu.Unlock()

	name := string(obj.ID)
	k.secretsMu.Lock()
	k.secrets[name] = plaintext
	k.secretsMu.Unlock()

	k.log.InfoContext(ctx, "Completed key retrieval",
		"session", pending.session.String(),
		"secret", name,
		"duration", k.now().Sub(pending.startedAt).String())
	return plaintext, nil
}

// Pending reports whether a retrieval is outstanding.
func (k *KeyLoader) Pending() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.pending != nil
}

// Secret returns a secret loaded by a completed retrieval.
func (k *KeyLoader) Secret(name string) ([]byte, bool) {
	k.secretsMu.RLock()
	defer k.secretsMu.RUnlock()
	secret, ok := k.secrets[name]
	return secret, ok
}
