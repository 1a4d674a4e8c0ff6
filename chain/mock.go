package chain

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/ruteri/tee-enclave-agent/interfaces"
	"github.com/ruteri/tee-enclave-agent/sui"
)

// MockClient is an in-memory ChainClient for running the agent without a node.
// Transactions are not executed: each returns a digest derived from the operation,
// and balances are always zero. Key servers resolve from a static directory.
type MockClient struct {
	log *slog.Logger

	mu        sync.RWMutex
	directory map[sui.ObjectID]interfaces.KeyServerInfo
	balances  map[sui.Address]sui.ObjectID
}

// NewMockClient creates a mock client that resolves key servers from directory.
func NewMockClient(directory []interfaces.KeyServerInfo, log *slog.Logger) *MockClient {
	c := &MockClient{
		log:       log,
		directory: make(map[sui.ObjectID]interfaces.KeyServerInfo, len(directory)),
		balances:  make(map[sui.Address]sui.ObjectID),
	}
	for _, info := range directory {
		c.directory[info.ObjectID] = info
	}
	return c
}

// mockDigest is 0x followed by the hex of the first 8 bytes of blake2b-256(label).
func mockDigest(label string) string {
	sum := blake2b.Sum256([]byte(label))
	return "0x" + hex.EncodeToString(sum[:8])
}

func (c *MockClient) Balances(_ context.Context, _ sui.Address) (interfaces.Balances, error) {
	return interfaces.Balances{}, nil
}

func (c *MockClient) Swap(_ context.Context, signer interfaces.TransactionSigner, direction interfaces.SwapDirection, amount, minOutput uint64) (string, error) {
	c.log.Debug("Mock swap", "sender", signer.Address().String(), "direction", direction.String(), "amount", amount, "minOutput", minOutput)
	return mockDigest(direction.String()), nil
}

func (c *MockClient) Withdraw(_ context.Context, signer interfaces.TransactionSigner, recipient string, amount uint64) (string, error) {
	c.log.Debug("Mock withdraw", "sender", signer.Address().String(), "recipient", recipient, "amount", amount)
	return mockDigest("withdraw"), nil
}

func (c *MockClient) Transfer(_ context.Context, signer interfaces.TransactionSigner, recipient string, amount uint64) (string, error) {
	c.log.Debug("Mock transfer", "sender", signer.Address().String(), "recipient", recipient, "amount", amount)
	return mockDigest("simple_transfer"), nil
}

func (c *MockClient) SubscriptionWithdraw(_ context.Context, _ interfaces.TransactionSigner, agentID string, amount uint64, recipient string) (string, error) {
	return mockDigest(fmt.Sprintf("withdraw_%s_%d_%s", agentID, amount, recipient)), nil
}

// CreateUserBalance derives a stable balance id from the sender, so repeated calls
// for one wallet return the same object.
func (c *MockClient) CreateUserBalance(_ context.Context, signer interfaces.TransactionSigner) (interfaces.UserBalance, error) {
	sender := signer.Address()

	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.balances[sender]
	if !ok {
		id = sui.Address(blake2b.Sum256(append([]byte("user_balance"), sender[:]...)))
		c.balances[sender] = id
	}
	return interfaces.UserBalance{
		Digest:    mockDigest("create_user_balance_" + sender.String()),
		BalanceID: id,
	}, nil
}

func (c *MockClient) KeyServers(_ context.Context, ids []sui.ObjectID) ([]interfaces.KeyServerInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]interfaces.KeyServerInfo, 0, len(ids))
	for _, id := range ids {
		info, ok := c.directory[id]
		if !ok {
			return nil, interfaces.NewExternalServiceError("directory", "key server lookup", fmt.Errorf("key server %s not registered", id))
		}
		out = append(out, info)
	}
	return out, nil
}
