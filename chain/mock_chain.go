package chain

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ruteri/tee-enclave-agent/interfaces"
	"github.com/ruteri/tee-enclave-agent/sui"
)

// MockChainClient mocks the ChainClient interface
type MockChainClient struct {
	mock.Mock
}

// Balances mocks the Balances method
func (m *MockChainClient) Balances(ctx context.Context, owner sui.Address) (interfaces.Balances, error) {
	args := m.Called(ctx, owner)
	return args.Get(0).(interfaces.Balances), args.Error(1)
}

// Swap mocks the Swap method
func (m *MockChainClient) Swap(ctx context.Context, signer interfaces.TransactionSigner, direction interfaces.SwapDirection, amount, minOutput uint64) (string, error) {
	args := m.Called(ctx, signer, direction, amount, minOutput)
	return args.String(0), args.Error(1)
}

// Withdraw mocks the Withdraw method
func (m *MockChainClient) Withdraw(ctx context.Context, signer interfaces.TransactionSigner, recipient string, amount uint64) (string, error) {
	args := m.Called(ctx, signer, recipient, amount)
	return args.String(0), args.Error(1)
}

// Transfer mocks the Transfer method
func (m *MockChainClient) Transfer(ctx context.Context, signer interfaces.TransactionSigner, recipient string, amount uint64) (string, error) {
	args := m.Called(ctx, signer, recipient, amount)
	return args.String(0), args.Error(1)
}

// SubscriptionWithdraw mocks the SubscriptionWithdraw method
func (m *MockChainClient) SubscriptionWithdraw(ctx context.Context, signer interfaces.TransactionSigner, agentID string, amount uint64, recipient string) (string, error) {
	args := m.Called(ctx, signer, agentID, amount, recipient)
	return args.String(0), args.Error(1)
}

// CreateUserBalance mocks the CreateUserBalance method
func (m *MockChainClient) CreateUserBalance(ctx context.Context, signer interfaces.TransactionSigner) (interfaces.UserBalance, error) {
	args := m.Called(ctx, signer)
	return args.Get(0).(interfaces.UserBalance), args.Error(1)
}

// KeyServers mocks the KeyServers method
func (m *MockChainClient) KeyServers(ctx context.Context, ids []sui.ObjectID) ([]interfaces.KeyServerInfo, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]interfaces.KeyServerInfo), args.Error(1)
}
