package interfaces

import (
	"context"
	"fmt"

	"github.com/ruteri/tee-enclave-agent/sui"
)

// SwapDirection selects which side of the SUI/USDC pool is sold.
type SwapDirection int

const (
	// SwapSuiToUSDC sells SUI for USDC.
	SwapSuiToUSDC SwapDirection = iota
	// SwapUSDCToSui sells USDC for SUI.
	SwapUSDCToSui
)

func (d SwapDirection) String() string {
	switch d {
	case SwapSuiToUSDC:
		return "swap_sui_to_usdc"
	case SwapUSDCToSui:
		return "swap_usdc_to_sui"
	default:
		return "unknown"
	}
}

// TradeAction is the client-facing name of a swap.
type TradeAction string

const (
	BuySui  TradeAction = "buy_sui"
	SellSui TradeAction = "sell_sui"
)

// Direction maps a trade action to the pool swap it performs.
func (a TradeAction) Direction() (SwapDirection, error) {
	switch a {
	case BuySui:
		return SwapUSDCToSui, nil
	case SellSui:
		return SwapSuiToUSDC, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidTradeAction, string(a))
	}
}

// Balances are raw coin amounts in the smallest unit of each coin.
type Balances struct {
	SUI  uint64
	USDC uint64
}

// KeyServerInfo describes a Seal key server registered on chain.
type KeyServerInfo struct {
	ObjectID sui.ObjectID
	Name     string
	URL      string
}

// UserBalance is the on-chain DEX account created for a wallet.
type UserBalance struct {
	Digest    string
	BalanceID sui.ObjectID
}

// TransactionSigner signs transactions on behalf of an account.
type TransactionSigner interface {
	Address() sui.Address
	SignTransaction(txBytes []byte) sui.Signature
}

// ChainClient is everything the agent needs from the chain. The mock and live
// implementations are selected at startup.
type ChainClient interface {
	// Balances returns the SUI and USDC holdings of owner.
	Balances(ctx context.Context, owner sui.Address) (Balances, error)

	// Swap trades amount of the sold coin through the configured pool and returns the
	// transaction digest.
	Swap(ctx context.Context, signer TransactionSigner, direction SwapDirection, amount, minOutput uint64) (string, error)

	// Withdraw returns amount MIST from the wallet to its owner and returns the
	// transaction digest.
	Withdraw(ctx context.Context, signer TransactionSigner, recipient string, amount uint64) (string, error)

	// Transfer sends amount MIST to recipient and returns the transaction digest.
	// The recipient is parsed as an address only where a real transaction is built.
	Transfer(ctx context.Context, signer TransactionSigner, recipient string, amount uint64) (string, error)

	// SubscriptionWithdraw pays out amount MIST of an agent's subscription funds to recipient.
	SubscriptionWithdraw(ctx context.Context, signer TransactionSigner, agentID string, amount uint64, recipient string) (string, error)

	// CreateUserBalance opens the DEX balance object the wallet trades through.
	CreateUserBalance(ctx context.Context, signer TransactionSigner) (UserBalance, error)

	// KeyServers resolves key server object ids to their registered name and URL.
	KeyServers(ctx context.Context, ids []sui.ObjectID) ([]KeyServerInfo, error)
}
