package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ruteri/tee-enclave-agent/bcs"
	"github.com/ruteri/tee-enclave-agent/interfaces"
	"github.com/ruteri/tee-enclave-agent/sui"
)

const (
	// SuiCoinType is the coin type of SUI as reported by the node.
	SuiCoinType = "0x2::sui::SUI"

	DefaultSwapGasBudget     uint64 = 50_000_000
	DefaultTransferGasBudget uint64 = 10_000_000

	dexModule = "dex"
	coinPage  = 50
)

var ErrInsufficientBalance = errors.New("insufficient balance")

// LiveConfig locates the DEX objects the agent trades against.
type LiveConfig struct {
	RPCURL                   string
	DexPackageID             sui.ObjectID
	PoolID                   sui.ObjectID
	PoolInitialSharedVersion uint64
	// USDCCoinType defaults to {DexPackageID}::mock_usdc::MOCK_USDC
	USDCCoinType      string
	SwapGasBudget     uint64
	TransferGasBudget uint64
}

func (c *LiveConfig) usdcCoinType() string {
	if c.USDCCoinType != "" {
		return c.USDCCoinType
	}
	return c.DexPackageID.String() + "::mock_usdc::MOCK_USDC"
}

// LiveClient builds, signs and executes transactions through a Sui full node
// JSON-RPC endpoint.
type LiveClient struct {
	rpc *rpc.Client
	cfg LiveConfig
	log *slog.Logger
}

// DialLive connects to cfg.RPCURL.
func DialLive(ctx context.Context, cfg LiveConfig, log *slog.Logger) (*LiveClient, error) {
	client, err := rpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, interfaces.NewExternalServiceError("sui", "dial", err)
	}
	return NewLiveClient(client, cfg, log), nil
}

func NewLiveClient(client *rpc.Client, cfg LiveConfig, log *slog.Logger) *LiveClient {
	if cfg.SwapGasBudget == 0 {
		cfg.SwapGasBudget = DefaultSwapGasBudget
	}
	if cfg.TransferGasBudget == 0 {
		cfg.TransferGasBudget = DefaultTransferGasBudget
	}
	return &LiveClient{rpc: client, cfg: cfg, log: log}
}

func (c *LiveClient) Close() {
	c.rpc.Close()
}

// bigUint decodes the decimal strings the node uses for u64 values.
type bigUint uint64

func (u *bigUint) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid integer %s: %w", data, err)
	}
	*u = bigUint(v)
	return nil
}

type coinObject struct {
	CoinType     string       `json:"coinType"`
	CoinObjectID sui.ObjectID `json:"coinObjectId"`
	Version      bigUint      `json:"version"`
	Digest       string       `json:"digest"`
	Balance      bigUint      `json:"balance"`
}

func (c coinObject) ref() (sui.ObjectRef, error) {
	digest, err := sui.ParseObjectDigest(c.Digest)
	if err != nil {
		return sui.ObjectRef{}, err
	}
	return sui.ObjectRef{ObjectID: c.CoinObjectID, Version: uint64(c.Version), Digest: digest}, nil
}

type coinsPage struct {
	Data        []coinObject `json:"data"`
	NextCursor  *string      `json:"nextCursor"`
	HasNextPage bool         `json:"hasNextPage"`
}

type executionStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type objectChange struct {
	Type       string       `json:"type"`
	ObjectType string       `json:"objectType"`
	ObjectID   sui.ObjectID `json:"objectId"`
}

type executeResponse struct {
	Digest  string `json:"digest"`
	Effects *struct {
		Status executionStatus `json:"status"`
	} `json:"effects"`
	ObjectChanges []objectChange `json:"objectChanges"`
}

func (c *LiveClient) call(ctx context.Context, result any, method string, args ...any) error {
	if err := c.rpc.CallContext(ctx, result, method, args...); err != nil {
		return interfaces.NewExternalServiceError("sui", method, err)
	}
	return nil
}

// coins pages through coins of owner. An empty coinType lists every coin.
func (c *LiveClient) coins(ctx context.Context, owner sui.Address, coinType string) ([]coinObject, error) {
	var (
		all    []coinObject
		cursor *string
	)
	for {
		var page coinsPage
		var err error
		if coinType == "" {
			err = c.call(ctx, &page, "suix_getAllCoins", owner.String(), cursor, coinPage)
		} else {
			err = c.call(ctx, &page, "suix_getCoins", owner.String(), coinType, cursor, coinPage)
		}
		if err != nil {
			return nil, err
		}
		all = append(all, page.Data...)
		if !page.HasNextPage || page.NextCursor == nil {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

// gasCoin picks the first SUI coin of owner holding at least minBalance.
func (c *LiveClient) gasCoin(ctx context.Context, owner sui.Address, minBalance uint64) (sui.ObjectRef, error) {
	coins, err := c.coins(ctx, owner, SuiCoinType)
	if err != nil {
		return sui.ObjectRef{}, err
	}
	for _, coin := range coins {
		if uint64(coin.Balance) >= minBalance {
			return coin.ref()
		}
	}
	return sui.ObjectRef{}, fmt.Errorf("%w: need a SUI coin holding at least %d MIST", ErrInsufficientBalance, minBalance)
}

func (c *LiveClient) Balances(ctx context.Context, owner sui.Address) (interfaces.Balances, error) {
	coins, err := c.coins(ctx, owner, "")
	if err != nil {
		return interfaces.Balances{}, err
	}

	var balances interfaces.Balances
	usdc := c.cfg.usdcCoinType()
	for _, coin := range coins {
		switch coin.CoinType {
		case SuiCoinType:
			balances.SUI += uint64(coin.Balance)
		case usdc:
			balances.USDC += uint64(coin.Balance)
		}
	}
	c.log.Debug("Fetched balances", "owner", owner.String(), "sui", balances.SUI, "usdc", balances.USDC)
	return balances, nil
}

func (c *LiveClient) Swap(ctx context.Context, signer interfaces.TransactionSigner, direction interfaces.SwapDirection, amount, minOutput uint64) (string, error) {
	switch direction {
	case interfaces.SwapSuiToUSDC:
		return c.swapSuiToUSDC(ctx, signer, amount, minOutput)
	case interfaces.SwapUSDCToSui:
		return c.swapUSDCToSui(ctx, signer, amount, minOutput)
	default:
		return "", fmt.Errorf("%w: direction %d", interfaces.ErrInvalidTradeAction, direction)
	}
}

// swapSuiToUSDC splits the swapped SUI off the gas coin.
func (c *LiveClient) swapSuiToUSDC(ctx context.Context, signer interfaces.TransactionSigner, amount, minOutput uint64) (string, error) {
	sender := signer.Address()
	gas, err := c.gasCoin(ctx, sender, amount+c.cfg.SwapGasBudget)
	if err != nil {
		return "", err
	}

	b := sui.NewPTBBuilder()
	pool := b.SharedObject(c.cfg.PoolID, c.cfg.PoolInitialSharedVersion, true)
	amountArg, err := b.Pure(amount)
	if err != nil {
		return "", err
	}
	coin := b.SplitCoins(sui.GasCoin, amountArg)
	minArg, err := b.Pure(minOutput)
	if err != nil {
		return "", err
	}
	out := b.MoveCall(c.cfg.DexPackageID, dexModule, interfaces.SwapSuiToUSDC.String(), nil, pool, coin, minArg)
	if err := transferTo(b, out, sender); err != nil {
		return "", err
	}

	resp, err := c.execute(ctx, signer, b.Finish(), gas, c.cfg.SwapGasBudget)
	if err != nil {
		return "", err
	}
	return resp.Digest, nil
}

// swapUSDCToSui merges enough USDC coins to cover amount and pays gas from a
// separate SUI coin.
func (c *LiveClient) swapUSDCToSui(ctx context.Context, signer interfaces.TransactionSigner, amount, minOutput uint64) (string, error) {
	sender := signer.Address()
	usdcCoins, err := c.coins(ctx, sender, c.cfg.usdcCoinType())
	if err != nil {
		return "", err
	}

	var (
		selected []sui.ObjectRef
		total    uint64
	)
	for _, coin := range usdcCoins {
		ref, err := coin.ref()
		if err != nil {
			return "", err
		}
		selected = append(selected, ref)
		total += uint64(coin.Balance)
		if total >= amount {
			break
		}
	}
	if len(selected) == 0 || total < amount {
		return "", fmt.Errorf("%w: have %d USDC, need %d", ErrInsufficientBalance, total, amount)
	}

	gas, err := c.gasCoin(ctx, sender, c.cfg.SwapGasBudget)
	if err != nil {
		return "", err
	}

	b := sui.NewPTBBuilder()
	pool := b.SharedObject(c.cfg.PoolID, c.cfg.PoolInitialSharedVersion, true)
	inputs := make([]sui.Argument, len(selected))
	for i, ref := range selected {
		inputs[i] = b.OwnedObject(ref)
	}
	if len(inputs) > 1 {
		b.MergeCoins(inputs[0], inputs[1:]...)
	}
	amountArg, err := b.Pure(amount)
	if err != nil {
		return "", err
	}
	coin := b.SplitCoins(inputs[0], amountArg)
	minArg, err := b.Pure(minOutput)
	if err != nil {
		return "", err
	}
	out := b.MoveCall(c.cfg.DexPackageID, dexModule, interfaces.SwapUSDCToSui.String(), nil, pool, coin, minArg)
	if err := transferTo(b, out, sender); err != nil {
		return "", err
	}

	resp, err := c.execute(ctx, signer, b.Finish(), gas, c.cfg.SwapGasBudget)
	if err != nil {
		return "", err
	}
	return resp.Digest, nil
}

func (c *LiveClient) Withdraw(ctx context.Context, signer interfaces.TransactionSigner, recipient string, amount uint64) (string, error) {
	to, err := sui.ParseAddress(recipient)
	if err != nil {
		return "", err
	}
	return c.transfer(ctx, signer, to, amount)
}

func (c *LiveClient) Transfer(ctx context.Context, signer interfaces.TransactionSigner, recipient string, amount uint64) (string, error) {
	to, err := sui.ParseAddress(recipient)
	if err != nil {
		return "", err
	}
	return c.transfer(ctx, signer, to, amount)
}

// SubscriptionWithdraw validates the agent id and pays amount from the wallet to recipient.
func (c *LiveClient) SubscriptionWithdraw(ctx context.Context, signer interfaces.TransactionSigner, agentID string, amount uint64, recipient string) (string, error) {
	if _, err := sui.ParseAddress(agentID); err != nil {
		return "", fmt.Errorf("invalid agent id: %w", err)
	}
	to, err := sui.ParseAddress(recipient)
	if err != nil {
		return "", err
	}
	return c.transfer(ctx, signer, to, amount)
}

// transfer splits amount off the gas coin and sends it to recipient.
func (c *LiveClient) transfer(ctx context.Context, signer interfaces.TransactionSigner, recipient sui.Address, amount uint64) (string, error) {
	gas, err := c.gasCoin(ctx, signer.Address(), amount+c.cfg.TransferGasBudget)
	if err != nil {
		return "", err
	}

	b := sui.NewPTBBuilder()
	amountArg, err := b.Pure(amount)
	if err != nil {
		return "", err
	}
	coin := b.SplitCoins(sui.GasCoin, amountArg)
	if err := transferTo(b, coin, recipient); err != nil {
		return "", err
	}

	resp, err := c.execute(ctx, signer, b.Finish(), gas, c.cfg.TransferGasBudget)
	if err != nil {
		return "", err
	}
	return resp.Digest, nil
}

// CreateUserBalance calls dex::create_user_balance and returns the UserBalance object
// it creates.
func (c *LiveClient) CreateUserBalance(ctx context.Context, signer interfaces.TransactionSigner) (interfaces.UserBalance, error) {
	gas, err := c.gasCoin(ctx, signer.Address(), c.cfg.TransferGasBudget)
	if err != nil {
		return interfaces.UserBalance{}, err
	}

	b := sui.NewPTBBuilder()
	b.MoveCall(c.cfg.DexPackageID, dexModule, "create_user_balance", nil)

	resp, err := c.execute(ctx, signer, b.Finish(), gas, c.cfg.TransferGasBudget)
	if err != nil {
		return interfaces.UserBalance{}, err
	}
	for _, change := range resp.ObjectChanges {
		if change.Type == "created" && strings.HasSuffix(change.ObjectType, "::"+dexModule+"::UserBalance") {
			return interfaces.UserBalance{Digest: resp.Digest, BalanceID: change.ObjectID}, nil
		}
	}
	return interfaces.UserBalance{}, interfaces.NewExternalServiceError("sui", "create_user_balance",
		fmt.Errorf("transaction %s created no UserBalance", resp.Digest))
}

func transferTo(b *sui.PTBBuilder, object sui.Argument, recipient sui.Address) error {
	to, err := b.Pure(recipient)
	if err != nil {
		return err
	}
	b.TransferObjects([]sui.Argument{object}, to)
	return nil
}

// execute signs ptb as signer, paying gas from gas, and waits for local execution.
func (c *LiveClient) execute(ctx context.Context, signer interfaces.TransactionSigner, ptb sui.ProgrammableTransaction, gas sui.ObjectRef, budget uint64) (*executeResponse, error) {
	var price bigUint
	if err := c.call(ctx, &price, "suix_getReferenceGasPrice"); err != nil {
		return nil, err
	}

	sender := signer.Address()
	tx := sui.TransactionData{
		Kind:   ptb,
		Sender: sender,
		GasData: sui.GasData{
			Payment: []sui.ObjectRef{gas},
			Owner:   sender,
			Price:   uint64(price),
			Budget:  budget,
		},
	}
	txBytes, err := bcs.Marshal(&tx)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}
	sig := signer.SignTransaction(txBytes)

	options := map[string]bool{"showEffects": true, "showObjectChanges": true}
	var resp executeResponse
	if err := c.call(ctx, &resp, "sui_executeTransactionBlock",
		base64.StdEncoding.EncodeToString(txBytes), []string{sig.Base64()}, options, "WaitForLocalExecution"); err != nil {
		return nil, err
	}
	if resp.Effects != nil && resp.Effects.Status.Status != "success" {
		return nil, interfaces.NewExternalServiceError("sui", "sui_executeTransactionBlock",
			fmt.Errorf("transaction %s failed: %s", resp.Digest, resp.Effects.Status.Error))
	}

	c.log.Info("Executed transaction", "digest", resp.Digest, "sender", sender.String(), "commands", len(ptb.Commands))
	return &resp, nil
}

type dynamicFieldName struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type keyServerObject struct {
	Data *struct {
		Content *struct {
			Fields struct {
				Value struct {
					Fields struct {
						URL  string `json:"url"`
						Name string `json:"name"`
					} `json:"fields"`
				} `json:"value"`
			} `json:"fields"`
		} `json:"content"`
	} `json:"data"`
	Error json.RawMessage `json:"error,omitempty"`
}

// KeyServers reads the version 1 dynamic field of each key server object, which
// holds its name and URL.
func (c *LiveClient) KeyServers(ctx context.Context, ids []sui.ObjectID) ([]interfaces.KeyServerInfo, error) {
	out := make([]interfaces.KeyServerInfo, 0, len(ids))
	for _, id := range ids {
		var obj keyServerObject
		if err := c.call(ctx, &obj, "suix_getDynamicFieldObject", id.String(), dynamicFieldName{Type: "u64", Value: "1"}); err != nil {
			return nil, err
		}
		if obj.Data == nil || obj.Data.Content == nil {
			return nil, interfaces.NewExternalServiceError("sui", "suix_getDynamicFieldObject",
				fmt.Errorf("key server %s has no version 1 field", id))
		}
		fields := obj.Data.Content.Fields.Value.Fields
		if fields.URL == "" {
			return nil, interfaces.NewExternalServiceError("sui", "suix_getDynamicFieldObject",
				fmt.Errorf("key server %s has no url", id))
		}
		out = append(out, interfaces.KeyServerInfo{ObjectID: id, Name: fields.Name, URL: fields.URL})
	}
	return out, nil
}
