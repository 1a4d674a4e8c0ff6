// Package agenthandler serves the public agent API. Every successful response is
// wrapped in an envelope signed by the process identity key.
package agenthandler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ruteri/tee-enclave-agent/api"
	"github.com/ruteri/tee-enclave-agent/cryptoutils"
	"github.com/ruteri/tee-enclave-agent/envelope"
	"github.com/ruteri/tee-enclave-agent/interfaces"
	"github.com/ruteri/tee-enclave-agent/metrics"
	"github.com/ruteri/tee-enclave-agent/wallet"
)

// SecretStore returns secrets loaded through the Seal key retrieval.
type SecretStore interface {
	Secret(name string) ([]byte, bool)
}

type Config struct {
	WeatherAPIURL string
	// WeatherSecret is the name of the loaded secret holding the weather API key
	WeatherSecret string
	// HealthEndpoints are the URLs /health_check reports reachability for
	HealthEndpoints []string
	// PingMessage is returned by GET /
	PingMessage string
}

type Handler struct {
	identity *cryptoutils.Keypair
	wallet   *wallet.Wallet
	chain    interfaces.ChainClient
	secrets  SecretStore
	attester cryptoutils.AttestationProvider
	cfg      Config

	httpClient *http.Client
	now        func() time.Time
	log        *slog.Logger
}

// NewHandler creates the agent API handler.
//
// Parameters:
//   - identity: Process keypair signing every response, attested by /get_attestation
//   - w: The agent's trading wallet
//   - chain: Mock or live chain client
//   - secrets: Source of secrets loaded through Seal
//   - attester: Produces quotes over the identity public key
func NewHandler(identity *cryptoutils.Keypair, w *wallet.Wallet, chain interfaces.ChainClient, secrets SecretStore, attester cryptoutils.AttestationProvider, cfg Config, log *slog.Logger) *Handler {
	if cfg.PingMessage == "" {
		cfg.PingMessage = "Pong!"
	}
	return &Handler{
		identity:   identity,
		wallet:     w,
		chain:      chain,
		secrets:    secrets,
		attester:   attester,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
		log:        log,
	}
}

// WithClock replaces the time source of response timestamps.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

// WithHTTPClient replaces the client used for the weather API and health probes.
func (h *Handler) WithHTTPClient(c *http.Client) *Handler {
	h.httpClient = c
	return h
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandlePing)
	r.Get("/get_attestation", h.HandleGetAttestation)
	r.Get("/health_check", h.HandleHealthCheck)

	r.Post("/init_wallet", serve(h, h.InitWallet))
	r.Post("/execute_trade", serve(h, h.ExecuteTrade))
	r.Post("/wallet_status", serve(h, h.WalletStatus))
	r.Post("/withdraw", serve(h, h.Withdraw))
	r.Post("/simple_transfer", serve(h, h.SimpleTransfer))
	r.Post("/subscription_withdraw", serve(h, h.SubscriptionWithdraw))
	r.Post("/create_user_balance", serve(h, h.CreateUserBalance))
	r.Post("/process_data", h.HandleProcessData)
}

// serve decodes {"payload": Req}, runs op and answers with the signed result.
func serve[Req, Resp any](h *Handler, op func(context.Context, Req) (Resp, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := api.DecodeJSON[api.ProcessDataRequest[Req]](r)
		if err != nil {
			api.WriteError(w, err)
			return
		}

		resp, err := op(r.Context(), req.Payload)
		if err != nil {
			h.log.Info("Request failed", "path", r.URL.Path, "err", err)
			api.WriteError(w, err)
			return
		}
		writeSigned(h, w, resp, uint64(h.now().UnixMilli()))
	}
}

func writeSigned[T any](h *Handler, w http.ResponseWriter, payload T, timestampMs uint64) {
	signed, err := envelope.Sign(h.identity, payload, timestampMs, envelope.ProcessData)
	if err != nil {
		api.WriteError(w, fmt.Errorf("failed to sign response: %w", err))
		return
	}
	api.WriteJSON(w, http.StatusOK, signed)
}

func (h *Handler) InitWallet(ctx context.Context, req api.InitWalletRequest) (api.InitWalletResponse, error) {
	snap, err := h.wallet.Initialize(req.OwnerAddress)
	if err != nil {
		return api.InitWalletResponse{}, err
	}

	h.log.Info("Wallet initialized", "address", *snap.Address, "owner", *snap.Owner)
	return api.InitWalletResponse{
		WalletAddress: *snap.Address,
		Owner:         *snap.Owner,
		Message:       fmt.Sprintf("Wallet initialized. Fund this address with SUI: %s", *snap.Address),
	}, nil
}

func (h *Handler) ExecuteTrade(ctx context.Context, req api.TradeRequest) (api.TradeResponse, error) {
	direction, err := req.Action.Direction()
	if err != nil {
		return api.TradeResponse{}, err
	}
	signer, _, err := h.wallet.Signer()
	if err != nil {
		return api.TradeResponse{}, err
	}

	digest, err := h.chain.Swap(ctx, signer, direction, req.Amount, req.MinOutput)
	metrics.RecordChainTransaction(direction.String(), err)
	if err != nil {
		return api.TradeResponse{}, err
	}

	return api.TradeResponse{
		TxDigest:  digest,
		Action:    string(req.Action),
		Amount:    req.Amount,
		MinOutput: req.MinOutput,
	}, nil
}

// WalletStatus reports the wallet and its balances. Balance lookups that fail are
// logged and reported as zero.
func (h *Handler) WalletStatus(ctx context.Context, _ api.EmptyRequest) (api.WalletStatusResponse, error) {
	snap := h.wallet.Snapshot()
	resp := api.WalletStatusResponse{
		Initialized:   snap.Initialized,
		WalletAddress: snap.Address,
		Owner:         snap.Owner,
	}
	if !snap.Initialized {
		return resp, nil
	}

	_, address, err := h.wallet.Signer()
	if err != nil {
		return resp, nil
	}
	balances, err := h.chain.Balances(ctx, address)
	if err != nil {
		h.log.Warn("Failed to fetch balances", "address", address.String(), "err", err)
		return resp, nil
	}
	resp.SuiBalance = balances.SUI
	resp.USDCBalance = balances.USDC
	return resp, nil
}

// Withdraw returns funds to the wallet owner. Any other recipient is refused.
func (h *Handler) Withdraw(ctx context.Context, req api.WithdrawRequest) (api.WithdrawResponse, error) {
	if err := h.wallet.Authorize(req.Recipient); err != nil {
		return api.WithdrawResponse{}, err
	}
	signer, _, err := h.wallet.Signer()
	if err != nil {
		return api.WithdrawResponse{}, err
	}

	amount := amountOrDefault(req.Amount)
	digest, err := h.chain.Withdraw(ctx, signer, req.Recipient, amount)
	metrics.RecordChainTransaction("withdraw", err)
	if err != nil {
		return api.WithdrawResponse{}, err
	}
	return api.WithdrawResponse{TxDigest: digest, Amount: amount, Recipient: req.Recipient}, nil
}

// SimpleTransfer sends funds to any recipient.
func (h *Handler) SimpleTransfer(ctx context.Context, req api.WithdrawRequest) (api.WithdrawResponse, error) {
	signer, _, err := h.wallet.Signer()
	if err != nil {
		return api.WithdrawResponse{}, err
	}

	amount := amountOrDefault(req.Amount)
	digest, err := h.chain.Transfer(ctx, signer, req.Recipient, amount)
	metrics.RecordChainTransaction("simple_transfer", err)
	if err != nil {
		return api.WithdrawResponse{}, err
	}
	return api.WithdrawResponse{TxDigest: digest, Amount: amount, Recipient: req.Recipient}, nil
}

func (h *Handler) SubscriptionWithdraw(ctx context.Context, req api.SubscriptionWithdrawRequest) (api.SubscriptionWithdrawResponse, error) {
	signer, _, err := h.wallet.Signer()
	if err != nil {
		return api.SubscriptionWithdrawResponse{}, err
	}

	digest, err := h.chain.SubscriptionWithdraw(ctx, signer, req.AgentID, req.Amount, req.Recipient)
	metrics.RecordChainTransaction("subscription_withdraw", err)
	if err != nil {
		return api.SubscriptionWithdrawResponse{}, err
	}
	return api.SubscriptionWithdrawResponse{
		TxDigest:  digest,
		AgentID:   req.AgentID,
		Amount:    req.Amount,
		Recipient: req.Recipient,
	}, nil
}

// CreateUserBalance opens the wallet's DEX balance object. It can succeed once.
func (h *Handler) CreateUserBalance(ctx context.Context, _ api.EmptyRequest) (api.CreateUserBalanceResponse, error) {
	signer, _, err := h.wallet.Signer()
	if err != nil {
		return api.CreateUserBalanceResponse{}, err
	}
	if _, ok := h.wallet.ResourceID(); ok {
		return api.CreateUserBalanceResponse{}, wallet.ErrResourceAlreadySet
	}

	created, err := h.chain.CreateUserBalance(ctx, signer)
	metrics.RecordChainTransaction("create_user_balance", err)
	if err != nil {
		return api.CreateUserBalanceResponse{}, err
	}
	if err := h.wallet.SetResourceID(created.BalanceID); err != nil {
		return api.CreateUserBalanceResponse{}, err
	}
	return api.CreateUserBalanceResponse{TxDigest: created.Digest, BalanceID: created.BalanceID.String()}, nil
}

func amountOrDefault(amount *uint64) uint64 {
	if amount == nil {
		return api.DefaultWithdrawAmount
	}
	return *amount
}
