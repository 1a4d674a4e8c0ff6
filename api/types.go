package api

import "github.com/ruteri/tee-enclave-agent/interfaces"

// ProcessDataRequest wraps every signed agent endpoint's payload.
type ProcessDataRequest[T any] struct {
	Payload T `json:"payload"`
}

// ErrorResponse is the body of every failed agent or host request.
type ErrorResponse struct {
	Error string `json:"error"`
}

type InitWalletRequest struct {
	OwnerAddress string `json:"owner_address"`
}

type InitWalletResponse struct {
	WalletAddress string `json:"wallet_address"`
	Owner         string `json:"owner"`
	Message       string `json:"message"`
}

type EmptyRequest struct{}

type TradeRequest struct {
	Action    interfaces.TradeAction `json:"action"`
	Amount    uint64                 `json:"amount"`
	MinOutput uint64                 `json:"min_output"`
}

type TradeResponse struct {
	TxDigest  string `json:"tx_digest"`
	Action    string `json:"action"`
	Amount    uint64 `json:"amount"`
	MinOutput uint64 `json:"min_output"`
}

// WalletStatusResponse reports balances of the agent wallet. Optional fields are
// encoded as BCS options in the signed message.
type WalletStatusResponse struct {
	Initialized   bool    `json:"initialized"`
	WalletAddress *string `json:"wallet_address"`
	Owner         *string `json:"owner"`
	SuiBalance    uint64  `json:"sui_balance"`
	USDCBalance   uint64  `json:"usdc_balance"`
}

type WithdrawRequest struct {
	Recipient string `json:"recipient"`
	// Amount defaults to DefaultWithdrawAmount when omitted
	Amount *uint64 `json:"amount,omitempty"`
}

type WithdrawResponse struct {
	TxDigest  string `json:"tx_digest"`
	Amount    uint64 `json:"amount"`
	Recipient string `json:"recipient"`
}

type SubscriptionWithdrawRequest struct {
	AgentID   string `json:"agent_id"`
	Amount    uint64 `json:"amount"`
	Recipient string `json:"recipient"`
}

type SubscriptionWithdrawResponse struct {
	TxDigest  string `json:"tx_digest"`
	AgentID   string `json:"agent_id"`
	Amount    uint64 `json:"amount"`
	Recipient string `json:"recipient"`
}

type CreateUserBalanceResponse struct {
	TxDigest  string `json:"tx_digest"`
	BalanceID string `json:"balance_id"`
}

type WeatherRequest struct {
	Location string `json:"location"`
}

type WeatherResponse struct {
	Location    string `json:"location"`
	Temperature uint64 `json:"temperature"`
}

type AttestationResponse struct {
	Attestation string `json:"attestation"`
}

type HealthCheckResponse struct {
	PublicKey       string          `json:"pk"`
	EndpointsStatus map[string]bool `json:"endpoints_status"`
}

// InitParameterLoadResponse carries hex(bcs(FetchKeyRequest)).
type InitParameterLoadResponse struct {
	EncodedRequest string `json:"encoded_request"`
}

type CompleteParameterLoadRequest struct {
	// EncryptedObject is hex(bcs(EncryptedObject))
	EncryptedObject string `json:"encrypted_object"`
	// SealResponses is hex(bcs(vector<(ObjectID, FetchKeyResponse)>))
	SealResponses string `json:"seal_responses"`
}

type CompleteParameterLoadResponse struct {
	Response string `json:"response"`
}

// DefaultWithdrawAmount is 1 SUI in MIST.
const DefaultWithdrawAmount uint64 = 1_000_000_000
