package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ruteri/tee-enclave-agent/api/keyserverhandler"
	"github.com/ruteri/tee-enclave-agent/interfaces"
	"github.com/ruteri/tee-enclave-agent/seal"
)

const (
	SdkType    = "rust"
	SdkVersion = "1.0.0"
)

// KeyServerClient talks to one Seal key server.
type KeyServerClient struct {
	info       interfaces.KeyServerInfo
	httpClient *http.Client
}

// NewKeyServerClient creates a client for the key server described by info.
//
// Parameters:
//   - info: Object id, name and base URL of the key server
//   - timeout: Request timeout duration (optional, default 10 seconds)
func NewKeyServerClient(info interfaces.KeyServerInfo, timeout ...time.Duration) *KeyServerClient {
	clientTimeout := 10 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}
	info.URL = strings.TrimSuffix(info.URL, "/")

	return &KeyServerClient{
		info:       info,
		httpClient: &http.Client{Timeout: clientTimeout},
	}
}

func (c *KeyServerClient) Info() interfaces.KeyServerInfo {
	return c.info
}

// FetchKey sends req to the server's /v1/fetch_key endpoint.
func (c *KeyServerClient) FetchKey(ctx context.Context, req *seal.FetchKeyRequest) (*seal.FetchKeyResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fetch key request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.info.URL+"/v1/fetch_key", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(keyserverhandler.SdkTypeHeader, SdkType)
	httpReq.Header.Set(keyserverhandler.SdkVersionHeader, SdkVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, interfaces.NewExternalServiceError(c.info.Name, "fetch_key", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, interfaces.NewExternalServiceError(c.info.Name, "fetch_key", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, interfaces.NewExternalServiceError(c.info.Name, "fetch_key",
			fmt.Errorf("key server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}

	var out seal.FetchKeyResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, interfaces.NewExternalServiceError(c.info.Name, "fetch_key",
			fmt.Errorf("could not parse response: %w", err))
	}
	return &out, nil
}

// FetchKeysWithThreshold queries servers in order and returns as soon as threshold
// of them have answered. Servers that fail are logged and skipped.
//
// Returns:
//   - Exactly threshold responses, in the order they were collected
//   - ErrInsufficientShares if fewer servers answered
func FetchKeysWithThreshold(ctx context.Context, servers []*KeyServerClient, req *seal.FetchKeyRequest, threshold uint8, log *slog.Logger) ([]seal.ServerResponse, error) {
	responses := make([]seal.ServerResponse, 0, threshold)
	for _, server := range servers {
		if len(responses) >= int(threshold) {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := server.FetchKey(ctx, req)
		if err != nil {
			log.Warn("Key server failed", "server", server.info.Name, "objectID", server.info.ObjectID.String(), "err", err)
			continue
		}
		log.Debug("Key server answered", "server", server.info.Name, "keys", len(resp.DecryptionKeys))
		responses = append(responses, seal.ServerResponse{ServerID: server.info.ObjectID, Response: *resp})
	}

	if len(responses) < int(threshold) {
		return nil, fmt.Errorf("failed to get enough responses: %d < %d: %w", len(responses), threshold, interfaces.ErrInsufficientShares)
	}
	return responses, nil
}
