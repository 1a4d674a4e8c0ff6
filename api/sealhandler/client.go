package sealhandler

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ruteri/tee-enclave-agent/api"
	"github.com/ruteri/tee-enclave-agent/bcs"
	"github.com/ruteri/tee-enclave-agent/seal"
)

// Client drives the host-only Seal endpoints of an enclave.
type Client struct {
	BaseURL string
	Client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{BaseURL: strings.TrimSuffix(baseURL, "/"), Client: http.DefaultClient}
}

// InitParameterLoad starts a retrieval session in the enclave and returns its request.
func (c *Client) InitParameterLoad(ctx context.Context) (*seal.FetchKeyRequest, error) {
	var resp api.InitParameterLoadResponse
	if err := c.do(ctx, http.MethodGet, "/seal/init_parameter_load", nil, &resp); err != nil {
		return nil, err
	}

	raw, err := hex.DecodeString(resp.EncodedRequest)
	if err != nil {
		return nil, fmt.Errorf("invalid hex in encoded request: %w", err)
	}
	var req seal.FetchKeyRequest
	if err := bcs.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("invalid fetch key request: %w", err)
	}
	return &req, nil
}

// CompleteParameterLoad hands the key server responses to the enclave and returns the
// secret it recovered.
func (c *Client) CompleteParameterLoad(ctx context.Context, obj *seal.EncryptedObject, responses []seal.ServerResponse) ([]byte, error) {
	objBytes, err := bcs.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to encode encrypted object: %w", err)
	}
	respBytes, err := bcs.Marshal(responses)
	if err != nil {
		return nil, fmt.Errorf("failed to encode seal responses: %w", err)
	}

	var resp api.CompleteParameterLoadResponse
	err = c.do(ctx, http.MethodPost, "/seal/complete_parameter_load", api.CompleteParameterLoadRequest{
		EncryptedObject: hex.EncodeToString(objBytes),
		SealResponses:   hex.EncodeToString(respBytes),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(resp.Response)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("could not encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("could not initialize request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.Client == nil {
		c.Client = http.DefaultClient
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("could not request enclave: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("could not read enclave response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr api.ErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("enclave returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("enclave returned %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("could not parse enclave response: %w", err)
	}
	return nil
}
