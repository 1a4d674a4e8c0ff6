// Package sealhandler exposes the two phases of the Seal key retrieval on the
// host-only listener.
package sealhandler

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ruteri/tee-enclave-agent/api"
	"github.com/ruteri/tee-enclave-agent/bcs"
	"github.com/ruteri/tee-enclave-agent/metrics"
	"github.com/ruteri/tee-enclave-agent/seal"
)

// KeyLoader is the enclave side of the retrieval, implemented by kms.KeyLoader.
type KeyLoader interface {
	BeginRetrieval(ctx context.Context) (*seal.FetchKeyRequest, error)
	CompleteRetrieval(ctx context.Context, obj *seal.EncryptedObject, responses []seal.ServerResponse) ([]byte, error)
}

type Handler struct {
	loader KeyLoader
	log    *slog.Logger
}

func NewHandler(loader KeyLoader, log *slog.Logger) *Handler {
	return &Handler{loader: loader, log: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ping", h.HandlePing)
	r.Get("/seal/init_parameter_load", h.HandleInitParameterLoad)
	r.Post("/seal/complete_parameter_load", h.HandleCompleteParameterLoad)
}

func (h *Handler) HandlePing(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]string{"message": "pong"})
}

// HandleInitParameterLoad starts a retrieval session and returns the request the
// host forwards to the key servers, as hex of its BCS encoding.
func (h *Handler) HandleInitParameterLoad(w http.ResponseWriter, r *http.Request) {
	req, err := h.loader.BeginRetrieval(r.Context())
	metrics.RecordKeyRetrieval("begin", err)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	encoded, err := bcs.Marshal(req)
	if err != nil {
		api.WriteError(w, fmt.Errorf("failed to encode fetch key request: %w", err))
		return
	}
	api.WriteJSON(w, http.StatusOK, api.InitParameterLoadResponse{EncodedRequest: hex.EncodeToString(encoded)})
}

// HandleCompleteParameterLoad decrypts the encrypted object with the key server
// answers collected by the host. The recovered secret is kept by the loader and
// echoed back hex encoded.
func (h *Handler) HandleCompleteParameterLoad(w http.ResponseWriter, r *http.Request) {
	body, err := api.DecodeJSON[api.CompleteParameterLoadRequest](r)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	obj, responses, err := decodeCompleteRequest(body)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	secret, err := h.loader.CompleteRetrieval(r.Context(), obj, responses)
	metrics.RecordKeyRetrieval("complete", err)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, api.CompleteParameterLoadResponse{Response: hex.EncodeToString(secret)})
}

func decodeCompleteRequest(body api.CompleteParameterLoadRequest) (*seal.EncryptedObject, []seal.ServerResponse, error) {
	objBytes, err := hex.DecodeString(body.EncryptedObject)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid hex encoding of encrypted object: %w", err)
	}
	var obj seal.EncryptedObject
	if err := bcs.Unmarshal(objBytes, &obj); err != nil {
		return nil, nil, fmt.Errorf("invalid encrypted object: %w", err)
	}

	respBytes, err := hex.DecodeString(body.SealResponses)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid hex encoding of seal responses: %w", err)
	}
	var responses []seal.ServerResponse
	if err := bcs.Unmarshal(respBytes, &responses); err != nil {
		return nil, nil, fmt.Errorf("invalid seal responses: %w", err)
	}
	return &obj, responses, nil
}
