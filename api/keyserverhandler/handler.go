// Package keyserverhandler serves a development Seal key server over HTTP.
package keyserverhandler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ruteri/tee-enclave-agent/api"
	"github.com/ruteri/tee-enclave-agent/seal"
)

const (
	SdkTypeHeader    = "Client-Sdk-Type"
	SdkVersionHeader = "Client-Sdk-Version"
)

// ServiceResponse identifies the key server to clients building their configuration.
type ServiceResponse struct {
	ServiceID string `json:"service_id"`
	PublicKey string `json:"public_key"`
}

type Handler struct {
	server *seal.KeyServer
	log    *slog.Logger
}

func NewHandler(server *seal.KeyServer, log *slog.Logger) *Handler {
	return &Handler{server: server, log: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/v1/fetch_key", h.HandleFetchKey)
	r.Get("/v1/service", h.HandleService)
}

// HandleFetchKey answers a FetchKeyRequest with the encrypted user secret keys for
// every identity the request's policy transaction approves.
//
// Policy and certificate failures are 403, malformed requests 400.
func (h *Handler) HandleFetchKey(w http.ResponseWriter, r *http.Request) {
	req, err := api.DecodeJSON[seal.FetchKeyRequest](r)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	resp, err := h.server.FetchKey(&req)
	if err != nil {
		h.log.Info("Rejected fetch key request",
			"err", err,
			"user", req.Certificate.User.String(),
			"sdkType", r.Header.Get(SdkTypeHeader),
			"sdkVersion", r.Header.Get(SdkVersionHeader))

		status := http.StatusBadRequest
		if errors.Is(err, seal.ErrPolicyDenied) ||
			errors.Is(err, seal.ErrInvalidCertificate) ||
			errors.Is(err, seal.ErrCertificateExpired) ||
			errors.Is(err, seal.ErrInvalidRequestSignature) {
			status = http.StatusForbidden
		}
		api.WriteJSON(w, status, api.ErrorResponse{Error: err.Error()})
		return
	}

	h.log.Debug("Served fetch key request", "keys", len(resp.DecryptionKeys))
	api.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleService(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, ServiceResponse{
		ServiceID: h.server.ObjectID().String(),
		PublicKey: h.server.PublicKey().Hex(),
	})
}
