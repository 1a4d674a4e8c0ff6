package agenthandler

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/ruteri/tee-enclave-agent/api"
	"github.com/ruteri/tee-enclave-agent/cryptoutils"
)

const healthProbeTimeout = 5 * time.Second

func (h *Handler) HandlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(h.cfg.PingMessage))
}

// HandleGetAttestation returns a quote whose report data carries the process public
// key, so relying parties can trust signed responses.
func (h *Handler) HandleGetAttestation(w http.ResponseWriter, r *http.Request) {
	quote, err := h.attester.Attest(r.Context(), cryptoutils.ReportDataForPublicKey(h.identity.PublicKey()))
	if err != nil {
		h.log.Error("Attestation failed", "type", h.attester.AttestationType().StringID, "err", err)
		api.WriteError(w, fmt.Errorf("failed to get attestation: %w", err))
		return
	}
	api.WriteJSON(w, http.StatusOK, api.AttestationResponse{Attestation: hex.EncodeToString(quote)})
}

// HandleHealthCheck probes the configured endpoints concurrently. An endpoint counts
// as reachable when it answers with any status below 500.
func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	status := make(map[string]bool, len(h.cfg.HealthEndpoints))
	var mu sync.Mutex

	var wg conc.WaitGroup
	for _, endpoint := range h.cfg.HealthEndpoints {
		wg.Go(func() {
			ok := h.probe(r.Context(), endpoint)
			mu.Lock()
			status[endpointName(endpoint)] = ok
			mu.Unlock()
		})
	}
	wg.Wait()

	api.WriteJSON(w, http.StatusOK, api.HealthCheckResponse{
		PublicKey:       hex.EncodeToString(h.identity.PublicKey()),
		EndpointsStatus: status,
	})
}

func (h *Handler) probe(ctx context.Context, endpoint string) bool {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.log.Debug("Endpoint unreachable", "endpoint", endpoint, "err", err)
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

func endpointName(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		return u.Host
	}
	return endpoint
}
