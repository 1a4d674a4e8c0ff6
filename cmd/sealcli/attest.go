package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ruteri/tee-enclave-agent/api"
	"github.com/ruteri/tee-enclave-agent/cmd/flags"
	"github.com/ruteri/tee-enclave-agent/cryptoutils"
)

var verifyAttestationCommand = &cli.Command{
	Name:  "verify-attestation",
	Usage: "Check that an agent's TDX quote binds its signing key and print the measurements",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "agent-url",
			Value: "http://127.0.0.1:3000",
			Usage: "base URL of the agent API",
		},
	},
	Action: func(cCtx *cli.Context) error {
		logger := flags.SetupLogger(cCtx)
		baseURL := strings.TrimSuffix(cCtx.String("agent-url"), "/")
		ctx, cancel := context.WithTimeout(cCtx.Context, 30*time.Second)
		defer cancel()

		var health api.HealthCheckResponse
		if err := getJSON(ctx, baseURL+"/health_check", &health); err != nil {
			return err
		}
		pk, err := hex.DecodeString(health.PublicKey)
		if err != nil || len(pk) != ed25519.PublicKeySize {
			return fmt.Errorf("agent returned an invalid public key %q", health.PublicKey)
		}

		var att api.AttestationResponse
		if err := getJSON(ctx, baseURL+"/get_attestation", &att); err != nil {
			return err
		}
		quote, err := hex.DecodeString(att.Attestation)
		if err != nil {
			return fmt.Errorf("invalid attestation hex: %w", err)
		}

		measurements, err := cryptoutils.VerifyDCAPAttestation(cryptoutils.ReportDataForPublicKey(pk), quote)
		if err != nil {
			return err
		}
		logger.Info("Attestation verified", "publicKey", health.PublicKey)

		enc := json.NewEncoder(cCtx.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(measurements)
	},
}

func getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
