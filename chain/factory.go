// Package chain provides the ChainClient implementations the agent runs with: an
// in-memory mock for local development and a live client for a Sui full node.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ruteri/tee-enclave-agent/interfaces"
)

const (
	ModeMock = "mock"
	ModeLive = "live"
)

// New creates the ChainClient for mode.
//
// Supported modes:
//   - mock: no node, digests derived from the operation, key servers from directory
//   - live: JSON-RPC against cfg.RPCURL
func New(ctx context.Context, mode string, cfg LiveConfig, directory []interfaces.KeyServerInfo, log *slog.Logger) (interfaces.ChainClient, error) {
	switch strings.ToLower(mode) {
	case ModeMock, "":
		log.Info("Using mock chain client", "keyServers", len(directory))
		return NewMockClient(directory, log), nil
	case ModeLive:
		log.Info("Using live chain client", "rpcURL", cfg.RPCURL)
		return DialLive(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unsupported chain mode: %s", mode)
	}
}
