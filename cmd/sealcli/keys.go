package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/ruteri/tee-enclave-agent/api/clients"
	"github.com/ruteri/tee-enclave-agent/api/sealhandler"
	"github.com/ruteri/tee-enclave-agent/bcs"
	"github.com/ruteri/tee-enclave-agent/chain"
	"github.com/ruteri/tee-enclave-agent/cmd/flags"
	"github.com/ruteri/tee-enclave-agent/config"
	"github.com/ruteri/tee-enclave-agent/interfaces"
	"github.com/ruteri/tee-enclave-agent/seal"
)

var fetchKeysCommand = &cli.Command{
	Name:      "fetch-keys",
	Usage:     "Send REQUEST_HEX to the key servers and print hex(bcs(vector<(ObjectID, FetchKeyResponse)>))",
	ArgsUsage: "REQUEST_HEX",
	Flags:     []cli.Flag{flags.ConfigFlag, publishFlag},
	Action: func(cCtx *cli.Context) error {
		if cCtx.NArg() != 1 {
			return errors.New("expected exactly one REQUEST_HEX argument")
		}
		logger := flags.SetupLogger(cCtx)
		cfg, err := flags.LoadConfig(cCtx)
		if err != nil {
			return err
		}

		raw, err := hex.DecodeString(strings.TrimPrefix(cCtx.Args().First(), "0x"))
		if err != nil {
			return fmt.Errorf("invalid request hex: %w", err)
		}
		var req seal.FetchKeyRequest
		if err := bcs.Unmarshal(raw, &req); err != nil {
			return fmt.Errorf("invalid fetch key request: %w", err)
		}

		responses, err := fetchKeys(cCtx.Context, cfg, &req, logger)
		if err != nil {
			return err
		}
		encoded, err := bcs.Marshal(responses)
		if err != nil {
			return fmt.Errorf("failed to encode responses: %w", err)
		}
		fmt.Fprintln(cCtx.App.Writer, hex.EncodeToString(encoded))

		if cCtx.Bool(publishFlag.Name) {
			return publish(cCtx, cfg, logger, encoded, interfaces.KeyResponsesType)
		}
		return nil
	},
}

var loadCommand = &cli.Command{
	Name:  "load",
	Usage: "Run the whole key loading flow against a running enclave",
	Flags: []cli.Flag{
		flags.ConfigFlag,
		&cli.StringFlag{
			Name:  "enclave-url",
			Value: "http://127.0.0.1:3001",
			Usage: "base URL of the enclave host-only API",
		},
		&cli.StringFlag{
			Name:     "object",
			Required: true,
			Usage:    "encrypted object as hex(bcs), or the content id it was published under",
		},
	},
	Action: func(cCtx *cli.Context) error {
		logger := flags.SetupLogger(cCtx)
		cfg, err := flags.LoadConfig(cCtx)
		if err != nil {
			return err
		}
		ctx := cCtx.Context

		obj, err := readEncryptedObject(ctx, cfg, cCtx.String("object"), logger)
		if err != nil {
			return err
		}

		enclave := sealhandler.NewClient(cCtx.String("enclave-url"))
		req, err := enclave.InitParameterLoad(ctx)
		if err != nil {
			return fmt.Errorf("failed to start parameter load: %w", err)
		}
		responses, err := fetchKeys(ctx, cfg, req, logger)
		if err != nil {
			return err
		}
		if _, err := enclave.CompleteParameterLoad(ctx, obj, responses); err != nil {
			return fmt.Errorf("failed to complete parameter load: %w", err)
		}

		logger.Info("Secret loaded into the enclave", "keyServers", len(responses))
		return nil
	},
}

// fetchKeys resolves the configured key servers through the chain client and collects
// threshold responses.
func fetchKeys(ctx context.Context, cfg *config.Config, req *seal.FetchKeyRequest, logger *slog.Logger) ([]seal.ServerResponse, error) {
	ids, err := cfg.Seal.ServerIDs()
	if err != nil {
		return nil, err
	}

	chainClient, err := directoryClient(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	infos, err := chainClient.KeyServers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to look up key servers: %w", err)
	}

	servers := make([]*clients.KeyServerClient, len(infos))
	for i, info := range infos {
		servers[i] = clients.NewKeyServerClient(info)
	}
	return clients.FetchKeysWithThreshold(ctx, servers, req, cfg.Seal.Threshold, logger)
}

// directoryClient only needs key server lookups, so the live variant dials the Seal
// RPC endpoint without the DEX configuration.
func directoryClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (interfaces.ChainClient, error) {
	directory, err := cfg.Chain.Directory()
	if err != nil {
		return nil, err
	}
	return chain.New(ctx, cfg.Chain.Mode, chain.LiveConfig{RPCURL: cfg.Seal.RPCURL}, directory, logger)
}

func readEncryptedObject(ctx context.Context, cfg *config.Config, ref string, logger *slog.Logger) (*seal.EncryptedObject, error) {
	ref = strings.TrimPrefix(ref, "0x")

	var raw []byte
	if id, err := interfaces.NewContentIDFromHex(ref); err == nil {
		backend, err := openStorage(cfg, logger)
		if err != nil {
			return nil, err
		}
		if raw, err = backend.Fetch(ctx, id, interfaces.EncryptedObjectType); err != nil {
			return nil, fmt.Errorf("failed to fetch encrypted object %s: %w", id.String(), err)
		}
	} else if raw, err = hex.DecodeString(ref); err != nil {
		return nil, fmt.Errorf("invalid encrypted object hex: %w", err)
	}

	var obj seal.EncryptedObject
	if err := bcs.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("invalid encrypted object: %w", err)
	}
	return &obj, nil
}
