package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ruteri/tee-enclave-agent/api/agenthandler"
	"github.com/ruteri/tee-enclave-agent/api/sealhandler"
	"github.com/ruteri/tee-enclave-agent/api/server"
	"github.com/ruteri/tee-enclave-agent/chain"
	"github.com/ruteri/tee-enclave-agent/cmd/flags"
	"github.com/ruteri/tee-enclave-agent/config"
	"github.com/ruteri/tee-enclave-agent/cryptoutils"
	"github.com/ruteri/tee-enclave-agent/interfaces"
	"github.com/ruteri/tee-enclave-agent/kms"
	"github.com/ruteri/tee-enclave-agent/wallet"
)

var cliFlags = append([]cli.Flag{
	flags.ConfigFlag,
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: ":3000",
		Usage: "address to listen on for the agent API",
	},
	&cli.StringFlag{
		Name:  "host-listen-addr",
		Value: "127.0.0.1:3001",
		Usage: "loopback address for the host-only Seal API",
	},
	&cli.StringSliceFlag{
		Name:  "cors-origins",
		Value: cli.NewStringSlice("*"),
		Usage: "origins allowed to call the agent API",
	},
	&cli.StringSliceFlag{
		Name:  "health-endpoints",
		Usage: "extra URLs reported by /health_check",
	},
	flags.AttestationTypeFlag,
	flags.RemoteAttestationAddrFlag,
}, flags.CommonFlags("enclave-agent")...)

func main() {
	app := &cli.App{
		Name:   "enclave",
		Usage:  "Serve the enclave agent API and the host-only Seal key loading API",
		Flags:  cliFlags,
		Action: runEnclave,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runEnclave(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	cfg, err := flags.LoadConfig(cCtx)
	if err != nil {
		logger.Error("Failed to load configuration", "err", err)
		return err
	}

	identity, err := cryptoutils.GenerateKeypair()
	if err != nil {
		logger.Error("Failed to generate identity keypair", "err", err)
		return err
	}
	logger.Info("Generated enclave identity", "address", identity.Address().String())

	attester, err := cryptoutils.AttestationProviderFor(cCtx.String(flags.AttestationTypeFlag.Name), cCtx.String(flags.RemoteAttestationAddrFlag.Name))
	if err != nil {
		logger.Error("Failed to create attestation provider", "err", err)
		return err
	}

	loaderCfg, err := cfg.Seal.LoaderConfig()
	if err != nil {
		return err
	}
	loader, err := kms.NewKeyLoader(loaderCfg, identity, logger)
	if err != nil {
		logger.Error("Failed to create key loader", "err", err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chainClient, err := newChainClient(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to create chain client", "err", err)
		return err
	}

	agent := agenthandler.NewHandler(identity, wallet.New(), chainClient, loader, attester, agenthandler.Config{
		WeatherAPIURL:   cfg.Agent.WeatherAPIURL,
		WeatherSecret:   cfg.Agent.WeatherSecret,
		HealthEndpoints: healthEndpoints(cfg, cCtx.StringSlice("health-endpoints")),
	}, logger)

	agentCfg := flags.ConfigureServer(cCtx, logger.With("listener", "agent"), cCtx.String("listen-addr"), true)
	agentCfg.CORSAllowedOrigins = cCtx.StringSlice("cors-origins")
	agentServer, err := server.New(agentCfg, agent)
	if err != nil {
		logger.Error("Failed to create agent server", "err", err)
		return err
	}

	hostCfg := flags.ConfigureServer(cCtx, logger.With("listener", "host"), cCtx.String("host-listen-addr"), false)
	hostServer, err := server.New(hostCfg, sealhandler.NewHandler(loader, logger))
	if err != nil {
		logger.Error("Failed to create host server", "err", err)
		return err
	}

	agentServer.RunInBackground()
	hostServer.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
	logger.Info("Enclave agent is running", "agent", agentCfg.ListenAddr, "host", hostCfg.ListenAddr)
	<-exit
	logger.Info("Shutdown signal received")

	agentServer.Shutdown()
	hostServer.Shutdown()
	if closer, ok := chainClient.(interface{ Close() }); ok {
		closer.Close()
	}
	logger.Info("Server shutdown complete")
	return nil
}

func newChainClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (interfaces.ChainClient, error) {
	directory, err := cfg.Chain.Directory()
	if err != nil {
		return nil, err
	}
	var liveCfg chain.LiveConfig
	if strings.EqualFold(cfg.Chain.Mode, chain.ModeLive) {
		if liveCfg, err = cfg.Chain.LiveConfig(); err != nil {
			return nil, err
		}
	}
	return chain.New(ctx, cfg.Chain.Mode, liveCfg, directory, logger)
}

// healthEndpoints lists the external services the agent depends on.
func healthEndpoints(cfg *config.Config, extra []string) []string {
	endpoints := []string{cfg.Agent.WeatherAPIURL}
	if strings.EqualFold(cfg.Chain.Mode, chain.ModeLive) {
		endpoints = append(endpoints, cfg.Chain.RPCURL)
	}
	for _, ks := range cfg.Chain.KeyServers {
		endpoints = append(endpoints, ks.URL)
	}
	return append(endpoints, extra...)
}
