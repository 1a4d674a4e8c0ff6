package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/ruteri/tee-enclave-agent/api"
	"github.com/ruteri/tee-enclave-agent/common"
	"github.com/ruteri/tee-enclave-agent/config"
	"github.com/ruteri/tee-enclave-agent/cryptoutils"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool(LogDebugFlag.Name),
		JSON:    cCtx.Bool(LogJsonFlag.Name),
		Service: cCtx.String(LogServiceFlagName),
		Version: common.Version,
	})

	if cCtx.Bool(LogUidFlag.Name) {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

// ConfigureServer builds the listener config shared by every binary. Metrics are only
// attached when withMetrics is set, since both agent listeners share one registry.
func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string, withMetrics bool) *api.HTTPServerConfig {
	cfg := &api.HTTPServerConfig{
		ListenAddr:               listenAddr,
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		DrainDuration:            time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
	if withMetrics {
		cfg.MetricsAddr = cCtx.String(MetricsAddrFlag.Name)
	}
	return cfg
}

// LoadConfig reads the file named by --config and validates it.
func LoadConfig(cCtx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(cCtx.String(ConfigFlag.Name))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var ConfigFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Value:   config.DefaultConfigFile,
	Usage:   "path to the YAML configuration file",
	EnvVars: []string{"ENCLAVE_CONFIG"},
}

var AttestationTypeFlag = &cli.StringFlag{
	Name:  "attestation-type",
	Value: cryptoutils.DummyAttestation.StringID,
	Usage: "attestation provider: qemu-tdx, remote-tdx or dummy",
}

var RemoteAttestationAddrFlag = &cli.StringFlag{
	Name:  "remote-attestation-addr",
	Usage: "quote provider address, required for remote-tdx",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

const LogServiceFlagName = "log-service"

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  LogServiceFlagName,
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

// CommonFlags returns the logging and server flags, tagging logs with service.
func CommonFlags(service string) []cli.Flag {
	return []cli.Flag{
		LogJsonFlag,
		LogDebugFlag,
		LogUidFlag,
		LogServiceFlagFn(service),
		PprofFlag,
		DrainSecondsFlag,
		MetricsAddrFlag,
	}
}
