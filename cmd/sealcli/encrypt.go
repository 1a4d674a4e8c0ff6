package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/ruteri/tee-enclave-agent/bcs"
	"github.com/ruteri/tee-enclave-agent/cmd/flags"
	"github.com/ruteri/tee-enclave-agent/config"
	"github.com/ruteri/tee-enclave-agent/interfaces"
	"github.com/ruteri/tee-enclave-agent/seal"
	"github.com/ruteri/tee-enclave-agent/storage"
)

var publishFlag = &cli.BoolFlag{
	Name:  "publish",
	Usage: "also store the output in the configured storage locations and print its content id",
}

var encryptCommand = &cli.Command{
	Name:      "encrypt",
	Usage:     "Encrypt SECRET to the configured key servers and print hex(bcs(EncryptedObject))",
	ArgsUsage: "SECRET",
	Flags: []cli.Flag{
		flags.ConfigFlag,
		&cli.StringFlag{
			Name:    "key-name",
			Aliases: []string{"n"},
			Usage:   "identity the secret is encrypted under, seal.key_id by default",
		},
		publishFlag,
	},
	Action: func(cCtx *cli.Context) error {
		if cCtx.NArg() != 1 {
			return errors.New("expected exactly one SECRET argument")
		}
		logger := flags.SetupLogger(cCtx)
		cfg, err := flags.LoadConfig(cCtx)
		if err != nil {
			return err
		}

		loaderCfg, err := cfg.Seal.LoaderConfig()
		if err != nil {
			return err
		}
		keyID := loaderCfg.KeyID
		if name := cCtx.String("key-name"); name != "" {
			keyID = []byte(name)
		}

		obj, err := seal.Encrypt(loaderCfg.PackageID, keyID, loaderCfg.KeyServers, loaderCfg.PublicKeys, loaderCfg.Threshold, []byte(cCtx.Args().First()), nil)
		if err != nil {
			return fmt.Errorf("failed to encrypt secret: %w", err)
		}
		encoded, err := bcs.Marshal(obj)
		if err != nil {
			return fmt.Errorf("failed to encode encrypted object: %w", err)
		}
		fmt.Fprintln(cCtx.App.Writer, hex.EncodeToString(encoded))

		if cCtx.Bool(publishFlag.Name) {
			return publish(cCtx, cfg, logger, encoded, interfaces.EncryptedObjectType)
		}
		return nil
	},
}

// publish stores data in every configured location and prints its content id.
func publish(cCtx *cli.Context, cfg *config.Config, logger *slog.Logger, data []byte, contentType interfaces.ContentType) error {
	backend, err := openStorage(cfg, logger)
	if err != nil {
		return err
	}
	id, err := backend.Store(cCtx.Context, data, contentType)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", contentType, err)
	}
	logger.Info("Published content", "contentType", contentType.String(), "locations", backend.LocationURI())
	fmt.Fprintln(cCtx.App.Writer, id.String())
	return nil
}

func openStorage(cfg *config.Config, logger *slog.Logger) (interfaces.StorageBackend, error) {
	if len(cfg.Storage.Locations) == 0 {
		return nil, errors.New("no storage locations configured")
	}
	return storage.NewStorageBackendFactory(logger).CreateMultiBackend(cfg.Storage.Locations)
}
