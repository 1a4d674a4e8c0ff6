package main

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ruteri/tee-enclave-agent/api/keyserverhandler"
	"github.com/ruteri/tee-enclave-agent/api/server"
	"github.com/ruteri/tee-enclave-agent/chain"
	"github.com/ruteri/tee-enclave-agent/cmd/flags"
	"github.com/ruteri/tee-enclave-agent/config"
	"github.com/ruteri/tee-enclave-agent/seal"
	"github.com/ruteri/tee-enclave-agent/sui"
)

var cliFlags = append([]cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:2024",
		Usage: "address to serve the key server API on",
	},
	&cli.StringFlag{
		Name:    "seed",
		Usage:   "hex-encoded master key seed of at least 32 bytes, random if empty",
		EnvVars: []string{"KEYSERVER_SEED"},
	},
	&cli.StringFlag{
		Name:  "object-id",
		Usage: "object id the server is registered under, derived from the public key if empty",
	},
	&cli.StringFlag{
		Name:  "name",
		Value: "dev-keyserver",
		Usage: "name written to the directory entry",
	},
	&cli.StringSliceFlag{
		Name:  "allowed-package",
		Usage: "package ids the server derives keys for, all if empty",
	},
}, flags.CommonFlags("seal-keyserver")...)

func main() {
	app := &cli.App{
		Name:   "keyserver",
		Usage:  "Serve a development Seal key server",
		Flags:  cliFlags,
		Action: runKeyServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runKeyServer(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	master, err := masterKey(cCtx.String("seed"), logger)
	if err != nil {
		return err
	}

	objectID, err := serverObjectID(cCtx.String("object-id"), master.PublicKey())
	if err != nil {
		return err
	}

	var allowed []sui.ObjectID
	for _, raw := range cCtx.StringSlice("allowed-package") {
		pkg, err := sui.ParseAddress(raw)
		if err != nil {
			return fmt.Errorf("invalid allowed package %q: %w", raw, err)
		}
		allowed = append(allowed, pkg)
	}

	keyServer := seal.NewKeyServer(objectID, master, allowed)
	listenAddr := cCtx.String("listen-addr")

	fmt.Fprintf(cCtx.App.Writer, "# public key: %s\n", master.PublicKey().Hex())
	if err := configSnippet(objectID, master.PublicKey(), cCtx.String("name"), listenAddr).WriteSnippet(cCtx.App.Writer); err != nil {
		return err
	}

	srv, err := server.New(flags.ConfigureServer(cCtx, logger, listenAddr, true), keyserverhandler.NewHandler(keyServer, logger))
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}
	srv.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
	logger.Info("Key server is running", "objectID", objectID.String(), "listenAddr", listenAddr)
	<-exit

	srv.Shutdown()
	return nil
}

func masterKey(seedHex string, logger *slog.Logger) (*seal.MasterKey, error) {
	if seedHex == "" {
		logger.Warn("No seed given, generating a throwaway master key")
		seed := make([]byte, 32)
		if _, err := rand.Read(seed); err != nil {
			return nil, err
		}
		return seal.MasterKeyFromSeed(seed)
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("invalid seed: %w", err)
	}
	return seal.MasterKeyFromSeed(seed)
}

func serverObjectID(raw string, pk seal.G2Element) (sui.ObjectID, error) {
	if raw != "" {
		return sui.ParseAddress(raw)
	}
	digest := sha256.Sum256(pk.Bytes())
	return sui.AddressFromBytes(digest[:])
}

// configSnippet is the fragment an operator merges into the agent config to use this
// server with the mock chain client.
func configSnippet(objectID sui.ObjectID, pk seal.G2Element, name, listenAddr string) *config.Config {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil || host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	if port == "" {
		port = "2024"
	}

	return &config.Config{
		Seal: config.SealConfig{
			KeyServers: []string{objectID.String()},
			PublicKeys: []string{pk.Hex()},
			Threshold:  1,
		},
		Chain: config.ChainConfig{
			Mode: chain.ModeMock,
			KeyServers: []config.KeyServerEntry{
				{ObjectID: objectID.String(), Name: name, URL: fmt.Sprintf("http://%s", net.JoinHostPort(host, port))},
			},
		},
	}
}
