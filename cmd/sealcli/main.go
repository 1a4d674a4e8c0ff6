package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ruteri/tee-enclave-agent/cmd/flags"
)

var logFlags = []cli.Flag{
	flags.LogJsonFlag,
	flags.LogDebugFlag,
	flags.LogUidFlag,
	flags.LogServiceFlagFn("sealcli"),
}

func main() {
	app := &cli.App{
		Name:  "sealcli",
		Usage: "Encrypt secrets for the enclave agent and drive its Seal key loading",
		Flags: append([]cli.Flag{flags.ConfigFlag}, logFlags...),
		Commands: []*cli.Command{
			encryptCommand,
			fetchKeysCommand,
			loadCommand,
			verifyAttestationCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
