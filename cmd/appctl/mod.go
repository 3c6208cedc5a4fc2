// Package main implements the CLI to compile, deploy and operate the counter
// and the escrow programs on a ledger.
//
//	export MNEMONIC="..."
//	export LEDGER_ADDRESS=http://127.0.0.1:8080
//
//	appctl counter compile
//	appctl counter deploy
//	appctl counter inc
//	appctl counter read
//	appctl escrow compile --receiver XX --max 1000
//	appctl escrow fund --amount 2000
//	appctl escrow withdraw --amount 1000
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/bitpond/appkit/cli"
	"github.com/bitpond/appkit/cli/ucli"
	"github.com/bitpond/appkit/orchestrator/controller"
)

var printer io.Writer = os.Stderr

func main() {
	err := run(os.Args, controller.NewController(os.Stdout))
	if err != nil {
		fmt.Fprintf(printer, "%+v\n", err)
		os.Exit(1)
	}
}

func run(args []string, inits ...cli.Initializer) error {
	builder := ucli.NewBuilder("appctl", nil, controller.Flags()...)

	for _, init := range inits {
		init.SetCommands(builder)
	}

	app := builder.Build()
	err := app.Run(args)
	if err != nil {
		return err
	}

	return nil
}
