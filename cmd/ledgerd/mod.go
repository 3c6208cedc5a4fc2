// Package main implements a local ledger node.
//
//	ledgerd --config .ledgerd start --listen 127.0.0.1:8080 --genesis genesis.yaml
//	ledgerd --config .ledgerd ledger fund --address XX --amount 1000000
//	ledgerd --config .ledgerd ledger info
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/bitpond/appkit/cli/node"
	"github.com/bitpond/appkit/core/ledger/local/controller"
)

const name = "ledgerd"

var printer io.Writer = os.Stderr

type config struct {
	Channel chan os.Signal
	Writer  io.Writer
}

func main() {
	err := run(os.Args)
	if err != nil {
		fmt.Fprintf(printer, "%+v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	return runWithCfg(args, config{Writer: os.Stdout})
}

func runWithCfg(args []string, cfg config) error {
	builder := node.NewBuilder(name, []node.Initializer{controller.NewMinimal()},
		node.WithOutput(cfg.Writer), node.WithSignals(cfg.Channel))

	app := builder.Build()

	err := app.Run(args)
	if err != nil {
		return err
	}

	return nil
}
