// Package controller defines the commands of the orchestrator CLI.
//
// The commands talk to a ledger over HTTP. The recovery phrase of the operator,
// the address of the ledger and its token are read from the flags, or from the
// MNEMONIC, LEDGER_ADDRESS and LEDGER_TOKEN environment variables.
package controller

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/bitpond/appkit/cli"
	"github.com/bitpond/appkit/contracts/counter"
	"github.com/bitpond/appkit/core/ledger"
	"github.com/bitpond/appkit/core/ledger/http"
	"github.com/bitpond/appkit/core/txn"
	"github.com/bitpond/appkit/crypto/mnemonic"
	"github.com/bitpond/appkit/orchestrator"
	"github.com/bitpond/appkit/orchestrator/artifact"
	"golang.org/x/xerrors"
)

const defaultTimeout = time.Minute

// Flags returns the global flags of the orchestrator CLI.
func Flags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:    "mnemonic",
			Usage:   "recovery phrase of the operator",
			EnvVars: []string{mnemonic.EnvMnemonic},
		},
		cli.StringFlag{
			Name:    "ledger",
			Usage:   "address of the ledger",
			Value:   http.DefaultAddress,
			EnvVars: []string{"LEDGER_ADDRESS"},
		},
		cli.StringFlag{
			Name:    "token",
			Usage:   "token of the ledger, if any",
			EnvVars: []string{"LEDGER_TOKEN"},
		},
		cli.StringFlag{
			Name:  "artifacts",
			Usage: "path to the artifacts folder",
			Value: artifact.DefaultDir,
		},
		cli.DurationFlag{
			Name:  "timeout",
			Usage: "maximum time of a command",
			Value: defaultTimeout,
		},
		cli.IntFlag{
			Name:  "rounds",
			Usage: "number of rounds to wait for a confirmation",
			Value: orchestrator.DefaultConfirmationRounds,
		},
	}
}

// controller sets the commands of the orchestrator.
//
// - implements cli.Initializer
type controller struct {
	out      io.Writer
	ledgerFn func(cli.Flags) (ledger.Service, error)
	opts     []orchestrator.Option
}

// NewController returns the initializer of the orchestrator commands that
// print to the writer.
func NewController(out io.Writer) cli.Initializer {
	if out == nil {
		out = os.Stdout
	}

	return controller{
		out:      out,
		ledgerFn: httpLedger,
	}
}

// SetCommands implements cli.Initializer.
func (c controller) SetCommands(builder cli.Builder) {
	c.setCounterCommands(builder)
	c.setEscrowCommands(builder)
	c.setAccountCommands(builder)
}

func (c controller) setCounterCommands(builder cli.Builder) {
	cmd := builder.SetCommand("counter")
	cmd.SetDescription("Manage the counter application")

	sub := cmd.SetSubCommand("compile")
	sub.SetDescription("Compile the programs of the counter")
	sub.SetAction(c.run(func(ctx context.Context, client *orchestrator.Client, _ cli.Flags) error {
		progs, err := client.CompileCounter(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(c.out, "approval: %d bytes\nclear: %d bytes\n",
			len(progs.Approval.Bytecode), len(progs.Clear.Bytecode))

		return nil
	}))

	sub = cmd.SetSubCommand("deploy")
	sub.SetDescription("Create a counter with the compiled programs")
	sub.SetAction(c.run(func(ctx context.Context, client *orchestrator.Client, _ cli.Flags) error {
		id, err := client.DeployCounter(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(c.out, "application: %d\n", id)

		return nil
	}))

	for _, cmdName := range []counter.Command{counter.CmdInc, counter.CmdDec, counter.CmdReset} {
		command := cmdName

		sub = cmd.SetSubCommand(command.String())
		sub.SetDescription(fmt.Sprintf("Send the %s command to the counter", command))
		sub.SetAction(c.run(func(ctx context.Context, client *orchestrator.Client, _ cli.Flags) error {
			status, err := client.CallCounter(ctx, command)
			if err != nil {
				return err
			}

			c.printStatus(status)

			return nil
		}))
	}

	sub = cmd.SetSubCommand("read")
	sub.SetDescription("Print the count")
	sub.SetAction(c.run(func(ctx context.Context, client *orchestrator.Client, _ cli.Flags) error {
		count, err := client.ReadCounter(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(c.out, "count: %d\n", count)

		return nil
	}))

	sub = cmd.SetSubCommand("update")
	sub.SetDescription("Replace the programs of the counter with the compiled ones")
	sub.SetAction(c.run(func(ctx context.Context, client *orchestrator.Client, _ cli.Flags) error {
		status, err := client.UpdateCounter(ctx)
		if err != nil {
			return err
		}

		c.printStatus(status)

		return nil
	}))

	sub = cmd.SetSubCommand("delete")
	sub.SetDescription("Delete the counter")
	sub.SetAction(c.run(func(ctx context.Context, client *orchestrator.Client, _ cli.Flags) error {
		status, err := client.DeleteCounter(ctx)
		if err != nil {
			return err
		}

		c.printStatus(status)

		return nil
	}))
}

func (c controller) setEscrowCommands(builder cli.Builder) {
	cmd := builder.SetCommand("escrow")
	cmd.SetDescription("Manage the escrow account")

	sub := cmd.SetSubCommand("compile")
	sub.SetDescription("Compile an escrow for a receiver")
	sub.SetFlags(
		cli.StringFlag{
			Name:     "receiver",
			Usage:    "address of the only receiver of the payments",
			Required: true,
		},
		cli.StringFlag{
			Name:     "max",
			Usage:    "maximum amount of a payment",
			Required: true,
		},
	)
	sub.SetAction(c.run(func(ctx context.Context, client *orchestrator.Client, flags cli.Flags) error {
		receiver, err := txn.ParseAddress(flags.String("receiver"))
		if err != nil {
			return xerrors.Errorf("invalid receiver: %v", err)
		}

		maxAmount, err := parseAmount(flags.String("max"))
		if err != nil {
			return err
		}

		meta, err := client.CompileEscrow(ctx, receiver, maxAmount)
		if err != nil {
			return err
		}

		fmt.Fprintf(c.out, "escrow: %v\n", meta.Address)

		return nil
	}))

	sub = cmd.SetSubCommand("fund")
	sub.SetDescription("Pay an amount to the escrow")
	sub.SetFlags(cli.StringFlag{
		Name:     "amount",
		Usage:    "amount to pay",
		Required: true,
	})
	sub.SetAction(c.run(func(ctx context.Context, client *orchestrator.Client, flags cli.Flags) error {
		amount, err := parseAmount(flags.String("amount"))
		if err != nil {
			return err
		}

		status, err := client.FundEscrow(ctx, amount)
		if err != nil {
			return err
		}

		c.printStatus(status)

		return nil
	}))

	sub = cmd.SetSubCommand("withdraw")
	sub.SetDescription("Pay an amount from the escrow to its receiver")
	sub.SetFlags(
		cli.StringFlag{
			Name:     "amount",
			Usage:    "amount to withdraw",
			Required: true,
		},
		cli.StringFlag{
			Name:  "to",
			Usage: "address to pay instead of the receiver",
		},
	)
	sub.SetAction(c.run(func(ctx context.Context, client *orchestrator.Client, flags cli.Flags) error {
		amount, err := parseAmount(flags.String("amount"))
		if err != nil {
			return err
		}

		var status ledger.Status

		if flags.String("to") == "" {
			status, err = client.WithdrawEscrow(ctx, amount)
		} else {
			to, perr := txn.ParseAddress(flags.String("to"))
			if perr != nil {
				return xerrors.Errorf("invalid address: %v", perr)
			}

			status, err = client.WithdrawEscrowTo(ctx, to, amount)
		}

		if err != nil {
			return err
		}

		c.printStatus(status)

		return nil
	}))
}

func (c controller) setAccountCommands(builder cli.Builder) {
	cmd := builder.SetCommand("account")
	cmd.SetDescription("Manage the account of the operator")

	sub := cmd.SetSubCommand("new")
	sub.SetDescription("Generate a new recovery phrase")
	sub.SetAction(func(cli.Flags) error {
		phrase, err := mnemonic.New()
		if err != nil {
			return xerrors.Errorf("failed to generate phrase: %v", err)
		}

		signer, err := mnemonic.NewSigner(phrase)
		if err != nil {
			return xerrors.Errorf("failed to derive key: %v", err)
		}

		addr, err := txn.NewAddress(signer.GetPublicKey())
		if err != nil {
			return xerrors.Errorf("failed to derive address: %v", err)
		}

		fmt.Fprintf(c.out, "address: %v\nmnemonic: %s\n", addr, phrase)

		return nil
	})

	sub = cmd.SetSubCommand("show")
	sub.SetDescription("Print the address and the balance of the operator")
	sub.SetAction(c.run(func(ctx context.Context, client *orchestrator.Client, _ cli.Flags) error {
		acct, err := client.Account(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(c.out, "address: %v\nbalance: %d\n", acct.Address, acct.Balance)

		if !acct.AuthAddr.IsZero() {
			fmt.Fprintf(c.out, "authorized: %v\n", acct.AuthAddr)
		}

		return nil
	}))
}

type clientAction func(context.Context, *orchestrator.Client, cli.Flags) error

// run returns an action that creates the orchestrator from the flags before
// running the function.
func (c controller) run(fn clientAction) cli.Action {
	return func(flags cli.Flags) error {
		client, err := c.makeClient(flags)
		if err != nil {
			return err
		}

		timeout := flags.Duration("timeout")
		if timeout <= 0 {
			timeout = defaultTimeout
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		return fn(ctx, client, flags)
	}
}

func (c controller) makeClient(flags cli.Flags) (*orchestrator.Client, error) {
	service, err := c.ledgerFn(flags)
	if err != nil {
		return nil, xerrors.Errorf("failed to create ledger client: %v", err)
	}

	opts := append([]orchestrator.Option{}, c.opts...)

	if flags.Int("rounds") > 0 {
		opts = append(opts, orchestrator.WithConfirmationRounds(uint64(flags.Int("rounds"))))
	}

	// The phrase is optional as some commands do not sign anything.
	phrase := flags.String("mnemonic")
	if phrase != "" {
		signer, err := mnemonic.NewSigner(phrase)
		if err != nil {
			return nil, xerrors.Errorf("failed to load credential: %v", err)
		}

		opts = append(opts, orchestrator.WithSigner(signer))
	}

	dir := flags.Path("artifacts")
	if dir == "" {
		dir = artifact.DefaultDir
	}

	return orchestrator.NewClient(service, artifact.NewStore(dir), opts...), nil
}

func (c controller) printStatus(status ledger.Status) {
	fmt.Fprintf(c.out, "%s in round %d\n", status.State, status.Round)
}

func httpLedger(flags cli.Flags) (ledger.Service, error) {
	addr := flags.String("ledger")
	if addr == "" {
		addr = http.DefaultAddress
	}

	var opts []http.ClientOption
	if flags.String("token") != "" {
		opts = append(opts, http.WithClientToken(flags.String("token")))
	}

	client, err := http.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}

	return client, nil
}

func parseAmount(text string) (uint64, error) {
	amount, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, xerrors.Errorf("invalid amount '%s'", text)
	}

	return amount, nil
}
