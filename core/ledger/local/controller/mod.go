// Package controller implements a controller to run a local ledger node from
// the CLI of a daemon.
//
// The node is started with the daemon. Its state is kept in the config folder
// and its HTTP interface listens on the address of the start command.
package controller

import (
	"path/filepath"
	"time"

	"github.com/bitpond/appkit"
	"github.com/bitpond/appkit/cli"
	"github.com/bitpond/appkit/cli/node"
	"github.com/bitpond/appkit/contracts/counter"
	"github.com/bitpond/appkit/contracts/escrow"
	"github.com/bitpond/appkit/core/execution/native"
	"github.com/bitpond/appkit/core/ledger/http"
	"github.com/bitpond/appkit/core/ledger/local"
	"github.com/bitpond/appkit/core/store/kv"
	"golang.org/x/xerrors"
)

const (
	defaultListen = "127.0.0.1:8080"

	dbName = "ledger.db"
)

// minimal is an initializer that starts a local ledger node and its HTTP
// server.
//
// - implements node.Initializer
type minimal struct{}

// NewMinimal returns a new initializer for a local ledger node.
func NewMinimal() node.Initializer {
	return minimal{}
}

// SetCommands implements node.Initializer. It sets the flags of the node on
// the start command and the commands to administrate it.
func (minimal) SetCommands(builder node.Builder) {
	builder.SetStartFlags(
		cli.StringFlag{
			Name:    "listen",
			Usage:   "address of the HTTP server",
			Value:   defaultListen,
			EnvVars: []string{"LEDGER_LISTEN"},
		},
		cli.DurationFlag{
			Name:  "round",
			Usage: "time between two rounds",
			Value: local.DefaultRoundInterval,
		},
		cli.StringFlag{
			Name:    "genesis",
			Usage:   "path to the YAML genesis applied on the first start",
			EnvVars: []string{"LEDGER_GENESIS"},
		},
		cli.StringFlag{
			Name:    "token",
			Usage:   "token expected from the clients, if any",
			EnvVars: []string{"LEDGER_TOKEN"},
		},
		cli.IntFlag{
			Name:  "min-fee",
			Usage: "minimum fee of a transaction",
			Value: local.DefaultMinFee,
		},
		cli.IntFlag{
			Name:  "window",
			Usage: "maximum number of rounds a transaction is valid for",
			Value: local.DefaultValidityWindow,
		},
	)

	cmd := builder.SetCommand("ledger")
	cmd.SetDescription("Ledger administration")

	sub := cmd.SetSubCommand("fund")
	sub.SetDescription("Credit an account out of thin air")
	sub.SetFlags(
		cli.StringFlag{
			Name:     "address",
			Usage:    "address of the account",
			Required: true,
		},
		cli.StringFlag{
			Name:     "amount",
			Usage:    "amount to credit",
			Required: true,
		},
	)
	sub.SetAction(builder.MakeAction(fundAction{}))

	sub = cmd.SetSubCommand("info")
	sub.SetDescription("Print the genesis and the last round")
	sub.SetAction(builder.MakeAction(infoAction{}))

	sub = cmd.SetSubCommand("produce")
	sub.SetDescription("Produce a round without waiting")
	sub.SetAction(builder.MakeAction(produceAction{}))
}

// OnStart implements node.Initializer. It opens the database in the config
// folder, then starts and injects the node and its HTTP server.
func (minimal) OnStart(flags cli.Flags, inj node.Injector) error {
	db, err := kv.New(filepath.Join(flags.Path("config"), dbName))
	if err != nil {
		return xerrors.Errorf("db: %v", err)
	}

	opts := []local.NodeOption{
		local.WithRoundInterval(durationOr(flags.Duration("round"), local.DefaultRoundInterval)),
	}

	if flags.Int("min-fee") > 0 {
		opts = append(opts, local.WithMinFee(uint64(flags.Int("min-fee"))))
	}

	if flags.Int("window") > 0 {
		opts = append(opts, local.WithValidityWindow(uint64(flags.Int("window"))))
	}

	path := flags.Path("genesis")
	if path != "" {
		genesis, err := local.LoadGenesis(path)
		if err != nil {
			db.Close()
			return xerrors.Errorf("genesis: %v", err)
		}

		opts = append(opts, local.WithGenesis(genesis))
	}

	exec := native.NewExecution()
	counter.RegisterContract(exec)
	escrow.RegisterContract(exec)

	ledger, err := local.NewNode(db, exec, opts...)
	if err != nil {
		db.Close()
		return xerrors.Errorf("node: %v", err)
	}

	listen := flags.String("listen")
	if listen == "" {
		listen = defaultListen
	}

	srv := http.NewServer(listen, ledger, http.WithToken(flags.String("token")))

	err = srv.Start()
	if err != nil {
		db.Close()
		return xerrors.Errorf("server: %v", err)
	}

	ledger.Start()

	inj.Inject(db)
	inj.Inject(ledger)
	inj.Inject(srv)

	appkit.Logger.Info().
		Str("genesis", ledger.GenesisID()).
		Stringer("addr", srv.GetAddr()).
		Msg("ledger started")

	return nil
}

// OnStop implements node.Initializer. It stops the server before the node and
// closes the database last.
func (minimal) OnStop(inj node.Injector) error {
	srv, err := node.Get[*http.Server](inj)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	err = srv.Stop()
	if err != nil {
		return xerrors.Errorf("server: %v", err)
	}

	ledger, err := node.Get[*local.Node](inj)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	err = ledger.Stop()
	if err != nil {
		return xerrors.Errorf("node: %v", err)
	}

	db, err := node.Get[kv.DB](inj)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	err = db.Close()
	if err != nil {
		return xerrors.Errorf("db: %v", err)
	}

	return nil
}

func durationOr(value, def time.Duration) time.Duration {
	if value <= 0 {
		return def
	}

	return value
}
