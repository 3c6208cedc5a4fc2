package node

import (
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/bitpond/appkit"
	"github.com/bitpond/appkit/cli"
	"github.com/bitpond/appkit/cli/ucli"
	urfave "github.com/urfave/cli/v2"
	"golang.org/x/xerrors"
)

// BuilderOption is the type of the options of the builder.
type BuilderOption func(*CLIBuilder)

// WithOutput sets the writer of the outputs of the actions. Defaults to the
// standard output.
func WithOutput(out io.Writer) BuilderOption {
	return func(b *CLIBuilder) {
		if out != nil {
			b.out = out
		}
	}
}

// WithSignals sets the channel that stops the daemon when it receives or is
// closed. The daemon stops on SIGINT and SIGTERM otherwise.
func WithSignals(sigs chan os.Signal) BuilderOption {
	return func(b *CLIBuilder) {
		if sigs != nil {
			b.sigs = sigs
			b.notify = false
		}
	}
}

// CLIBuilder builds the CLI of a daemon: the commands of the initializers and
// the start command.
//
// - implements node.Builder
// - implements cli.Builder
type CLIBuilder struct {
	cli.Builder

	injector   Injector
	actions    []ActionTemplate
	startFlags []cli.Flag
	inits      []Initializer
	out        io.Writer

	sigs   chan os.Signal
	notify bool
}

// NewBuilder returns the builder of the application with the name. The global
// config flag is the folder of the daemon and defaults to a hidden folder named
// after the application.
func NewBuilder(name string, inits []Initializer, opts ...BuilderOption) *CLIBuilder {
	builder := &CLIBuilder{
		Builder: ucli.NewBuilder(name, nil, cli.StringFlag{
			Name:    "config",
			Usage:   "path to the config folder",
			Value:   "." + name,
			EnvVars: []string{strings.ToUpper(name) + "_CONFIG"},
		}),
		injector: NewInjector(),
		inits:    inits,
		out:      os.Stdout,
		sigs:     make(chan os.Signal, 1),
		notify:   true,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder
}

// SetStartFlags implements node.Builder.
func (b *CLIBuilder) SetStartFlags(flags ...cli.Flag) {
	b.startFlags = append(b.startFlags, flags...)
}

// MakeAction implements node.Builder. The action sends the flags of the
// invocation to the daemon in the config folder. Actions are identified by the
// order they are made in, which is the same for every invocation.
func (b *CLIBuilder) MakeAction(tmpl ActionTemplate) cli.Action {
	id := len(b.actions)
	b.actions = append(b.actions, tmpl)

	return func(flags cli.Flags) error {
		req := request{Action: id, Flags: FlagSet{}}

		switch ctx := flags.(type) {
		case *urfave.Context:
			req.Flags = collect(ctx)
		case FlagSet:
			req.Flags = ctx
		}

		return send(flags.Path("config"), req, b.out)
	}
}

// Build implements cli.Builder.
func (b *CLIBuilder) Build() cli.Application {
	for _, ctrl := range b.inits {
		ctrl.SetCommands(b)
	}

	cmd := b.SetCommand("start")
	cmd.SetDescription("Start the daemon")
	cmd.SetFlags(b.startFlags...)
	cmd.SetAction(b.start)

	return b.Builder.Build()
}

func (b *CLIBuilder) start(flags cli.Flags) error {
	if b.notify {
		signal.Notify(b.sigs, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(b.sigs)
	}

	dir := flags.Path("config")
	if dir != "" {
		err := os.MkdirAll(dir, 0700)
		if err != nil {
			return xerrors.Errorf("couldn't make path: %v", err)
		}
	}

	for i, ctrl := range b.inits {
		err := ctrl.OnStart(flags, b.injector)
		if err != nil {
			b.rollback(i)
			return xerrors.Errorf("couldn't start controller: %v", err)
		}
	}

	// The socket exists only once every controller is running.
	d := newDaemon(dir, b.injector, b.actions)

	err := d.Listen()
	if err != nil {
		b.rollback(len(b.inits))
		return xerrors.Errorf("couldn't start the daemon: %v", err)
	}

	appkit.Logger.Info().Str("socket", d.path).Msg("daemon started")

	<-b.sigs

	err = d.Close()
	if err != nil {
		appkit.Logger.Warn().Err(err).Msg("daemon stopped with an error")
	}

	err = b.stop(len(b.inits))
	if err != nil {
		return err
	}

	appkit.Logger.Info().Msg("daemon stopped")

	return nil
}

// stop stops the first n controllers in the reverse order, so that a service
// stops before the database it writes to.
func (b *CLIBuilder) stop(n int) error {
	for i := n - 1; i >= 0; i-- {
		err := b.inits[i].OnStop(b.injector)
		if err != nil {
			return xerrors.Errorf("couldn't stop controller: %v", err)
		}
	}

	return nil
}

func (b *CLIBuilder) rollback(n int) {
	err := b.stop(n)
	if err != nil {
		appkit.Logger.Warn().Err(err).Msg("rollback failed")
	}
}

// collect returns the flags of the command and of its parents, except the
// kinds a FlagSet cannot read, like the help flag. The typed getters of the
// context look the value up in the lineage.
func collect(ctx *urfave.Context) FlagSet {
	fset := FlagSet{}

	for _, c := range ctx.Lineage() {
		var defs []urfave.Flag

		if c.Command != nil {
			defs = append(defs, c.Command.Flags...)
		}
		if c.App != nil {
			defs = append(defs, c.App.Flags...)
		}

		for _, def := range defs {
			name := def.Names()[0]

			_, found := fset[name]
			if found {
				continue
			}

			switch def.(type) {
			case *urfave.StringFlag, *urfave.PathFlag:
				fset[name] = ctx.String(name)
			case *urfave.DurationFlag:
				fset[name] = ctx.Duration(name).String()
			case *urfave.IntFlag:
				fset[name] = strconv.Itoa(ctx.Int(name))
			}
		}
	}

	return fset
}
