// Package node builds the CLI of a long-running process, like the local ledger,
// so that the other invocations of the same binary act on the running process.
//
// The start command runs the initializers and listens on a UNIX socket in the
// config folder. An action made with the builder does not run where it is
// invoked: the flags are sent through the socket and the daemon executes it
// with the components injected by the initializers.
package node

import (
	"io"

	"github.com/bitpond/appkit/cli"
)

// Builder is the builder given to the initializers.
type Builder interface {
	SetCommand(name string) cli.CommandBuilder

	// SetStartFlags adds flags to the start command. The initializers read
	// them in OnStart.
	SetStartFlags(...cli.Flag)

	// MakeAction returns an action that executes the template on the daemon.
	MakeAction(ActionTemplate) cli.Action
}

// ActionTemplate is an action executed by the daemon.
type ActionTemplate interface {
	Execute(Context) error
}

// Context is the context of an action executed by the daemon. The flags are
// the ones of the invocation, and what is written to Out is printed by it.
type Context struct {
	Injector Injector
	Flags    cli.Flags
	Out      io.Writer
}

// Injector holds the components shared by the initializers and the actions.
type Injector interface {
	// Resolve sets the pointer to a component of its type, or to a component
	// implementing it when it is an interface.
	Resolve(interface{}) error

	// Inject adds the component. It replaces a component of the same type.
	Inject(interface{})
}

// Initializer is a module of the daemon.
type Initializer interface {
	// SetCommands adds the commands and the start flags of the module.
	SetCommands(Builder)

	// OnStart starts the module and injects its components.
	OnStart(cli.Flags, Injector) error

	// OnStop stops the module. Modules are stopped in the reverse order.
	OnStop(Injector) error
}
