// Package cli defines the abstraction the commands of the binaries are written
// against. A module describes its commands on a Builder and never touches the
// library that parses the arguments, see package ucli for the implementation.
//
//	builder := ucli.NewBuilder("appctl", nil, cli.StringFlag{Name: "artifacts"})
//
//	read := builder.SetCommand("counter").SetSubCommand("read")
//	read.SetDescription("Print the count")
//	read.SetAction(func(flags cli.Flags) error {
//		fmt.Println(flags.Path("artifacts"))
//		return nil
//	})
//
//	err := builder.Build().Run(os.Args)
package cli

import (
	"time"
)

// Builder collects the commands of an application.
type Builder interface {
	// SetCommand adds a top-level command and returns its builder.
	SetCommand(name string) CommandBuilder

	// Build returns the application with the commands added so far.
	Build() Application
}

// Application runs the command selected by the arguments, the first one being
// the name of the binary.
type Application interface {
	Run(arguments []string) error
}

// CommandBuilder describes a command.
type CommandBuilder interface {
	SetDescription(value string)

	// SetFlags replaces the flags of the command.
	SetFlags(...Flag)

	SetAction(Action)

	// SetSubCommand adds a command under this one and returns its builder.
	SetSubCommand(name string) CommandBuilder
}

// Action is the function run by a command.
type Action func(Flags) error

// Flag is the definition of a flag. See StringFlag, DurationFlag and IntFlag.
type Flag interface {
	Flag()
}

// Flags gives access to the values of the flags of the command and of its
// parents, including the global flags.
type Flags interface {
	String(name string) string

	Duration(name string) time.Duration

	Path(name string) string

	Int(name string) int
}

// Initializer is implemented by the modules that add their commands to an
// application.
type Initializer interface {
	SetCommands(Builder)
}
