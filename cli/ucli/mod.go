// Package ucli implements the builder of package cli with urfave/cli. Commands
// are urfave commands from the moment they are added, so building only sets
// the application up.
package ucli

import (
	"fmt"

	"github.com/bitpond/appkit/cli"
	urfave "github.com/urfave/cli/v2"
)

// Builder is the builder of an urfave application.
//
// - implements cli.Builder
type Builder struct {
	app *urfave.App
}

// NewBuilder returns the builder of the application with the name. The action
// runs when no command is given and can be nil. The flags are global and can be
// read by every command.
func NewBuilder(name string, action cli.Action, flags ...cli.Flag) cli.Builder {
	return &Builder{
		app: &urfave.App{
			Name:   name,
			Action: toAction(action),
			Flags:  toFlags(flags),
		},
	}
}

// SetCommand implements cli.Builder.
func (b *Builder) SetCommand(name string) cli.CommandBuilder {
	cmd := &urfave.Command{Name: name}
	b.app.Commands = append(b.app.Commands, cmd)

	return command{cmd: cmd}
}

// Build implements cli.Builder. It returns the *urfave.App.
func (b *Builder) Build() cli.Application {
	b.app.Setup()

	return b.app
}

// command is the builder of an urfave command.
//
// - implements cli.CommandBuilder
type command struct {
	cmd *urfave.Command
}

// SetDescription implements cli.CommandBuilder. The description is the usage
// line of the help.
func (c command) SetDescription(value string) {
	c.cmd.Usage = value
}

// SetFlags implements cli.CommandBuilder.
func (c command) SetFlags(flags ...cli.Flag) {
	c.cmd.Flags = toFlags(flags)
}

// SetAction implements cli.CommandBuilder.
func (c command) SetAction(action cli.Action) {
	c.cmd.Action = toAction(action)
}

// SetSubCommand implements cli.CommandBuilder.
func (c command) SetSubCommand(name string) cli.CommandBuilder {
	sub := &urfave.Command{Name: name}
	c.cmd.Subcommands = append(c.cmd.Subcommands, sub)

	return command{cmd: sub}
}

func toFlags(flags []cli.Flag) []urfave.Flag {
	res := make([]urfave.Flag, 0, len(flags))

	for _, f := range flags {
		switch def := f.(type) {
		case cli.StringFlag:
			res = append(res, &urfave.StringFlag{
				Name:     def.Name,
				Usage:    def.Usage,
				Required: def.Required,
				Value:    def.Value,
				EnvVars:  def.EnvVars,
			})
		case cli.DurationFlag:
			res = append(res, &urfave.DurationFlag{
				Name:     def.Name,
				Usage:    def.Usage,
				Required: def.Required,
				Value:    def.Value,
				EnvVars:  def.EnvVars,
			})
		case cli.IntFlag:
			res = append(res, &urfave.IntFlag{
				Name:     def.Name,
				Usage:    def.Usage,
				Required: def.Required,
				Value:    def.Value,
				EnvVars:  def.EnvVars,
			})
		default:
			panic(fmt.Sprintf("flag type '%T' not supported", f))
		}
	}

	return res
}

// toAction returns the urfave form of the action. The urfave context is passed
// as the flags.
func toAction(action cli.Action) urfave.ActionFunc {
	if action == nil {
		return nil
	}

	return func(ctx *urfave.Context) error {
		return action(ctx)
	}
}
