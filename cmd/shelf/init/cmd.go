// Package initcmd implements the `shelf init` command.
package initcmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-ports/comicshelf/cmd/shelf/shared"
)

// Command implements `shelf init`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command
}

// New creates the init command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "init",
		Short: "Initialize the comic library",
		RunE:  c.run,
	}
	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }

func (c *Command) run(cmd *cobra.Command, _ []string) error {
	lib, err := c.ctx.Open()
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer lib.Close()
	fmt.Fprintf(cmd.OutOrStdout(), "Comic library initialized at %s\n", lib.Home)
	return nil
}
