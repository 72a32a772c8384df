// Package progresscmd implements the `shelf progress` command.
package progresscmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-ports/comicshelf/cmd/shelf/shared"
)

// Command implements `shelf progress`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command
}

// New creates the progress command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "progress <comic-id> <page>",
		Short: "Set the reading cursor (pages past the end go to the last page)",
		Args:  cobra.ExactArgs(2),
		RunE:  c.run,
	}
	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }

func (c *Command) run(cmd *cobra.Command, args []string) error {
	index, err := shared.ParsePage(args[1])
	if err != nil {
		return err
	}

	lib, err := c.ctx.Open()
	if err != nil {
		return err
	}
	defer lib.Close()

	stored, err := lib.SetProgress(cmd.Context(), args[0], index)
	if err != nil {
		return err
	}
	comic, err := lib.Show(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: now on page %d of %d\n", comic.DisplayName(), stored+1, comic.PageCount)
	return nil
}
