// Package deletecmd implements the `shelf delete` command.
package deletecmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-ports/comicshelf/cmd/shelf/shared"
)

// Command implements `shelf delete`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command
}

// New creates the delete command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "delete <comic-id>",
		Short: "Delete a comic with all its pages and analyses",
		Args:  cobra.ExactArgs(1),
		RunE:  c.run,
	}
	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }

func (c *Command) run(cmd *cobra.Command, args []string) error {
	lib, err := c.ctx.Open()
	if err != nil {
		return err
	}
	defer lib.Close()

	comic, err := lib.Show(args[0])
	if err != nil {
		return err
	}
	if err := lib.DeleteComic(cmd.Context(), comic.ID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s (id: %s)\n", comic.DisplayName(), comic.ID)
	return nil
}
