// Package movepagecmd implements the `shelf move-page` command.
package movepagecmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-ports/comicshelf/cmd/shelf/shared"
)

// Command implements `shelf move-page`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command
}

// New creates the move-page command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "move-page <comic-id> <from> <to>",
		Short: "Move a page to a new position, shifting the pages in between",
		Args:  cobra.ExactArgs(3),
		RunE:  c.run,
	}
	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }

func (c *Command) run(cmd *cobra.Command, args []string) error {
	from, err := shared.ParsePage(args[1])
	if err != nil {
		return err
	}
	to, err := shared.ParsePage(args[2])
	if err != nil {
		return err
	}

	lib, err := c.ctx.Open()
	if err != nil {
		return err
	}
	defer lib.Close()

	if err := lib.MovePage(cmd.Context(), args[0], from, to); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Moved page %d to position %d\n", from+1, to+1)
	return nil
}
