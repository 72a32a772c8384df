// Package deletepagecmd implements the `shelf delete-page` command.
package deletepagecmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-ports/comicshelf/cmd/shelf/shared"
)

// Command implements `shelf delete-page`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command
}

// New creates the delete-page command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "delete-page <comic-id> <page>",
		Short: "Remove one page; removing the only page deletes the comic",
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

	res, err := lib.DeletePage(cmd.Context(), args[0], index)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if res.ComicDeleted {
		fmt.Fprintf(out, "Deleted the last page; comic %s was removed\n", res.ComicID)
		return nil
	}
	fmt.Fprintf(out, "Deleted page %d; %d pages remain, cursor on page %d\n",
		index+1, res.PageCount, res.CurrentPage+1)
	return nil
}
