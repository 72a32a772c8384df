// Package notescmd implements the `shelf notes` command.
package notescmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-ports/comicshelf/cmd/shelf/shared"
	"github.com/go-ports/comicshelf/internal/models"
)

// Command implements `shelf notes`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command

	all bool
}

// New creates the notes command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "notes [comic-id]",
		Short: "Export markdown reading notes built from page analyses",
		Args:  cobra.MaximumNArgs(1),
		RunE:  c.run,
	}
	c.cmd.Flags().BoolVar(&c.all, "all", false, "Export notes for every comic")
	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }

func (c *Command) run(cmd *cobra.Command, args []string) error {
	if c.all == (len(args) == 1) {
		return fmt.Errorf("pass either a comic ID or --all")
	}

	lib, err := c.ctx.Open()
	if err != nil {
		return err
	}
	defer lib.Close()

	ids := args
	if c.all {
		comics, err := lib.List(models.ListFilter{})
		if err != nil {
			return err
		}
		ids = make([]string, len(comics))
		for i, cm := range comics {
			ids[i] = cm.ID
		}
	}

	out := cmd.OutOrStdout()
	for _, id := range ids {
		path, err := lib.ExportNotes(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %s\n", path)
	}
	if len(ids) == 0 {
		fmt.Fprintln(out, "No comics to export.")
	}
	return nil
}
