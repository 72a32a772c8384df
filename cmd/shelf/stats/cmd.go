// Package statscmd implements the `shelf stats` command.
package statscmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/go-ports/comicshelf/cmd/shelf/shared"
)

// Command implements `shelf stats`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command
}

// New creates the stats command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "stats",
		Short: "Summarise library contents",
		Args:  cobra.NoArgs,
		RunE:  c.run,
	}
	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }

func (c *Command) run(cmd *cobra.Command, _ []string) error {
	lib, err := c.ctx.Open()
	if err != nil {
		return err
	}
	defer lib.Close()

	s, err := lib.Stats()
	if err != nil {
		return err
	}

	rows := [][]string{
		{"Comics", strconv.Itoa(s.Comics)},
		{"Pages", strconv.Itoa(s.Pages)},
		{"Analysed pages", strconv.Itoa(s.Analyses)},
		{"Image data", shared.HumanBytes(s.Bytes)},
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Library: %s\n", lib.Home)
	fmt.Fprintln(out, shared.RenderTable([]string{"", "Count"}, rows, []shared.Align{shared.AlignLeft, shared.AlignRight}))
	return nil
}
