// Package coverscmd implements the `shelf covers` command.
package coverscmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-ports/comicshelf/cmd/shelf/shared"
	"github.com/go-ports/comicshelf/internal/service"
)

// Command implements `shelf covers`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command

	limit         int
	includeMisses bool
	textOnly      bool
}

// New creates the covers command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "covers <description>",
		Short: "Find comics whose cover matches a description",
		Args:  cobra.ExactArgs(1),
		RunE:  c.run,
	}

	f := c.cmd.Flags()
	f.IntVar(&c.limit, "limit", 10, "Maximum number of results")
	f.BoolVar(&c.includeMisses, "include-misses", false, "Also list comics the model rejected")
	f.BoolVar(&c.textOnly, "text-only", false, "Match titles, tags, and analyses without calling the model")

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

	res, err := lib.SearchCovers(cmd.Context(), args[0], service.CoverQuery{
		IncludeMisses: c.includeMisses,
		Limit:         c.limit,
		TextOnly:      c.textOnly,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, w := range res.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	}
	if len(res.Matches) == 0 {
		fmt.Fprintf(out, "No matching covers (%d checked).\n", res.Considered)
		return nil
	}

	rows := make([][]string, 0, len(res.Matches))
	matched := 0
	for _, m := range res.Matches {
		verdict := "match"
		if m.Matched {
			matched++
		} else {
			verdict = "miss"
		}
		rows = append(rows, []string{
			shared.ShortID(m.ComicID),
			m.Title,
			fmt.Sprintf("%.2f", m.Score),
			verdict,
			m.Reason,
		})
	}
	fmt.Fprintln(out, shared.RenderTable(
		[]string{"ID", "Title", "Score", "Verdict", "Reason"},
		rows,
		[]shared.Align{shared.AlignLeft, shared.AlignLeft, shared.AlignRight},
	))
	fmt.Fprintf(out, "%d of %d covers checked matched", matched, res.Considered)
	if res.Failed > 0 {
		fmt.Fprintf(out, " (%d checks failed)", res.Failed)
	}
	fmt.Fprintln(out)
	return nil
}
