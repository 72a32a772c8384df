// Package searchcmd implements the `shelf search` command.
package searchcmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-ports/comicshelf/cmd/shelf/shared"
)

// Command implements `shelf search`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command

	limit    int
	comic    string
	semantic string
}

// New creates the search command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "search <query>",
		Short: "Search page analyses using FTS5 and, when available, vectors",
		Args:  cobra.ExactArgs(1),
		RunE:  c.run,
	}

	f := c.cmd.Flags()
	f.IntVar(&c.limit, "limit", 10, "Maximum number of results")
	f.StringVar(&c.comic, "comic", "", "Restrict to one comic (ID or prefix)")
	f.StringVar(&c.semantic, "semantic", "", "Vector search: auto | always | never (default from config)")

	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }

func (c *Command) run(cmd *cobra.Command, args []string) error {
	switch c.semantic {
	case "", "auto", "always", "never":
	default:
		return fmt.Errorf("invalid --semantic %q (want auto, always or never)", c.semantic)
	}

	lib, err := c.ctx.Open()
	if err != nil {
		return err
	}
	defer lib.Close()

	results, err := lib.SearchPages(cmd.Context(), args[0], c.limit, c.comic, lib.UseSemantic(c.semantic))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}

	fmt.Fprintf(out, "\n Results (%d found) \n", len(results))
	for i, r := range results {
		fmt.Fprintf(out, "\n [%d] %s, page %d (score: %.2f)\n", i+1, r.ComicTitle, r.PageIndex+1, r.Score)
		fmt.Fprintf(out, "     %s\n", r.Summary)
		if len(r.Characters) > 0 {
			fmt.Fprintf(out, "     Characters: %s\n", strings.Join(r.Characters, ", "))
		}
		if r.Mood != "" {
			fmt.Fprintf(out, "     Mood: %s\n", r.Mood)
		}
		fmt.Fprintf(out, "     Open: shelf read %s %d\n", shared.ShortID(r.ComicID), r.PageIndex+1)
	}
	return nil
}
