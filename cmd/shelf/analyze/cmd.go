// Package analyzecmd implements the `shelf analyze` command.
package analyzecmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-ports/comicshelf/cmd/shelf/shared"
	"github.com/go-ports/comicshelf/internal/service"
	"github.com/go-ports/comicshelf/internal/vision"
)

// Command implements `shelf analyze`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command

	pages []int
	force bool
	notes bool
}

// New creates the analyze command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "analyze <comic-id>",
		Short: "Describe pages with the configured vision model",
		Args:  cobra.ExactArgs(1),
		RunE:  c.run,
	}

	f := c.cmd.Flags()
	f.IntSliceVar(&c.pages, "pages", nil, "Only these pages (comma-separated, numbered from 1)")
	f.BoolVar(&c.force, "force", false, "Re-analyse pages that already have an analysis")
	f.BoolVar(&c.notes, "notes", false, "Export reading notes afterwards")

	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }

func (c *Command) run(cmd *cobra.Command, args []string) error {
	indices := make([]int, 0, len(c.pages))
	for _, p := range c.pages {
		if p < 1 {
			return fmt.Errorf("invalid page %d: pages are numbered from 1", p)
		}
		indices = append(indices, p-1)
	}

	lib, err := c.ctx.Open()
	if err != nil {
		return err
	}
	defer lib.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Analysing with %s/%s...\n", lib.Config.Vision.Provider, vision.ModelFor(lib.Config.Vision))

	res, err := lib.Analyze(cmd.Context(), args[0], service.AnalyzeOptions{Pages: indices, Force: c.force},
		func(done, total int) {
			fmt.Fprintf(out, "\r  %d/%d", done, total)
			if done == total {
				fmt.Fprintln(out)
			}
		})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Analysed %d pages, skipped %d, failed %d\n", res.Analyzed, res.Skipped, res.Failed)
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}

	if c.notes {
		path, err := lib.ExportNotes(res.ComicID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Notes written to %s\n", path)
	}
	return nil
}
