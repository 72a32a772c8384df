// Package importcmd implements the `shelf import` command.
package importcmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-ports/comicshelf/cmd/shelf/shared"
	"github.com/go-ports/comicshelf/internal/models"
	"github.com/go-ports/comicshelf/internal/service"
)

// Command implements `shelf import`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command

	title    string
	series   string
	issue    string
	tags     []string
	appendTo string
}

// New creates the import command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "import <dir|file.cbz>...",
		Short: "Import comics from image directories or .cbz/.zip archives",
		Args:  cobra.MinimumNArgs(1),
		RunE:  c.run,
	}

	f := c.cmd.Flags()
	f.StringVar(&c.title, "title", "", "Title (default: source name; single source only)")
	f.StringVar(&c.series, "series", "", "Series name")
	f.StringVar(&c.issue, "issue", "", "Issue number or label")
	f.StringSliceVar(&c.tags, "tags", nil, "Comma-separated tags")
	f.StringVar(&c.appendTo, "append-to", "", "Append the pages to this existing comic instead")

	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }

func (c *Command) run(cmd *cobra.Command, args []string) error {
	if c.title != "" && len(args) > 1 {
		return fmt.Errorf("--title can only be used with a single source")
	}

	lib, err := c.ctx.Open()
	if err != nil {
		return err
	}
	defer lib.Close()

	out := cmd.OutOrStdout()
	if c.appendTo != "" {
		for _, path := range args {
			count, err := lib.AppendPages(cmd.Context(), c.appendTo, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Appended %s: comic now has %d pages\n", path, count)
		}
		return nil
	}

	for _, path := range args {
		res, err := lib.Import(cmd.Context(), path, service.ImportOptions{
			Title:  c.title,
			Series: c.series,
			Issue:  c.issue,
			Tags:   c.tags,
		})
		if err != nil {
			return err
		}
		if res.Action == models.ActionExisting {
			fmt.Fprintf(out, "Already in library: %s (id: %s)\n", res.Title, res.ID)
			continue
		}
		fmt.Fprintf(out, "Imported: %s, %d pages (id: %s)\n", res.Title, res.PageCount, res.ID)
	}
	return nil
}
