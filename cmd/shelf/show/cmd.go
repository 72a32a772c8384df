// Package showcmd implements the `shelf show` command.
package showcmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-ports/comicshelf/cmd/shelf/shared"
)

// Command implements `shelf show`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command
}

// New creates the show command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "show <comic-id>",
		Short: "Show a comic's metadata and pages",
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
	pages, err := lib.Pages(comic.ID)
	if err != nil {
		return err
	}
	analyses, err := lib.Analyses(comic.ID)
	if err != nil {
		return err
	}
	analysed := make(map[string]bool, len(analyses))
	for _, a := range analyses {
		analysed[a.PageID] = true
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", comic.DisplayName())
	fmt.Fprintf(out, "  ID:       %s\n", comic.ID)
	if len(comic.Tags) > 0 {
		fmt.Fprintf(out, "  Tags:     %s\n", strings.Join(comic.Tags, ", "))
	}
	fmt.Fprintf(out, "  Progress: page %d of %d\n", comic.CurrentPage+1, comic.PageCount)
	fmt.Fprintf(out, "  Analysed: %d of %d pages\n", len(analyses), comic.PageCount)
	if comic.SourcePath != "" {
		fmt.Fprintf(out, "  Source:   %s\n", comic.SourcePath)
	}

	rows := make([][]string, 0, len(pages))
	for _, p := range pages {
		mark := ""
		if p.Index == comic.CurrentPage {
			mark = "▶"
		}
		done := ""
		if analysed[p.ID] {
			done = "yes"
		}
		rows = append(rows, []string{
			mark,
			strconv.Itoa(p.Index + 1),
			p.Name,
			p.MimeType,
			fmt.Sprintf("%dx%d", p.Width, p.Height),
			shared.HumanBytes(p.Size),
			done,
		})
	}
	fmt.Fprintln(out, shared.RenderTable(
		[]string{"", "#", "Name", "Type", "Size", "Bytes", "Analysed"},
		rows,
		[]shared.Align{shared.AlignLeft, shared.AlignRight, shared.AlignLeft, shared.AlignLeft, shared.AlignRight, shared.AlignRight},
	))
	return nil
}
