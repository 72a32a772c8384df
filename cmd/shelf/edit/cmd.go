// Package editcmd implements the `shelf edit` command.
package editcmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-ports/comicshelf/cmd/shelf/shared"
	"github.com/go-ports/comicshelf/internal/models"
)

// Command implements `shelf edit`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command

	title  string
	series string
	issue  string
	tags   []string
}

// New creates the edit command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "edit <comic-id>",
		Short: "Edit a comic's title, series, issue, or tags",
		Args:  cobra.ExactArgs(1),
		RunE:  c.run,
	}

	f := c.cmd.Flags()
	f.StringVar(&c.title, "title", "", "New title")
	f.StringVar(&c.series, "series", "", "New series (empty clears it)")
	f.StringVar(&c.issue, "issue", "", "New issue (empty clears it)")
	f.StringSliceVar(&c.tags, "tags", nil, "Replace tags (comma-separated; empty clears them)")

	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }

func (c *Command) run(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	var patch models.ComicPatch
	if f.Changed("title") {
		patch.Title = &c.title
	}
	if f.Changed("series") {
		patch.Series = &c.series
	}
	if f.Changed("issue") {
		patch.Issue = &c.issue
	}
	if f.Changed("tags") {
		patch.Tags = c.tags
		if patch.Tags == nil {
			patch.Tags = make([]string, 0)
		}
	}
	if patch.Title == nil && patch.Series == nil && patch.Issue == nil && patch.Tags == nil {
		return fmt.Errorf("nothing to change: pass at least one of --title, --series, --issue, --tags")
	}

	lib, err := c.ctx.Open()
	if err != nil {
		return err
	}
	defer lib.Close()

	comic, err := lib.Update(cmd.Context(), args[0], patch)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Updated %s (id: %s)\n", comic.DisplayName(), comic.ID)
	if len(comic.Tags) > 0 {
		fmt.Fprintf(out, "  Tags: %s\n", strings.Join(comic.Tags, ", "))
	}
	return nil
}
