// Package reindexcmd implements the `shelf reindex` command.
package reindexcmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-ports/comicshelf/cmd/shelf/shared"
	"github.com/go-ports/comicshelf/internal/embeddings"
)

// Command implements `shelf reindex`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command
}

// New creates the reindex command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the page analysis vector index with the current embedding provider",
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

	stats, err := lib.Stats()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if stats.Analyses == 0 {
		fmt.Fprintln(out, "No page analyses to reindex.")
		return nil
	}

	fmt.Fprintf(out, "Reindexing %d page analyses with %s/%s...\n",
		stats.Analyses, lib.Config.Embedding.Provider, embeddings.ModelFor(lib.Config.Embedding))

	result, err := lib.Reindex(cmd.Context(), func(current, total int) {
		fmt.Fprintf(out, "\r  %d/%d", current, total)
		if current == total {
			fmt.Fprintln(out)
		}
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Re-indexed %d page analyses with %s (%d dims)\n",
		result.Count, result.Model, result.Dim)
	return nil
}
