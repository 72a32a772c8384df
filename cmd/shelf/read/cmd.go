// Package readcmd implements the `shelf read` command.
package readcmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/go-ports/comicshelf/cmd/shelf/shared"
)

// ErrTerminalOutput is returned when page bytes would be written to a terminal.
var ErrTerminalOutput = errors.New("refusing to write image data to a terminal; use --output or redirect stdout")

// Command implements `shelf read`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command

	output    string
	noAdvance bool
}

// New creates the read command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "read <comic-id> [page]",
		Short: "Write a page image (default: the current page) and move the cursor to it",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  c.run,
	}

	f := c.cmd.Flags()
	f.StringVarP(&c.output, "output", "o", "", "Write the image to this file instead of stdout")
	f.BoolVar(&c.noAdvance, "no-advance", false, "Do not move the reading cursor")

	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }

func (c *Command) run(cmd *cobra.Command, args []string) error {
	index := -1
	if len(args) == 2 {
		var err error
		if index, err = shared.ParsePage(args[1]); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if c.output == "" && shared.IsTerminal(out) {
		return ErrTerminalOutput
	}

	lib, err := c.ctx.Open()
	if err != nil {
		return err
	}
	defer lib.Close()

	page, err := lib.ReadPage(cmd.Context(), args[0], index, !c.noAdvance)
	if err != nil {
		return err
	}

	if c.output == "" {
		_, err := out.Write(page.Data)
		return err
	}
	if err := os.WriteFile(c.output, page.Data, 0o600); err != nil {
		return fmt.Errorf("read: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote page %d (%s, %s) to %s\n",
		page.Index+1, page.MimeType, shared.HumanBytes(int64(len(page.Data))), c.output)
	return nil
}
