// Package listcmd implements the `shelf list` command.
package listcmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-ports/comicshelf/cmd/shelf/shared"
	"github.com/go-ports/comicshelf/internal/models"
)

// Command implements `shelf list`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command

	series string
	tag    string
	limit  int
}

// New creates the list command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "list",
		Short: "List comics, most recently read first",
		Args:  cobra.NoArgs,
		RunE:  c.run,
	}

	f := c.cmd.Flags()
	f.StringVar(&c.series, "series", "", "Only comics in this series")
	f.StringVar(&c.tag, "tag", "", "Only comics with this tag")
	f.IntVar(&c.limit, "limit", 0, "Maximum number of comics (0 = all)")

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

	comics, err := lib.List(models.ListFilter{Series: c.series, Tag: c.tag, Limit: c.limit})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(comics) == 0 {
		fmt.Fprintln(out, "No comics found.")
		return nil
	}

	rows := make([][]string, 0, len(comics))
	for _, cm := range comics {
		rows = append(rows, []string{
			shared.ShortID(cm.ID),
			cm.DisplayName(),
			strconv.Itoa(cm.PageCount),
			fmt.Sprintf("%d/%d", cm.CurrentPage+1, cm.PageCount),
			strings.Join(cm.Tags, ", "),
			lastRead(cm),
		})
	}
	fmt.Fprintln(out, shared.RenderTable(
		[]string{"ID", "Title", "Pages", "Page", "Tags", "Last read"},
		rows,
		[]shared.Align{shared.AlignLeft, shared.AlignLeft, shared.AlignRight, shared.AlignRight},
	))
	return nil
}

func lastRead(cm *models.Comic) string {
	if cm.LastReadAt.IsZero() {
		return "never"
	}
	return cm.LastReadAt.Local().Format("2006-01-02")
}
