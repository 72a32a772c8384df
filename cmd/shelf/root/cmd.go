// Package rootcmd wires the root cobra.Command for the shelf CLI binary.
package rootcmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	analyzecmd "github.com/go-ports/comicshelf/cmd/shelf/analyze"
	configcmd "github.com/go-ports/comicshelf/cmd/shelf/config"
	coverscmd "github.com/go-ports/comicshelf/cmd/shelf/covers"
	deletecmd "github.com/go-ports/comicshelf/cmd/shelf/delete"
	deletepagecmd "github.com/go-ports/comicshelf/cmd/shelf/deletepage"
	editcmd "github.com/go-ports/comicshelf/cmd/shelf/edit"
	importcmd "github.com/go-ports/comicshelf/cmd/shelf/import"
	initcmd "github.com/go-ports/comicshelf/cmd/shelf/init"
	listcmd "github.com/go-ports/comicshelf/cmd/shelf/list"
	mcpcmd "github.com/go-ports/comicshelf/cmd/shelf/mcp"
	movepagecmd "github.com/go-ports/comicshelf/cmd/shelf/movepage"
	notescmd "github.com/go-ports/comicshelf/cmd/shelf/notes"
	progresscmd "github.com/go-ports/comicshelf/cmd/shelf/progress"
	readcmd "github.com/go-ports/comicshelf/cmd/shelf/read"
	reindexcmd "github.com/go-ports/comicshelf/cmd/shelf/reindex"
	searchcmd "github.com/go-ports/comicshelf/cmd/shelf/search"
	"github.com/go-ports/comicshelf/cmd/shelf/shared"
	showcmd "github.com/go-ports/comicshelf/cmd/shelf/show"
	statscmd "github.com/go-ports/comicshelf/cmd/shelf/stats"
	"github.com/go-ports/comicshelf/internal/buildinfo"
)

// New creates and returns the root cobra.Command for the shelf CLI.
func New() *cobra.Command {
	ctx := &shared.Context{}

	root := &cobra.Command{
		Use:           "shelf",
		Short:         "comicshelf: a local comic library with AI page analysis",
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          func(cmd *cobra.Command, _ []string) error { return cmd.Help() },
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			lvl, err := shared.ParseLevel(ctx.LogLevel)
			if err != nil {
				return err
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: lvl})))
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&ctx.Home, "home", "",
		"Override library home directory (default: $SHELF_HOME env → persisted config → ~/.comicshelf)")
	pf.StringVar(&ctx.LogLevel, "log-level", "warn", "Log level: debug | info | warn | error")

	root.AddCommand(
		initcmd.New(ctx).Cmd(),
		importcmd.New(ctx).Cmd(),
		listcmd.New(ctx).Cmd(),
		showcmd.New(ctx).Cmd(),
		readcmd.New(ctx).Cmd(),
		progresscmd.New(ctx).Cmd(),
		editcmd.New(ctx).Cmd(),
		deletecmd.New(ctx).Cmd(),
		deletepagecmd.New(ctx).Cmd(),
		movepagecmd.New(ctx).Cmd(),
		analyzecmd.New(ctx).Cmd(),
		searchcmd.New(ctx).Cmd(),
		coverscmd.New(ctx).Cmd(),
		notescmd.New(ctx).Cmd(),
		reindexcmd.New(ctx).Cmd(),
		statscmd.New(ctx).Cmd(),
		configcmd.New(ctx).Cmd(),
		mcpcmd.New(ctx).Cmd(),
	)

	return root
}
