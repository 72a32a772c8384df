// Package configcmd implements the `shelf config` command group.
package configcmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/go-ports/comicshelf/cmd/shelf/shared"
	"github.com/go-ports/comicshelf/internal/config"
	"github.com/go-ports/comicshelf/internal/embeddings"
	"github.com/go-ports/comicshelf/internal/vision"
)

const configTemplate = `# comicshelf library configuration

# Multimodal model used by 'shelf analyze' and 'shelf covers'.
# Without it, cover search falls back to matching titles and tags.
vision:
  provider: none                # gemini | openai | openrouter | ollama | none
  # model: gemini-2.5-flash    # defaults per provider
  # api_key: ...               # required for gemini, openai, openrouter
  # base_url: ...              # any OpenAI-compatible server
  # response_path: $.choices[0].message.content
  timeout_seconds: 60

# Embedding provider for semantic page search.
# Without this, keyword search (FTS5) still works.
embedding:
  provider: none                # ollama | openai | openrouter | gemini | none
  # model: nomic-embed-text    # defaults per provider
  # api_key: sk-...

search:
  concurrency: 4                # parallel cover checks
  max_candidates: 50
  semantic: auto                # auto | always | never

import:
  max_page_bytes: 33554432

lock_timeout_seconds: 10
`

// Command implements `shelf config`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command
}

// New creates the config command group.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "config",
		Short: "Show or manage configuration",
		RunE:  c.runShow,
	}
	c.cmd.AddCommand(
		newConfigInit(ctx),
		newSetHome(),
		newClearHome(),
	)
	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }

func (c *Command) runShow(cmd *cobra.Command, _ []string) error {
	home, source := c.ctx.ResolveHome()
	cfg, err := config.Load(filepath.Join(home, "config.yaml"))
	if err != nil {
		return err
	}
	data := map[string]any{
		"vision": map[string]any{
			"provider":        cfg.Vision.Provider,
			"model":           vision.ModelFor(cfg.Vision),
			"base_url":        cfg.Vision.BaseURL,
			"api_key":         redactAPIKey(cfg.Vision.APIKey),
			"response_path":   cfg.Vision.ResponsePath,
			"timeout_seconds": cfg.Vision.TimeoutSeconds,
		},
		"embedding": map[string]any{
			"provider": cfg.Embedding.Provider,
			"model":    embeddings.ModelFor(cfg.Embedding),
			"base_url": cfg.Embedding.BaseURL,
			"api_key":  redactAPIKey(cfg.Embedding.APIKey),
		},
		"search": map[string]any{
			"concurrency":    cfg.Search.Concurrency,
			"max_candidates": cfg.Search.MaxCandidates,
			"semantic":       cfg.Search.Semantic,
		},
		"import": map[string]any{
			"max_page_bytes": cfg.Import.MaxPageBytes,
		},
		"lock_timeout_seconds": cfg.LockTimeoutSeconds,
		"library_home":         home,
		"library_home_source":  source,
	}
	b, err := yaml.Marshal(data)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), string(b))
	return nil
}

// ---------------------------------------------------------------------------
// config init
// ---------------------------------------------------------------------------

func newConfigInit(ctx *shared.Context) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a starter config.yaml",
		RunE: func(cmd *cobra.Command, _ []string) error {
			home, _ := ctx.ResolveHome()
			cfgPath := filepath.Join(home, "config.yaml")
			out := cmd.OutOrStdout()
			if _, err := os.Stat(cfgPath); err == nil && !force {
				fmt.Fprintf(out, "Config already exists at %s\n", cfgPath)
				fmt.Fprintln(out, "Use --force to overwrite.")
				return nil
			}
			if err := os.MkdirAll(home, 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(cfgPath, []byte(configTemplate), 0o600); err != nil {
				return err
			}
			fmt.Fprintf(out, "Created %s\n", cfgPath)
			fmt.Fprintln(out, "Edit the file to configure vision and embedding providers.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config")
	return cmd
}

// ---------------------------------------------------------------------------
// config set-home
// ---------------------------------------------------------------------------

func newSetHome() *cobra.Command {
	return &cobra.Command{
		Use:   "set-home <path>",
		Short: "Persist library home location (used when " + config.HomeEnv + " is unset)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := config.SetPersistedLibraryHome(args[0])
			if err != nil {
				return err
			}
			if err := os.MkdirAll(resolved, 0o755); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Persisted library home: %s\n", resolved)
			fmt.Fprintf(out, "Override anytime with %s or --home.\n", config.HomeEnv)
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// config clear-home
// ---------------------------------------------------------------------------

func newClearHome() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-home",
		Short: "Remove persisted library home location from global config",
		RunE: func(cmd *cobra.Command, _ []string) error {
			changed, err := config.ClearPersistedLibraryHome()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if changed {
				fmt.Fprintln(out, "Cleared persisted library home setting.")
			} else {
				fmt.Fprintln(out, "No persisted library home setting was found.")
			}
			return nil
		},
	}
}

func redactAPIKey(key string) string {
	if key != "" {
		return "<redacted>"
	}
	return ""
}
