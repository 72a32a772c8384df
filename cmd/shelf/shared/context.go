// Package shared holds the context and helpers passed to all CLI commands.
package shared

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-ports/comicshelf/internal/config"
	"github.com/go-ports/comicshelf/internal/service"
)

// Context carries global CLI state (flags set on the root command).
type Context struct {
	// Home overrides the library home directory.
	// When empty, resolution falls through to SHELF_HOME env var → persisted config → ~/.comicshelf.
	Home string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// ResolveHome returns the library home and where it came from.
func (c *Context) ResolveHome() (home, source string) {
	if c.Home != "" {
		return c.Home, "flag"
	}
	return config.ResolveLibraryHome()
}

// Open opens the library selected by the global flags.
func (c *Context) Open() (*service.Library, error) {
	home, _ := c.ResolveHome()
	return service.New(home)
}

// ParseLevel maps a --log-level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q (want debug, info, warn or error)", s)
	}
	return lvl, nil
}

// ParsePage converts a one-based page argument into a zero-based index.
func ParsePage(arg string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid page %q: pages are numbered from 1", arg)
	}
	return n - 1, nil
}

// ShortID returns the first 8 characters of a comic ID.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// HumanBytes formats n using binary units.
func HumanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}
