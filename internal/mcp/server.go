// Package mcp provides the stdio MCP server exposing library tools for agents.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/go-ports/comicshelf/internal/buildinfo"
	"github.com/go-ports/comicshelf/internal/models"
	"github.com/go-ports/comicshelf/internal/service"
)

const listDescription = `List comics in the library, most recently read first. Use the returned id (or an unambiguous prefix of it) with comic_pages and page_search.`

const pagesDescription = `Get the stored page analyses for one comic: a summary, characters, dialogue, and mood per analysed page. Pages without an analysis are omitted.`

const pageSearchDescription = `Search page analyses across the library by keyword and, when embeddings are configured, by meaning. Returns matching pages ranked by relevance.`

const coverSearchDescription = `Find comics whose cover matches a natural-language description (for example "a robot standing in the rain"). Uses the configured vision model when available, otherwise matches titles, tags, and analyses.` //nolint:lll

// NewServer creates and registers all library tools on a new MCP server.
// It is separate from Serve so that tests can obtain a fully configured
// server without committing to the stdio transport.
func NewServer(lib *service.Library) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer("comicshelf", buildinfo.Version)
	registerTools(s, lib)
	return s
}

// Serve starts the stdio MCP server for the library at home, blocking until
// stdin closes. An empty home uses the resolved default.
func Serve(_ context.Context, home string) error {
	lib, err := service.New(home)
	if err != nil {
		return fmt.Errorf("mcp: init library: %w", err)
	}
	defer lib.Close()

	return mcpserver.ServeStdio(NewServer(lib))
}

func registerTools(s *mcpserver.MCPServer, lib *service.Library) {
	s.AddTool(mcp.NewTool("comic_list",
		mcp.WithDescription(listDescription),
		mcp.WithString("series",
			mcp.Description("Only comics in this series."),
		),
		mcp.WithString("tag",
			mcp.Description("Only comics carrying this tag."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max comics (default 20)"),
		),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleList(ctx, lib, req)
	})

	s.AddTool(mcp.NewTool("comic_pages",
		mcp.WithDescription(pagesDescription),
		mcp.WithString("id",
			mcp.Description("Comic ID or unique prefix."),
			mcp.Required(),
		),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handlePages(ctx, lib, req)
	})

	s.AddTool(mcp.NewTool("page_search",
		mcp.WithDescription(pageSearchDescription),
		mcp.WithString("query",
			mcp.Description("Search terms"),
			mcp.Required(),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default 5)"),
		),
		mcp.WithString("comic",
			mcp.Description("Restrict to one comic ID or prefix."),
		),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handlePageSearch(ctx, lib, req)
	})

	s.AddTool(mcp.NewTool("cover_search",
		mcp.WithDescription(coverSearchDescription),
		mcp.WithString("query",
			mcp.Description("Description of the cover"),
			mcp.Required(),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default 10)"),
		),
		mcp.WithBoolean("include_misses",
			mcp.Description("Also return comics the model judged not to match."),
		),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleCoverSearch(ctx, lib, req)
	})
}

// ---------------------------------------------------------------------------
// Tool handlers
// ---------------------------------------------------------------------------

func handleList(_ context.Context, lib *service.Library, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 20)
	if limit <= 0 {
		limit = 20
	}
	comics, err := lib.List(models.ListFilter{
		Series: req.GetString("series", ""),
		Tag:    req.GetString("tag", ""),
		Limit:  limit,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out := make([]map[string]any, 0, len(comics))
	for _, c := range comics {
		out = append(out, comicJSON(c))
	}
	return jsonResult(map[string]any{"showing": len(out), "comics": out})
}

func handlePages(_ context.Context, lib *service.Library, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	comic, err := lib.Show(req.GetString("id", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	analyses, err := lib.Analyses(comic.ID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	pages := make([]map[string]any, 0, len(analyses))
	for _, a := range analyses {
		pages = append(pages, map[string]any{
			"page":       a.PageIndex + 1,
			"summary":    a.Summary,
			"characters": a.Characters,
			"dialogue":   a.Dialogue,
			"mood":       a.Mood,
		})
	}
	message := ""
	if len(pages) == 0 {
		message = "No pages of this comic have been analysed. Run `shelf analyze " + shortID(comic.ID) + "` to describe them."
	}
	return jsonResult(map[string]any{
		"comic":    comicJSON(comic),
		"analysed": len(pages),
		"pages":    pages,
		"message":  message,
	})
}

func handlePageSearch(ctx context.Context, lib *service.Library, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	limit := req.GetInt("limit", 5)
	if limit <= 0 {
		limit = 5
	}

	results, err := lib.SearchPages(ctx, query, limit, req.GetString("comic", ""), lib.UseSemantic(""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	clean := make([]map[string]any, 0, len(results))
	for _, r := range results {
		clean = append(clean, map[string]any{
			"comic_id":    r.ComicID,
			"comic_title": r.ComicTitle,
			"page":        r.PageIndex + 1,
			"summary":     truncate(r.Summary, 280),
			"characters":  r.Characters,
			"mood":        r.Mood,
			"score":       roundTwo(r.Score),
		})
	}
	return jsonResult(clean)
}

func handleCoverSearch(ctx context.Context, lib *service.Library, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 10)
	if limit <= 0 {
		limit = 10
	}
	res, err := lib.SearchCovers(ctx, req.GetString("query", ""), service.CoverQuery{
		IncludeMisses: req.GetBool("include_misses", false),
		Limit:         limit,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	matches := make([]map[string]any, 0, len(res.Matches))
	for _, m := range res.Matches {
		matches = append(matches, map[string]any{
			"comic_id":   m.ComicID,
			"title":      m.Title,
			"matched":    m.Matched,
			"score":      roundTwo(m.Score),
			"confidence": roundTwo(m.Confidence),
			"reason":     m.Reason,
		})
	}
	return jsonResult(map[string]any{
		"considered": res.Considered,
		"failed":     res.Failed,
		"warnings":   nonNil(res.Warnings),
		"matches":    matches,
	})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func comicJSON(c *models.Comic) map[string]any {
	return map[string]any{
		"id":           c.ID,
		"title":        c.DisplayName(),
		"series":       c.Series,
		"issue":        c.Issue,
		"tags":         nonNil(c.Tags),
		"pages":        c.PageCount,
		"current_page": c.CurrentPage + 1,
		"last_read":    formatDate(c.LastReadAt),
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen])
	}
	return s
}

func shortID(id string) string {
	return truncate(id, 8)
}

func nonNil(ss []string) []string {
	if ss == nil {
		return make([]string, 0)
	}
	return ss
}

// formatDate renders t as "Jan 02"; the zero time is "never".
func formatDate(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format("Jan 02")
}

// roundTwo rounds f to 2 decimal places.
func roundTwo(f float64) float64 {
	return math.Round(f*100) / 100
}
