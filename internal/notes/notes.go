// Package notes writes Obsidian-compatible markdown reading notes for comics.
package notes

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/go-ports/comicshelf/internal/models"
)

// ReaderNotesHeading marks the hand-written part of a note. Everything from
// this heading to the end of the file survives a re-export.
const ReaderNotesHeading = "## Reader notes"

type frontmatter struct {
	Comic    string   `yaml:"comic"`
	Series   string   `yaml:"series,omitempty"`
	Issue    string   `yaml:"issue,omitempty"`
	Tags     []string `yaml:"tags,flow"`
	Pages    int      `yaml:"pages"`
	Analysed int      `yaml:"analysed"`
	Exported string   `yaml:"exported"`
}

// FileName returns the note file name for a comic: the title slug, falling
// back to the ID prefix when the title has no usable characters.
func FileName(c *models.Comic) string {
	slug := models.Slug(c.DisplayName())
	if slug == "" {
		slug = "comic-" + c.ID[:min(8, len(c.ID))]
	}
	return slug + ".md"
}

// Render produces the full markdown note. analyses may be in any order and
// need not cover every page.
func Render(c *models.Comic, analyses []*models.PageAnalysis, now time.Time) (string, error) {
	sorted := make([]*models.PageAnalysis, len(analyses))
	copy(sorted, analyses)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PageIndex < sorted[j].PageIndex })

	fm, err := yaml.Marshal(frontmatter{
		Comic:    c.Title,
		Series:   c.Series,
		Issue:    c.Issue,
		Tags:     sortedUniq(c.Tags),
		Pages:    c.PageCount,
		Analysed: len(sorted),
		Exported: now.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("notes.Render frontmatter: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("---\n")
	sb.Write(fm)
	sb.WriteString("---\n\n# ")
	sb.WriteString(c.DisplayName())
	sb.WriteString("\n")

	if len(sorted) == 0 {
		sb.WriteString("\n_No pages have been analysed yet._\n")
	}
	for _, a := range sorted {
		sb.WriteString("\n")
		sb.WriteString(RenderPage(a))
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// RenderPage produces the ## heading block for one analysed page. Page
// numbers are one-based for readers.
func RenderPage(a *models.PageAnalysis) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Page %d\n", a.PageIndex+1)
	if a.Summary != "" {
		sb.WriteString("\n")
		sb.WriteString(a.Summary)
		sb.WriteString("\n")
	}
	if len(a.Characters) > 0 {
		sb.WriteString("\n**Characters:** ")
		sb.WriteString(strings.Join(a.Characters, ", "))
		sb.WriteString("\n")
	}
	if len(a.Dialogue) > 0 {
		sb.WriteString("\n")
		for _, line := range a.Dialogue {
			sb.WriteString("> ")
			sb.WriteString(strings.ReplaceAll(line, "\n", " "))
			sb.WriteString("\n")
		}
	}
	if a.Mood != "" {
		sb.WriteString("\n**Mood:** ")
		sb.WriteString(a.Mood)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Write renders the note into dir, replacing any previous export but keeping
// the reader notes section of an existing file. Returns the file path.
func Write(dir string, c *models.Comic, analyses []*models.PageAnalysis, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil { // #nosec G301 -- notes are meant to be browsed by other tools
		return "", fmt.Errorf("notes.Write: %w", err)
	}
	content, err := Render(c, analyses, now)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, FileName(c))
	if existing, err := os.ReadFile(path); err == nil { // #nosec G304 -- path is built from the library notes dir
		if kept := readerNotes(string(existing)); kept != "" {
			content += "\n" + kept
		}
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil { // #nosec G306 -- reading notes do not contain secrets
		return "", fmt.Errorf("notes.Write: %w", err)
	}
	return path, nil
}

// readerNotes returns the reader notes section of an existing note, or "".
func readerNotes(content string) string {
	_, body := splitFrontmatter(content)
	idx := strings.Index(body, "\n"+ReaderNotesHeading)
	if idx < 0 {
		if strings.HasPrefix(body, ReaderNotesHeading) {
			return strings.TrimRight(body, "\n") + "\n"
		}
		return ""
	}
	return strings.TrimRight(body[idx+1:], "\n") + "\n"
}

// splitFrontmatter splits YAML front-matter from the body.
// Returns ("", content) when no front-matter is detected.
func splitFrontmatter(content string) (front, body string) {
	parts := strings.SplitN(content, "---\n", 3)
	if len(parts) >= 3 && parts[0] == "" {
		return parts[1], parts[2]
	}
	return "", content
}

// sortedUniq returns a sorted, deduplicated copy of ss. Never nil.
func sortedUniq(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
