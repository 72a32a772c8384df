// Package models defines the core data types for the comic library.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Import actions reported in ImportResult.Action.
const (
	ActionCreated  = "created"
	ActionExisting = "existing"
)

// Comic is one stored collection of ordered page images.
type Comic struct {
	ID          string
	Title       string
	Series      string
	Issue       string
	Tags        []string
	PageCount   int
	CurrentPage int // zero-based reading cursor
	Fingerprint string
	SourcePath  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastReadAt  time.Time // zero when never read
}

// Page is a single image within a comic. Index is zero-based and dense.
type Page struct {
	ID       string
	ComicID  string
	Index    int
	Name     string
	MimeType string
	Width    int
	Height   int
	Size     int64
	Data     []byte // nil when only metadata was loaded
}

// PageAnalysis is the stored model description of one page.
type PageAnalysis struct {
	PageID     string
	ComicID    string
	PageIndex  int
	Summary    string
	Characters []string
	Dialogue   []string
	Mood       string
	Model      string
	CreatedAt  time.Time
}

// PageInput is a raw page read from an import source.
type PageInput struct {
	Name string
	Data []byte
}

// ImportInput is the caller-supplied data for a new comic before IDs are assigned.
type ImportInput struct {
	Title      string
	Series     string
	Issue      string
	Tags       []string
	SourcePath string
	Pages      []PageInput
}

// ComicPatch carries optional edits. Nil fields are left unchanged.
type ComicPatch struct {
	Title  *string
	Series *string
	Issue  *string
	Tags   []string // nil leaves tags unchanged; empty clears them
}

// ListFilter narrows ListComics.
type ListFilter struct {
	Series string
	Tag    string
	Limit  int
}

// ImportResult is returned from Library.Import.
type ImportResult struct {
	ID        string
	Title     string
	PageCount int
	Action    string // ActionCreated or ActionExisting
}

// DeletePageResult describes the comic after a page was removed.
type DeletePageResult struct {
	ComicID      string
	PageCount    int
	CurrentPage  int
	ComicDeleted bool
}

// CoverMatch is one hit from an AI cover search.
type CoverMatch struct {
	ComicID    string
	Title      string
	Score      float64
	TextScore  float64
	Confidence float64
	Reason     string
	Matched    bool
}

// CoverSearchResult aggregates a cover search fan-out.
type CoverSearchResult struct {
	Matches    []CoverMatch
	Considered int
	Failed     int
	Warnings   []string
}

// AnalyzeResult summarises a Library.Analyze run.
type AnalyzeResult struct {
	ComicID  string
	Analyzed int
	Skipped  int // already analysed and not forced
	Failed   int
	Warnings []string
}

// ReindexResult is returned from Library.Reindex.
type ReindexResult struct {
	Count int
	Dim   int
	Model string
}

// Stats summarises library contents.
type Stats struct {
	Comics   int
	Pages    int
	Analyses int
	Bytes    int64
}

// NewComic constructs a Comic from an ImportInput, assigning a new ID and
// stamping creation/update times. PageCount reflects the input pages.
func NewComic(in *ImportInput, fingerprint string) *Comic {
	now := time.Now().UTC()
	return &Comic{
		ID:          NewID(),
		Title:       in.Title,
		Series:      in.Series,
		Issue:       in.Issue,
		Tags:        in.Tags,
		PageCount:   len(in.Pages),
		Fingerprint: fingerprint,
		SourcePath:  in.SourcePath,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewID returns a random UUID string.
func NewID() string {
	return uuid.NewString()
}

// Fingerprint hashes the ordered page bytes. Two imports with identical
// pages in the same order share a fingerprint.
func Fingerprint(pages []PageInput) string {
	h := sha256.New()
	var sep [1]byte
	for _, p := range pages {
		h.Write(p.Data)
		h.Write(sep[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// DisplayName renders "Series #Issue: Title" with absent parts omitted.
func (c *Comic) DisplayName() string {
	var sb strings.Builder
	if c.Series != "" {
		sb.WriteString(c.Series)
		if c.Issue != "" {
			sb.WriteString(" #")
			sb.WriteString(c.Issue)
		}
		if c.Title != "" && c.Title != c.Series {
			sb.WriteString(": ")
			sb.WriteString(c.Title)
		}
		return sb.String()
	}
	return c.Title
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Slug converts a title to a lowercase hyphenated file-safe name.
func Slug(title string) string {
	s := strings.ToLower(title)
	s = nonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
