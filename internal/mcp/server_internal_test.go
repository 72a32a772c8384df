package mcp

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/go-ports/comicshelf/internal/models"
)

// ---------------------------------------------------------------------------
// truncate
// ---------------------------------------------------------------------------

func TestTruncate_HappyPath(t *testing.T) {
	c := qt.New(t)

	cases := []struct {
		name   string
		s      string
		maxLen int
		want   string
	}{
		{"shorter than limit", "hello", 10, "hello"},
		{"exactly limit", "hello", 5, "hello"},
		{"longer than limit", "hello world", 5, "hello"},
		{"unicode runes truncated correctly", "héllo", 3, "hél"},
		{"empty string", "", 10, ""},
	}

	for _, tc := range cases {
		c.Run(tc.name, func(c *qt.C) {
			c.Assert(truncate(tc.s, tc.maxLen), qt.Equals, tc.want)
		})
	}
}

// ---------------------------------------------------------------------------
// formatDate
// ---------------------------------------------------------------------------

func TestFormatDate(t *testing.T) {
	c := qt.New(t)
	c.Assert(formatDate(time.Time{}), qt.Equals, "never")
	c.Assert(formatDate(time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC)), qt.Equals, "Mar 07")
}

// ---------------------------------------------------------------------------
// roundTwo
// ---------------------------------------------------------------------------

func TestRoundTwo_HappyPath(t *testing.T) {
	c := qt.New(t)

	cases := []struct {
		in   float64
		want float64
	}{
		{1.25, 1.25},
		{1.234, 1.23},
		{0.0, 0.0},
		{3.0, 3.0},
	}
	for _, tc := range cases {
		c.Assert(roundTwo(tc.in), qt.Equals, tc.want)
	}
}

// ---------------------------------------------------------------------------
// comicJSON
// ---------------------------------------------------------------------------

func TestComicJSON(t *testing.T) {
	c := qt.New(t)

	got := comicJSON(&models.Comic{
		ID:          "0123456789",
		Title:       "The Bridge",
		Series:      "Knights",
		Issue:       "2",
		PageCount:   12,
		CurrentPage: 4,
	})
	c.Assert(got["title"], qt.Equals, "Knights #2: The Bridge")
	c.Assert(got["current_page"], qt.Equals, 5)
	c.Assert(got["tags"], qt.DeepEquals, []string{})
	c.Assert(got["last_read"], qt.Equals, "never")
	c.Assert(shortID("0123456789"), qt.Equals, "01234567")
}
