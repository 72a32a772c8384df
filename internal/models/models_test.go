package models_test

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"

	"github.com/go-ports/comicshelf/internal/models"
)

func TestNewComic_HappyPath(t *testing.T) {
	c := qt.New(t)

	in := &models.ImportInput{
		Title:      "The Long Night",
		Series:     "Nightwatch",
		Issue:      "3",
		Tags:       []string{"noir"},
		SourcePath: "/comics/nightwatch-3.cbz",
		Pages:      []models.PageInput{{Name: "01.png"}, {Name: "02.png"}},
	}
	got := models.NewComic(in, "fp")

	_, err := uuid.Parse(got.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Title, qt.Equals, "The Long Night")
	c.Assert(got.PageCount, qt.Equals, 2)
	c.Assert(got.CurrentPage, qt.Equals, 0)
	c.Assert(got.Fingerprint, qt.Equals, "fp")
	c.Assert(got.CreatedAt.IsZero(), qt.IsFalse)
	c.Assert(got.UpdatedAt, qt.Equals, got.CreatedAt)
	c.Assert(got.LastReadAt.IsZero(), qt.IsTrue)
}

func TestNewID_Unique(t *testing.T) {
	c := qt.New(t)
	seen := make(map[string]bool)
	for range 100 {
		id := models.NewID()
		c.Assert(seen[id], qt.IsFalse)
		seen[id] = true
	}
}

func TestFingerprint(t *testing.T) {
	c := qt.New(t)

	a := []models.PageInput{{Data: []byte("one")}, {Data: []byte("two")}}
	b := []models.PageInput{{Data: []byte("one")}, {Data: []byte("two")}}
	swapped := []models.PageInput{{Data: []byte("two")}, {Data: []byte("one")}}
	merged := []models.PageInput{{Data: []byte("onetwo")}}

	c.Assert(models.Fingerprint(a), qt.Equals, models.Fingerprint(b))
	c.Assert(models.Fingerprint(a), qt.Not(qt.Equals), models.Fingerprint(swapped))
	c.Assert(models.Fingerprint(a), qt.Not(qt.Equals), models.Fingerprint(merged))
	c.Assert(models.Fingerprint(a), qt.HasLen, 64)
}

func TestDisplayName(t *testing.T) {
	c := qt.New(t)

	cases := []struct {
		name  string
		comic models.Comic
		want  string
	}{
		{"title only", models.Comic{Title: "Solo"}, "Solo"},
		{"series and issue", models.Comic{Series: "Nightwatch", Issue: "3", Title: "Nightwatch"}, "Nightwatch #3"},
		{"series issue and title", models.Comic{Series: "Nightwatch", Issue: "3", Title: "The Long Night"}, "Nightwatch #3: The Long Night"},
		{"series without issue", models.Comic{Series: "Nightwatch", Title: "Annual"}, "Nightwatch: Annual"},
	}
	for _, tc := range cases {
		c.Run(tc.name, func(c *qt.C) {
			c.Assert(tc.comic.DisplayName(), qt.Equals, tc.want)
		})
	}
}

func TestSlug(t *testing.T) {
	c := qt.New(t)
	c.Assert(models.Slug("Nightwatch #3: The Long Night!"), qt.Equals, "nightwatch-3-the-long-night")
	c.Assert(models.Slug("  --  "), qt.Equals, "")
}
