package search_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/go-ports/comicshelf/internal/db"
	"github.com/go-ports/comicshelf/internal/models"
	"github.com/go-ports/comicshelf/internal/search"
)

// row builds a minimal analysis hit for MergeResults.
func row(pageID string, score float64) map[string]any {
	return map[string]any{
		"page_id": pageID, "comic_id": "c1", "comic_title": "Comic",
		"page_index": int64(0), "summary": pageID, "characters": `[]`,
		"dialogue": `[]`, "mood": "", "score": score,
	}
}

func TestMergeResults(t *testing.T) {
	c := qt.New(t)

	c.Run("empty inputs return empty result", func(c *qt.C) {
		c.Assert(search.MergeResults(nil, nil, 0.3, 0.7, 10), qt.HasLen, 0)
	})

	c.Run("FTS-only results are weighted by ftsWeight", func(c *qt.C) {
		got := search.MergeResults([]map[string]any{row("a", 4)}, nil, 0.5, 0.5, 10)
		c.Assert(got, qt.HasLen, 1)
		c.Assert(got[0].Score, qt.Equals, 0.5)
	})

	c.Run("overlapping pages accumulate both scores", func(c *qt.C) {
		got := search.MergeResults([]map[string]any{row("p", 1)}, []map[string]any{row("p", 1)}, 0.3, 0.7, 10)
		c.Assert(got, qt.HasLen, 1)
		c.Assert(got[0].Score, qt.Equals, 1.0)
	})

	c.Run("results are sorted and limited", func(c *qt.C) {
		fts := []map[string]any{row("low", 1), row("high", 10)}
		vec := []map[string]any{row("mid", 1)}
		got := search.MergeResults(fts, vec, 0.3, 0.7, 2)
		c.Assert(got, qt.HasLen, 2)
		c.Assert(got[0].PageID, qt.Equals, "mid")
		c.Assert(got[1].PageID, qt.Equals, "high")
	})
}

// ---------------------------------------------------------------------------
// TieredSearch / HybridSearch against a real database
// ---------------------------------------------------------------------------

type fixedProvider struct {
	vec []float32
	err error
}

func (p fixedProvider) Embed(context.Context, string) ([]float32, error) { return p.vec, p.err }

func (p fixedProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = p.vec
	}
	return out, p.err
}

// seed creates a comic with two analysed pages and vectors for both.
func seed(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "search.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = d.Close() })

	now := time.Now()
	comic := &models.Comic{ID: "comic-1", Title: "Harbour Lights", CreatedAt: now, UpdatedAt: now}
	pages := []*models.Page{
		{Name: "1.png", MimeType: "image/png", Data: []byte("1")},
		{Name: "2.png", MimeType: "image/png", Data: []byte("2")},
	}
	if _, err := d.InsertComic(comic, pages); err != nil {
		t.Fatal(err)
	}
	if err := d.EnsureVecTable(2); err != nil {
		t.Fatal(err)
	}
	summaries := []string{"a lighthouse keeper spots a ghost ship", "the crew celebrates at dawn"}
	vecs := [][]float32{{1, 0}, {0, 1}}
	for i, p := range pages {
		rowid, err := d.UpsertAnalysis(&models.PageAnalysis{PageID: p.ID, ComicID: comic.ID, Summary: summaries[i]})
		if err != nil {
			t.Fatal(err)
		}
		if err := d.InsertVector(rowid, vecs[i]); err != nil {
			t.Fatal(err)
		}
	}
	return d
}

func TestTieredSearch(t *testing.T) {
	c := qt.New(t)
	d := seed(t)
	ctx := context.Background()

	c.Run("FTS hits are returned without a provider", func(c *qt.C) {
		got, err := search.TieredSearch(ctx, d, nil, "ghost", 5, 0, "")
		c.Assert(err, qt.IsNil)
		c.Assert(got, qt.HasLen, 1)
		c.Assert(got[0].PageIndex, qt.Equals, 0)
		c.Assert(got[0].ComicTitle, qt.Equals, "Harbour Lights")
	})

	c.Run("sparse FTS is topped up with vector hits", func(c *qt.C) {
		got, err := search.TieredSearch(ctx, d, fixedProvider{vec: []float32{0, 1}}, "ghost", 5, 0, "")
		c.Assert(err, qt.IsNil)
		c.Assert(got, qt.HasLen, 2)
	})

	c.Run("embedding failure falls back to FTS", func(c *qt.C) {
		got, err := search.TieredSearch(ctx, d, fixedProvider{err: errors.New("down")}, "ghost", 5, 0, "")
		c.Assert(err, qt.IsNil)
		c.Assert(got, qt.HasLen, 1)
	})

	c.Run("comic filter excludes other comics", func(c *qt.C) {
		got, err := search.TieredSearch(ctx, d, nil, "ghost", 5, 0, "other-comic")
		c.Assert(err, qt.IsNil)
		c.Assert(got, qt.HasLen, 0)
	})
}

func TestHybridSearch(t *testing.T) {
	c := qt.New(t)
	d := seed(t)
	ctx := context.Background()

	c.Run("vector-only match is found", func(c *qt.C) {
		got, err := search.HybridSearch(ctx, d, fixedProvider{vec: []float32{0, 1}}, "zzzz", 5, "")
		c.Assert(err, qt.IsNil)
		c.Assert(got, qt.Not(qt.HasLen), 0)
		c.Assert(got[0].PageIndex, qt.Equals, 1)
	})

	c.Run("embedding failure is an error", func(c *qt.C) {
		_, err := search.HybridSearch(ctx, d, fixedProvider{err: errors.New("down")}, "ghost", 5, "")
		c.Assert(err, qt.ErrorMatches, "down")
	})
}
