package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/go-ports/comicshelf/internal/models"
	"github.com/go-ports/comicshelf/internal/vision"
)

// ErrEmptyQuery is returned when a cover query has no searchable words.
var ErrEmptyQuery = errors.New("query has no searchable words")

// Cover score weights: text pre-filter score and model confidence.
const (
	textWeight       = 0.4
	confidenceWeight = 0.6
)

// Catalog is the read access cover search needs. *db.DB satisfies it.
type Catalog interface {
	ListComics(f models.ListFilter) ([]*models.Comic, error)
	AnalysisTextByComic() (map[string]string, error)
	GetPage(comicID string, index int) (*models.Page, error)
}

// CoverOptions tunes a cover search.
type CoverOptions struct {
	// Concurrency bounds in-flight model calls. Values below one mean one.
	Concurrency int
	// Timeout bounds each model call. Zero means no per-call timeout.
	Timeout time.Duration
	// MaxCandidates caps how many covers are sent to the model. Zero means no cap.
	MaxCandidates int
	// IncludeMisses keeps comics the model rejected, scored on text alone.
	IncludeMisses bool
	// Limit caps the returned matches. Zero means no cap.
	Limit int
}

type candidate struct {
	comic *models.Comic
	text  float64
}

type outcome struct {
	verdict *vision.CoverVerdict
	err     error
}

// CoverSearch finds comics whose cover fits a natural-language description.
// A text pre-filter picks candidates, then each candidate's cover is sent to
// the analyzer with bounded concurrency. Individual call failures become
// warnings; the search only fails when every call fails. A nil analyzer
// returns the text pre-filter matches.
func CoverSearch(ctx context.Context, cat Catalog, analyzer vision.Analyzer, query string, opts CoverOptions) (*models.CoverSearchResult, error) {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil, ErrEmptyQuery
	}

	comics, err := cat.ListComics(models.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("search.CoverSearch: %w", err)
	}
	analysis, err := cat.AnalysisTextByComic()
	if err != nil {
		return nil, fmt.Errorf("search.CoverSearch: %w", err)
	}

	cands := prefilter(comics, analysis, tokens, analyzer == nil)
	if opts.MaxCandidates > 0 && len(cands) > opts.MaxCandidates {
		cands = cands[:opts.MaxCandidates]
	}

	res := &models.CoverSearchResult{Considered: len(cands), Matches: make([]models.CoverMatch, 0, len(cands))}
	if analyzer == nil {
		for _, cd := range cands {
			res.Matches = append(res.Matches, models.CoverMatch{
				ComicID:   cd.comic.ID,
				Title:     cd.comic.DisplayName(),
				Score:     cd.text,
				TextScore: cd.text,
				Matched:   true,
			})
		}
		return finish(res, opts.Limit), nil
	}

	outcomes := fanOut(ctx, cat, analyzer, query, cands, opts)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("search.CoverSearch: %w", err)
	}

	var firstErr error
	for i, o := range outcomes {
		cd := cands[i]
		if o.err != nil {
			res.Failed++
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", cd.comic.DisplayName(), o.err))
			slog.Warn("cover check failed", "comic", cd.comic.ID, "err", o.err)
			if firstErr == nil {
				firstErr = o.err
			}
			continue
		}
		m := models.CoverMatch{
			ComicID:    cd.comic.ID,
			Title:      cd.comic.DisplayName(),
			TextScore:  cd.text,
			Confidence: o.verdict.Confidence,
			Reason:     o.verdict.Reason,
			Matched:    o.verdict.Match,
		}
		switch {
		case o.verdict.Match:
			m.Score = textWeight*cd.text + confidenceWeight*o.verdict.Confidence
		case opts.IncludeMisses:
			m.Score = textWeight * cd.text
		default:
			continue
		}
		res.Matches = append(res.Matches, m)
	}

	if len(cands) > 0 && res.Failed == len(cands) {
		return nil, fmt.Errorf("search.CoverSearch: all %d cover checks failed: %w", res.Failed, firstErr)
	}
	return finish(res, opts.Limit), nil
}

// fanOut sends each candidate's cover to the analyzer. Outcomes are indexed
// like cands; the group never returns an error so one failure does not
// cancel the rest.
func fanOut(ctx context.Context, cat Catalog, analyzer vision.Analyzer, query string, cands []candidate, opts CoverOptions) []outcome {
	outcomes := make([]outcome, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Concurrency, 1))

	for i, cd := range cands {
		g.Go(func() error {
			page, err := cat.GetPage(cd.comic.ID, 0)
			if err != nil {
				outcomes[i].err = fmt.Errorf("load cover: %w", err)
				return nil
			}
			callCtx := gctx
			if opts.Timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(gctx, opts.Timeout)
				defer cancel()
			}
			v, err := analyzer.MatchCover(callCtx, vision.Image{Data: page.Data, MimeType: page.MimeType}, query)
			outcomes[i] = outcome{verdict: v, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// prefilter scores every comic against tokens. Comics with a positive score
// are returned best first. When none match and textOnly is false, every
// comic is returned in library order with a zero score.
func prefilter(comics []*models.Comic, analysis map[string]string, tokens []string, textOnly bool) []candidate {
	var hits []candidate
	for _, c := range comics {
		if s := TextScore(haystack(c, analysis[c.ID]), tokens); s > 0 {
			hits = append(hits, candidate{comic: c, text: s})
		}
	}
	if len(hits) == 0 && !textOnly {
		all := make([]candidate, len(comics))
		for i, c := range comics {
			all[i] = candidate{comic: c}
		}
		return all
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].text > hits[j].text
	})
	return hits
}

func haystack(c *models.Comic, analysis string) string {
	parts := []string{c.Title, c.Series, c.Issue, strings.Join(c.Tags, " "), analysis}
	return strings.ToLower(strings.Join(parts, " "))
}

// Tokenize lower-cases query and splits it into words of at least two
// letters or digits. Duplicates are dropped.
func Tokenize(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// TextScore is the fraction of tokens found in the lower-cased haystack.
func TextScore(haystack string, tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	n := 0
	for _, t := range tokens {
		if strings.Contains(haystack, t) {
			n++
		}
	}
	return float64(n) / float64(len(tokens))
}

func finish(res *models.CoverSearchResult, limit int) *models.CoverSearchResult {
	sort.SliceStable(res.Matches, func(i, j int) bool {
		a, b := res.Matches[i], res.Matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return strings.ToLower(a.Title) < strings.ToLower(b.Title)
	})
	if limit > 0 && len(res.Matches) > limit {
		res.Matches = res.Matches[:limit]
	}
	return res
}
