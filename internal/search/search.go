// Package search implements tiered FTS5 + vector search over page analyses
// and AI-assisted cover search over comics.
package search

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/go-ports/comicshelf/internal/db"
	"github.com/go-ports/comicshelf/internal/embeddings"
)

// Result is a page analysis hit with a combined relevance score.
type Result struct {
	PageID     string
	ComicID    string
	ComicTitle string
	PageIndex  int
	Score      float64
	Summary    string
	Characters []string
	Dialogue   []string
	Mood       string
}

// MergeResults combines FTS5 and vector search results with weighted scoring.
// ftsWeight defaults to 0.3, vecWeight to 0.7 when called from Tiered/HybridSearch.
func MergeResults(fts, vec []map[string]any, ftsWeight, vecWeight float64, limit int) []Result {
	normalizeRows(fts)
	normalizeRows(vec)

	combined := make(map[string]*Result, len(fts)+len(vec))
	for _, row := range fts {
		r := rowToResult(row)
		r.Score *= ftsWeight
		combined[r.PageID] = &r
	}
	for _, row := range vec {
		r := rowToResult(row)
		if existing, ok := combined[r.PageID]; ok {
			existing.Score += vecWeight * r.Score
			continue
		}
		r.Score *= vecWeight
		combined[r.PageID] = &r
	}

	results := make([]Result, 0, len(combined))
	for _, r := range combined {
		results = append(results, *r)
	}
	sortResults(results)

	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}

// TieredSearch runs FTS first and only embeds when results are sparse.
// minFTS is the minimum number of FTS hits before skipping the embed call;
// pass 0 for the default of 3. comicID restricts hits to one comic.
func TieredSearch(
	ctx context.Context,
	database *db.DB,
	ep embeddings.Provider,
	query string,
	limit, minFTS int,
	comicID string,
) ([]Result, error) {
	if minFTS <= 0 {
		minFTS = 3
	}

	ftsRows, err := database.SearchAnalysesFTS(query, limit*2, comicID)
	if err != nil {
		return nil, err
	}
	normalizeRows(ftsRows)
	ftsOnly := toResults(ftsRows[:clamp(limit, len(ftsRows))])

	if len(ftsRows) >= minFTS || ep == nil {
		return ftsOnly, nil
	}

	// Sparse FTS: embedding and vector errors fall back to the FTS hits.
	vec, err := ep.Embed(ctx, query)
	if err != nil {
		return ftsOnly, nil //nolint:nilerr // embedding errors are non-fatal; FTS results are returned as a fallback
	}
	vecRows, err := database.VectorSearch(vec, limit*2, comicID)
	if err != nil {
		return ftsOnly, nil //nolint:nilerr // vector search errors are non-fatal; FTS results are returned as a fallback
	}
	return MergeResults(ftsRows, vecRows, 0.3, 0.7, limit), nil
}

// HybridSearch always runs both FTS and vector search (when ep != nil).
func HybridSearch(
	ctx context.Context,
	database *db.DB,
	ep embeddings.Provider,
	query string,
	limit int,
	comicID string,
) ([]Result, error) {
	ftsRows, err := database.SearchAnalysesFTS(query, limit*2, comicID)
	if err != nil {
		return nil, err
	}
	if ep == nil {
		normalizeRows(ftsRows)
		return toResults(ftsRows[:clamp(limit, len(ftsRows))]), nil
	}

	vec, err := ep.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	vecRows, err := database.VectorSearch(vec, limit*2, comicID)
	if err != nil {
		return nil, err
	}
	return MergeResults(ftsRows, vecRows, 0.3, 0.7, limit), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// sortResults orders by descending score, then comic and page for stable output.
func sortResults(rs []Result) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Score != rs[j].Score {
			return rs[i].Score > rs[j].Score
		}
		if rs[i].ComicTitle != rs[j].ComicTitle {
			return rs[i].ComicTitle < rs[j].ComicTitle
		}
		return rs[i].PageIndex < rs[j].PageIndex
	})
}

// normalizeRows divides each row's score by the maximum score, producing [0, 1].
func normalizeRows(rows []map[string]any) {
	if len(rows) == 0 {
		return
	}
	var maxScore float64
	for _, r := range rows {
		if s := asFloat(r["score"]); s > maxScore {
			maxScore = s
		}
	}
	if maxScore <= 0 {
		maxScore = 1.0
	}
	for _, r := range rows {
		r["score"] = asFloat(r["score"]) / maxScore
	}
}

func rowToResult(row map[string]any) Result {
	return Result{
		PageID:     asString(row["page_id"]),
		ComicID:    asString(row["comic_id"]),
		ComicTitle: asString(row["comic_title"]),
		PageIndex:  int(asFloat(row["page_index"])),
		Score:      asFloat(row["score"]),
		Summary:    asString(row["summary"]),
		Characters: asList(row["characters"]),
		Dialogue:   asList(row["dialogue"]),
		Mood:       asString(row["mood"]),
	}
}

func toResults(rows []map[string]any) []Result {
	out := make([]Result, len(rows))
	for i, r := range rows {
		out[i] = rowToResult(r)
	}
	return out
}

func clamp(limit, n int) int {
	if limit <= 0 || limit > n {
		return n
	}
	return limit
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

// asList decodes a JSON string array column. Malformed input yields an empty list.
func asList(v any) []string {
	out := make([]string, 0)
	if s := asString(v); s != "" {
		if err := json.Unmarshal([]byte(s), &out); err != nil || out == nil {
			return make([]string, 0)
		}
	}
	return out
}
