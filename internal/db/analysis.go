package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-ports/comicshelf/internal/models"
)

const analysisCols = `a.page_id, a.comic_id, p.idx, a.summary, a.characters, a.dialogue, a.mood, a.model, a.created_at`

func scanAnalysis(r rowScanner) (*models.PageAnalysis, error) {
	var (
		a                     models.PageAnalysis
		chars, dlg, createdAt string
	)
	if err := r.Scan(&a.PageID, &a.ComicID, &a.PageIndex, &a.Summary, &chars, &dlg, &a.Mood, &a.Model, &createdAt); err != nil {
		return nil, err
	}
	a.Characters = unmarshalList(chars)
	a.Dialogue = unmarshalList(dlg)
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

// UpsertAnalysis stores the analysis for a page, replacing any previous one.
// The analysis rowid is stable across replacements so existing vectors stay
// addressable. Returns that rowid.
func (d *DB) UpsertAnalysis(a *models.PageAnalysis) (int64, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := d.db.Exec(`
		INSERT INTO page_analysis (page_id, comic_id, summary, characters, dialogue, mood, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(page_id) DO UPDATE SET
			summary = excluded.summary,
			characters = excluded.characters,
			dialogue = excluded.dialogue,
			mood = excluded.mood,
			model = excluded.model,
			created_at = excluded.created_at`,
		a.PageID, a.ComicID, a.Summary, marshalList(a.Characters), marshalList(a.Dialogue),
		a.Mood, a.Model, formatTime(a.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("db.UpsertAnalysis: %w", err)
	}
	var rowid int64
	if err := d.db.QueryRow(`SELECT rowid FROM page_analysis WHERE page_id = ?`, a.PageID).Scan(&rowid); err != nil {
		return 0, fmt.Errorf("db.UpsertAnalysis rowid: %w", err)
	}
	return rowid, nil
}

// GetAnalysis returns the analysis for a page, or (nil, nil) when none exists.
func (d *DB) GetAnalysis(pageID string) (*models.PageAnalysis, error) {
	a, err := scanAnalysis(d.db.QueryRow(`
		SELECT `+analysisCols+`
		FROM page_analysis a JOIN pages p ON p.id = a.page_id
		WHERE a.page_id = ?`, pageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db.GetAnalysis: %w", err)
	}
	return a, nil
}

// ListAnalyses returns all analyses for a comic in page order.
func (d *DB) ListAnalyses(comicID string) ([]*models.PageAnalysis, error) {
	fullID, err := resolveComicID(d.db, comicID)
	if err != nil {
		return nil, err
	}
	rows, err := d.db.Query(`
		SELECT `+analysisCols+`
		FROM page_analysis a JOIN pages p ON p.id = a.page_id
		WHERE a.comic_id = ?
		ORDER BY p.idx`, fullID)
	if err != nil {
		return nil, fmt.Errorf("db.ListAnalyses: %w", err)
	}
	defer rows.Close()

	var out []*models.PageAnalysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("db.ListAnalyses scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AnalysisTextByComic concatenates every comic's analysis summaries,
// characters and moods, keyed by comic ID. Comics without analyses are absent.
func (d *DB) AnalysisTextByComic() (map[string]string, error) {
	rows, err := d.db.Query(`
		SELECT comic_id, GROUP_CONCAT(summary || ' ' || characters || ' ' || mood, ' ')
		FROM page_analysis GROUP BY comic_id`)
	if err != nil {
		return nil, fmt.Errorf("db.AnalysisTextByComic: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id string
		var text sql.NullString
		if err := rows.Scan(&id, &text); err != nil {
			return nil, err
		}
		out[id] = text.String
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Search
// ---------------------------------------------------------------------------

const analysisHitCols = `a.rowid AS rowid, a.page_id, a.comic_id, p.idx AS page_index,
		       c.title AS comic_title, a.summary, a.characters, a.dialogue, a.mood`

// SearchAnalysesFTS performs a BM25 full-text search over page analyses,
// optionally restricted to one comic (full ID).
func (d *DB) SearchAnalysesFTS(query string, limit int, comicID string) ([]map[string]any, error) {
	match := ftsMatch(query)
	if match == "" {
		return nil, nil
	}

	params := []any{match}
	filter := ""
	if comicID != "" {
		filter = " AND a.comic_id = ?"
		params = append(params, comicID)
	}
	params = append(params, limit)

	q := `
		SELECT ` + analysisHitCols + `, -fts.rank AS score
		FROM analysis_fts fts
		JOIN page_analysis a ON a.rowid = fts.rowid
		JOIN pages p ON p.id = a.page_id
		JOIN comics c ON c.id = a.comic_id
		WHERE fts.analysis_fts MATCH ?` + filter + `
		ORDER BY fts.rank
		LIMIT ?` // #nosec G202 -- filter is a hardcoded clause; values flow through ? bound parameters

	rows, err := d.db.Query(q, params...)
	if err != nil {
		return nil, fmt.Errorf("db.SearchAnalysesFTS: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// VectorSearch performs nearest-neighbour search over analysis embeddings.
// Results carry score = 1 - distance and are post-filtered by comic.
func (d *DB) VectorSearch(queryEmbedding []float32, limit int, comicID string) ([]map[string]any, error) {
	ok, err := d.HasVecTable()
	if err != nil || !ok {
		return nil, err
	}

	rows, err := d.db.Query(`
		SELECT `+analysisHitCols+`, v.distance
		FROM analysis_vec v
		JOIN page_analysis a ON a.rowid = v.rowid
		JOIN pages p ON p.id = a.page_id
		JOIN comics c ON c.id = a.comic_id
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance`,
		float32sToBytes(queryEmbedding), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("db.VectorSearch: %w", err)
	}
	defer rows.Close()

	all, err := scanRows(rows)
	if err != nil {
		return nil, err
	}

	results := make([]map[string]any, 0, len(all))
	for _, r := range all {
		if comicID != "" {
			if id, _ := r["comic_id"].(string); id != comicID {
				continue
			}
		}
		if dist, ok := r["distance"].(float64); ok {
			r["score"] = 1.0 - dist
			delete(r, "distance")
		}
		results = append(results, r)
	}
	return results, nil
}

// ListAllAnalysesForReindex returns every analysis with the fields needed for re-embedding.
func (d *DB) ListAllAnalysesForReindex() ([]map[string]any, error) {
	rows, err := d.db.Query(
		`SELECT rowid, summary, characters, dialogue, mood FROM page_analysis ORDER BY rowid`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

// EmbedText renders the text embedded for an analysis. Lists are joined with
// spaces so JSON punctuation does not leak into the embedding input.
func EmbedText(summary string, characters, dialogue []string, mood string) string {
	return strings.TrimSpace(strings.Join([]string{
		summary,
		strings.Join(characters, " "),
		strings.Join(dialogue, " "),
		mood,
	}, " "))
}

// EmbedTextFromRow is EmbedText over a ListAllAnalysesForReindex row.
func EmbedTextFromRow(row map[string]any) string {
	s, _ := row["summary"].(string)
	ch, _ := row["characters"].(string)
	dl, _ := row["dialogue"].(string)
	mood, _ := row["mood"].(string)
	return EmbedText(s, unmarshalList(ch), unmarshalList(dl), mood)
}
