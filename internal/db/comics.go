package db

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-ports/comicshelf/internal/models"
)

const comicCols = `id, title, series, issue, tags, page_count, current_page,
	fingerprint, source_path, created_at, updated_at, last_read_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComic(r rowScanner) (*models.Comic, error) {
	var (
		c                            models.Comic
		tags                         string
		createdAt, updatedAt, readAt string
	)
	err := r.Scan(
		&c.ID, &c.Title, &c.Series, &c.Issue, &tags, &c.PageCount, &c.CurrentPage,
		&c.Fingerprint, &c.SourcePath, &createdAt, &updatedAt, &readAt,
	)
	if err != nil {
		return nil, err
	}
	c.Tags = unmarshalList(tags)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	c.LastReadAt = parseTime(readAt)
	return &c, nil
}

// resolveComicID expands an ID prefix to the full comic ID.
func resolveComicID(q querier, id string) (string, error) {
	if id == "" {
		return "", ErrNotFound
	}
	rows, err := q.Query(`SELECT id FROM comics WHERE id LIKE ? LIMIT 2`, id+"%")
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var full string
		if err := rows.Scan(&full); err != nil {
			return "", err
		}
		// An exact match wins over longer IDs sharing the prefix.
		if full == id {
			return full, nil
		}
		matches = append(matches, full)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("comic %q: %w", id, ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("comic %q: %w", id, ErrAmbiguousID)
	}
}

func getComic(q querier, fullID string) (*models.Comic, error) {
	c, err := scanComic(q.QueryRow(`SELECT `+comicCols+` FROM comics WHERE id = ?`, fullID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("comic %q: %w", fullID, ErrNotFound)
	}
	return c, err
}

// ---------------------------------------------------------------------------
// CRUD
// ---------------------------------------------------------------------------

// InsertComic inserts a comic and its pages in one transaction. Page indices
// are assigned densely from zero in slice order and comic.PageCount is set
// to len(pages). Returns the comic rowid.
func (d *DB) InsertComic(comic *models.Comic, pages []*models.Page) (int64, error) {
	var rowid int64
	err := d.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			INSERT INTO comics (
				id, title, series, issue, tags, page_count, current_page,
				fingerprint, source_path, created_at, updated_at, last_read_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			comic.ID, comic.Title, comic.Series, comic.Issue, marshalList(comic.Tags),
			len(pages), 0, comic.Fingerprint, comic.SourcePath,
			formatTime(comic.CreatedAt), formatTime(comic.UpdatedAt), formatTime(comic.LastReadAt),
		)
		if err != nil {
			return err
		}
		if rowid, err = res.LastInsertId(); err != nil {
			return err
		}
		return insertPages(tx, comic.ID, 0, pages)
	})
	if err != nil {
		return 0, fmt.Errorf("db.InsertComic: %w", err)
	}
	comic.PageCount = len(pages)
	comic.CurrentPage = 0
	return rowid, nil
}

// GetComic fetches a comic by ID or unique prefix.
func (d *DB) GetComic(id string) (*models.Comic, error) {
	fullID, err := resolveComicID(d.db, id)
	if err != nil {
		return nil, err
	}
	return getComic(d.db, fullID)
}

// FindByFingerprint returns the comic whose pages hash to fp, or (nil, nil).
func (d *DB) FindByFingerprint(fp string) (*models.Comic, error) {
	if fp == "" {
		return nil, nil
	}
	c, err := scanComic(d.db.QueryRow(
		`SELECT `+comicCols+` FROM comics WHERE fingerprint = ? LIMIT 1`, fp))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db.FindByFingerprint: %w", err)
	}
	return c, nil
}

// ListComics returns comics ordered by most recently read, then newest.
func (d *DB) ListComics(f models.ListFilter) ([]*models.Comic, error) {
	var clauses []string
	var params []any
	if f.Series != "" {
		clauses = append(clauses, "series = ? COLLATE NOCASE")
		params = append(params, f.Series)
	}
	if f.Tag != "" {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM json_each(comics.tags) WHERE value = ? COLLATE NOCASE)")
		params = append(params, f.Tag)
	}
	q := `SELECT ` + comicCols + ` FROM comics`
	if len(clauses) > 0 {
		q += " WHERE " + strings.Join(clauses, " AND ") // #nosec G202 -- WHERE clause uses hardcoded column names only; values flow through ? bound parameters
	}
	q += " ORDER BY last_read_at DESC, created_at DESC, rowid DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		params = append(params, f.Limit)
	}

	rows, err := d.db.Query(q, params...)
	if err != nil {
		return nil, fmt.Errorf("db.ListComics: %w", err)
	}
	defer rows.Close()

	var out []*models.Comic
	for rows.Next() {
		c, err := scanComic(rows)
		if err != nil {
			return nil, fmt.Errorf("db.ListComics scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SearchComicsFTS performs a BM25 full-text search over comic titles, series, issues and tags.
func (d *DB) SearchComicsFTS(query string, limit int) ([]*models.Comic, error) {
	match := ftsMatch(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.Query(`
		SELECT c.id, c.title, c.series, c.issue, c.tags, c.page_count, c.current_page,
		       c.fingerprint, c.source_path, c.created_at, c.updated_at, c.last_read_at
		FROM comics_fts fts
		JOIN comics c ON c.rowid = fts.rowid
		WHERE fts.comics_fts MATCH ?
		ORDER BY fts.rank
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("db.SearchComicsFTS: %w", err)
	}
	defer rows.Close()

	var out []*models.Comic
	for rows.Next() {
		c, err := scanComic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateComic applies the non-nil fields of patch. Returns the updated comic.
func (d *DB) UpdateComic(id string, patch models.ComicPatch) (*models.Comic, error) {
	var out *models.Comic
	err := d.withTx(func(tx *sql.Tx) error {
		fullID, err := resolveComicID(tx, id)
		if err != nil {
			return err
		}

		sets := []string{"updated_at = ?"}
		params := []any{formatTime(time.Now())}
		if patch.Title != nil {
			sets = append(sets, "title = ?")
			params = append(params, *patch.Title)
		}
		if patch.Series != nil {
			sets = append(sets, "series = ?")
			params = append(params, *patch.Series)
		}
		if patch.Issue != nil {
			sets = append(sets, "issue = ?")
			params = append(params, *patch.Issue)
		}
		if patch.Tags != nil {
			sets = append(sets, "tags = ?")
			params = append(params, marshalList(patch.Tags))
		}
		params = append(params, fullID)

		updQ := "UPDATE comics SET " + strings.Join(sets, ", ") + " WHERE id = ?" // #nosec G202 -- SET clause columns are hardcoded; values flow through ? bound parameters
		if _, err := tx.Exec(updQ, params...); err != nil {
			return err
		}
		out, err = getComic(tx, fullID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("db.UpdateComic: %w", err)
	}
	return out, nil
}

// SetProgress moves the reading cursor, clamping it into [0, page_count-1],
// and stamps last_read_at. Returns the stored cursor.
func (d *DB) SetProgress(id string, page int) (int, error) {
	var stored int
	err := d.withTx(func(tx *sql.Tx) error {
		fullID, err := resolveComicID(tx, id)
		if err != nil {
			return err
		}
		c, err := getComic(tx, fullID)
		if err != nil {
			return err
		}
		stored = clampCursor(page, c.PageCount)
		now := formatTime(time.Now())
		_, err = tx.Exec(
			`UPDATE comics SET current_page = ?, last_read_at = ?, updated_at = ? WHERE id = ?`,
			stored, now, now, fullID,
		)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("db.SetProgress: %w", err)
	}
	return stored, nil
}

// DeleteComic removes a comic with its pages, analyses, and vectors.
func (d *DB) DeleteComic(id string) error {
	err := d.withTx(func(tx *sql.Tx) error {
		fullID, err := resolveComicID(tx, id)
		if err != nil {
			return err
		}
		return deleteComicTx(tx, fullID)
	})
	if err != nil {
		return fmt.Errorf("db.DeleteComic: %w", err)
	}
	return nil
}

// deleteComicTx removes every row owned by the comic. Vector rows go first
// because they are keyed by analysis rowid.
func deleteComicTx(tx *sql.Tx, fullID string) error {
	ok, err := hasVecTable(tx)
	if err != nil {
		return err
	}
	if ok {
		if _, err := tx.Exec(
			`DELETE FROM analysis_vec WHERE rowid IN (SELECT rowid FROM page_analysis WHERE comic_id = ?)`,
			fullID,
		); err != nil {
			slog.Debug("deleteComic: vec cleanup skipped", "err", err)
		}
	}
	if _, err := tx.Exec(`DELETE FROM page_analysis WHERE comic_id = ?`, fullID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM pages WHERE comic_id = ?`, fullID); err != nil {
		return err
	}
	_, err = tx.Exec(`DELETE FROM comics WHERE id = ?`, fullID)
	return err
}

// Stats counts comics, pages, analyses and stored image bytes.
func (d *DB) Stats() (*models.Stats, error) {
	var s models.Stats
	err := d.db.QueryRow(`
		SELECT (SELECT COUNT(*) FROM comics),
		       (SELECT COUNT(*) FROM pages),
		       (SELECT COUNT(*) FROM page_analysis),
		       (SELECT COALESCE(SUM(size), 0) FROM pages)`,
	).Scan(&s.Comics, &s.Pages, &s.Analyses, &s.Bytes)
	if err != nil {
		return nil, fmt.Errorf("db.Stats: %w", err)
	}
	return &s, nil
}

// clampCursor keeps a reading cursor inside a comic of count pages.
func clampCursor(cursor, count int) int {
	if count <= 0 || cursor < 0 {
		return 0
	}
	if cursor >= count {
		return count - 1
	}
	return cursor
}
