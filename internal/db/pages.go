package db

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-ports/comicshelf/internal/models"
)

const pageMetaCols = `id, comic_id, idx, name, mime_type, width, height, size`

func scanPageMeta(r rowScanner) (*models.Page, error) {
	var p models.Page
	if err := r.Scan(&p.ID, &p.ComicID, &p.Index, &p.Name, &p.MimeType, &p.Width, &p.Height, &p.Size); err != nil {
		return nil, err
	}
	return &p, nil
}

// insertPages writes pages with dense indices starting at base. Missing page
// IDs are generated and written back into the slice.
func insertPages(tx *sql.Tx, comicID string, base int, pages []*models.Page) error {
	stmt, err := tx.Prepare(`
		INSERT INTO pages (id, comic_id, idx, name, mime_type, width, height, size, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, p := range pages {
		if p.ID == "" {
			p.ID = models.NewID()
		}
		p.ComicID = comicID
		p.Index = base + i
		p.Size = int64(len(p.Data))
		if _, err := stmt.Exec(p.ID, comicID, p.Index, p.Name, p.MimeType, p.Width, p.Height, p.Size, p.Data); err != nil {
			return fmt.Errorf("page %d (%s): %w", p.Index, p.Name, err)
		}
	}
	return nil
}

// ListPages returns page metadata (without image data) in reading order.
func (d *DB) ListPages(comicID string) ([]*models.Page, error) {
	fullID, err := resolveComicID(d.db, comicID)
	if err != nil {
		return nil, err
	}
	rows, err := d.db.Query(
		`SELECT `+pageMetaCols+` FROM pages WHERE comic_id = ? ORDER BY idx`, fullID)
	if err != nil {
		return nil, fmt.Errorf("db.ListPages: %w", err)
	}
	defer rows.Close()

	var out []*models.Page
	for rows.Next() {
		p, err := scanPageMeta(rows)
		if err != nil {
			return nil, fmt.Errorf("db.ListPages scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPage returns one page including its image data.
func (d *DB) GetPage(comicID string, index int) (*models.Page, error) {
	fullID, err := resolveComicID(d.db, comicID)
	if err != nil {
		return nil, err
	}
	var p models.Page
	err = d.db.QueryRow(
		`SELECT `+pageMetaCols+`, data FROM pages WHERE comic_id = ? AND idx = ?`, fullID, index,
	).Scan(&p.ID, &p.ComicID, &p.Index, &p.Name, &p.MimeType, &p.Width, &p.Height, &p.Size, &p.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("db.GetPage: comic %s page %d: %w", fullID, index, ErrPageOutOfRange)
	}
	if err != nil {
		return nil, fmt.Errorf("db.GetPage: %w", err)
	}
	return &p, nil
}

// AppendPages adds pages after the current last page. Returns the new page count.
func (d *DB) AppendPages(comicID string, pages []*models.Page) (int, error) {
	var count int
	err := d.withTx(func(tx *sql.Tx) error {
		fullID, err := resolveComicID(tx, comicID)
		if err != nil {
			return err
		}
		c, err := getComic(tx, fullID)
		if err != nil {
			return err
		}
		if err := insertPages(tx, fullID, c.PageCount, pages); err != nil {
			return err
		}
		count = c.PageCount + len(pages)
		_, err = tx.Exec(`UPDATE comics SET page_count = ?, updated_at = ? WHERE id = ?`,
			count, formatTime(time.Now()), fullID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("db.AppendPages: %w", err)
	}
	return count, nil
}

// DeletePage removes the page at index and restores the comic's invariants
// in the same transaction:
//
//   - remaining pages are renumbered to a dense zero-based range;
//   - a comic left with no pages is deleted;
//   - a cursor at or past the new page count is clamped to the last page.
func (d *DB) DeletePage(comicID string, index int) (*models.DeletePageResult, error) {
	var res models.DeletePageResult
	err := d.withTx(func(tx *sql.Tx) error {
		fullID, err := resolveComicID(tx, comicID)
		if err != nil {
			return err
		}
		c, err := getComic(tx, fullID)
		if err != nil {
			return err
		}
		if index < 0 || index >= c.PageCount {
			return fmt.Errorf("comic %s has %d pages, got index %d: %w",
				fullID, c.PageCount, index, ErrPageOutOfRange)
		}
		res.ComicID = fullID

		var pageID string
		if err := tx.QueryRow(
			`SELECT id FROM pages WHERE comic_id = ? AND idx = ?`, fullID, index,
		).Scan(&pageID); err != nil {
			return fmt.Errorf("locate page %d: %w", index, err)
		}
		if err := deleteAnalysisTx(tx, pageID); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM pages WHERE id = ?`, pageID); err != nil {
			return err
		}

		remaining := c.PageCount - 1
		if remaining == 0 {
			res.ComicDeleted = true
			return deleteComicTx(tx, fullID)
		}

		if _, err := tx.Exec(
			`UPDATE pages SET idx = idx - 1 WHERE comic_id = ? AND idx > ?`, fullID, index,
		); err != nil {
			return fmt.Errorf("renumber: %w", err)
		}

		res.PageCount = remaining
		res.CurrentPage = c.CurrentPage
		if res.CurrentPage >= remaining {
			res.CurrentPage = remaining - 1
		}
		_, err = tx.Exec(
			`UPDATE comics SET page_count = ?, current_page = ?, updated_at = ? WHERE id = ?`,
			res.PageCount, res.CurrentPage, formatTime(time.Now()), fullID,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("db.DeletePage: %w", err)
	}
	return &res, nil
}

// MovePage moves the page at from to position to, shifting the pages in
// between so indices stay dense. The reading cursor is left unchanged.
func (d *DB) MovePage(comicID string, from, to int) error {
	err := d.withTx(func(tx *sql.Tx) error {
		fullID, err := resolveComicID(tx, comicID)
		if err != nil {
			return err
		}
		c, err := getComic(tx, fullID)
		if err != nil {
			return err
		}
		if from < 0 || from >= c.PageCount || to < 0 || to >= c.PageCount {
			return fmt.Errorf("comic %s has %d pages, got move %d->%d: %w",
				fullID, c.PageCount, from, to, ErrPageOutOfRange)
		}
		if from == to {
			return nil
		}

		var pageID string
		if err := tx.QueryRow(
			`SELECT id FROM pages WHERE comic_id = ? AND idx = ?`, fullID, from,
		).Scan(&pageID); err != nil {
			return fmt.Errorf("locate page %d: %w", from, err)
		}

		if from < to {
			_, err = tx.Exec(
				`UPDATE pages SET idx = idx - 1 WHERE comic_id = ? AND idx > ? AND idx <= ?`,
				fullID, from, to)
		} else {
			_, err = tx.Exec(
				`UPDATE pages SET idx = idx + 1 WHERE comic_id = ? AND idx >= ? AND idx < ?`,
				fullID, to, from)
		}
		if err != nil {
			return fmt.Errorf("shift: %w", err)
		}
		if _, err := tx.Exec(`UPDATE pages SET idx = ? WHERE id = ?`, to, pageID); err != nil {
			return err
		}
		_, err = tx.Exec(`UPDATE comics SET updated_at = ? WHERE id = ?`, formatTime(time.Now()), fullID)
		return err
	})
	if err != nil {
		return fmt.Errorf("db.MovePage: %w", err)
	}
	return nil
}

// deleteAnalysisTx removes a page's analysis and its vector, if any.
func deleteAnalysisTx(tx *sql.Tx, pageID string) error {
	var rowid int64
	err := tx.QueryRow(`SELECT rowid FROM page_analysis WHERE page_id = ?`, pageID).Scan(&rowid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	ok, err := hasVecTable(tx)
	if err != nil {
		return err
	}
	if ok {
		if _, err := tx.Exec(`DELETE FROM analysis_vec WHERE rowid = ?`, rowid); err != nil {
			slog.Debug("deleteAnalysis: vec cleanup skipped", "err", err)
		}
	}
	_, err = tx.Exec(`DELETE FROM page_analysis WHERE rowid = ?`, rowid)
	return err
}
