// Package db manages the SQLite library database with FTS5 and sqlite-vec extensions.
package db

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver with database/sql
)

func init() { //nolint:gochecknoinits // registers sqlite-vec extension with go-sqlite3 before any DB connection opens
	vec.Auto()
}

var (
	// ErrNotFound is returned when a comic or page does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAmbiguousID is returned when an ID prefix matches more than one comic.
	ErrAmbiguousID = errors.New("ambiguous id prefix")
	// ErrPageOutOfRange is returned for a page index outside [0, page_count).
	ErrPageOutOfRange = errors.New("page index out of range")
	// ErrDimensionMismatch is returned when a new embedding dimension differs from the one stored.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// DB wraps a *sql.DB with the path it was opened from.
type DB struct {
	db   *sql.DB
	path string
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Open opens (or creates) the SQLite database at path and initialises the schema.
func Open(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("db.Open: %w", err)
	}
	d := &DB{db: sqldb, path: path}
	if err := d.createSchema(); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("db.Open createSchema: %w", err)
	}
	return d, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Path returns the file the database was opened from.
func (d *DB) Path() string { return d.path }

// withTx runs fn inside a transaction, rolling back on any error.
func (d *DB) withTx(fn func(tx *sql.Tx) error) (err error) {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Schema
// ---------------------------------------------------------------------------

func (d *DB) createSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS comics (
			rowid        INTEGER PRIMARY KEY AUTOINCREMENT,
			id           TEXT UNIQUE NOT NULL,
			title        TEXT NOT NULL,
			series       TEXT NOT NULL DEFAULT '',
			issue        TEXT NOT NULL DEFAULT '',
			tags         TEXT NOT NULL DEFAULT '[]',
			page_count   INTEGER NOT NULL DEFAULT 0,
			current_page INTEGER NOT NULL DEFAULT 0,
			fingerprint  TEXT NOT NULL DEFAULT '',
			source_path  TEXT NOT NULL DEFAULT '',
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL,
			last_read_at TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS comics_fingerprint ON comics(fingerprint)`,
		`CREATE TABLE IF NOT EXISTS pages (
			id        TEXT PRIMARY KEY,
			comic_id  TEXT NOT NULL REFERENCES comics(id),
			idx       INTEGER NOT NULL,
			name      TEXT NOT NULL DEFAULT '',
			mime_type TEXT NOT NULL,
			width     INTEGER NOT NULL DEFAULT 0,
			height    INTEGER NOT NULL DEFAULT 0,
			size      INTEGER NOT NULL,
			data      BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS pages_comic_idx ON pages(comic_id, idx)`,
		`CREATE TABLE IF NOT EXISTS page_analysis (
			rowid      INTEGER PRIMARY KEY AUTOINCREMENT,
			page_id    TEXT UNIQUE NOT NULL REFERENCES pages(id),
			comic_id   TEXT NOT NULL,
			summary    TEXT NOT NULL,
			characters TEXT NOT NULL DEFAULT '[]',
			dialogue   TEXT NOT NULL DEFAULT '[]',
			mood       TEXT NOT NULL DEFAULT '',
			model      TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS comics_fts USING fts5(
			title, series, issue, tags,
			content='comics', content_rowid='rowid',
			tokenize='porter unicode61'
		)`,
		`CREATE TRIGGER IF NOT EXISTS comics_ai AFTER INSERT ON comics BEGIN
			INSERT INTO comics_fts(rowid, title, series, issue, tags)
			VALUES (new.rowid, new.title, new.series, new.issue, new.tags);
		END`,
		`CREATE TRIGGER IF NOT EXISTS comics_au AFTER UPDATE OF title, series, issue, tags ON comics BEGIN
			INSERT INTO comics_fts(comics_fts, rowid, title, series, issue, tags)
			VALUES ('delete', old.rowid, old.title, old.series, old.issue, old.tags);
			INSERT INTO comics_fts(rowid, title, series, issue, tags)
			VALUES (new.rowid, new.title, new.series, new.issue, new.tags);
		END`,
		`CREATE TRIGGER IF NOT EXISTS comics_ad AFTER DELETE ON comics BEGIN
			INSERT INTO comics_fts(comics_fts, rowid, title, series, issue, tags)
			VALUES ('delete', old.rowid, old.title, old.series, old.issue, old.tags);
		END`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS analysis_fts USING fts5(
			summary, characters, dialogue, mood,
			content='page_analysis', content_rowid='rowid',
			tokenize='porter unicode61'
		)`,
		`CREATE TRIGGER IF NOT EXISTS analysis_ai AFTER INSERT ON page_analysis BEGIN
			INSERT INTO analysis_fts(rowid, summary, characters, dialogue, mood)
			VALUES (new.rowid, new.summary, new.characters, new.dialogue, new.mood);
		END`,
		`CREATE TRIGGER IF NOT EXISTS analysis_au AFTER UPDATE ON page_analysis BEGIN
			INSERT INTO analysis_fts(analysis_fts, rowid, summary, characters, dialogue, mood)
			VALUES ('delete', old.rowid, old.summary, old.characters, old.dialogue, old.mood);
			INSERT INTO analysis_fts(rowid, summary, characters, dialogue, mood)
			VALUES (new.rowid, new.summary, new.characters, new.dialogue, new.mood);
		END`,
		`CREATE TRIGGER IF NOT EXISTS analysis_ad AFTER DELETE ON page_analysis BEGIN
			INSERT INTO analysis_fts(analysis_fts, rowid, summary, characters, dialogue, mood)
			VALUES ('delete', old.rowid, old.summary, old.characters, old.dialogue, old.mood);
		END`,
	}

	for _, s := range stmts {
		if _, err := d.db.Exec(s); err != nil {
			return fmt.Errorf("createSchema exec: %w\nSQL: %s", err, s)
		}
	}

	// Recreate vec table if dimension was previously persisted.
	if dim, ok, err := d.GetEmbeddingDim(); err == nil && ok {
		if err := d.createVecTable(dim); err != nil {
			return fmt.Errorf("createSchema createVecTable: %w", err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Vector table helpers
// ---------------------------------------------------------------------------

// CreateVecTable creates the vec0 virtual table with the given embedding dimension.
// It is safe to call when the table already exists (uses IF NOT EXISTS).
func (d *DB) CreateVecTable(dim int) error { return d.createVecTable(dim) }

func (d *DB) createVecTable(dim int) error {
	_, err := d.db.Exec(fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS analysis_vec USING vec0(
			rowid INTEGER PRIMARY KEY,
			embedding float[%d]
		)`, dim,
	))
	return err
}

// HasVecTable returns true if the analysis_vec table exists.
func (d *DB) HasVecTable() (bool, error) { return hasVecTable(d.db) }

func hasVecTable(q querier) (bool, error) {
	var name string
	err := q.QueryRow(
		`SELECT name FROM sqlite_master WHERE type='table' AND name='analysis_vec'`,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// DropVecTable drops the analysis_vec virtual table if it exists.
func (d *DB) DropVecTable() error {
	_, err := d.db.Exec("DROP TABLE IF EXISTS analysis_vec")
	return err
}

// GetEmbeddingDim reads the stored embedding dimension from the meta table.
func (d *DB) GetEmbeddingDim() (int, bool, error) {
	val, ok, err := d.GetMeta("embedding_dim")
	if !ok || err != nil {
		return 0, false, err
	}
	dim, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, err
	}
	return dim, true, nil
}

// SetEmbeddingDim persists the embedding dimension in the meta table.
func (d *DB) SetEmbeddingDim(dim int) error {
	return d.SetMeta("embedding_dim", strconv.Itoa(dim))
}

// EnsureVecTable ensures the vector table exists with the given dimension.
// Returns ErrDimensionMismatch if the stored dimension differs.
func (d *DB) EnsureVecTable(dim int) error {
	stored, ok, err := d.GetEmbeddingDim()
	if err != nil {
		return err
	}
	if !ok {
		if err := d.SetEmbeddingDim(dim); err != nil {
			return err
		}
		return d.createVecTable(dim)
	}
	if stored != dim {
		return fmt.Errorf("%w: database has %d, provider returned %d. Run 'shelf reindex' to rebuild",
			ErrDimensionMismatch, stored, dim)
	}
	return nil
}

// InsertVector stores an embedding vector for the given analysis rowid.
// Silently skips if the vec table does not exist.
func (d *DB) InsertVector(rowid int64, embedding []float32) error {
	ok, err := d.HasVecTable()
	if err != nil || !ok {
		return err
	}
	_, err = d.db.Exec(
		`INSERT OR REPLACE INTO analysis_vec (rowid, embedding) VALUES (?, ?)`,
		rowid, float32sToBytes(embedding),
	)
	return err
}

// ---------------------------------------------------------------------------
// Meta
// ---------------------------------------------------------------------------

// GetMeta returns the value for key, or ("", false, nil) if not set.
func (d *DB) GetMeta(key string) (string, bool, error) {
	var val string
	err := d.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// SetMeta upserts a key-value pair in the meta table.
func (d *DB) SetMeta(key, value string) error {
	_, err := d.db.Exec(
		`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, key, value,
	)
	return err
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// ftsMatch builds a "term1"* OR "term2"* FTS5 query. Returns "" for blank input.
func ftsMatch(query string) string {
	terms := strings.Fields(query)
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"*`
	}
	return strings.Join(parts, " OR ")
}

// float32sToBytes encodes a []float32 as little-endian bytes (sqlite-vec wire format).
func float32sToBytes(floats []float32) []byte {
	b := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(f))
	}
	return b
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func marshalList(ss []string) string {
	if ss == nil {
		ss = make([]string, 0)
	}
	b, _ := json.Marshal(ss)
	return string(b)
}

func unmarshalList(raw string) []string {
	var out []string
	if raw == "" {
		return make([]string, 0)
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return make([]string, 0)
	}
	return out
}

// scanRows reads all rows into column-keyed maps.
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		m := make(map[string]any, len(cols))
		for i, col := range cols {
			// Convert []byte to string for TEXT columns.
			if b, ok := vals[i].([]byte); ok {
				m[col] = string(b)
			} else {
				m[col] = vals[i]
			}
		}
		results = append(results, m)
	}
	return results, rows.Err()
}
