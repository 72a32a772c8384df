// Package service implements the Library orchestrator that wires together
// configuration, database, write lock, archive import, vision, embeddings,
// search, and notes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/go-ports/comicshelf/internal/archive"
	"github.com/go-ports/comicshelf/internal/config"
	"github.com/go-ports/comicshelf/internal/db"
	"github.com/go-ports/comicshelf/internal/embeddings"
	"github.com/go-ports/comicshelf/internal/models"
	"github.com/go-ports/comicshelf/internal/notes"
	"github.com/go-ports/comicshelf/internal/redaction"
	"github.com/go-ports/comicshelf/internal/search"
	"github.com/go-ports/comicshelf/internal/vision"
)

var (
	// ErrLocked is returned when another process holds the library write lock
	// for longer than lock_timeout_seconds.
	ErrLocked = errors.New("library is locked by another process")
	// ErrNoAnalyzer is returned by operations that need a vision provider when none is configured.
	ErrNoAnalyzer = errors.New("no vision provider configured")
	// ErrNoEmbeddings is returned by Reindex when no embedding provider is configured.
	ErrNoEmbeddings = errors.New("no embedding provider configured")
)

const lockRetryDelay = 100 * time.Millisecond

// Library orchestrates all comic library operations.
type Library struct {
	Home     string
	NotesDir string
	Config   *config.LibraryConfig

	database *db.DB
	lock     *flock.Flock
	// writers admits one in-process writer at a time; a *flock.Flock reports
	// success to every caller once its own handle holds the lock.
	writers chan struct{}

	mu          sync.Mutex
	analyzer    vision.Analyzer
	analyzerSet bool
	embProvider embeddings.Provider
	vectorsOK   *bool
}

// New opens the library rooted at home, creating the directory if needed.
// If home is empty it is resolved via config.GetLibraryHome.
func New(home string) (*Library, error) {
	if home == "" {
		home = config.GetLibraryHome()
	}
	notesDir := filepath.Join(home, "notes")
	if err := os.MkdirAll(notesDir, 0o755); err != nil { // #nosec G301 -- library notes are meant to be browsed by other tools
		return nil, fmt.Errorf("service.New: create library dir: %w", err)
	}

	cfg, err := config.Load(filepath.Join(home, "config.yaml"))
	if err != nil {
		return nil, fmt.Errorf("service.New: load config: %w", err)
	}

	database, err := db.Open(filepath.Join(home, "library.db"))
	if err != nil {
		return nil, fmt.Errorf("service.New: open db: %w", err)
	}

	return &Library{
		Home:     home,
		NotesDir: notesDir,
		Config:   cfg,
		database: database,
		lock:     flock.New(filepath.Join(home, "library.lock")),
		writers:  make(chan struct{}, 1),
	}, nil
}

// Close releases all resources held by the library.
func (l *Library) Close() error {
	return l.database.Close()
}

// DB exposes the underlying database for read-only helpers such as cover search.
func (l *Library) DB() *db.DB { return l.database }

// ---------------------------------------------------------------------------
// Lazy helpers
// ---------------------------------------------------------------------------

// visionAnalyzer returns the configured Analyzer, or nil when vision is off.
func (l *Library) visionAnalyzer() (vision.Analyzer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.analyzerSet {
		return l.analyzer, nil
	}
	a, err := vision.NewAnalyzer(l.Config)
	if err != nil {
		return nil, err
	}
	l.analyzer, l.analyzerSet = a, true
	return a, nil
}

// SetAnalyzer replaces the configured vision analyzer. A nil analyzer
// disables vision features.
func (l *Library) SetAnalyzer(a vision.Analyzer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.analyzer, l.analyzerSet = a, true
}

// embeddingProvider returns the Provider, lazily initialising it (thread-safe).
func (l *Library) embeddingProvider() (embeddings.Provider, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.embProvider != nil {
		return l.embProvider, nil
	}
	ep, err := embeddings.NewProvider(l.Config)
	if err != nil {
		return nil, err
	}
	l.embProvider = ep
	return ep, nil
}

// SetEmbeddingProvider replaces the configured embedding provider.
func (l *Library) SetEmbeddingProvider(ep embeddings.Provider) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.embProvider = ep
}

// vectorsAvailable checks whether the vec table exists, caching the result.
func (l *Library) vectorsAvailable() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.vectorsOK != nil {
		return *l.vectorsOK
	}
	ok, err := l.database.HasVecTable()
	if err != nil {
		ok = false
	}
	l.vectorsOK = &ok
	return ok
}

func (l *Library) setVectorsOK(ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.vectorsOK = &ok
}

// withWriteLock runs fn while holding the library's file lock. Waiting, for
// other goroutines and other processes alike, is bounded by
// lock_timeout_seconds.
func (l *Library) withWriteLock(ctx context.Context, fn func() error) error {
	timeout := time.Duration(l.Config.LockTimeoutSeconds) * time.Second
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case l.writers <- struct{}{}:
	case <-lctx.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w (%s)", ErrLocked, l.lock.Path())
	}
	defer func() { <-l.writers }()

	ok, err := l.lock.TryLockContext(lctx, lockRetryDelay)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w (%s)", ErrLocked, l.lock.Path())
	}
	defer func() {
		if err := l.lock.Unlock(); err != nil {
			slog.Warn("release library lock", "err", err)
		}
	}()
	return fn()
}

// ensureVectors sets up the vec table for the given embedding dimension.
// Returns false when there is a dimension mismatch.
func (l *Library) ensureVectors(embedding []float32) bool {
	if err := l.database.EnsureVecTable(len(embedding)); err != nil {
		if errors.Is(err, db.ErrDimensionMismatch) {
			l.setVectorsOK(false)
			slog.Warn("vector dimension mismatch, run 'shelf reindex' to rebuild", "err", err)
		} else {
			slog.Warn("ensureVectors", "err", err)
		}
		return false
	}
	l.setVectorsOK(true)
	return true
}

// embedAnalysis stores a vector for an analysis row. All failures are logged
// and never block the caller.
func (l *Library) embedAnalysis(ctx context.Context, rowid int64, a *models.PageAnalysis) {
	ep, err := l.embeddingProvider()
	if err != nil || ep == nil {
		return
	}
	vec, err := ep.Embed(ctx, db.EmbedText(a.Summary, a.Characters, a.Dialogue, a.Mood))
	if err != nil {
		slog.Warn("embed analysis", "page", a.PageID, "err", err)
		return
	}
	if !l.ensureVectors(vec) {
		return
	}
	if err := l.database.InsertVector(rowid, vec); err != nil {
		slog.Warn("embed analysis: insert vector", "err", err)
	}
}

// ---------------------------------------------------------------------------
// Import
// ---------------------------------------------------------------------------

// ImportOptions overrides metadata for an imported comic.
type ImportOptions struct {
	Title  string // defaults to the source base name
	Series string
	Issue  string
	Tags   []string
}

// Import reads a directory or .cbz/.zip and stores it as a new comic. A
// source whose pages are identical to an existing comic is not stored again;
// the existing comic is reported with ActionExisting.
func (l *Library) Import(ctx context.Context, path string, opts ImportOptions) (*models.ImportResult, error) {
	src, err := archive.Read(path, archive.Options{MaxPageBytes: l.Config.Import.MaxPageBytes})
	if err != nil {
		return nil, fmt.Errorf("Import: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	in := &models.ImportInput{
		Title:      strings.TrimSpace(opts.Title),
		Series:     strings.TrimSpace(opts.Series),
		Issue:      strings.TrimSpace(opts.Issue),
		Tags:       cleanTags(opts.Tags),
		SourcePath: abs,
		Pages:      src.Pages,
	}
	if in.Title == "" {
		in.Title = src.Title
	}
	return l.ImportInput(ctx, in)
}

// ImportInput stores already-loaded pages as a new comic, deduplicating by
// page fingerprint.
func (l *Library) ImportInput(ctx context.Context, in *models.ImportInput) (*models.ImportResult, error) {
	if len(in.Pages) == 0 {
		return nil, fmt.Errorf("Import: %w", archive.ErrNoPages)
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("Import: title is required")
	}
	fp := models.Fingerprint(in.Pages)

	var res *models.ImportResult
	err := l.withWriteLock(ctx, func() error {
		existing, err := l.database.FindByFingerprint(fp)
		if err != nil {
			return err
		}
		if existing != nil {
			res = &models.ImportResult{
				ID:        existing.ID,
				Title:     existing.Title,
				PageCount: existing.PageCount,
				Action:    models.ActionExisting,
			}
			return nil
		}

		comic := models.NewComic(in, fp)
		if _, err := l.database.InsertComic(comic, buildPages(in.Pages)); err != nil {
			return err
		}
		res = &models.ImportResult{
			ID:        comic.ID,
			Title:     comic.Title,
			PageCount: comic.PageCount,
			Action:    models.ActionCreated,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Import: %w", err)
	}
	return res, nil
}

// AppendPages adds the pages found at path to the end of an existing comic.
// Returns the new page count.
func (l *Library) AppendPages(ctx context.Context, id, path string) (int, error) {
	src, err := archive.Read(path, archive.Options{MaxPageBytes: l.Config.Import.MaxPageBytes})
	if err != nil {
		return 0, fmt.Errorf("AppendPages: %w", err)
	}
	var count int
	err = l.withWriteLock(ctx, func() error {
		count, err = l.database.AppendPages(id, buildPages(src.Pages))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("AppendPages: %w", err)
	}
	return count, nil
}

// buildPages sniffs type and dimensions for raw pages.
func buildPages(in []models.PageInput) []*models.Page {
	out := make([]*models.Page, len(in))
	for i, p := range in {
		mime, w, h := archive.Inspect(p.Data)
		out[i] = &models.Page{Name: p.Name, MimeType: mime, Width: w, Height: h, Data: p.Data}
	}
	return out
}

func cleanTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		out = append(out, t)
	}
	return out
}

// ---------------------------------------------------------------------------
// Reading and editing
// ---------------------------------------------------------------------------

// List returns comics matching filter, most recently read first.
func (l *Library) List(filter models.ListFilter) ([]*models.Comic, error) {
	return l.database.ListComics(filter)
}

// Show returns one comic by ID or unique prefix.
func (l *Library) Show(id string) (*models.Comic, error) {
	return l.database.GetComic(id)
}

// Pages returns page metadata in reading order.
func (l *Library) Pages(id string) ([]*models.Page, error) {
	return l.database.ListPages(id)
}

// Analyses returns the stored page analyses of a comic in page order.
func (l *Library) Analyses(id string) ([]*models.PageAnalysis, error) {
	return l.database.ListAnalyses(id)
}

// Update applies a metadata patch.
func (l *Library) Update(ctx context.Context, id string, patch models.ComicPatch) (*models.Comic, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, fmt.Errorf("Update: title cannot be empty")
	}
	if patch.Tags != nil {
		patch.Tags = cleanTags(patch.Tags)
	}
	var out *models.Comic
	err := l.withWriteLock(ctx, func() error {
		var err error
		out, err = l.database.UpdateComic(id, patch)
		return err
	})
	return out, err
}

// SetProgress moves the reading cursor, clamped into the comic. Returns the
// stored cursor.
func (l *Library) SetProgress(ctx context.Context, id string, page int) (int, error) {
	var stored int
	err := l.withWriteLock(ctx, func() error {
		var err error
		stored, err = l.database.SetProgress(id, page)
		return err
	})
	return stored, err
}

// ReadPage returns one page with its image data. A negative index reads the
// page under the cursor. With advance set the cursor moves to the page read.
//
//revive:disable:flag-parameter
func (l *Library) ReadPage(ctx context.Context, id string, index int, advance bool) (*models.Page, error) {
	comic, err := l.database.GetComic(id)
	if err != nil {
		return nil, err
	}
	if index < 0 {
		index = comic.CurrentPage
	}
	page, err := l.database.GetPage(comic.ID, index)
	if err != nil {
		return nil, err
	}
	if advance {
		if _, err := l.SetProgress(ctx, comic.ID, index); err != nil {
			return nil, err
		}
	}
	return page, nil
}

//revive:enable:flag-parameter

// DeletePage removes one page, renumbering the rest. Removing the last page
// deletes the comic.
func (l *Library) DeletePage(ctx context.Context, id string, index int) (*models.DeletePageResult, error) {
	var res *models.DeletePageResult
	err := l.withWriteLock(ctx, func() error {
		var err error
		res, err = l.database.DeletePage(id, index)
		return err
	})
	return res, err
}

// MovePage moves a page to a new position.
func (l *Library) MovePage(ctx context.Context, id string, from, to int) error {
	return l.withWriteLock(ctx, func() error {
		return l.database.MovePage(id, from, to)
	})
}

// DeleteComic removes a comic with all its pages and analyses.
func (l *Library) DeleteComic(ctx context.Context, id string) error {
	return l.withWriteLock(ctx, func() error {
		return l.database.DeleteComic(id)
	})
}

// Stats summarises library contents.
func (l *Library) Stats() (*models.Stats, error) {
	return l.database.Stats()
}

// ---------------------------------------------------------------------------
// Analysis
// ---------------------------------------------------------------------------

// AnalyzeOptions selects which pages Analyze describes.
type AnalyzeOptions struct {
	Pages []int // zero-based; empty means every page
	Force bool  // re-analyse pages that already have an analysis
}

// Analyze sends pages to the vision provider one at a time and stores the
// descriptions. A page that fails is recorded as a warning and the run
// continues. progress, when non-nil, is called after each page.
func (l *Library) Analyze(ctx context.Context, id string, opts AnalyzeOptions, progress func(done, total int)) (*models.AnalyzeResult, error) {
	analyzer, err := l.visionAnalyzer()
	if err != nil {
		return nil, fmt.Errorf("Analyze: %w", err)
	}
	if analyzer == nil {
		return nil, fmt.Errorf("Analyze: %w", ErrNoAnalyzer)
	}

	comic, err := l.database.GetComic(id)
	if err != nil {
		return nil, fmt.Errorf("Analyze: %w", err)
	}
	targets := opts.Pages
	if len(targets) == 0 {
		targets = make([]int, comic.PageCount)
		for i := range targets {
			targets[i] = i
		}
	}
	for _, idx := range targets {
		if idx < 0 || idx >= comic.PageCount {
			return nil, fmt.Errorf("Analyze: comic has %d pages, got %d: %w", comic.PageCount, idx, db.ErrPageOutOfRange)
		}
	}

	res := &models.AnalyzeResult{ComicID: comic.ID}
	for n, idx := range targets {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := l.analyzePage(ctx, analyzer, comic.ID, idx, opts.Force, res); err != nil {
			msg := l.redact(err.Error())
			res.Failed++
			res.Warnings = append(res.Warnings, fmt.Sprintf("page %d: %s", idx+1, msg))
			slog.Warn("analyze page failed", "comic", comic.ID, "page", idx+1, "err", msg)
		}
		if progress != nil {
			progress(n+1, len(targets))
		}
	}
	return res, nil
}

//revive:disable:flag-parameter
func (l *Library) analyzePage(ctx context.Context, analyzer vision.Analyzer, comicID string, idx int, force bool, res *models.AnalyzeResult) error {
	page, err := l.database.GetPage(comicID, idx)
	if err != nil {
		return err
	}
	if !force {
		existing, err := l.database.GetAnalysis(page.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			res.Skipped++
			return nil
		}
	}

	rep, err := analyzer.AnalyzePage(ctx, vision.Image{Data: page.Data, MimeType: page.MimeType})
	if err != nil {
		return err
	}
	a := &models.PageAnalysis{
		PageID:     page.ID,
		ComicID:    comicID,
		PageIndex:  idx,
		Summary:    rep.Summary,
		Characters: rep.Characters,
		Dialogue:   rep.Dialogue,
		Mood:       rep.Mood,
		Model:      analyzer.Model(),
	}
	var rowid int64
	err = l.withWriteLock(ctx, func() error {
		var err error
		rowid, err = l.database.UpsertAnalysis(a)
		return err
	})
	if err != nil {
		return err
	}
	res.Analyzed++
	l.embedAnalysis(ctx, rowid, a)
	return nil
}

//revive:enable:flag-parameter

// ---------------------------------------------------------------------------
// Search
// ---------------------------------------------------------------------------

// SearchPages runs tiered FTS + vector search over page analyses, falling
// back to FTS-only when vectors are unavailable or useVectors is false.
// comicID may be a prefix; empty searches every comic.
//
//revive:disable:flag-parameter
func (l *Library) SearchPages(ctx context.Context, query string, limit int, comicID string, useVectors bool) ([]search.Result, error) {
	if limit <= 0 {
		limit = 10
	}
	if comicID != "" {
		c, err := l.database.GetComic(comicID)
		if err != nil {
			return nil, err
		}
		comicID = c.ID
	}

	if useVectors && l.vectorsAvailable() {
		ep, err := l.embeddingProvider()
		if err != nil {
			slog.Warn("SearchPages: embedding provider error", "err", err)
			ep = nil
		}
		results, err := search.TieredSearch(ctx, l.database, ep, query, limit, 0, comicID)
		if err == nil {
			return results, nil
		}
		if errors.Is(err, db.ErrDimensionMismatch) {
			l.setVectorsOK(false)
		} else {
			slog.Warn("SearchPages: tiered search error", "err", err)
		}
	}
	return search.TieredSearch(ctx, l.database, nil, query, limit, 0, comicID)
}

//revive:enable:flag-parameter

// UseSemantic resolves a semantic mode ("auto", "always", "never"; empty
// uses the configured default) into whether vector search should run.
func (l *Library) UseSemantic(mode string) bool {
	if mode == "" {
		mode = l.Config.Search.Semantic
	}
	switch mode {
	case "never":
		return false
	case "always":
		return true
	}
	ep, err := l.embeddingProvider()
	return err == nil && ep != nil && l.vectorsAvailable()
}

// CoverQuery tunes SearchCovers.
type CoverQuery struct {
	IncludeMisses bool
	Limit         int
	TextOnly      bool // skip the model even when one is configured
}

// SearchCovers finds comics whose cover matches a description, using the
// vision provider when configured and the text pre-filter otherwise.
func (l *Library) SearchCovers(ctx context.Context, query string, q CoverQuery) (*models.CoverSearchResult, error) {
	var analyzer vision.Analyzer
	if !q.TextOnly {
		a, err := l.visionAnalyzer()
		if err != nil {
			return nil, fmt.Errorf("SearchCovers: %w", err)
		}
		analyzer = a
	}
	res, err := search.CoverSearch(ctx, l.database, analyzer, query, search.CoverOptions{
		Concurrency:   l.Config.Search.Concurrency,
		Timeout:       time.Duration(l.Config.Vision.TimeoutSeconds) * time.Second,
		MaxCandidates: l.Config.Search.MaxCandidates,
		IncludeMisses: q.IncludeMisses,
		Limit:         q.Limit,
	})
	if err != nil {
		if msg := l.redact(err.Error()); msg != err.Error() {
			return nil, errors.New(msg)
		}
		return nil, err
	}
	redaction.All(res.Warnings, l.Config.Vision.APIKey)
	return res, nil
}

// redact strips configured provider keys from text.
func (l *Library) redact(text string) string {
	return redaction.Redact(text, l.Config.Vision.APIKey, l.Config.Embedding.APIKey)
}

// ---------------------------------------------------------------------------
// Notes
// ---------------------------------------------------------------------------

// ExportNotes writes the markdown reading notes for a comic and returns the
// file path.
func (l *Library) ExportNotes(id string) (string, error) {
	comic, err := l.database.GetComic(id)
	if err != nil {
		return "", err
	}
	analyses, err := l.database.ListAnalyses(comic.ID)
	if err != nil {
		return "", err
	}
	return notes.Write(l.NotesDir, comic, analyses, time.Now())
}

// ---------------------------------------------------------------------------
// Reindex
// ---------------------------------------------------------------------------

const reindexBatch = 16

// Reindex rebuilds the analysis vector table using the current embedding
// provider. progress is called with (current, total) after each batch; may be nil.
func (l *Library) Reindex(ctx context.Context, progress func(current, total int)) (*models.ReindexResult, error) {
	ep, err := l.embeddingProvider()
	if err != nil {
		return nil, fmt.Errorf("Reindex: embedding provider: %w", err)
	}
	if ep == nil {
		return nil, fmt.Errorf("Reindex: %w", ErrNoEmbeddings)
	}

	probe, err := ep.Embed(ctx, "dimension probe")
	if err != nil {
		return nil, fmt.Errorf("Reindex: probe embed: %w", err)
	}
	dim := len(probe)

	var count int
	err = l.withWriteLock(ctx, func() error {
		rows, err := l.database.ListAllAnalysesForReindex()
		if err != nil {
			return fmt.Errorf("list analyses: %w", err)
		}
		texts := make([]string, len(rows))
		for i, r := range rows {
			texts[i] = db.EmbedTextFromRow(r)
		}
		var report func(int)
		if progress != nil {
			report = func(done int) { progress(done, len(rows)) }
		}
		vecs, err := embeddings.EmbedChunked(ctx, ep, texts, reindexBatch, report)
		if err != nil {
			return err
		}

		if err := l.database.DropVecTable(); err != nil {
			return fmt.Errorf("drop vec table: %w", err)
		}
		if err := l.database.SetEmbeddingDim(dim); err != nil {
			return fmt.Errorf("set embedding dim: %w", err)
		}
		if err := l.database.CreateVecTable(dim); err != nil {
			return fmt.Errorf("create vec table: %w", err)
		}
		for i, r := range rows {
			rowid, ok := r["rowid"].(int64)
			if !ok {
				continue
			}
			if err := l.database.InsertVector(rowid, vecs[i]); err != nil {
				return fmt.Errorf("insert vector: %w", err)
			}
			count++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Reindex: %w", err)
	}

	l.setVectorsOK(true)
	return &models.ReindexResult{Count: count, Dim: dim, Model: embeddings.ModelFor(l.Config.Embedding)}, nil
}
