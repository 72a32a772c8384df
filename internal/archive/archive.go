// Package archive reads comic page images from a directory or a .cbz/.zip file.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // registers GIF for DecodeConfig
	_ "image/jpeg" // registers JPEG for DecodeConfig
	_ "image/png"  // registers PNG for DecodeConfig
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/go-ports/comicshelf/internal/models"
)

// ErrNoPages is returned when a source contains no recognised page images.
var ErrNoPages = errors.New("no image pages found")

// ErrPageTooLarge is returned when a page exceeds Options.MaxPageBytes.
var ErrPageTooLarge = errors.New("page exceeds size limit")

var imageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
}

// Options controls how a source is read.
type Options struct {
	// MaxPageBytes rejects any single page larger than this. Zero disables the check.
	MaxPageBytes int64
}

// Source is the result of reading an import path.
type Source struct {
	Path  string
	Title string
	Pages []models.PageInput
}

// Read loads every page image under path. Directories are read recursively;
// files ending in .cbz or .zip are opened as archives. Pages are returned in
// natural name order.
func Read(p string, opts Options) (*Source, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("archive.Read: %w", err)
	}

	var pages []models.PageInput
	switch {
	case info.IsDir():
		pages, err = readDir(p, opts)
	case IsArchive(p):
		pages, err = readZip(p, opts)
	default:
		return nil, fmt.Errorf("archive.Read: %s is neither a directory nor a .cbz/.zip file", p)
	}
	if err != nil {
		return nil, fmt.Errorf("archive.Read: %w", err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("archive.Read: %s: %w", p, ErrNoPages)
	}

	SortNatural(pages)
	return &Source{Path: p, Title: DefaultTitle(p), Pages: pages}, nil
}

// IsArchive reports whether p has a .cbz or .zip extension.
func IsArchive(p string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	return ext == ".cbz" || ext == ".zip"
}

// DefaultTitle is the base name of p without its .cbz/.zip extension.
// Directory names are kept whole so "Vol.2" stays "Vol.2".
func DefaultTitle(p string) string {
	base := filepath.Base(filepath.Clean(p))
	if IsArchive(base) {
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return base
}

// SortNatural orders pages by name, comparing digit runs numerically and
// ignoring case, so "page2" sorts before "Page10".
func SortNatural(pages []models.PageInput) {
	col := collate.New(language.Und, collate.Numeric, collate.IgnoreCase)
	sort.SliceStable(pages, func(i, j int) bool {
		return col.CompareString(pages[i].Name, pages[j].Name) < 0
	})
}

// Inspect sniffs an image's content type and, for formats the standard
// decoders know, its dimensions. Width and height are zero when undecodable.
func Inspect(data []byte) (mimeType string, width, height int) {
	mimeType = http.DetectContentType(data)
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		width, height = cfg.Width, cfg.Height
	}
	return mimeType, width, height
}

// IsImage reports whether data sniffs as a supported page image type.
func IsImage(data []byte) bool {
	return imageTypes[http.DetectContentType(data)]
}

// skip reports entries that never hold pages: hidden files and macOS resource forks.
func skip(name string) bool {
	name = filepath.ToSlash(name)
	if strings.HasPrefix(name, "__MACOSX/") || strings.Contains(name, "/__MACOSX/") {
		return true
	}
	for _, part := range strings.Split(name, "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}

func checkSize(name string, size, limit int64) error {
	if limit > 0 && size > limit {
		return fmt.Errorf("%s is %d bytes, limit %d: %w", name, size, limit, ErrPageTooLarge)
	}
	return nil
}

func readDir(root string, opts Options) ([]models.PageInput, error) {
	var pages []models.PageInput
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, p)
		if rel == "." {
			return nil
		}
		if skip(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if err := checkSize(rel, info.Size(), opts.MaxPageBytes); err != nil {
			return err
		}
		data, err := os.ReadFile(p) // #nosec G304 -- p is walked from the user-supplied import directory
		if err != nil {
			return err
		}
		if !IsImage(data) {
			return nil
		}
		pages = append(pages, models.PageInput{Name: filepath.ToSlash(rel), Data: data})
		return nil
	})
	return pages, err
}

func readZip(p string, opts Options) ([]models.PageInput, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var pages []models.PageInput
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || skip(f.Name) {
			continue
		}
		if err := checkSize(f.Name, int64(f.UncompressedSize64), opts.MaxPageBytes); err != nil { // #nosec G115 -- sizes above MaxInt64 are rejected by the limit anyway
			return nil, err
		}
		data, err := readEntry(f, opts.MaxPageBytes)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		if !IsImage(data) {
			continue
		}
		pages = append(pages, models.PageInput{Name: path.Clean(f.Name), Data: data})
	}
	return pages, nil
}

// readEntry reads one zip entry, refusing to inflate past limit bytes even
// when the header under-reports the size.
func readEntry(f *zip.File, limit int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	if limit <= 0 {
		return io.ReadAll(rc)
	}
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, err
	}
	if err := checkSize(f.Name, int64(len(data)), limit); err != nil {
		return nil, err
	}
	return data, nil
}
