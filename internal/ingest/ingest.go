// Package ingest registers source PDFs as books: it validates them, stores
// the original in the blob store and records the book in the ledger.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/jackzampolin/qsplit/internal/blobstore"
	"github.com/jackzampolin/qsplit/internal/home"
	"github.com/jackzampolin/qsplit/internal/ledger"
)

// ErrInvalidPDF is returned when a file cannot be read as a PDF.
var ErrInvalidPDF = errors.New("invalid pdf")

// Request contains the parameters for ingesting a chapter.
type Request struct {
	PDFPaths  []string     // PDF file paths (will be sorted by numeric suffix and merged)
	Title     string       // Book title (optional, derived from filename if empty)
	SourceURL string       // Public URL the extraction service can fetch (optional)
	Logger    *slog.Logger // Optional logger for progress updates
}

// Result contains the result of a successful ingest operation.
type Result struct {
	BookID    string `json:"book_id" yaml:"book_id"`
	Title     string `json:"title" yaml:"title"`
	PageCount int    `json:"page_count" yaml:"page_count"`
	Key       string `json:"key" yaml:"key"`
}

// Ingest validates the PDFs, stores them as one original.pdf and creates
// the book record.
func Ingest(ctx context.Context, store blobstore.Store, led *ledger.Ledger, req Request) (*Result, error) {
	log := req.Logger
	if log == nil {
		log = slog.Default()
	}

	if len(req.PDFPaths) == 0 {
		return nil, fmt.Errorf("no PDF paths provided")
	}

	// Validate all PDF paths exist
	for _, p := range req.PDFPaths {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("PDF not found: %s", p)
		}
	}

	// Sort PDFs by numeric suffix (e.g., chapter-1.pdf, chapter-2.pdf)
	sortedPaths := sortPDFsByNumber(req.PDFPaths)
	log.Info("starting ingest", "pdfs", len(sortedPaths), "title", req.Title)

	pageCount := 0
	for _, p := range sortedPaths {
		n, err := pageCountFile(p)
		if err != nil {
			return nil, err
		}
		pageCount += n
	}
	if pageCount == 0 {
		return nil, fmt.Errorf("%w: no pages in input", ErrInvalidPDF)
	}

	// Derive title from first PDF filename if not provided
	title := req.Title
	if title == "" {
		title = deriveTitle(sortedPaths[0])
	}

	bookID := uuid.New().String()
	key := home.OriginalKey(bookID)

	if err := storeOriginal(ctx, store, key, sortedPaths); err != nil {
		return nil, err
	}

	book := &ledger.Book{
		ID:         bookID,
		Title:      title,
		SourceName: filepath.Base(sortedPaths[0]),
		SourceURL:  req.SourceURL,
		PageCount:  pageCount,
	}
	if err := led.CreateBook(ctx, book); err != nil {
		// Clean up on failure
		if derr := store.Delete(ctx, key); derr != nil {
			log.Warn("failed to remove stored original", "key", key, "error", derr)
		}
		return nil, fmt.Errorf("failed to create book record: %w", err)
	}

	log.Info("ingest complete", "book_id", bookID, "pages", pageCount)

	return &Result{
		BookID:    bookID,
		Title:     title,
		PageCount: pageCount,
		Key:       key,
	}, nil
}

// Verify re-reads a stored original and returns its page count.
func Verify(ctx context.Context, store blobstore.Store, bookID string) (int, error) {
	data, err := store.Read(ctx, home.OriginalKey(bookID))
	if err != nil {
		return 0, fmt.Errorf("failed to read original: %w", err)
	}
	n, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	return n, nil
}

// storeOriginal writes a single PDF as-is, or merges several parts in order.
func storeOriginal(ctx context.Context, store blobstore.Store, key string, paths []string) error {
	src := paths[0]
	if len(paths) > 1 {
		tmp, err := os.CreateTemp("", "qsplit-merge-*.pdf")
		if err != nil {
			return fmt.Errorf("failed to create temp file: %w", err)
		}
		tmp.Close()
		defer os.Remove(tmp.Name())

		if err := api.MergeCreateFile(paths, tmp.Name(), false, nil); err != nil {
			return fmt.Errorf("failed to merge PDFs: %w", err)
		}
		src = tmp.Name()
	}

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	if err := store.WriteFrom(ctx, key, f); err != nil {
		return fmt.Errorf("failed to store original: %w", err)
	}
	return nil
}

func pageCountFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	n, err := api.PageCount(f, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidPDF, filepath.Base(path), err)
	}
	return n, nil
}

var pdfNumberSuffix = regexp.MustCompile(`-(\d+)\.pdf$`)

// sortPDFsByNumber sorts PDF paths by their numeric suffix.
// e.g., ["ch-2.pdf", "ch-1.pdf", "ch-10.pdf"] -> ["ch-1.pdf", "ch-2.pdf", "ch-10.pdf"]
func sortPDFsByNumber(paths []string) []string {
	sorted := make([]string, len(paths))
	copy(sorted, paths)

	sort.Slice(sorted, func(i, j int) bool {
		mi := pdfNumberSuffix.FindStringSubmatch(sorted[i])
		mj := pdfNumberSuffix.FindStringSubmatch(sorted[j])

		// If both have numbers, sort numerically
		if len(mi) > 1 && len(mj) > 1 {
			ni, _ := strconv.Atoi(mi[1])
			nj, _ := strconv.Atoi(mj[1])
			return ni < nj
		}

		// Files without numbers come first
		if len(mi) > 1 {
			return false
		}
		if len(mj) > 1 {
			return true
		}

		// Both without numbers: alphabetical
		return sorted[i] < sorted[j]
	})

	return sorted
}

var titleNumberSuffix = regexp.MustCompile(`-\d+$`)

// deriveTitle extracts a title from a PDF filename.
// e.g., "physics-ch4.pdf" -> "physics-ch4"
// e.g., "motion-1.pdf" -> "motion"
func deriveTitle(pdfPath string) string {
	base := filepath.Base(pdfPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return titleNumberSuffix.ReplaceAllString(name, "")
}
