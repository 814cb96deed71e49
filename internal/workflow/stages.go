package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackzampolin/qsplit/internal/blobstore"
	"github.com/jackzampolin/qsplit/internal/home"
	"github.com/jackzampolin/qsplit/internal/ingest"
	"github.com/jackzampolin/qsplit/internal/ledger"
	"github.com/jackzampolin/qsplit/internal/mineru"
	"github.com/jackzampolin/qsplit/internal/output"
	"github.com/jackzampolin/qsplit/internal/pipeline"
)

// Stage names.
const (
	StageIngest  = "ingest"
	StageExtract = "extract"
	StageSplit   = "split"
)

// ErrNoSourceURL is returned when extraction has no URL to hand the
// extraction service.
var ErrNoSourceURL = errors.New("book has no source url")

// Extractor turns a source document into markdown and images under dir.
// *mineru.Client implements it.
type Extractor interface {
	Extract(ctx context.Context, req mineru.TaskRequest, dir string, onProgress func(*mineru.Task)) (*mineru.Result, error)
}

// Deps are the collaborators of the built-in stages.
type Deps struct {
	Store     blobstore.Store
	Ledger    *ledger.Ledger
	Home      *home.Dir
	Extractor Extractor
}

// NewDefaultRegistry returns the ingest, extract and split stages.
func NewDefaultRegistry(d Deps) (*Registry, error) {
	return NewRegistry(
		&IngestStage{Store: d.Store, Ledger: d.Ledger},
		&ExtractStage{Extractor: d.Extractor, Ledger: d.Ledger, Home: d.Home},
		&SplitStage{Store: d.Store, Home: d.Home},
	)
}

// IngestStage confirms the stored original is a readable PDF with the page
// count recorded at registration.
type IngestStage struct {
	Store  blobstore.Store
	Ledger *ledger.Ledger
}

func (s *IngestStage) Name() string           { return StageIngest }
func (s *IngestStage) Dependencies() []string { return nil }
func (s *IngestStage) Description() string    { return "Verify the stored source PDF" }

func (s *IngestStage) Run(ctx context.Context, bookID string, opts Options) (*Outcome, error) {
	book, err := s.Ledger.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	pages, err := ingest.Verify(ctx, s.Store, bookID)
	if err != nil {
		return nil, err
	}
	if book.PageCount != 0 && pages != book.PageCount {
		return nil, fmt.Errorf("%w: stored original has %d pages, expected %d", ingest.ErrInvalidPDF, pages, book.PageCount)
	}
	return &Outcome{
		Files:    []string{home.OriginalKey(bookID)},
		Metadata: map[string]any{"page_count": pages},
	}, nil
}

// ExtractStage sends the book to the extraction service and unpacks the
// result into the book's extracted directory.
type ExtractStage struct {
	Extractor Extractor
	Ledger    *ledger.Ledger
	Home      *home.Dir
}

func (s *ExtractStage) Name() string           { return StageExtract }
func (s *ExtractStage) Dependencies() []string { return []string{StageIngest} }
func (s *ExtractStage) Description() string    { return "Extract markdown and images from the source PDF" }

func (s *ExtractStage) Run(ctx context.Context, bookID string, opts Options) (*Outcome, error) {
	if s.Extractor == nil {
		return nil, errors.New("no extractor configured")
	}
	book, err := s.Ledger.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	url := opts.SourceURL
	if url == "" {
		url = book.SourceURL
	}
	if url == "" {
		return nil, ErrNoSourceURL
	}
	if opts.SourceURL != "" && opts.SourceURL != book.SourceURL {
		if err := s.Ledger.SetSourceURL(ctx, bookID, opts.SourceURL); err != nil {
			return nil, err
		}
	}

	dir := s.Home.ExtractedDir(bookID)
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("failed to clear %s: %w", dir, err)
	}

	log := opts.logger()
	res, err := s.Extractor.Extract(ctx, mineru.TaskRequest{
		URL:        url,
		DataID:     bookID,
		PageRanges: opts.PageRanges,
	}, dir, func(t *mineru.Task) {
		if t.Progress != nil {
			log.Info("extraction progress", "state", t.State,
				"pages", t.Progress.ExtractedPages, "total", t.Progress.TotalPages)
		}
	})
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(res.Files))
	for _, f := range res.Files {
		files = append(files, home.BookKey(bookID, home.ExtractedName, f))
	}
	return &Outcome{
		Files:    files,
		Metadata: map[string]any{"task_id": res.TaskID, "zip_url": res.ZipURL},
	}, nil
}

// SplitStage runs the segmentation pipeline over the extracted document and
// stores the split files.
type SplitStage struct {
	Store blobstore.Store
	Home  *home.Dir
}

func (s *SplitStage) Name() string           { return StageSplit }
func (s *SplitStage) Dependencies() []string { return []string{StageExtract} }
func (s *SplitStage) Description() string    { return "Split the extracted chapter into section files" }

func (s *SplitStage) Run(ctx context.Context, bookID string, opts Options) (*Outcome, error) {
	dir := s.Home.ExtractedDir(bookID)
	doc, err := pipeline.ReadDocument(filepath.Join(dir, mineru.FullMarkdown))
	if err != nil {
		return nil, err
	}

	log := opts.logger()
	res := pipeline.Run(doc, pipeline.Options{
		Catalog:        opts.Catalog,
		Split:          opts.Split,
		OverrideErrors: opts.OverrideErrors,
		Logger:         log,
	})

	w := &output.Writer{Store: s.Store, Prefix: home.SplitsKey(bookID), Logger: log}
	sum, err := w.Write(ctx, res, dir)
	if err != nil {
		return nil, err
	}

	return &Outcome{
		Files: sum.Files,
		Metadata: map[string]any{
			"placeholders": res.Report.Placeholders,
			"warnings":     len(res.Report.Warnings),
			"images":       sum.CopiedImages,
		},
	}, nil
}
