// Package workflow runs the per-book processing stages (ingest, extract,
// split) and records each run in the ledger.
package workflow

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/qsplit/internal/patterns"
)

// Stage is the interface that all book stages must implement.
type Stage interface {
	// Identity
	Name() string           // e.g., "extract", "split"
	Dependencies() []string // Stages that must complete first

	Description() string

	// Run performs the stage for one book. The runner records the outcome
	// in the ledger; stages do not touch stage records themselves.
	Run(ctx context.Context, bookID string, opts Options) (*Outcome, error)
}

// Outcome is what a successful stage produced.
type Outcome struct {
	Files    []string
	Metadata map[string]any
}

// Options configures a stage run. Fields a stage does not use are ignored.
type Options struct {
	// SourceURL overrides the book's stored source URL for extraction.
	SourceURL string

	// PageRanges limits extraction to pages, e.g. "1-10".
	PageRanges string

	// Catalog, Split and OverrideErrors are passed to the split pipeline.
	Catalog        *patterns.Catalog
	Split          *patterns.SplitConfig
	OverrideErrors []error

	// Force re-runs a stage that already completed.
	Force bool

	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}
