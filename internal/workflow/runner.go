package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jackzampolin/qsplit/internal/ledger"
)

// ErrDependencyIncomplete is returned when a stage's dependencies have not
// completed for the book.
var ErrDependencyIncomplete = errors.New("dependency not completed")

// Runner executes registered stages against the ledger.
type Runner struct {
	Registry *Registry
	Ledger   *ledger.Ledger
	Logger   *slog.Logger
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// Run executes one stage for a book and returns its ledger record. A stage
// that already completed is skipped unless opts.Force is set. Running a
// stage resets the records of its downstream stages to pending, so a
// re-extracted book has to be split again.
func (r *Runner) Run(ctx context.Context, bookID, name string, opts Options) (*ledger.StageRecord, error) {
	stage, ok := r.Registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStageNotFound, name)
	}

	for _, dep := range stage.Dependencies() {
		rec, err := r.Ledger.StageStatus(ctx, bookID, dep)
		if err != nil {
			return nil, err
		}
		if rec.Status != ledger.StatusCompleted {
			return nil, fmt.Errorf("%w: %s requires %s (status %s)", ErrDependencyIncomplete, name, dep, rec.Status)
		}
	}

	if !opts.Force {
		rec, err := r.Ledger.StageStatus(ctx, bookID, name)
		if err != nil {
			return nil, err
		}
		if rec.Status == ledger.StatusCompleted {
			r.logger().Info("stage already completed", "book_id", bookID, "stage", name)
			return rec, nil
		}
	}

	runID := uuid.New().String()
	if err := r.Ledger.StartStage(ctx, bookID, name, runID); err != nil {
		return nil, err
	}
	log := r.logger().With("book_id", bookID, "stage", name, "run_id", runID)
	log.Info("stage started")

	if stale := r.Registry.Downstream(name); len(stale) > 0 {
		n, err := r.Ledger.ResetStages(ctx, bookID, stale...)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			log.Info("reset downstream stages", "stages", stale)
		}
	}

	if opts.Logger == nil {
		opts.Logger = log
	}
	out, err := stage.Run(ctx, bookID, opts)
	if err != nil {
		log.Error("stage failed", "error", err)
		// Record the failure even if ctx was canceled.
		if ferr := r.Ledger.FailStage(context.WithoutCancel(ctx), bookID, name, err); ferr != nil {
			log.Error("failed to record stage failure", "error", ferr)
		}
		return nil, fmt.Errorf("stage %s: %w", name, err)
	}
	if out == nil {
		out = &Outcome{}
	}

	if err := r.Ledger.CompleteStage(ctx, bookID, name, out.Files, out.Metadata); err != nil {
		return nil, err
	}
	log.Info("stage completed", "files", len(out.Files))

	return r.Ledger.StageStatus(ctx, bookID, name)
}

// RunAll executes every registered stage in dependency order, stopping at
// the first failure.
func (r *Runner) RunAll(ctx context.Context, bookID string, opts Options) ([]ledger.StageRecord, error) {
	var records []ledger.StageRecord
	for _, s := range r.Registry.Ordered() {
		rec, err := r.Run(ctx, bookID, s.Name(), opts)
		if err != nil {
			return records, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

// Status returns the ledger record of every registered stage in dependency
// order. Stages that never ran are reported as pending.
func (r *Runner) Status(ctx context.Context, bookID string) ([]ledger.StageRecord, error) {
	if _, err := r.Ledger.GetBook(ctx, bookID); err != nil {
		return nil, err
	}
	ordered := r.Registry.Ordered()
	records := make([]ledger.StageRecord, 0, len(ordered))
	for _, s := range ordered {
		rec, err := r.Ledger.StageStatus(ctx, bookID, s.Name())
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}
