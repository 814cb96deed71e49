// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/jackzampolin/qsplit/internal/blobstore"
	"github.com/jackzampolin/qsplit/internal/config"
	"github.com/jackzampolin/qsplit/internal/detect"
	"github.com/jackzampolin/qsplit/internal/home"
	"github.com/jackzampolin/qsplit/internal/ledger"
	"github.com/jackzampolin/qsplit/internal/patterns"
	"github.com/jackzampolin/qsplit/internal/workflow"
)

// PatternState is the catalog built from the configured patterns file,
// together with the split rules and any per-section adapter errors.
// A PatternState is never modified once published.
type PatternState struct {
	Catalog *patterns.Catalog
	Split   patterns.SplitConfig
	Errors  []error
	Source  string // patterns file, empty for built-in defaults
}

// Patterns holds the current PatternState and swaps it atomically on
// config reload.
type Patterns struct {
	p atomic.Pointer[PatternState]
}

// NewPatterns returns a holder publishing st.
func NewPatterns(st *PatternState) *Patterns {
	h := &Patterns{}
	h.Store(st)
	return h
}

// Load returns the current state.
func (h *Patterns) Load() *PatternState { return h.p.Load() }

// Store publishes a new state.
func (h *Patterns) Store(st *PatternState) { h.p.Store(st) }

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Config   *config.Manager
	Ledger   *ledger.Ledger
	Store    blobstore.Store
	Home     *home.Dir
	Runner   *workflow.Runner
	Detector *detect.Detector
	Patterns *Patterns
	Logger   *slog.Logger
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// ConfigFrom extracts the config manager from context.
func ConfigFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Config
	}
	return nil
}

// LedgerFrom extracts the ledger from context.
func LedgerFrom(ctx context.Context) *ledger.Ledger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Ledger
	}
	return nil
}

// StoreFrom extracts the blob store from context.
func StoreFrom(ctx context.Context) blobstore.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}

// RunnerFrom extracts the stage runner from context.
func RunnerFrom(ctx context.Context) *workflow.Runner {
	if s := ServicesFrom(ctx); s != nil {
		return s.Runner
	}
	return nil
}

// DetectorFrom extracts the pattern detector from context.
func DetectorFrom(ctx context.Context) *detect.Detector {
	if s := ServicesFrom(ctx); s != nil {
		return s.Detector
	}
	return nil
}

// PatternsFrom returns the current pattern state, falling back to the
// built-in defaults when none is configured.
func PatternsFrom(ctx context.Context) *PatternState {
	if s := ServicesFrom(ctx); s != nil && s.Patterns != nil {
		if st := s.Patterns.Load(); st != nil {
			return st
		}
	}
	return &PatternState{Catalog: patterns.Default(), Split: patterns.DefaultSplitConfig()}
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
