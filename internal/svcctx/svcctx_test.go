package svcctx

import (
	"context"
	"testing"

	"github.com/jackzampolin/qsplit/internal/patterns"
)

func TestServicesFromEmptyContext(t *testing.T) {
	ctx := context.Background()
	if ServicesFrom(ctx) != nil {
		t.Error("expected nil services")
	}
	if LedgerFrom(ctx) != nil || StoreFrom(ctx) != nil || RunnerFrom(ctx) != nil {
		t.Error("expected nil extractors")
	}
	if LoggerFrom(ctx) == nil {
		t.Error("LoggerFrom should fall back to the default logger")
	}
	st := PatternsFrom(ctx)
	if st.Catalog == nil || st.Split != patterns.DefaultSplitConfig() {
		t.Errorf("default pattern state = %+v", st)
	}
}

func TestPatternsSwap(t *testing.T) {
	first := &PatternState{Catalog: patterns.Default(), Split: patterns.DefaultSplitConfig()}
	h := NewPatterns(first)
	ctx := WithServices(context.Background(), &Services{Patterns: h})

	if PatternsFrom(ctx) != first {
		t.Fatal("expected first state")
	}

	cat, err := first.Catalog.WithPrepended(patterns.ViewQuestions, patterns.SectionLevel1, patterns.MarkerStart, "# TIER ONE")
	if err != nil {
		t.Fatal(err)
	}
	second := &PatternState{Catalog: cat, Source: "patterns.yaml"}
	h.Store(second)

	if got := PatternsFrom(ctx); got != second {
		t.Errorf("got %+v, want second state", got)
	}
	if first.Catalog.Markers(patterns.ViewQuestions, patterns.SectionLevel1).Start[0] == "# TIER ONE" {
		t.Error("published state was modified")
	}
}
