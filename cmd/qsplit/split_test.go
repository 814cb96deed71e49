package main

import (
	"testing"

	"github.com/jackzampolin/qsplit/internal/config"
	"github.com/jackzampolin/qsplit/internal/patterns"
)

func TestParsePrepend(t *testing.T) {
	tests := []struct {
		in      string
		view    patterns.View
		sec     patterns.Section
		kind    patterns.MarkerKind
		marker  string
		wantErr bool
	}{
		{in: "questions/level1/start=# LEVEL-I", view: patterns.ViewQuestions, sec: patterns.SectionLevel1, kind: patterns.MarkerStart, marker: "# LEVEL-I"},
		{in: `questions/level2/start=# LEVEL\n`, view: patterns.ViewQuestions, sec: patterns.SectionLevel2, kind: patterns.MarkerStart, marker: "# LEVEL\n"},
		{in: "answer_keys/achievers/end=x=y", view: patterns.ViewAnswerKeys, sec: patterns.SectionAchievers, kind: patterns.MarkerEnd, marker: "x=y"},
		{in: "questions/level1", wantErr: true},
		{in: "questions/start=# X", wantErr: true},
		{in: "answers/level1/start=# X", wantErr: true},
		{in: "questions/level9/start=# X", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			view, sec, kind, marker, err := parsePrepend(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parsePrepend: %v", err)
			}
			if view != tt.view || sec != tt.sec || kind != tt.kind || marker != tt.marker {
				t.Errorf("got %s/%s/%s=%q", view, sec, kind, marker)
			}
		})
	}
}

func TestLocalSplitOptions(t *testing.T) {
	cmd := splitCmd
	if err := cmd.Flags().Set("level1-at", "9"); err != nil {
		t.Fatal(err)
	}
	splitPrepend = []string{"questions/level1/start=# TIER ONE"}
	t.Cleanup(func() {
		splitPrepend = nil
		splitLevel1At = 13
		cmd.Flags().Lookup("level1-at").Changed = false
	})

	opts, err := localSplitOptions(cmd, config.DefaultConfig())
	if err != nil {
		t.Fatalf("localSplitOptions: %v", err)
	}
	if opts.Split.Level1.At != 9 || opts.Split.Level2.At != 11 {
		t.Errorf("split = %+v", opts.Split)
	}
	start := opts.Catalog.Markers(patterns.ViewQuestions, patterns.SectionLevel1).Start
	if len(start) < 2 || start[0] != "# TIER ONE" {
		t.Errorf("level1 start = %q", start)
	}
	if patterns.Default().Markers(patterns.ViewQuestions, patterns.SectionLevel1).Start[0] == "# TIER ONE" {
		t.Error("prepend leaked into the default catalog")
	}

	if err := cmd.Flags().Set("level1-at", "1"); err != nil {
		t.Fatal(err)
	}
	if _, err := localSplitOptions(cmd, config.DefaultConfig()); err == nil {
		t.Error("ordinal 1 should fail validation")
	}
}
