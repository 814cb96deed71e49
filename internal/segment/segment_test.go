package segment

import (
	"errors"
	"strings"
	"testing"
)

func TestLocatePriorityOverPosition(t *testing.T) {
	text := "xx B xxxxxxxx A xx"
	posA := strings.Index(text, "A")

	tests := []struct {
		name       string
		candidates []string
		from       int
		wantPos    int
		wantMarker string
		wantErr    bool
	}{
		{"priority wins over leftmost", []string{"A", "B"}, 0, posA, "A", false},
		{"falls back when first absent", []string{"C", "B"}, 0, 3, "B", false},
		{"respects floor", []string{"B", "A"}, 4, posA, "A", false},
		{"floor exactly at match", []string{"B"}, 3, 3, "B", false},
		{"nothing after floor", []string{"B"}, 4, 0, "", true},
		{"empty candidates skipped", []string{"", "A"}, 0, posA, "A", false},
		{"no candidates", nil, 0, 0, "", true},
		{"negative floor clamps", []string{"B"}, -10, 3, "B", false},
		{"floor past end", []string{"A"}, len(text) + 1, 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Locate(text, tt.candidates, tt.from)
			if tt.wantErr {
				if !errors.Is(err, ErrMarkerNotFound) {
					t.Fatalf("err = %v, want ErrMarkerNotFound", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Locate: %v", err)
			}
			if m.Pos != tt.wantPos || m.Marker != tt.wantMarker {
				t.Errorf("Locate = %+v, want pos %d marker %q", m, tt.wantPos, tt.wantMarker)
			}
		})
	}
}

func TestLocateDeterministic(t *testing.T) {
	text := strings.Repeat("# LEVEL\nbody\n", 5)
	first, err := Locate(text, []string{"# LEVEL (", "# LEVEL\n"}, 7)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	for i := 0; i < 10; i++ {
		m, err := Locate(text, []string{"# LEVEL (", "# LEVEL\n"}, 7)
		if err != nil || m != first {
			t.Fatalf("call %d = %+v, %v; want %+v", i, m, err, first)
		}
	}
}

func TestExtract(t *testing.T) {
	text := "intro\n# LEVEL1\nq1\nq2\n# LEVEL 2\nq3\n"

	r, err := Extract(text, []string{"# LEVEL1"}, []string{"# LEVEL 2"}, 0)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if r.Text != "# LEVEL1\nq1\nq2\n" {
		t.Errorf("text = %q", r.Text)
	}
	if r.Start != strings.Index(text, "# LEVEL1") || r.End != strings.Index(text, "# LEVEL 2") {
		t.Errorf("offsets = %d..%d", r.Start, r.End)
	}
	if r.StartMarker != "# LEVEL1" || r.EndMarker != "# LEVEL 2" {
		t.Errorf("markers = %q, %q", r.StartMarker, r.EndMarker)
	}
	if r.Len() != len(r.Text) {
		t.Errorf("Len = %d, want %d", r.Len(), len(r.Text))
	}
}

func TestExtractEndOfDocumentFallback(t *testing.T) {
	text := "# ACHIEVERS SECTION\nZ\n"
	r, err := Extract(text, []string{"# ACHIEVERS SECTION"}, []string{"# Answer-Key"}, 0)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if r.End != len(text) || !r.RunsToEnd() || r.EndMarker != EndOfDocument {
		t.Errorf("region = %+v, want run to end", r)
	}
	if r.Text != text {
		t.Errorf("text = %q", r.Text)
	}

	r, err = Extract(text, []string{"# ACHIEVERS SECTION"}, nil, 0)
	if err != nil || !r.RunsToEnd() {
		t.Errorf("empty end list: %+v, %v", r, err)
	}
}

func TestExtractEndSearchStartsAfterStartMarker(t *testing.T) {
	// The end marker is a prefix of the start marker; it must not match the
	// start heading itself.
	text := "# LEVEL\nlevel two body\n# LEVEL (3\n"
	r, err := Extract(text, []string{"# LEVEL\n"}, []string{"# LEVEL"}, 0)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if r.Text != "# LEVEL\nlevel two body\n" {
		t.Errorf("text = %q", r.Text)
	}
}

func TestExtractMissingStart(t *testing.T) {
	_, err := Extract("nothing here", []string{"# LEVEL1"}, []string{"# LEVEL2"}, 0)
	if !errors.Is(err, ErrMarkerNotFound) {
		t.Errorf("err = %v, want ErrMarkerNotFound", err)
	}
}

func TestExtractFloorDisambiguatesSharedMarkers(t *testing.T) {
	text := "# LEVEL\nfirst\n# LEVEL\nsecond\n"
	first, err := Extract(text, []string{"# LEVEL\n"}, []string{"# LEVEL\n"}, 0)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := Extract(text, []string{"# LEVEL\n"}, nil, first.End)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.Text != "# LEVEL\nfirst\n" || second.Text != "# LEVEL\nsecond\n" {
		t.Errorf("first = %q, second = %q", first.Text, second.Text)
	}
	if second.Start < first.End {
		t.Errorf("second start %d is before first end %d", second.Start, first.End)
	}
}

func TestSplitAtQuestion(t *testing.T) {
	text := "# LEVEL1\n1. a\n12. l\n13.foo\n14. n\n"
	s, err := SplitAt(text, 13, KindQuestion)
	if err != nil {
		t.Fatalf("SplitAt: %v", err)
	}
	if s.Part1 != "# LEVEL1\n1. a\n12. l" {
		t.Errorf("part1 = %q", s.Part1)
	}
	if s.Part2 != "\n13.foo\n14. n\n" {
		t.Errorf("part2 = %q", s.Part2)
	}
	if s.Part1+s.Part2 != text {
		t.Error("parts do not reassemble the text")
	}
	if s.Marker != "\n13." || s.Pos != len(s.Part1) {
		t.Errorf("marker = %q at %d", s.Marker, s.Pos)
	}
}

func TestSplitAtExplanation(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantPart2  string
		wantMarker string
	}{
		{
			"primary marker",
			"# 12. Correct option (a)\nx\n# 13. Correct option (b)\ny",
			"# 13. Correct option (b)\ny",
			"# 13. Correct option",
		},
		{
			"primary preferred over earlier loose match",
			"# 13. see below\n# 13. Correct option (d)\n",
			"# 13. Correct option (d)\n",
			"# 13. Correct option",
		},
		{
			"loose fallback",
			"# 12. (a) x\n# 13. (b) y",
			"# 13. (b) y",
			"# 13.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := SplitAt(tt.text, 13, KindExplanation)
			if err != nil {
				t.Fatalf("SplitAt: %v", err)
			}
			if s.Part2 != tt.wantPart2 || s.Marker != tt.wantMarker {
				t.Errorf("split = %+v", s)
			}
			if s.Part1+s.Part2 != tt.text {
				t.Error("parts do not reassemble the text")
			}
		})
	}
}

func TestSplitAtMissingOrdinal(t *testing.T) {
	text := "1. a\n2. b\n"
	for _, kind := range []Kind{KindQuestion, KindExplanation} {
		s, err := SplitAt(text, 13, kind)
		if !errors.Is(err, ErrSplitOrdinalNotFound) {
			t.Errorf("%s: err = %v, want ErrSplitOrdinalNotFound", kind, err)
		}
		if s.Part1 != text || s.Part2 != "" || s.Pos != -1 {
			t.Errorf("%s: split = %+v", kind, s)
		}
	}
}

func TestSplitMarkers(t *testing.T) {
	if got := SplitMarkers(11, KindQuestion); len(got) != 1 || got[0] != "\n11." {
		t.Errorf("question markers = %q", got)
	}
	got := SplitMarkers(11, KindExplanation)
	if len(got) != 2 || got[0] != "# 11. Correct option" || got[1] != "# 11." {
		t.Errorf("explanation markers = %q", got)
	}
}
