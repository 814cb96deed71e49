package pipeline

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/jackzampolin/qsplit/internal/patterns"
	"github.com/jackzampolin/qsplit/internal/segment"
)

// exampleDoc is the canonical mixed-heading chapter: level 2 opens with a
// bare "# LEVEL" heading in every view.
const exampleDoc = "# Competency Focused Questions\n1. A\n# LEVEL1\n...12...\n13. X\n# LEVEL\n...10...\n11. Y\n" +
	"# ACHIEVERS SECTION\nZ\n# Answer-Key\n# Competency Focused Questions\nkeyA\n# LEVEL1\nkey1\n# LEVEL\nkey2\n" +
	"# ACHIEVERS SECTION\nkeyZ\n# Answers with Explanations\n# Competency Focused Questions\nexpA\n" +
	"# LEVEL1\n... # 13. Correct option ...\n# LEVEL\n... # 11. Correct option ...\n# ACHIEVERS SECTION\nexpZ"

// cleanDoc has every section with distinct headings.
const cleanDoc = `Theory intro.

# Competency Focused Questions
1. c1
# LEVEL1
1. a
2. b
3. c
# LEVEL 2
1. d
2. e
# ACHIEVERS SECTION
1. z
# Answer-Key
# Competency Focused Questions
1. (a)
# LEVEL1
1. (b) 2. (c) 3. (d)
# LEVEL2
1. (a) 2. (b)
# ACHIEVERS SECTION
1. (c)
# Answers with Explanations
# Competency Focused Questions
# 1. Correct option (a)
# LEVEL1
# 1. Correct option (b)
# 2. Correct option (c)
# 3. Correct option (d)
# LEVEL2
# 1. Correct option (a)
# 2. Correct option (b)
# ACHIEVERS SECTION
# 1. Correct option (c)
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func cleanSplit() *patterns.SplitConfig {
	return &patterns.SplitConfig{
		Level1: patterns.SplitRule{Enabled: true, At: 3, Expected: 3},
		Level2: patterns.SplitRule{Enabled: true, At: 2, Expected: 2},
	}
}

func slotPath(t *testing.T, view patterns.View, sec patterns.Section, part Part) string {
	t.Helper()
	for _, s := range SlotsFor(view, sec) {
		if s.Part == part {
			return s.Path
		}
	}
	t.Fatalf("no slot for %s/%s part %d", view, sec, part)
	return ""
}

func TestSlots(t *testing.T) {
	all := Slots()
	if len(all) != 19 {
		t.Fatalf("got %d slots, want 19", len(all))
	}

	seen := make(map[string]bool)
	perDir := make(map[string]int)
	for _, s := range all {
		if seen[s.Path] {
			t.Errorf("duplicate slot %s", s.Path)
		}
		seen[s.Path] = true
		perDir[strings.SplitN(s.Path, "/", 2)[0]]++
	}
	if perDir[QuestionDir] != 7 || perDir[AnswerKeyDir] != 6 || perDir[ExplanationDir] != 6 {
		t.Errorf("per-directory counts = %v", perDir)
	}

	for _, want := range []string{
		"Question_output/theory.md",
		"Question_output/Multiple_Choice_Questions_Level_1_Part_2.md",
		"Answer_key/Multiple_Choice_Questions_Level_2_Part_2_key.md",
		"Answer_output/ACHIEVERS_SECTION_ans.md",
		"Answer_key/Competency_Focused_Questions_key.md",
	} {
		if !seen[want] {
			t.Errorf("missing slot %s", want)
		}
	}
}

func TestRunCompleteOnAnyInput(t *testing.T) {
	inputs := map[string]string{
		"empty":      "",
		"no markers": "just some text\nwith lines\n",
		"only key":   "# Answer-Key\nnothing else",
		"example":    exampleDoc,
	}

	for name, doc := range inputs {
		t.Run(name, func(t *testing.T) {
			res := Run(doc, Options{Logger: quietLogger()})
			if len(res.Files) != 19 {
				t.Fatalf("got %d files, want 19", len(res.Files))
			}
			for _, s := range Slots() {
				if _, ok := res.Files[s.Path]; !ok {
					t.Errorf("missing slot %s", s.Path)
				}
			}
		})
	}
}

func TestRunEmptyDocumentIsAllPlaceholders(t *testing.T) {
	res := Run("", Options{Logger: quietLogger()})
	if len(res.Report.Placeholders) != 19 {
		t.Errorf("got %d placeholders, want 19", len(res.Report.Placeholders))
	}
	for _, s := range Slots() {
		if got := res.Files[s.Path]; got != Placeholder(s.View) {
			t.Errorf("%s = %q, want %s placeholder", s.Path, got, s.View)
		}
	}
	if res.Report.FoundCount() != 0 {
		t.Errorf("FoundCount = %d, want 0", res.Report.FoundCount())
	}
}

func TestRunExampleScenario(t *testing.T) {
	res := Run(exampleDoc, Options{Logger: quietLogger()})

	// Level 1 questions split just before "\n13.".
	q1 := res.Files[slotPath(t, patterns.ViewQuestions, patterns.SectionLevel1, Part1)]
	q2 := res.Files[slotPath(t, patterns.ViewQuestions, patterns.SectionLevel1, Part2)]
	if !strings.HasPrefix(q2, "\n13.") {
		t.Errorf("level1 part 2 = %q, want prefix %q", q2, "\n13.")
	}
	if q1 != "# LEVEL1\n...12..." {
		t.Errorf("level1 part 1 = %q", q1)
	}
	if !strings.Contains(exampleDoc, q1+q2) {
		t.Error("level1 parts do not reassemble a contiguous region")
	}

	// Level 2 questions split just before "\n11.".
	l2 := res.Files[slotPath(t, patterns.ViewQuestions, patterns.SectionLevel2, Part2)]
	if !strings.HasPrefix(l2, "\n11.") {
		t.Errorf("level2 part 2 = %q", l2)
	}

	// Level 1 answer keys are duplicated.
	k1 := res.Files[slotPath(t, patterns.ViewAnswerKeys, patterns.SectionLevel1, Part1)]
	k2 := res.Files[slotPath(t, patterns.ViewAnswerKeys, patterns.SectionLevel1, Part2)]
	if k1 != k2 {
		t.Errorf("level1 key files differ:\n%q\n%q", k1, k2)
	}
	if !strings.HasPrefix(k1, "# LEVEL1\nkey1") {
		t.Errorf("level1 key = %q", k1)
	}

	// Level 1 explanations split just before "# 13. Correct option".
	e2 := res.Files[slotPath(t, patterns.ViewExplanations, patterns.SectionLevel1, Part2)]
	if !strings.HasPrefix(e2, "# 13. Correct option") {
		t.Errorf("level1 explanation part 2 = %q", e2)
	}
	e1 := res.Files[slotPath(t, patterns.ViewExplanations, patterns.SectionLevel1, Part1)]
	if e1 != "# LEVEL1\n... " {
		t.Errorf("level1 explanation part 1 = %q", e1)
	}

	// The competency heading opens the document, so there is no theory.
	if got := res.Files["Question_output/theory.md"]; got != QuestionPlaceholder {
		t.Errorf("theory = %q, want placeholder", got)
	}
}

// In the example, the level 1 answer-key and explanation regions find none
// of their end markers ("# LEVEL" alone is not one), so they run to the end
// of their slice. The chain floor then sits at the slice end, and level 2
// and achievers of both views stay unfilled.
func TestRunExampleTrailingSections(t *testing.T) {
	res := Run(exampleDoc, Options{Logger: quietLogger()})

	k1 := res.Files[slotPath(t, patterns.ViewAnswerKeys, patterns.SectionLevel1, Part1)]
	if want := "# LEVEL1\nkey1\n# LEVEL\nkey2\n# ACHIEVERS SECTION\nkeyZ\n"; k1 != want {
		t.Errorf("level1 key = %q, want %q", k1, want)
	}
	e2 := res.Files[slotPath(t, patterns.ViewExplanations, patterns.SectionLevel1, Part2)]
	if !strings.HasSuffix(e2, "# ACHIEVERS SECTION\nexpZ") {
		t.Errorf("level1 explanation part 2 = %q, want it to run to the end", e2)
	}

	for _, tt := range []struct {
		view        patterns.View
		placeholder string
	}{
		{patterns.ViewAnswerKeys, AnswerKeyPlaceholder},
		{patterns.ViewExplanations, ExplanationPlaceholder},
	} {
		for _, sec := range []patterns.Section{patterns.SectionLevel2, patterns.SectionAchievers} {
			for _, slot := range SlotsFor(tt.view, sec) {
				if got := res.Files[slot.Path]; got != tt.placeholder {
					t.Errorf("%s = %q, want placeholder", slot.Path, got)
				}
			}
		}

		var reports []SectionReport
		for _, v := range res.Report.Views {
			if v.View == tt.view {
				reports = v.Sections
			}
		}
		if len(reports) != len(patterns.Sections) {
			t.Fatalf("%s: %d section reports", tt.view, len(reports))
		}
		l1 := reports[1]
		if !l1.Found || l1.EndMarker != segment.EndOfDocument {
			t.Errorf("%s level1 = found %v, end marker %q; want end of slice", tt.view, l1.Found, l1.EndMarker)
		}
		for _, rep := range reports[2:] {
			if rep.Found || rep.SearchFrom != l1.End {
				t.Errorf("%s/%s found=%v search_from=%d, want missing from %d", tt.view, rep.Section, rep.Found, rep.SearchFrom, l1.End)
			}
		}
	}
}

func TestRunCleanDocument(t *testing.T) {
	res := Run(cleanDoc, Options{Split: cleanSplit(), Logger: quietLogger()})

	if len(res.Report.Placeholders) != 0 {
		t.Errorf("unexpected placeholders: %v", res.Report.Placeholders)
	}
	if len(res.Report.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Report.Warnings)
	}
	if res.Report.FoundCount() != 12 {
		t.Errorf("FoundCount = %d, want 12", res.Report.FoundCount())
	}

	tests := []struct {
		path string
		want string
	}{
		{"Question_output/theory.md", "Theory intro."},
		{"Question_output/Competency_Focused_Questions.md", "# Competency Focused Questions\n1. c1\n"},
		{"Question_output/Multiple_Choice_Questions_Level_1.md", "# LEVEL1\n1. a\n2. b"},
		{"Question_output/Multiple_Choice_Questions_Level_1_Part_2.md", "\n3. c\n"},
		{"Question_output/Multiple_Choice_Questions_Level_2.md", "# LEVEL 2\n1. d"},
		{"Question_output/Multiple_Choice_Questions_Level_2_Part_2.md", "\n2. e\n"},
		{"Question_output/ACHIEVERS_SECTION.md", "# ACHIEVERS SECTION\n1. z\n"},
		{"Answer_key/Multiple_Choice_Questions_Level_2_key.md", "# LEVEL2\n1. (a) 2. (b)\n"},
		{"Answer_key/Multiple_Choice_Questions_Level_2_Part_2_key.md", "# LEVEL2\n1. (a) 2. (b)\n"},
		{"Answer_key/ACHIEVERS_SECTION_key.md", "# ACHIEVERS SECTION\n1. (c)\n"},
		{"Answer_output/Multiple_Choice_Questions_Level_1_Part_2_ans.md", "# 3. Correct option (d)\n"},
		{"Answer_output/Multiple_Choice_Questions_Level_2_Part_2_ans.md", "# 2. Correct option (b)\n"},
		{"Answer_output/ACHIEVERS_SECTION_ans.md", "# ACHIEVERS SECTION\n# 1. Correct option (c)\n"},
	}
	for _, tt := range tests {
		if got := res.Files[tt.path]; got != tt.want {
			t.Errorf("%s = %q, want %q", tt.path, got, tt.want)
		}
	}

	sr := res.Report.Section(patterns.ViewQuestions, patterns.SectionLevel1)
	if sr.Split == nil || !sr.Split.Found || sr.Split.Part1Count != 2 || sr.Split.Part2Count != 1 {
		t.Errorf("level1 split report = %+v", sr.Split)
	}
	if sr.Split.Part1Range != "1-2" || sr.Split.Part2Range != "3-3" {
		t.Errorf("ranges = %s, %s", sr.Split.Part1Range, sr.Split.Part2Range)
	}
	kr := res.Report.Section(patterns.ViewAnswerKeys, patterns.SectionLevel1)
	if !kr.Duplicated || len(kr.Files) != 2 {
		t.Errorf("answer-key level1 report = %+v", kr)
	}
}

func TestRunOffsetsAreAbsolute(t *testing.T) {
	res := Run(cleanDoc, Options{Split: cleanSplit(), Logger: quietLogger()})

	for _, vr := range res.Report.Views {
		for _, sr := range vr.Sections {
			if !sr.Found {
				continue
			}
			if got := cleanDoc[sr.Start : sr.Start+len(sr.StartMarker)]; got != sr.StartMarker {
				t.Errorf("%s/%s: document at %d is %q, want %q", vr.View, sr.Section, sr.Start, got, sr.StartMarker)
			}
		}
	}

	keys := res.Report.View(patterns.ViewAnswerKeys)
	if keys.Region == nil || !keys.Region.Found || keys.Region.Start != strings.Index(cleanDoc, "# Answer-Key") {
		t.Errorf("answer-key region = %+v", keys.Region)
	}
	if keys.Region.End != strings.Index(cleanDoc, "# Answers with Explanations") {
		t.Errorf("answer-key region end = %d", keys.Region.End)
	}
}

func TestRunMonotonicFloor(t *testing.T) {
	for _, doc := range []string{exampleDoc, cleanDoc} {
		res := Run(doc, Options{Logger: quietLogger()})
		for _, vr := range res.Report.Views {
			prevEnd := -1
			for _, sr := range vr.Sections {
				if !sr.Found {
					continue
				}
				if sr.Start < prevEnd {
					t.Errorf("%s/%s starts at %d before previous end %d", vr.View, sr.Section, sr.Start, prevEnd)
				}
				if sr.SearchFrom > sr.Start {
					t.Errorf("%s/%s found at %d before its floor %d", vr.View, sr.Section, sr.Start, sr.SearchFrom)
				}
				prevEnd = sr.End
			}
		}
	}
}

func TestRunSharedMarkersResolvedByFloor(t *testing.T) {
	doc := "# Answers with Explanations\n# Competency Focused Questions\nx\n" +
		"# LEVEL1\nfirst tier\n# LEVEL (2\nsecond tier\n# ACHIEVERS SECTION\nlast"
	res := Run(doc, Options{Logger: quietLogger()})

	l1 := res.Report.Section(patterns.ViewExplanations, patterns.SectionLevel1)
	l2 := res.Report.Section(patterns.ViewExplanations, patterns.SectionLevel2)
	if !l1.Found || !l2.Found {
		t.Fatalf("level1 found=%v level2 found=%v", l1.Found, l2.Found)
	}
	// "# LEVEL (" ends level 1 and also starts level 2.
	if l1.EndMarker != "# LEVEL (" || l2.StartMarker != "# LEVEL (" || l2.Start != l1.End {
		t.Errorf("level1 = %+v\nlevel2 = %+v", l1, l2)
	}
}

func TestRunIdempotent(t *testing.T) {
	for _, doc := range []string{"", exampleDoc, cleanDoc} {
		a := Run(doc, Options{Logger: quietLogger()})
		b := Run(doc, Options{Logger: quietLogger()})
		if !reflect.DeepEqual(a.Files, b.Files) {
			t.Error("file sets differ between runs")
		}
		if !reflect.DeepEqual(a.Report, b.Report) {
			t.Error("reports differ between runs")
		}
	}
}

func TestRunOverridePrecedence(t *testing.T) {
	doc := "# Competency Focused Questions\nc\n# LEVEL1\nearly default heading\n## TIER ONE\n1. a\n2. b\n# LEVEL 2\n1. x\n"

	o := patterns.NewSet()
	o.Put(patterns.ViewQuestions, patterns.SectionLevel1, patterns.Markers{
		Start: []string{"## TIER ONE"},
		End:   []string{"# LEVEL 2"},
	})
	res := Run(doc, Options{Catalog: patterns.NewCatalog(&o), Logger: quietLogger()})

	sr := res.Report.Section(patterns.ViewQuestions, patterns.SectionLevel1)
	if !sr.Found || sr.StartMarker != "## TIER ONE" || !sr.Overridden {
		t.Fatalf("level1 report = %+v", sr)
	}
	if sr.Start != strings.Index(doc, "## TIER ONE") {
		t.Errorf("level1 start = %d, want override position", sr.Start)
	}
	got := res.Files[slotPath(t, patterns.ViewQuestions, patterns.SectionLevel1, Part1)]
	if strings.Contains(got, "early default heading") {
		t.Errorf("default marker leaked into override result: %q", got)
	}
}

func TestRunSplitOrdinalMissing(t *testing.T) {
	doc := "# Competency Focused Questions\nc\n# LEVEL1\n1. a\n2. b\n# LEVEL 2\n1. x\n"
	res := Run(doc, Options{Logger: quietLogger()})

	p1 := res.Files[slotPath(t, patterns.ViewQuestions, patterns.SectionLevel1, Part1)]
	p2 := res.Files[slotPath(t, patterns.ViewQuestions, patterns.SectionLevel1, Part2)]
	if p1 != "# LEVEL1\n1. a\n2. b\n" || p2 != "" {
		t.Errorf("parts = %q, %q", p1, p2)
	}

	sr := res.Report.Section(patterns.ViewQuestions, patterns.SectionLevel1)
	if sr.Split == nil || sr.Split.Found {
		t.Errorf("split report = %+v", sr.Split)
	}
	found := false
	for _, w := range res.Report.Warnings {
		if strings.Contains(w, "split marker for 13 not found") {
			found = true
		}
	}
	if !found {
		t.Errorf("missing split warning in %v", res.Report.Warnings)
	}
}

func TestRunDisabledSplitDuplicates(t *testing.T) {
	split := patterns.DefaultSplitConfig()
	split.Level1.Enabled = false
	res := Run(exampleDoc, Options{Split: &split, Logger: quietLogger()})

	p1 := res.Files[slotPath(t, patterns.ViewQuestions, patterns.SectionLevel1, Part1)]
	p2 := res.Files[slotPath(t, patterns.ViewQuestions, patterns.SectionLevel1, Part2)]
	if p1 != p2 || !strings.Contains(p1, "13. X") {
		t.Errorf("disabled split parts = %q, %q", p1, p2)
	}
	if sr := res.Report.Section(patterns.ViewQuestions, patterns.SectionLevel1); !sr.Duplicated || sr.Split != nil {
		t.Errorf("level1 report = %+v", sr)
	}
}

func TestRunReportsOverrideErrors(t *testing.T) {
	res := Run("", Options{
		OverrideErrors: []error{errors.New("questions/level9: unknown section")},
		Logger:         quietLogger(),
	})
	if len(res.Report.OverrideErrors) != 1 {
		t.Errorf("override errors = %v", res.Report.OverrideErrors)
	}
}

func TestReadDocument(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "full.md")
	if err := os.WriteFile(good, []byte("# Title\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	doc, err := ReadDocument(good)
	if err != nil || doc != "# Title\n" {
		t.Errorf("ReadDocument = %q, %v", doc, err)
	}

	bad := filepath.Join(dir, "bad.md")
	if err := os.WriteFile(bad, []byte{0xff, 0xfe, 0x00}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadDocument(bad); !errors.Is(err, ErrDocumentUnreadable) {
		t.Errorf("invalid UTF-8: err = %v", err)
	}
	if _, err := ReadDocument(filepath.Join(dir, "missing.md")); !errors.Is(err, ErrDocumentUnreadable) {
		t.Errorf("missing file: err = %v", err)
	}
}
