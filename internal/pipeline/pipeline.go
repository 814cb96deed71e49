// Package pipeline runs the three extraction passes over a chapter document
// and assembles the fixed set of output files.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/jackzampolin/qsplit/internal/patterns"
	"github.com/jackzampolin/qsplit/internal/segment"
)

// ErrDocumentUnreadable is returned when the input document cannot be read
// or is not valid UTF-8.
var ErrDocumentUnreadable = errors.New("document unreadable")

// ReadDocument loads a chapter document from disk.
func ReadDocument(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDocumentUnreadable, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8", ErrDocumentUnreadable, path)
	}
	return string(data), nil
}

// Options configures a run. The zero value uses the built-in patterns and
// the default split rules.
type Options struct {
	// Catalog resolves markers. Nil means patterns.Default().
	Catalog *patterns.Catalog

	// Split configures the level 1 and level 2 splits. Nil means
	// patterns.DefaultSplitConfig().
	Split *patterns.SplitConfig

	// OverrideErrors are adapter errors for override sections that were
	// rejected; they are copied into the report.
	OverrideErrors []error

	// Logger for extraction events. Nil means slog.Default().
	Logger *slog.Logger
}

// Result is the outcome of a run.
type Result struct {
	// Files maps every slot path to its content. It always holds one entry
	// per slot.
	Files  map[string]string
	Report *Report
}

// Content returns the text of a slot.
func (r *Result) Content(s Slot) string {
	return r.Files[s.Path]
}

// Run extracts every section of doc. It never fails: sections that cannot
// be located become placeholders and are listed in the report.
func Run(doc string, opts Options) *Result {
	r := newRunner(doc, opts)
	r.questions()
	r.answerKeys()
	r.explanations()
	r.finalize()
	return &Result{Files: r.files, Report: r.report}
}

type runner struct {
	doc     string
	catalog *patterns.Catalog
	split   patterns.SplitConfig
	logger  *slog.Logger

	files    map[string]string
	assigned map[string]bool
	report   *Report
}

func newRunner(doc string, opts Options) *runner {
	r := &runner{
		doc:      doc,
		catalog:  opts.Catalog,
		logger:   opts.Logger,
		files:    make(map[string]string, len(slots)),
		assigned: make(map[string]bool, len(slots)),
	}
	if r.catalog == nil {
		r.catalog = patterns.Default()
	}
	if opts.Split != nil {
		r.split = *opts.Split
	} else {
		r.split = patterns.DefaultSplitConfig()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}

	r.report = &Report{
		Split:        r.split,
		Placeholders: []string{},
		Warnings:     []string{},
	}
	for _, err := range opts.OverrideErrors {
		r.report.OverrideErrors = append(r.report.OverrideErrors, err.Error())
	}
	return r
}

// chainResult is one located or missing section of a chain.
type chainResult struct {
	section patterns.Section
	region  segment.Region
	found   bool
}

// chain runs competency, level1, level2, achievers over text. Each search
// starts where the previous located section ended; a missing section leaves
// the floor where it was. base converts slice offsets to document offsets.
func (r *runner) chain(view patterns.View, text string, base int) ([]chainResult, []SectionReport) {
	results := make([]chainResult, 0, len(patterns.Sections))
	reports := make([]SectionReport, 0, len(patterns.Sections))
	floor := 0

	for _, sec := range patterns.Sections {
		m := r.catalog.Markers(view, sec)
		rep := SectionReport{
			Section:    sec,
			Overridden: r.catalog.Overridden(view, sec),
			SearchFrom: base + floor,
			Files:      []string{},
		}

		region, err := segment.Extract(text, m.Start, m.End, floor)
		if err != nil {
			r.logger.Warn("section not found", "view", view, "section", sec, "search_from", base+floor)
			r.warnf("%s/%s: no start marker found after offset %d", view, sec, base+floor)
			results = append(results, chainResult{section: sec})
			reports = append(reports, rep)
			continue
		}

		rep.Found = true
		rep.Start = base + region.Start
		rep.End = base + region.End
		rep.StartMarker = region.StartMarker
		rep.EndMarker = region.EndMarker
		rep.Length = region.Len()
		r.logger.Debug("section extracted",
			"view", view,
			"section", sec,
			"start", rep.Start,
			"end", rep.End,
			"start_marker", region.StartMarker,
			"end_marker", region.EndMarker)

		results = append(results, chainResult{section: sec, region: region, found: true})
		reports = append(reports, rep)
		floor = region.End
	}
	return results, reports
}

func (r *runner) questions() {
	results, reports := r.chain(patterns.ViewQuestions, r.doc, 0)

	comp := results[0]
	if comp.found && comp.region.Start > 0 {
		theory := strings.TrimSpace(r.doc[:comp.region.Start])
		if theory != "" {
			r.assign(SlotsFor(patterns.ViewQuestions, "")[0], theory)
			r.report.Theory = TheoryReport{
				Found:     true,
				End:       comp.region.Start,
				EndMarker: comp.region.StartMarker,
				Length:    len(theory),
			}
		} else {
			r.warnf("theory: no content before the competency heading")
		}
	} else if comp.found {
		r.warnf("theory: competency heading opens the document")
	} else {
		r.warnf("theory: competency heading not found")
	}

	for i, res := range results {
		if res.found {
			r.place(patterns.ViewQuestions, res, &reports[i], segment.KindQuestion)
		}
	}
	r.report.Views = append(r.report.Views, ViewReport{View: patterns.ViewQuestions, Sections: reports})
}

func (r *runner) answerKeys() {
	view := patterns.ViewAnswerKeys
	region := &RegionReport{}

	start, err := segment.Locate(r.doc, r.catalog.SliceStart(view), 0)
	if err != nil {
		r.logger.Warn("answer-key region not found")
		r.warnf("%s: region start not found", view)
		r.report.Views = append(r.report.Views, ViewReport{View: view, Region: region, Sections: r.missing()})
		return
	}

	end := len(r.doc)
	endMarker := segment.EndOfDocument
	if m, err := segment.Locate(r.doc, r.catalog.SliceStart(patterns.ViewExplanations), start.Pos); err == nil {
		end = m.Pos
		endMarker = m.Marker
	}
	*region = RegionReport{Found: true, Start: start.Pos, End: end, StartMarker: start.Marker, EndMarker: endMarker}

	results, reports := r.chain(view, r.doc[start.Pos:end], start.Pos)
	for i, res := range results {
		if !res.found {
			continue
		}
		r.place(view, res, &reports[i], "")
		if !patterns.LooksLikeAnswerKey(res.region.Text) {
			r.warnf("%s/%s: content has no answer entries or table", view, res.section)
		}
	}
	r.report.Views = append(r.report.Views, ViewReport{View: view, Region: region, Sections: reports})
}

func (r *runner) explanations() {
	view := patterns.ViewExplanations
	region := &RegionReport{}

	start, err := segment.Locate(r.doc, r.catalog.SliceStart(view), 0)
	if err != nil {
		r.logger.Warn("explanation region not found")
		r.warnf("%s: region start not found", view)
		r.report.Views = append(r.report.Views, ViewReport{View: view, Region: region, Sections: r.missing()})
		return
	}
	*region = RegionReport{
		Found:       true,
		Start:       start.Pos,
		End:         len(r.doc),
		StartMarker: start.Marker,
		EndMarker:   segment.EndOfDocument,
	}

	results, reports := r.chain(view, r.doc[start.Pos:], start.Pos)
	for i, res := range results {
		if res.found {
			r.place(view, res, &reports[i], segment.KindExplanation)
		}
	}
	r.report.Views = append(r.report.Views, ViewReport{View: view, Region: region, Sections: reports})
}

// missing reports every section absent, for a view whose region is missing.
func (r *runner) missing() []SectionReport {
	out := make([]SectionReport, 0, len(patterns.Sections))
	for _, sec := range patterns.Sections {
		out = append(out, SectionReport{Section: sec, Files: []string{}})
	}
	return out
}

// place writes a located section into its slots. Level 1 and level 2 are
// split when kind is set and the tier's rule is enabled; otherwise the text
// is duplicated into both slots.
func (r *runner) place(view patterns.View, res chainResult, rep *SectionReport, kind segment.Kind) {
	targets := SlotsFor(view, res.section)
	text := res.region.Text

	if len(targets) == 1 {
		r.assign(targets[0], text)
		rep.Files = append(rep.Files, targets[0].Path)
		return
	}

	rule, _ := r.split.Rule(res.section)
	if kind == "" || !rule.Enabled {
		for _, s := range targets {
			r.assign(s, text)
			rep.Files = append(rep.Files, s.Path)
		}
		rep.Duplicated = true
		return
	}

	sp, err := segment.SplitAt(text, rule.At, kind)
	if err != nil {
		r.logger.Warn("split ordinal not found", "view", view, "section", res.section, "ordinal", rule.At)
		r.warnf("%s/%s: split marker for %d not found; whole section kept in part 1", view, res.section, rule.At)
	}

	p1, p2 := rule.Ranges()
	split := &SplitReport{
		Ordinal:     rule.At,
		Found:       err == nil,
		Marker:      sp.Marker,
		Part1Range:  p1,
		Part2Range:  p2,
		Part1Length: len(sp.Part1),
		Part2Length: len(sp.Part2),
	}
	r.checkCounts(view, res.section, rule, sp, split)
	rep.Split = split

	for _, s := range targets {
		if s.Part == Part2 {
			r.assign(s, sp.Part2)
		} else {
			r.assign(s, sp.Part1)
		}
		rep.Files = append(rep.Files, s.Path)
	}
}

// checkCounts compares numbered items in each part against the configured
// expectations. Mismatches are warnings only.
func (r *runner) checkCounts(view patterns.View, sec patterns.Section, rule patterns.SplitRule, sp segment.Split, rep *SplitReport) {
	count := patterns.CountQuestions
	noun := "questions"
	if view == patterns.ViewExplanations {
		count = patterns.CountExplanations
		noun = "explanations"
	}
	rep.Part1Count = count(sp.Part1)
	rep.Part2Count = count(sp.Part2)

	if want := rule.At - 1; rep.Part1Count != want {
		r.warnf("%s/%s: part 1 has %d %s, expected %d (%s)", view, sec, rep.Part1Count, noun, want, rep.Part1Range)
	}
	if rule.Expected > 0 {
		if want := rule.Expected - rule.At + 1; rep.Part2Count != want {
			r.warnf("%s/%s: part 2 has %d %s, expected %d (%s)", view, sec, rep.Part2Count, noun, want, rep.Part2Range)
		}
	}
}

// finalize fills every slot that no step assigned.
func (r *runner) finalize() {
	for _, s := range slots {
		if r.assigned[s.Path] {
			continue
		}
		r.files[s.Path] = s.Placeholder()
		r.report.Placeholders = append(r.report.Placeholders, s.Path)
		r.logger.Warn("placeholder written", "file", s.Path)
	}
}

func (r *runner) assign(s Slot, content string) {
	r.files[s.Path] = content
	r.assigned[s.Path] = true
}

func (r *runner) warnf(format string, args ...any) {
	r.report.Warnings = append(r.report.Warnings, fmt.Sprintf(format, args...))
}
