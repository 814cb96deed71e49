package pipeline

import (
	"github.com/jackzampolin/qsplit/internal/patterns"
)

// Report records what each extraction step found. It is diagnostic output
// for callers; the pipeline never reads it back.
type Report struct {
	Split          patterns.SplitConfig `json:"split" yaml:"split"`
	Theory         TheoryReport         `json:"theory" yaml:"theory"`
	Views          []ViewReport         `json:"views" yaml:"views"`
	Placeholders   []string             `json:"placeholders" yaml:"placeholders"`
	Warnings       []string             `json:"warnings" yaml:"warnings"`
	OverrideErrors []string             `json:"override_errors,omitempty" yaml:"override_errors,omitempty"`
}

// TheoryReport describes the preamble before the first competency heading.
type TheoryReport struct {
	Found     bool   `json:"found" yaml:"found"`
	End       int    `json:"end" yaml:"end"`
	EndMarker string `json:"end_marker,omitempty" yaml:"end_marker,omitempty"`
	Length    int    `json:"length" yaml:"length"`
}

// ViewReport holds the per-section results of one view.
type ViewReport struct {
	View patterns.View `json:"view" yaml:"view"`
	// Region bounds the answer-key or explanation block; nil for questions.
	Region   *RegionReport   `json:"region,omitempty" yaml:"region,omitempty"`
	Sections []SectionReport `json:"sections" yaml:"sections"`
}

// RegionReport bounds the slice of the document a view's chain runs in.
type RegionReport struct {
	Found       bool   `json:"found" yaml:"found"`
	Start       int    `json:"start" yaml:"start"`
	End         int    `json:"end" yaml:"end"`
	StartMarker string `json:"start_marker,omitempty" yaml:"start_marker,omitempty"`
	EndMarker   string `json:"end_marker,omitempty" yaml:"end_marker,omitempty"`
}

// SectionReport is the outcome of one extraction step. Offsets are absolute
// positions in the document.
type SectionReport struct {
	Section     patterns.Section `json:"section" yaml:"section"`
	Found       bool             `json:"found" yaml:"found"`
	Overridden  bool             `json:"overridden" yaml:"overridden"`
	SearchFrom  int              `json:"search_from" yaml:"search_from"`
	Start       int              `json:"start" yaml:"start"`
	End         int              `json:"end" yaml:"end"`
	StartMarker string           `json:"start_marker,omitempty" yaml:"start_marker,omitempty"`
	EndMarker   string           `json:"end_marker,omitempty" yaml:"end_marker,omitempty"`
	Length      int              `json:"length" yaml:"length"`
	Duplicated  bool             `json:"duplicated,omitempty" yaml:"duplicated,omitempty"`
	Split       *SplitReport     `json:"split,omitempty" yaml:"split,omitempty"`
	Files       []string         `json:"files" yaml:"files"`
}

// SplitReport describes how a tier was divided.
type SplitReport struct {
	Ordinal     int    `json:"ordinal" yaml:"ordinal"`
	Found       bool   `json:"found" yaml:"found"`
	Marker      string `json:"marker,omitempty" yaml:"marker,omitempty"`
	Part1Range  string `json:"part1_range" yaml:"part1_range"`
	Part2Range  string `json:"part2_range" yaml:"part2_range"`
	Part1Length int    `json:"part1_length" yaml:"part1_length"`
	Part2Length int    `json:"part2_length" yaml:"part2_length"`
	Part1Count  int    `json:"part1_count" yaml:"part1_count"`
	Part2Count  int    `json:"part2_count" yaml:"part2_count"`
}

// View returns the report for v.
func (r *Report) View(v patterns.View) *ViewReport {
	for i := range r.Views {
		if r.Views[i].View == v {
			return &r.Views[i]
		}
	}
	return nil
}

// Section returns the report for (v, s).
func (r *Report) Section(v patterns.View, s patterns.Section) *SectionReport {
	vr := r.View(v)
	if vr == nil {
		return nil
	}
	for i := range vr.Sections {
		if vr.Sections[i].Section == s {
			return &vr.Sections[i]
		}
	}
	return nil
}

// FoundCount returns the number of located sections across all views.
func (r *Report) FoundCount() int {
	n := 0
	for _, v := range r.Views {
		for _, s := range v.Sections {
			if s.Found {
				n++
			}
		}
	}
	return n
}
