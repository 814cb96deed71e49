// Package patterns holds the literal heading markers used to carve a chapter
// document into sections, the split configuration for the numbered tiers, and
// the adapter that turns caller-supplied override documents into a Set.
//
// Matching is purely literal. Marker order inside a list is priority order:
// the locator takes the first list entry that occurs at all, not the entry
// that occurs earliest in the text.
package patterns

import "fmt"

// View is one of the three parallel passes over a chapter document.
type View string

const (
	ViewQuestions    View = "questions"
	ViewAnswerKeys   View = "answer_keys"
	ViewExplanations View = "explanations"
)

// Views lists every view in processing order.
var Views = []View{ViewQuestions, ViewAnswerKeys, ViewExplanations}

// Section is one of the four content tiers repeated in every view.
type Section string

const (
	SectionCompetency Section = "competency"
	SectionLevel1     Section = "level1"
	SectionLevel2     Section = "level2"
	SectionAchievers  Section = "achievers"
)

// Sections lists every section in document order.
var Sections = []Section{SectionCompetency, SectionLevel1, SectionLevel2, SectionAchievers}

// ParseView converts a string into a View.
func ParseView(s string) (View, error) {
	for _, v := range Views {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown view %q", s)
}

// ParseSection converts a string into a Section.
func ParseSection(s string) (Section, error) {
	for _, sec := range Sections {
		if string(sec) == s {
			return sec, nil
		}
	}
	return "", fmt.Errorf("unknown section %q", s)
}

// IsLast reports whether s is the final section of a view, the only one
// allowed an empty end list.
func (s Section) IsLast() bool {
	return s == SectionAchievers
}

// Markers is the ordered candidate list for a section's start and end.
// An empty End means "until the end of the searched text".
type Markers struct {
	Start []string `json:"start" yaml:"start"`
	End   []string `json:"end" yaml:"end"`
}

// Clone returns a deep copy so callers can never alias catalog storage.
func (m Markers) Clone() Markers {
	return Markers{
		Start: cloneStrings(m.Start),
		End:   cloneStrings(m.End),
	}
}

// IsZero reports whether neither list holds anything.
func (m Markers) IsZero() bool {
	return len(m.Start) == 0 && len(m.End) == 0
}

// Set is a full or partial pattern table. The defaults are a full Set; an
// override document adapts into a partial one.
type Set struct {
	// Sections maps each view to its per-section markers.
	Sections map[View]map[Section]Markers `json:"sections" yaml:"sections"`

	// SliceStart holds the markers that open the answer-key and explanation
	// regions of the document. Only ViewAnswerKeys and ViewExplanations are used.
	SliceStart map[View][]string `json:"slice_start,omitempty" yaml:"slice_start,omitempty"`
}

// NewSet returns an empty, writable Set.
func NewSet() Set {
	s := Set{
		Sections:   make(map[View]map[Section]Markers, len(Views)),
		SliceStart: make(map[View][]string),
	}
	for _, v := range Views {
		s.Sections[v] = make(map[Section]Markers)
	}
	return s
}

// Lookup returns the markers for (view, section) and whether they are set.
func (s Set) Lookup(view View, section Section) (Markers, bool) {
	if s.Sections == nil {
		return Markers{}, false
	}
	m, ok := s.Sections[view][section]
	if !ok || m.IsZero() {
		return Markers{}, false
	}
	return m, true
}

// Put stores markers for (view, section), allocating maps as needed.
func (s *Set) Put(view View, section Section, m Markers) {
	if s.Sections == nil {
		s.Sections = make(map[View]map[Section]Markers)
	}
	if s.Sections[view] == nil {
		s.Sections[view] = make(map[Section]Markers)
	}
	s.Sections[view][section] = m.Clone()
}

// PutSliceStart stores the region-opening markers for a view.
func (s *Set) PutSliceStart(view View, markers []string) {
	if s.SliceStart == nil {
		s.SliceStart = make(map[View][]string)
	}
	s.SliceStart[view] = cloneStrings(markers)
}

// Clone returns a deep copy of the Set.
func (s Set) Clone() Set {
	out := NewSet()
	for v, secs := range s.Sections {
		for sec, m := range secs {
			out.Put(v, sec, m)
		}
	}
	for v, list := range s.SliceStart {
		out.PutSliceStart(v, list)
	}
	return out
}

// Empty reports whether the set defines nothing at all.
func (s Set) Empty() bool {
	for _, secs := range s.Sections {
		for _, m := range secs {
			if !m.IsZero() {
				return false
			}
		}
	}
	for _, list := range s.SliceStart {
		if len(list) > 0 {
			return false
		}
	}
	return true
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
