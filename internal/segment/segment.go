// Package segment finds literal heading markers in a document and carves
// sections out of it. Everything here is a pure function of its inputs.
package segment

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMarkerNotFound means no candidate in a marker list occurs at or after
	// the search floor.
	ErrMarkerNotFound = errors.New("marker not found")

	// ErrSplitOrdinalNotFound means the numbered split point does not occur in
	// the section text.
	ErrSplitOrdinalNotFound = errors.New("split ordinal not found")
)

// EndOfDocument is reported as the end marker of a region that runs to the
// end of the searched text.
const EndOfDocument = "END_OF_FILE"

// Match is a located marker.
type Match struct {
	Pos    int
	Marker string
}

// End returns the offset just past the matched marker.
func (m Match) End() int {
	return m.Pos + len(m.Marker)
}

// Locate tries candidates in list order and returns the first one that occurs
// anywhere at or after from. It does not look for the leftmost match across
// all candidates: a higher-priority candidate further along the text wins
// over a lower-priority one that appears earlier. Empty candidates are
// skipped.
func Locate(text string, candidates []string, from int) (Match, error) {
	if from < 0 {
		from = 0
	}
	if from > len(text) {
		return Match{}, ErrMarkerNotFound
	}
	tail := text[from:]
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if i := strings.Index(tail, c); i >= 0 {
			return Match{Pos: from + i, Marker: c}, nil
		}
	}
	return Match{}, ErrMarkerNotFound
}

// Region is a contiguous section carved out of a text. Offsets are relative
// to the text passed to Extract.
type Region struct {
	Start       int
	End         int
	StartMarker string
	EndMarker   string
	Text        string
}

// Len returns the length of the region text in bytes.
func (r Region) Len() int {
	return r.End - r.Start
}

// RunsToEnd reports whether no end marker was found.
func (r Region) RunsToEnd() bool {
	return r.EndMarker == EndOfDocument
}

// Extract locates a start marker at or after from, then an end marker after
// the matched start marker. The region includes the start marker text and
// stops just before the end marker. Without an end match the region runs to
// the end of text. ErrMarkerNotFound is returned only when no start marker
// occurs.
func Extract(text string, start, end []string, from int) (Region, error) {
	sm, err := Locate(text, start, from)
	if err != nil {
		return Region{}, err
	}

	r := Region{
		Start:       sm.Pos,
		End:         len(text),
		StartMarker: sm.Marker,
		EndMarker:   EndOfDocument,
	}
	if em, err := Locate(text, end, sm.End()); err == nil {
		r.End = em.Pos
		r.EndMarker = em.Marker
	}
	r.Text = text[r.Start:r.End]
	return r, nil
}

// Kind selects the split marker format.
type Kind string

const (
	KindQuestion    Kind = "question"
	KindExplanation Kind = "explanation"
)

// Split is the result of dividing a section in two.
type Split struct {
	Part1 string
	Part2 string
	// Marker is the matched split marker; empty when the split failed.
	Marker string
	// Pos is the offset of Marker within the split text, or -1.
	Pos int
}

// SplitMarkers returns the markers tried, in order, to split at ordinal.
func SplitMarkers(ordinal int, kind Kind) []string {
	switch kind {
	case KindExplanation:
		return []string{
			fmt.Sprintf("# %d. Correct option", ordinal),
			fmt.Sprintf("# %d.", ordinal),
		}
	default:
		return []string{fmt.Sprintf("\n%d.", ordinal)}
	}
}

// SplitAt divides text at the first occurrence of the ordinal marker. Part 1
// ends just before the marker and part 2 starts with it. When no marker
// occurs the whole text is part 1, part 2 is empty, and
// ErrSplitOrdinalNotFound is returned alongside the result.
func SplitAt(text string, ordinal int, kind Kind) (Split, error) {
	m, err := Locate(text, SplitMarkers(ordinal, kind), 0)
	if err != nil {
		return Split{Part1: text, Pos: -1}, fmt.Errorf("%w: %d (%s)", ErrSplitOrdinalNotFound, ordinal, kind)
	}
	return Split{
		Part1:  text[:m.Pos],
		Part2:  text[m.Pos:],
		Marker: m.Marker,
		Pos:    m.Pos,
	}, nil
}
