package pipeline

import (
	"path"

	"github.com/jackzampolin/qsplit/internal/patterns"
)

// Output directories, one per view.
const (
	QuestionDir    = "Question_output"
	AnswerKeyDir   = "Answer_key"
	ExplanationDir = "Answer_output"
)

// Placeholders written into slots whose section was not located.
const (
	QuestionPlaceholder = "# Content Not Found\n\n" +
		"The extraction script could not find this section in the PDF.\n" +
		"Please configure custom patterns or manually split the content.\n"
	AnswerKeyPlaceholder = "# Answer Keys Not Found\n\n" +
		"The extraction script could not find this section in the PDF.\n" +
		"Please configure custom patterns or manually add the answer keys.\n"
	ExplanationPlaceholder = "# Answer Explanations Not Found\n\n" +
		"The extraction script could not find this section in the PDF.\n" +
		"Please configure custom patterns or manually add the explanations.\n"
)

// Part identifies which half of a split tier a slot holds.
type Part int

const (
	// Whole is an unsplit section.
	Whole Part = iota
	Part1
	Part2
)

// Slot is one named output file.
type Slot struct {
	// Path is the slash-separated file path relative to the output root.
	Path    string
	View    patterns.View
	Section patterns.Section // empty for theory
	Part    Part
}

// IsTheory reports whether the slot holds the theory preamble.
func (s Slot) IsTheory() bool {
	return s.Section == ""
}

// Placeholder returns the not-found text for the slot's view.
func (s Slot) Placeholder() string {
	return Placeholder(s.View)
}

// Placeholder returns the not-found text for a view.
func Placeholder(v patterns.View) string {
	switch v {
	case patterns.ViewAnswerKeys:
		return AnswerKeyPlaceholder
	case patterns.ViewExplanations:
		return ExplanationPlaceholder
	default:
		return QuestionPlaceholder
	}
}

const theoryName = "theory"

var sectionBase = map[patterns.Section]string{
	patterns.SectionCompetency: "Competency_Focused_Questions",
	patterns.SectionLevel1:     "Multiple_Choice_Questions_Level_1",
	patterns.SectionLevel2:     "Multiple_Choice_Questions_Level_2",
	patterns.SectionAchievers:  "ACHIEVERS_SECTION",
}

var viewLayout = []struct {
	view   patterns.View
	dir    string
	suffix string
}{
	{patterns.ViewQuestions, QuestionDir, ""},
	{patterns.ViewAnswerKeys, AnswerKeyDir, "_key"},
	{patterns.ViewExplanations, ExplanationDir, "_ans"},
}

// slots is built once; it is the only definition of what must exist.
var slots = buildSlots()

func buildSlots() []Slot {
	var out []Slot
	for _, l := range viewLayout {
		if l.view == patterns.ViewQuestions {
			out = append(out, Slot{Path: path.Join(l.dir, theoryName+".md"), View: l.view})
		}
		for _, sec := range patterns.Sections {
			base := sectionBase[sec]
			if sec == patterns.SectionLevel1 || sec == patterns.SectionLevel2 {
				out = append(out,
					Slot{Path: path.Join(l.dir, base+l.suffix+".md"), View: l.view, Section: sec, Part: Part1},
					Slot{Path: path.Join(l.dir, base+"_Part_2"+l.suffix+".md"), View: l.view, Section: sec, Part: Part2},
				)
				continue
			}
			out = append(out, Slot{Path: path.Join(l.dir, base+l.suffix+".md"), View: l.view, Section: sec})
		}
	}
	return out
}

// Slots returns every output slot in canonical order.
func Slots() []Slot {
	out := make([]Slot, len(slots))
	copy(out, slots)
	return out
}

// SlotsFor returns the slots fed by one (view, section). Theory is returned
// for (questions, "").
func SlotsFor(view patterns.View, section patterns.Section) []Slot {
	var out []Slot
	for _, s := range slots {
		if s.View == view && s.Section == section {
			out = append(out, s)
		}
	}
	return out
}

// Dirs returns the three output directories.
func Dirs() []string {
	return []string{QuestionDir, AnswerKeyDir, ExplanationDir}
}
