package patterns

import (
	"fmt"
	"sort"
)

// Severity grades a table issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a problem found while checking a pattern table.
type Issue struct {
	Severity Severity `json:"severity" yaml:"severity"`
	View     View     `json:"view" yaml:"view"`
	Section  Section  `json:"section,omitempty" yaml:"section,omitempty"`
	Message  string   `json:"message" yaml:"message"`
}

func (i Issue) String() string {
	if i.Section == "" {
		return fmt.Sprintf("%s: %s: %s", i.Severity, i.View, i.Message)
	}
	return fmt.Sprintf("%s: %s/%s: %s", i.Severity, i.View, i.Section, i.Message)
}

// Validate checks a fully resolved table. Errors make the table unusable:
// a missing start list, a missing end list on a non-final section, or an
// empty marker string. Warnings flag duplicates inside one list and start
// markers shared by adjacent sections, which only resolve correctly because
// each section's search begins where the previous one ended.
func Validate(s Set) []Issue {
	var issues []Issue
	for _, view := range Views {
		for i, sec := range Sections {
			m, _ := s.Lookup(view, sec)
			if len(m.Start) == 0 {
				issues = append(issues, Issue{SeverityError, view, sec, "start list is empty"})
			}
			if len(m.End) == 0 && !sec.IsLast() {
				issues = append(issues, Issue{SeverityError, view, sec, "end list is empty on a non-final section"})
			}
			issues = append(issues, listIssues(view, sec, "start", m.Start)...)
			issues = append(issues, listIssues(view, sec, "end", m.End)...)

			if i+1 < len(Sections) {
				next, _ := s.Lookup(view, Sections[i+1])
				for _, shared := range intersect(m.Start, next.Start) {
					issues = append(issues, Issue{
						SeverityWarning, view, sec,
						fmt.Sprintf("start marker %q is shared with %s; resolution depends on search order", shared, Sections[i+1]),
					})
				}
			}
		}
	}

	for _, view := range []View{ViewAnswerKeys, ViewExplanations} {
		list := s.SliceStart[view]
		if len(list) == 0 {
			issues = append(issues, Issue{Severity: SeverityError, View: view, Message: "region start list is empty"})
		}
		issues = append(issues, listIssues(view, "", "region start", list)...)
	}
	return issues
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

func listIssues(view View, sec Section, name string, list []string) []Issue {
	var issues []Issue
	seen := make(map[string]bool, len(list))
	for _, p := range list {
		if p == "" {
			issues = append(issues, Issue{SeverityError, view, sec, name + " list contains an empty marker"})
			continue
		}
		if seen[p] {
			issues = append(issues, Issue{SeverityWarning, view, sec, fmt.Sprintf("%s marker %q listed twice", name, p)})
		}
		seen[p] = true
	}
	return issues
}

func intersect(a, b []string) []string {
	in := make(map[string]bool, len(a))
	for _, p := range a {
		in[p] = true
	}
	var out []string
	for _, p := range b {
		if in[p] {
			out = append(out, p)
			in[p] = false
		}
	}
	sort.Strings(out)
	return out
}
