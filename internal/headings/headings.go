// Package headings builds an inventory of the markdown headings in an OCR'd
// chapter. It is a diagnostic aid for writing pattern overrides: every
// heading is listed with its position and the catalog markers it matches.
package headings

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/jackzampolin/qsplit/internal/patterns"
)

// alphanumPattern checks if text contains at least one alphanumeric character.
var alphanumPattern = regexp.MustCompile(`[a-zA-Z0-9]`)

// Match is a catalog start marker found on a heading's line.
type Match struct {
	View    patterns.View    `json:"view" yaml:"view"`
	Section patterns.Section `json:"section" yaml:"section"`
	Marker  string           `json:"marker" yaml:"marker"`
}

// Heading is one markdown heading of a document.
type Heading struct {
	Level   int     `json:"level" yaml:"level"`
	Text    string  `json:"text" yaml:"text"`
	Line    int     `json:"line" yaml:"line"`
	Offset  int     `json:"offset" yaml:"offset"`
	Raw     string  `json:"raw" yaml:"raw"`
	Matches []Match `json:"matches,omitempty" yaml:"matches,omitempty"`
}

// Extract parses doc as markdown and returns its headings in document order.
// Headings without any alphanumeric content are skipped. Offset is the byte
// offset of the start of the heading's line and Line is 1-indexed.
func Extract(doc string) []Heading {
	source := []byte(doc)
	root := goldmark.New().Parser().Parse(text.NewReader(source))

	var out []Heading
	ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		if h.Lines().Len() == 0 {
			return ast.WalkSkipChildren, nil
		}

		txt := strings.TrimSpace(inlineText(h, source))
		if !alphanumPattern.MatchString(txt) {
			return ast.WalkSkipChildren, nil
		}

		start := lineStart(doc, h.Lines().At(0).Start)
		out = append(out, Heading{
			Level:  h.Level,
			Text:   txt,
			Line:   strings.Count(doc[:start], "\n") + 1,
			Offset: start,
			Raw:    lineAt(doc, start),
		})
		return ast.WalkSkipChildren, nil
	})
	return out
}

// Inventory extracts the headings of doc and annotates each with the start
// markers of cat that occur on its line.
func Inventory(doc string, cat *patterns.Catalog) []Heading {
	hs := Extract(doc)
	if cat == nil {
		return hs
	}
	for i := range hs {
		hs[i].Matches = matchesFor(hs[i].Raw, cat)
	}
	return hs
}

// Unmatched returns the headings that match no catalog marker. These are the
// usual candidates for a custom pattern.
func Unmatched(hs []Heading) []Heading {
	var out []Heading
	for _, h := range hs {
		if len(h.Matches) == 0 {
			out = append(out, h)
		}
	}
	return out
}

func matchesFor(line string, cat *patterns.Catalog) []Match {
	var out []Match
	for _, view := range patterns.Views {
		for _, sec := range patterns.Sections {
			for _, m := range cat.Markers(view, sec).Start {
				if m != "" && strings.Contains(line+"\n", m) {
					out = append(out, Match{View: view, Section: sec, Marker: m})
					break
				}
			}
		}
	}
	return out
}

func inlineText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func lineStart(doc string, pos int) int {
	if pos > len(doc) {
		pos = len(doc)
	}
	return strings.LastIndexByte(doc[:pos], '\n') + 1
}

func lineAt(doc string, start int) string {
	end := strings.IndexByte(doc[start:], '\n')
	if end < 0 {
		return doc[start:]
	}
	return doc[start : start+end]
}
