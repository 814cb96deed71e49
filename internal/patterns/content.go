package patterns

import (
	"regexp"
	"strings"
)

// These regexes only grade extracted content for the report. Boundary
// detection never uses them.
var (
	questionLineRe    = regexp.MustCompile(`(?m)^\s*\d+\.`)
	optionLineRe      = regexp.MustCompile(`(?m)^\s*\([a-dA-D]\)`)
	answerKeyEntryRe  = regexp.MustCompile(`\d+\.\s*\([a-dA-D]\)`)
	explanationHeadRe = regexp.MustCompile(`#\s*\d+\.\s*Correct option`)
	explanationBodyRe = regexp.MustCompile(`Explanation:`)
)

// CountQuestions returns the number of lines that open with a question
// number.
func CountQuestions(text string) int {
	return len(questionLineRe.FindAllStringIndex(text, -1))
}

// CountOptions returns the number of lines that open with an option label
// such as "(a)".
func CountOptions(text string) int {
	return len(optionLineRe.FindAllStringIndex(text, -1))
}

// CountExplanations returns the number of "# N. Correct option" headings.
// Text without any such heading falls back to counting "Explanation:" blocks.
func CountExplanations(text string) int {
	if n := len(explanationHeadRe.FindAllStringIndex(text, -1)); n > 0 {
		return n
	}
	return len(explanationBodyRe.FindAllStringIndex(text, -1))
}

// LooksLikeAnswerKey reports whether text holds "N. (x)" entries or an HTML
// table, the two layouts answer keys come out of OCR in.
func LooksLikeAnswerKey(text string) bool {
	return answerKeyEntryRe.MatchString(text) || strings.Contains(text, "<table>")
}
