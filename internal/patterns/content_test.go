package patterns

import "testing"

func TestContentCounters(t *testing.T) {
	questions := "# LEVEL1\n1. First\n(a) one\n(b) two\n2. Second\n(a) x\n10. Tenth\nNot 3. a question\n"
	if got := CountQuestions(questions); got != 3 {
		t.Errorf("CountQuestions = %d, want 3", got)
	}
	if got := CountOptions(questions); got != 3 {
		t.Errorf("CountOptions = %d, want 3", got)
	}

	explanations := "# 1. Correct option: (a)\nExplanation: ...\n# 2.Correct option (c)\nExplanation: ..."
	if got := CountExplanations(explanations); got != 2 {
		t.Errorf("CountExplanations = %d, want 2", got)
	}
	if got := CountExplanations("Explanation: a\nExplanation: b\nExplanation: c"); got != 3 {
		t.Errorf("CountExplanations fallback = %d, want 3", got)
	}
}

func TestLooksLikeAnswerKey(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"1. (a) 2. (c) 3.(b)", true},
		{"<table><tr><td>1</td></tr></table>", true},
		{"no keys here", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := LooksLikeAnswerKey(tt.text); got != tt.want {
			t.Errorf("LooksLikeAnswerKey(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
