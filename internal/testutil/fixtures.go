package testutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// MinimalPDF returns a valid, empty PDF with the given number of pages.
func MinimalPDF(pages int) []byte {
	var buf bytes.Buffer
	offsets := make([]int, 0, pages+2)

	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")

	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", i+3)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, pages))
	for i := 0; i < pages; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

// WritePDF writes MinimalPDF(pages) to dir/name and returns its path.
func WritePDF(t testing.TB, dir, name string, pages int) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, MinimalPDF(pages), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	return p
}

// Chapter is a small chapter in the layout the default markers expect:
// theory, four question tiers, an answer-key table and explanations.
const Chapter = `# Motion

Theory of motion.

![Figure 1](images/p1.jpg)

# Competency Focused Questions

1. Competency one
(a) x (b) y

# LEVEL1

1. L1 one
2. L1 two
3. L1 three

# LEVEL
1. L2 one
2. L2 two
3. L2 three

# ACHIEVERS' SECTION

1. Achiever one

# Answer-Key

COMPETENCY FOCUSED QUESTIONS

1. (a)

LEVEL 1

1. (b) 2. (c) 3. (d)

# Answers with Explanations

# 1. Correct option: (a)
Because.
`

// WriteChapter writes a full.md holding doc, plus an images directory with
// one file, into dir.
func WriteChapter(t testing.TB, dir, doc string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, "images"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "full.md"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "images", "p1.jpg"), []byte("img"), 0o644); err != nil {
		t.Fatal(err)
	}
}
