package detect

import "strings"

const systemPrompt = `You analyze educational chapters that were converted from PDF to markdown.
You find the exact heading text that opens each section so a program can split
the chapter by literal substring search. Answer with JSON only.`

const promptTemplate = `The chapter usually contains these parts in order:
1. Theory - teaching content at the beginning
2. Competency-focused questions
3. Level 1 questions - headings like "# LEVEL1" or "# LEVEL 1" (not "# PYQ's Marathon")
4. Level 2 questions - headings like "# LEVEL" with no number, "# LEVEL2" or "# LEVEL 2"
5. Achievers section - "# ACHIEVERS' SECTION" or "# ACHIEVERS SECTION"
6. Answer-key section with one table per tier
7. Explanations section with one block per tier

Rules:
- Copy heading text exactly, including # symbols, spacing, capitalization and punctuation.
- The end marker of level 1 is the start marker of level 2.
- Include a trailing newline when a marker is a prefix of another heading,
  for example "# LEVEL\n" so that it does not match "# LEVEL1".
- Leave out any section you cannot find.

Return one JSON object of this form:
{
  "questions": {
    "competency": {"start": ["..."], "end": ["..."], "lineNumber": 0},
    "level1": {"start": ["..."], "end": ["..."], "lineNumber": 0},
    "level2": {"start": ["..."], "end": ["..."], "lineNumber": 0},
    "achievers": {"start": ["..."], "end": ["..."], "lineNumber": 0}
  },
  "answerKeys": {
    "sectionStart": ["..."],
    "competency": {"start": ["..."]},
    "level1": {"start": ["..."]},
    "level2": {"start": ["..."]},
    "achievers": {"start": ["..."]}
  },
  "explanations": {
    "sectionStart": ["..."],
    "competency": {"start": ["..."]},
    "level1": {"start": ["..."]},
    "level2": {"start": ["..."]},
    "achievers": {"start": ["..."]}
  },
  "confidence": "high|medium|low",
  "notes": "observations about the structure"
}

Chapter:
` + "```markdown\n{{DOCUMENT}}\n```\n"

func buildPrompt(doc string) string {
	return strings.Replace(promptTemplate, "{{DOCUMENT}}", doc, 1)
}
