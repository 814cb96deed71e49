package patterns

// The three default tables differ on purpose. The same tier heading is
// printed differently in the question pages, the answer-key table and the
// explanations, and matching is literal, so each view keeps its own list.

var questionDefaults = map[Section]Markers{
	SectionCompetency: {
		Start: []string{
			"# Competency-Focused Questions",
			"# Competency Focused Questions",
			"# NCERT COMPETENCY BASED QUESTIONS",
			"# Competency Based Questions",
			"# COMPETENCY FOCUSED QUESTIONS",
			"Competency Focused Questions",
			"Competency-Focused Questions",
		},
		End: []string{
			"# PYQ's Marathon",
			"# PYQs Marathon\n# LEVEL",
			"# LEVEL1",
			"# LEVEL (1",
			"# LEVEL 1",
			"PYQs Marathon# LEVEL (1",
			"LEVEL (1",
		},
	},
	SectionLevel1: {
		Start: []string{
			"# LEVEL1",
			"# PYQs Marathon\n# LEVEL1",
			"# LEVEL (1",
			"# LEVEL 1",
			"PYQs Marathon# LEVEL1",
			"# Level (1",
			"LEVEL (1",
			"# Level-1",
			"# PYQs MARATHON\n# LEVEL (1",
		},
		End: []string{
			// Bare "# LEVEL" on its own line is how level 2 usually opens.
			"# LEVEL\n",
			"# LEVEL (2",
			"# LEVEL 2",
			"# Level (2",
			"LEVEL (2",
		},
	},
	SectionLevel2: {
		Start: []string{
			"# LEVEL\n",
			"# LEVEL (2",
			"# LEVEL 2",
			"# LEVEL2",
			"# Level (2",
			"LEVEL (2",
			"# Level-2",
		},
		End: []string{
			"# ACHIEVERS' SECTION",
			"# ACHIEVERS SECTION",
			"# Achievers Section",
			"# ACHIEVER SECTION",
			"ACHIEVERS SECTION",
			"# Achievers",
		},
	},
	SectionAchievers: {
		Start: []string{
			"# ACHIEVERS' SECTION",
			"# ACHIEVERS SECTION",
			"# Achievers Section",
			"# ACHIEVER SECTION",
			"ACHIEVERS SECTION",
			"# Achievers",
		},
		End: []string{
			"# Answer-Key",
			"# Answer Key",
			"# ANSWER-KEY",
			"# Answer key",
			"Answer-Key",
		},
	},
}

var answerKeyDefaults = map[Section]Markers{
	SectionCompetency: {
		Start: []string{
			"# NCERT COMPETENCY BASED QUESTIONS",
			"# COMPETENCY FOCUSED QUESTIONS",
			"# Competency Focused Questions",
			"# Competency-Focused Questions",
			"# Competency Based Questions",
			"COMPETENCY FOCUSED QUESTIONS",
		},
		End: []string{
			"# LEVEL1",
			"# LEVEL\n",
			"# LEVEL",
			"# PYQs MARATHON",
			"# PYQs Marathon",
			"PYQs MARATHON",
			"# PYQS MARATHON",
		},
	},
	SectionLevel1: {
		Start: []string{
			"# LEVEL1",
			"# LEVEL\n",
			"# LEVEL",
			"# LEVEL (1",
			"# LEVEL 1",
			"# Level (1",
			"LEVEL (1",
		},
		End: []string{
			"# LEVEL2",
			"# LEVEL (2",
			"# LEVEL 2",
			"# Level (2",
			"LEVEL (2",
		},
	},
	SectionLevel2: {
		Start: []string{
			"# LEVEL2",
			"# LEVEL (2",
			"# LEVEL 2",
			"# Level (2",
			"LEVEL (2",
		},
		End: []string{
			"# ACHIEVERS' SECTION",
			"# ACHIEVERS SECTION",
			"# Achievers Section",
			"ACHIEVERS SECTION",
		},
	},
	SectionAchievers: {
		Start: []string{
			"# ACHIEVERS' SECTION",
			"# ACHIEVERS SECTION",
			"# Achievers Section",
			"ACHIEVERS SECTION",
		},
		End: []string{
			"# Answers with Explanations",
			"# ANSWERS WITH EXPLANATIONS",
			"# Answers With Explanations",
			"Answers with Explanations",
		},
	},
}

var explanationDefaults = map[Section]Markers{
	SectionCompetency: {
		Start: []string{
			"# NCERT COMPETENCY BASED QUESTIONS",
			"# COMPETENCY FOCUSED QUESTIONS",
			"# Competency Focused Questions",
			"# Competency-Focused Questions",
			"COMPETENCY FOCUSED QUESTIONS",
		},
		End: []string{
			"# LEVEL1",
			"# LEVEL\n",
			"# LEVEL",
			"# PYQs Marathon",
			"# PYQS MARATHON",
			"# PYQs MARATHON",
			"PYQs Marathon",
		},
	},
	SectionLevel1: {
		Start: []string{
			"# LEVEL1",
			"# LEVEL\n",
			"# LEVEL",
			"# LEVEL (1",
			"# LEVEL 1",
			"# Level (1",
			"LEVEL (1",
		},
		End: []string{
			"# LEVEL2",
			// Generic; relies on the search floor to land on the second tier.
			"# LEVEL (",
			"# LEVEL (2",
			"# LEVEL 2",
			"# Level (",
		},
	},
	SectionLevel2: {
		Start: []string{
			"# LEVEL2",
			"# LEVEL (",
			"# LEVEL (2",
			"# LEVEL 2",
			"# Level (2",
		},
		End: []string{
			"# ACHIEVERS' SECTION",
			"# ACHIEVERS SECTION",
			"# Achievers Section",
			"ACHIEVERS SECTION",
		},
	},
	SectionAchievers: {
		Start: []string{
			"# ACHIEVERS SECTION",
			"# ACHIEVERS' SECTION",
			"# Achievers Section",
			"ACHIEVERS SECTION",
		},
		// Explanations are the last block of a chapter.
		End: nil,
	},
}

var sliceStartDefaults = map[View][]string{
	ViewAnswerKeys: {
		"# Answer-Key",
		"# Answer Key",
		"# ANSWER-KEY",
		"Answer-Key",
	},
	ViewExplanations: {
		"# Answers with Explanations",
		"# ANSWERS WITH EXPLANATIONS",
		"# Answers With Explanations",
		"# Answer with Explanation",
		"Answers with Explanations",
	},
}

// Defaults returns a fresh copy of the built-in pattern tables.
func Defaults() Set {
	s := NewSet()
	tables := map[View]map[Section]Markers{
		ViewQuestions:    questionDefaults,
		ViewAnswerKeys:   answerKeyDefaults,
		ViewExplanations: explanationDefaults,
	}
	for view, table := range tables {
		for sec, m := range table {
			s.Put(view, sec, m)
		}
	}
	for view, list := range sliceStartDefaults {
		s.PutSliceStart(view, list)
	}
	return s
}
