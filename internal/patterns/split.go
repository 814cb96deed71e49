package patterns

import (
	"fmt"
)

// SplitRule describes how one numbered tier is divided into two files.
type SplitRule struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	// At is the 1-based ordinal that opens part 2.
	At int `json:"at" yaml:"at" mapstructure:"at"`
	// Expected is the total question count used only for report warnings.
	// Zero disables the check.
	Expected int `json:"expected" yaml:"expected" mapstructure:"expected"`
}

// Ranges returns the human-readable question ranges of both parts,
// e.g. "1-12" and "13-25".
func (r SplitRule) Ranges() (part1, part2 string) {
	part1 = fmt.Sprintf("1-%d", r.At-1)
	if r.Expected > 0 {
		part2 = fmt.Sprintf("%d-%d", r.At, r.Expected)
	} else {
		part2 = fmt.Sprintf("%d-", r.At)
	}
	return part1, part2
}

// SplitConfig holds the split rules of the two numbered tiers.
type SplitConfig struct {
	Level1 SplitRule `json:"level1" yaml:"level1" mapstructure:"level1"`
	Level2 SplitRule `json:"level2" yaml:"level2" mapstructure:"level2"`
}

// DefaultSplitConfig returns the observed defaults: level 1 splits before
// question 13 of 25, level 2 before question 11 of 20.
func DefaultSplitConfig() SplitConfig {
	return SplitConfig{
		Level1: SplitRule{Enabled: true, At: 13, Expected: 25},
		Level2: SplitRule{Enabled: true, At: 11, Expected: 20},
	}
}

// Rule returns the split rule for a section. Only level1 and level2 have one.
func (c SplitConfig) Rule(s Section) (SplitRule, bool) {
	switch s {
	case SectionLevel1:
		return c.Level1, true
	case SectionLevel2:
		return c.Level2, true
	default:
		return SplitRule{}, false
	}
}

// Validate checks that enabled rules have a usable ordinal.
func (c SplitConfig) Validate() error {
	for _, sec := range []Section{SectionLevel1, SectionLevel2} {
		r, _ := c.Rule(sec)
		if !r.Enabled {
			continue
		}
		if r.At < 2 {
			return fmt.Errorf("split %s: ordinal must be at least 2, got %d", sec, r.At)
		}
		if r.Expected != 0 && r.Expected < r.At {
			return fmt.Errorf("split %s: expected count %d is below split ordinal %d", sec, r.Expected, r.At)
		}
	}
	return nil
}
