package patterns

import "testing"

func TestSplitRuleRanges(t *testing.T) {
	tests := []struct {
		rule  SplitRule
		part1 string
		part2 string
	}{
		{SplitRule{Enabled: true, At: 13, Expected: 25}, "1-12", "13-25"},
		{SplitRule{Enabled: true, At: 11, Expected: 20}, "1-10", "11-20"},
		{SplitRule{Enabled: true, At: 6}, "1-5", "6-"},
	}
	for _, tt := range tests {
		p1, p2 := tt.rule.Ranges()
		if p1 != tt.part1 || p2 != tt.part2 {
			t.Errorf("Ranges(%+v) = %q, %q; want %q, %q", tt.rule, p1, p2, tt.part1, tt.part2)
		}
	}
}

func TestSplitConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     SplitConfig
		wantErr bool
	}{
		{"defaults", DefaultSplitConfig(), false},
		{"ordinal too small", SplitConfig{Level1: SplitRule{Enabled: true, At: 1}, Level2: DefaultSplitConfig().Level2}, true},
		{"expected below ordinal", SplitConfig{Level1: DefaultSplitConfig().Level1, Level2: SplitRule{Enabled: true, At: 11, Expected: 5}}, true},
		{"disabled rule ignored", SplitConfig{Level1: SplitRule{Enabled: false, At: 0}, Level2: DefaultSplitConfig().Level2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSplitConfigRule(t *testing.T) {
	cfg := DefaultSplitConfig()
	if r, ok := cfg.Rule(SectionLevel1); !ok || r.At != 13 {
		t.Errorf("level1 rule = %+v, %v", r, ok)
	}
	if r, ok := cfg.Rule(SectionLevel2); !ok || r.At != 11 {
		t.Errorf("level2 rule = %+v, %v", r, ok)
	}
	if _, ok := cfg.Rule(SectionAchievers); ok {
		t.Error("achievers should have no split rule")
	}
}
