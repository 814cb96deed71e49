package config

import (
	"time"

	"github.com/jackzampolin/qsplit/internal/patterns"
)

// Config holds qsplit configuration.
// Stored at: ./config.yaml or ~/.qsplit/config.yaml
type Config struct {
	Split        SplitCfg  `mapstructure:"split" yaml:"split"`
	PatternsFile string    `mapstructure:"patterns_file" yaml:"patterns_file"` // Optional override document (YAML or JSON)
	MinerU       MinerUCfg `mapstructure:"mineru" yaml:"mineru"`
	Detect       DetectCfg `mapstructure:"detect" yaml:"detect"`
	Server       ServerCfg `mapstructure:"server" yaml:"server"`
	Ledger       LedgerCfg `mapstructure:"ledger" yaml:"ledger"`
}

// SplitCfg configures where the numbered tiers are divided.
type SplitCfg struct {
	Level1Enabled  bool `mapstructure:"level1_enabled" yaml:"level1_enabled"`
	Level1At       int  `mapstructure:"level1_at" yaml:"level1_at"`
	Level1Expected int  `mapstructure:"level1_expected" yaml:"level1_expected"`
	Level2Enabled  bool `mapstructure:"level2_enabled" yaml:"level2_enabled"`
	Level2At       int  `mapstructure:"level2_at" yaml:"level2_at"`
	Level2Expected int  `mapstructure:"level2_expected" yaml:"level2_expected"`
}

// MinerUCfg configures the extraction service client.
type MinerUCfg struct {
	APIKey       string `mapstructure:"api_key" yaml:"api_key"` // API key (supports ${ENV_VAR} syntax)
	BaseURL      string `mapstructure:"base_url" yaml:"base_url"`
	Language     string `mapstructure:"language" yaml:"language"`
	ModelVersion string `mapstructure:"model_version" yaml:"model_version"` // "vlm" or "pipeline"
	PollInterval string `mapstructure:"poll_interval" yaml:"poll_interval"` // Go duration, e.g. "5s"
	MaxWait      string `mapstructure:"max_wait" yaml:"max_wait"`           // Go duration, e.g. "1h"
}

// DetectCfg configures LLM marker detection.
type DetectCfg struct {
	APIKey   string `mapstructure:"api_key" yaml:"api_key"` // API key (supports ${ENV_VAR} syntax)
	BaseURL  string `mapstructure:"base_url" yaml:"base_url"`
	Model    string `mapstructure:"model" yaml:"model"`
	MaxChars int    `mapstructure:"max_chars" yaml:"max_chars"`
}

// ServerCfg configures the HTTP server.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
}

// LedgerCfg configures the job ledger.
type LedgerCfg struct {
	Path string `mapstructure:"path" yaml:"path"` // Empty means <home>/ledger.db
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	split := patterns.DefaultSplitConfig()
	return &Config{
		Split: SplitCfg{
			Level1Enabled:  split.Level1.Enabled,
			Level1At:       split.Level1.At,
			Level1Expected: split.Level1.Expected,
			Level2Enabled:  split.Level2.Enabled,
			Level2At:       split.Level2.At,
			Level2Expected: split.Level2.Expected,
		},
		MinerU: MinerUCfg{
			APIKey:       "${MINERU_API_KEY}",
			BaseURL:      "https://mineru.net/api/v4",
			Language:     "en",
			ModelVersion: "vlm",
			PollInterval: "5s",
			MaxWait:      "1h",
		},
		Detect: DetectCfg{
			APIKey:   "${OPENAI_API_KEY}",
			Model:    "gpt-4o",
			MaxChars: 50000,
		},
		Server: ServerCfg{
			Host: "127.0.0.1",
			Port: "8080",
		},
	}
}

// SplitConfig converts the split settings for the pipeline.
func (c *Config) SplitConfig() patterns.SplitConfig {
	return patterns.SplitConfig{
		Level1: patterns.SplitRule{Enabled: c.Split.Level1Enabled, At: c.Split.Level1At, Expected: c.Split.Level1Expected},
		Level2: patterns.SplitRule{Enabled: c.Split.Level2Enabled, At: c.Split.Level2At, Expected: c.Split.Level2Expected},
	}
}

// PollDuration returns the parsed MinerU poll interval, or def when unset.
func (m MinerUCfg) PollDuration(def time.Duration) (time.Duration, error) {
	return parseDuration("mineru.poll_interval", m.PollInterval, def)
}

// MaxWaitDuration returns the parsed MinerU max wait, or def when unset.
func (m MinerUCfg) MaxWaitDuration(def time.Duration) (time.Duration, error) {
	return parseDuration("mineru.max_wait", m.MaxWait, def)
}

// Addr returns host:port for the HTTP server.
func (s ServerCfg) Addr() string {
	return s.Host + ":" + s.Port
}
