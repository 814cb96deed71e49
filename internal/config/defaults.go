package config

import (
	"errors"
	"fmt"
	"unicode"
)

var (
	// ErrNoDefault is returned when no default value exists for a config key.
	ErrNoDefault = errors.New("no default exists")

	// ErrInvalidKey is returned when a config key contains invalid characters.
	ErrInvalidKey = errors.New("invalid config key")
)

// Entry represents a single configuration entry.
type Entry struct {
	Key         string `json:"key" yaml:"key"`
	Value       any    `json:"value" yaml:"value"`
	Description string `json:"description" yaml:"description"`
}

// ValidateKey checks if a config key contains only allowed characters.
// Valid keys contain: letters, digits, dots, underscores, and hyphens.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	for i, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_' && r != '-' {
			return fmt.Errorf("%w: invalid character %q at position %d", ErrInvalidKey, r, i)
		}
	}
	// Don't allow keys starting or ending with dots
	if key[0] == '.' || key[len(key)-1] == '.' {
		return fmt.Errorf("%w: key cannot start or end with a dot", ErrInvalidKey)
	}
	return nil
}

// DefaultEntries returns the default configuration entries. They seed
// viper's defaults, so every key here can be overridden from the config
// file or a QSPLIT_ environment variable.
func DefaultEntries() []Entry {
	d := DefaultConfig()
	return []Entry{
		// ===================
		// Split
		// ===================
		{
			Key:         "split.level1_enabled",
			Value:       d.Split.Level1Enabled,
			Description: "Split level 1 into two files (duplicated when false)",
		},
		{
			Key:         "split.level1_at",
			Value:       d.Split.Level1At,
			Description: "Level 1 question number that opens part 2",
		},
		{
			Key:         "split.level1_expected",
			Value:       d.Split.Level1Expected,
			Description: "Expected level 1 question count, used for report warnings only",
		},
		{
			Key:         "split.level2_enabled",
			Value:       d.Split.Level2Enabled,
			Description: "Split level 2 into two files (duplicated when false)",
		},
		{
			Key:         "split.level2_at",
			Value:       d.Split.Level2At,
			Description: "Level 2 question number that opens part 2",
		},
		{
			Key:         "split.level2_expected",
			Value:       d.Split.Level2Expected,
			Description: "Expected level 2 question count, used for report warnings only",
		},
		{
			Key:         "patterns_file",
			Value:       d.PatternsFile,
			Description: "Pattern override document (YAML or JSON); empty uses built-in markers",
		},

		// ===================
		// MinerU
		// ===================
		{
			Key:         "mineru.api_key",
			Value:       d.MinerU.APIKey,
			Description: "MinerU API key (uses environment variable)",
		},
		{
			Key:         "mineru.base_url",
			Value:       d.MinerU.BaseURL,
			Description: "MinerU API base URL",
		},
		{
			Key:         "mineru.language",
			Value:       d.MinerU.Language,
			Description: "OCR language hint",
		},
		{
			Key:         "mineru.model_version",
			Value:       d.MinerU.ModelVersion,
			Description: "MinerU model version (vlm or pipeline)",
		},
		{
			Key:         "mineru.poll_interval",
			Value:       d.MinerU.PollInterval,
			Description: "Delay between task status polls",
		},
		{
			Key:         "mineru.max_wait",
			Value:       d.MinerU.MaxWait,
			Description: "Give up on a task after this long",
		},

		// ===================
		// Detection
		// ===================
		{
			Key:         "detect.api_key",
			Value:       d.Detect.APIKey,
			Description: "API key for the OpenAI-compatible detection model (uses environment variable)",
		},
		{
			Key:         "detect.base_url",
			Value:       d.Detect.BaseURL,
			Description: "Base URL of an OpenAI-compatible gateway; empty uses OpenAI",
		},
		{
			Key:         "detect.model",
			Value:       d.Detect.Model,
			Description: "Chat model used for marker detection",
		},
		{
			Key:         "detect.max_chars",
			Value:       d.Detect.MaxChars,
			Description: "Leading characters of the document sent to the model",
		},

		// ===================
		// Server
		// ===================
		{
			Key:         "server.host",
			Value:       d.Server.Host,
			Description: "HTTP listen host",
		},
		{
			Key:         "server.port",
			Value:       d.Server.Port,
			Description: "HTTP listen port",
		},
		{
			Key:         "ledger.path",
			Value:       d.Ledger.Path,
			Description: "SQLite ledger path; empty uses <home>/ledger.db",
		},
	}
}

// GetDefault returns the default entry for a config key.
// Returns nil if no default exists for the key.
func GetDefault(key string) *Entry {
	for _, entry := range DefaultEntries() {
		if entry.Key == key {
			return &entry
		}
	}
	return nil
}

// Entries returns every known key with its effective value.
func (cm *Manager) Entries() []Entry {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	entries := DefaultEntries()
	for i := range entries {
		entries[i].Value = cm.v.Get(entries[i].Key)
	}
	return entries
}
