package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/jackzampolin/qsplit/internal/detect"
	"github.com/jackzampolin/qsplit/internal/mineru"
	"github.com/jackzampolin/qsplit/internal/patterns"
)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	v         *viper.Viper
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	for _, entry := range DefaultEntries() {
		cm.v.SetDefault(entry.Key, entry.Value)
	}

	// Environment variables with QSPLIT_ prefix, e.g. QSPLIT_SPLIT_LEVEL1_AT
	cm.v.SetEnvPrefix("QSPLIT")
	cm.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cm.v.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		cm.v.SetConfigFile(cfgFile)
	} else {
		cm.v.SetConfigName("config")
		cm.v.SetConfigType("yaml")
		cm.v.AddConfigPath(".")
		cm.v.AddConfigPath("$HOME/.qsplit")
	}

	// Try to read config file (not required)
	if err := cm.v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.SplitConfig().Validate(); err != nil {
		return nil, fmt.Errorf("invalid split config: %w", err)
	}
	if cfg.PatternsFile != "" && !filepath.IsAbs(cfg.PatternsFile) {
		if used := cm.v.ConfigFileUsed(); used != "" {
			cfg.PatternsFile = filepath.Join(filepath.Dir(used), cfg.PatternsFile)
		}
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// Value returns the effective value of a single key.
func (cm *Manager) Value(key string) (any, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if !cm.v.IsSet(key) {
		return nil, fmt.Errorf("%w: %q is not a config key", ErrInvalidKey, key)
	}
	return cm.v.Get(key), nil
}

// FileUsed returns the config file that was read, or "" when running on
// defaults.
func (cm *Manager) FileUsed() string {
	return cm.v.ConfigFileUsed()
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration. A reload that fails
// validation keeps the previous config.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// ToMinerUConfig converts the config for mineru.NewClient, resolving the
// API key.
func (c *Config) ToMinerUConfig() (mineru.Config, error) {
	poll, err := c.MinerU.PollDuration(mineru.DefaultPollInterval)
	if err != nil {
		return mineru.Config{}, err
	}
	maxWait, err := c.MinerU.MaxWaitDuration(mineru.DefaultMaxWait)
	if err != nil {
		return mineru.Config{}, err
	}
	return mineru.Config{
		APIKey:       ResolveEnvVars(c.MinerU.APIKey),
		BaseURL:      c.MinerU.BaseURL,
		Language:     c.MinerU.Language,
		ModelVersion: c.MinerU.ModelVersion,
		PollInterval: poll,
		MaxWait:      maxWait,
	}, nil
}

// ToDetectConfig converts the config for detect.New, resolving the API key.
func (c *Config) ToDetectConfig() detect.Config {
	return detect.Config{
		APIKey:   ResolveEnvVars(c.Detect.APIKey),
		BaseURL:  c.Detect.BaseURL,
		Model:    c.Detect.Model,
		MaxChars: c.Detect.MaxChars,
	}
}

// LoadCatalog builds the pattern catalog: the built-in defaults overlaid with
// the patterns file when one is configured. Per-section adaptation errors do
// not fail the load; they are returned so they can be reported.
func (c *Config) LoadCatalog() (*patterns.Catalog, []error, error) {
	if c.PatternsFile == "" {
		return patterns.Default(), nil, nil
	}
	doc, err := patterns.LoadOverridesFile(c.PatternsFile)
	if err != nil {
		return nil, nil, err
	}
	set, errs := doc.Adapt()
	return patterns.NewCatalog(&set), errs, nil
}

func parseDuration(key, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# qsplit configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export MINERU_API_KEY=xxx OPENAI_API_KEY=xxx

`)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, append(header, data...), 0o644)
}
