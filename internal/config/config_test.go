package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackzampolin/qsplit/internal/patterns"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if got := cfg.SplitConfig(); got != patterns.DefaultSplitConfig() {
		t.Errorf("split config = %+v, want %+v", got, patterns.DefaultSplitConfig())
	}
	if cfg.MinerU.APIKey != "${MINERU_API_KEY}" {
		t.Error("expected mineru API key placeholder")
	}
	if cfg.Server.Addr() != "127.0.0.1:8080" {
		t.Errorf("addr = %s", cfg.Server.Addr())
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "secret123")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestNewManager(t *testing.T) {
	t.Run("defaults without a file", func(t *testing.T) {
		mgr, err := NewManager(writeConfig(t, t.TempDir(), "{}\n"))
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		cfg := mgr.Get()
		if *cfg != *DefaultConfig() {
			t.Errorf("config = %+v, want defaults", cfg)
		}
	})

	t.Run("loads from config file", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), `
split:
  level1_at: 10
  level1_expected: 22
mineru:
  api_key: "${TEST_MINERU_KEY}"
  poll_interval: 2s
`)
		t.Setenv("TEST_MINERU_KEY", "mk-1")

		mgr, err := NewManager(path)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Split.Level1At != 10 || cfg.Split.Level1Expected != 22 {
			t.Errorf("split = %+v", cfg.Split)
		}
		if cfg.Split.Level2At != 11 {
			t.Errorf("level2_at should keep its default, got %d", cfg.Split.Level2At)
		}

		mc, err := cfg.ToMinerUConfig()
		if err != nil {
			t.Fatalf("ToMinerUConfig: %v", err)
		}
		if mc.APIKey != "mk-1" || mc.PollInterval != 2*time.Second || mc.MaxWait != time.Hour {
			t.Errorf("mineru config = %+v", mc)
		}
		if mgr.FileUsed() != path {
			t.Errorf("FileUsed = %s", mgr.FileUsed())
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "split:\n  level2_at: 9\n")
		t.Setenv("QSPLIT_SPLIT_LEVEL2_AT", "7")

		mgr, err := NewManager(path)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		if got := mgr.Get().Split.Level2At; got != 7 {
			t.Errorf("level2_at = %d, want 7", got)
		}
	})

	t.Run("rejects invalid split", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "split:\n  level1_at: 1\n")
		if _, err := NewManager(path); err == nil {
			t.Error("expected error for split ordinal 1")
		}
	})

	t.Run("relative patterns file resolves against config dir", func(t *testing.T) {
		dir := t.TempDir()
		path := writeConfig(t, dir, "patterns_file: patterns.yaml\n")
		mgr, err := NewManager(path)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		if got := mgr.Get().PatternsFile; got != filepath.Join(dir, "patterns.yaml") {
			t.Errorf("patterns_file = %s", got)
		}
	})
}

func TestManager_Value(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, t.TempDir(), "detect:\n  model: test-model\n"))
	if err != nil {
		t.Fatal(err)
	}

	v, err := mgr.Value("detect.model")
	if err != nil || v != "test-model" {
		t.Errorf("Value = %v, %v", v, err)
	}
	if _, err := mgr.Value("no.such.key"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("unknown key: err = %v", err)
	}
	if _, err := mgr.Value("bad key"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("invalid key: err = %v", err)
	}

	entries := mgr.Entries()
	if len(entries) != len(DefaultEntries()) {
		t.Fatalf("entries = %d", len(entries))
	}
	for _, e := range entries {
		if e.Key == "detect.model" && e.Value != "test-model" {
			t.Errorf("effective detect.model = %v", e.Value)
		}
	}
}

func TestLoadCatalog(t *testing.T) {
	t.Run("no patterns file", func(t *testing.T) {
		cat, errs, err := DefaultConfig().LoadCatalog()
		if err != nil || len(errs) != 0 {
			t.Fatalf("LoadCatalog = %v, %v", errs, err)
		}
		if cat.Overridden(patterns.ViewQuestions, patterns.SectionLevel1) {
			t.Error("default catalog should have no overrides")
		}
	})

	t.Run("with patterns file", func(t *testing.T) {
		dir := t.TempDir()
		pf := filepath.Join(dir, "patterns.yaml")
		content := "questions:\n  level1:\n    start: [\"# TIER ONE\"]\n    end: [\"# TIER TWO\"]\n"
		if err := os.WriteFile(pf, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		cfg := DefaultConfig()
		cfg.PatternsFile = pf

		cat, errs, err := cfg.LoadCatalog()
		if err != nil || len(errs) != 0 {
			t.Fatalf("LoadCatalog = %v, %v", errs, err)
		}
		if got := cat.Markers(patterns.ViewQuestions, patterns.SectionLevel1).Start; len(got) != 1 || got[0] != "# TIER ONE" {
			t.Errorf("level1 start = %q", got)
		}
	})

	t.Run("missing patterns file", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.PatternsFile = filepath.Join(t.TempDir(), "absent.yaml")
		if _, _, err := cfg.LoadCatalog(); err == nil {
			t.Error("expected error for missing patterns file")
		}
	})
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("reading written defaults: %v", err)
	}
	if *mgr.Get() != *DefaultConfig() {
		t.Errorf("round trip = %+v", mgr.Get())
	}
}

func TestManager_OnChange_Multiple(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, t.TempDir(), "{}\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	// Register multiple callbacks
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, t.TempDir(), "{}\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	// Call Get concurrently to verify no race conditions
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				cfg := mgr.Get()
				_ = cfg.Split.Level1At
			}
			done <- struct{}{}
		}()
	}

	// Wait for all goroutines
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	configFile := writeConfig(t, t.TempDir(), "detect:\n  model: initial-model\n")

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	// Track callback invocations
	var callbackCount atomic.Int32
	var lastValue atomic.Value

	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastValue.Store(cfg.Detect.Model)
	})

	// Start watching
	mgr.WatchConfig()

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(configFile, []byte("detect:\n  model: updated-model\n"), 0644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	// Wait for the watcher to detect the change (fsnotify is async)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if callbackCount.Load() > 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Error("callback was not invoked after config file change")
	}
	if got := mgr.Get().Detect.Model; got != "updated-model" {
		t.Errorf("config not updated: expected updated-model, got %s", got)
	}
	if v := lastValue.Load(); v != "updated-model" {
		t.Errorf("callback received wrong value: expected updated-model, got %v", v)
	}
}
