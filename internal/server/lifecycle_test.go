package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackzampolin/qsplit/internal/config"
	"github.com/jackzampolin/qsplit/internal/home"
	"github.com/jackzampolin/qsplit/internal/server/endpoints"
	"github.com/jackzampolin/qsplit/internal/testutil"
)

func TestServer_FullLifecycle(t *testing.T) {
	srv, cfg, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Start server in background
	serverErr := make(chan error, 1)
	serverCtx, serverCancel := context.WithCancel(ctx)

	go func() {
		serverErr <- srv.Start(serverCtx)
	}()

	// Wait for server to be ready
	if err := testutil.WaitForServer(cfg.URL(), 10*time.Second); err != nil {
		serverCancel()
		t.Fatalf("server did not start: %v", err)
	}

	t.Run("health_endpoint", func(t *testing.T) {
		var health endpoints.HealthResponse
		if code := doJSON(t, "GET", cfg.URL()+"/health", nil, &health); code != http.StatusOK {
			t.Errorf("health status = %d, want %d", code, http.StatusOK)
		}
		if health.Status != "ok" {
			t.Errorf("health.Status = %q, want %q", health.Status, "ok")
		}
	})

	t.Run("ready_endpoint", func(t *testing.T) {
		var health endpoints.HealthResponse
		if code := doJSON(t, "GET", cfg.URL()+"/ready", nil, &health); code != http.StatusOK {
			t.Errorf("ready status = %d, want %d", code, http.StatusOK)
		}
		if health.Ledger != "ok" {
			t.Errorf("health.Ledger = %q, want %q", health.Ledger, "ok")
		}
	})

	t.Run("status_endpoint", func(t *testing.T) {
		var status endpoints.StatusResponse
		if code := doJSON(t, "GET", cfg.URL()+"/status", nil, &status); code != http.StatusOK {
			t.Errorf("status code = %d, want %d", code, http.StatusOK)
		}
		if status.Server != "running" {
			t.Errorf("status.Server = %q, want %q", status.Server, "running")
		}
		if status.Home != cfg.HomeDir {
			t.Errorf("status.Home = %q, want %q", status.Home, cfg.HomeDir)
		}
		if len(status.Stages) != 3 {
			t.Errorf("status.Stages = %v, want three stages", status.Stages)
		}
	})

	t.Run("ledger_created", func(t *testing.T) {
		if _, err := os.Stat(filepath.Join(cfg.HomeDir, "ledger.db")); err != nil {
			t.Errorf("ledger file missing: %v", err)
		}
	})

	t.Run("is_running", func(t *testing.T) {
		if !srv.IsRunning() {
			t.Error("IsRunning() = false, want true")
		}
		if err := srv.Start(ctx); err == nil {
			t.Error("second Start() should fail while running")
		}
	})

	// Shutdown server
	serverCancel()

	if err := testutil.WaitForShutdown(serverErr, 30*time.Second); err != nil {
		t.Fatalf("server did not shut down cleanly: %v", err)
	}

	t.Run("not_running_after_shutdown", func(t *testing.T) {
		if srv.IsRunning() {
			t.Error("IsRunning() = true after shutdown, want false")
		}
	})

	t.Run("port_released_after_shutdown", func(t *testing.T) {
		client := &http.Client{Timeout: time.Second}
		if resp, err := client.Get(cfg.URL() + "/health"); err == nil {
			resp.Body.Close()
			t.Error("server still answering after shutdown")
		}
	})
}

func TestServer_PortInUse(t *testing.T) {
	_, cfg, _ := startTestServer(t)

	cm, err := config.NewManager(cfg.ConfigFile)
	if err != nil {
		t.Fatal(err)
	}
	h, _ := home.New(t.TempDir())
	other, err := New(Config{Host: cfg.Host, Port: cfg.Port, Home: h, ConfigManager: cm, Logger: cfg.Logger})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := other.Start(ctx); err == nil {
		t.Error("Start() on a taken port should fail")
	}
	if other.IsRunning() {
		t.Error("IsRunning() = true after failed start")
	}
}

func TestServer_PatternHotReload(t *testing.T) {
	_, cfg, cm := startTestServer(t)
	cm.WatchConfig()

	var before endpoints.PatternsResponse
	if code := doJSON(t, "GET", cfg.URL()+"/api/patterns", nil, &before); code != http.StatusOK {
		t.Fatalf("patterns status = %d", code)
	}
	if before.Split.Level1.At != 13 {
		t.Fatalf("initial level1 at = %d, want 13", before.Split.Level1.At)
	}

	patternsFile := filepath.Join(filepath.Dir(cfg.ConfigFile), "patterns.yaml")
	if err := os.WriteFile(patternsFile, []byte("questions:\n  level1:\n    start: [\"# TIER ONE\"]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	newCfg := "patterns_file: patterns.yaml\nsplit:\n  level1_at: 7\n"
	if err := os.WriteFile(cfg.ConfigFile, []byte(newCfg), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		var after endpoints.PatternsResponse
		doJSON(t, "GET", cfg.URL()+"/api/patterns", nil, &after)
		if after.Split.Level1.At == 7 && after.Source == patternsFile {
			start := after.Overrides.Sections["questions"]["level1"].Start
			if len(start) != 1 || start[0] != "# TIER ONE" {
				t.Errorf("reloaded level1 start = %q", start)
			}
			break
		}
		if time.Now().After(deadline) {
			raw, _ := json.Marshal(after)
			t.Fatalf("patterns not reloaded: %s", raw)
		}
		time.Sleep(100 * time.Millisecond)
	}
}
