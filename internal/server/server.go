package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jackzampolin/qsplit/internal/api"
	"github.com/jackzampolin/qsplit/internal/blobstore"
	"github.com/jackzampolin/qsplit/internal/config"
	"github.com/jackzampolin/qsplit/internal/detect"
	"github.com/jackzampolin/qsplit/internal/home"
	"github.com/jackzampolin/qsplit/internal/ledger"
	"github.com/jackzampolin/qsplit/internal/mineru"
	"github.com/jackzampolin/qsplit/internal/server/endpoints"
	"github.com/jackzampolin/qsplit/internal/svcctx"
	"github.com/jackzampolin/qsplit/internal/workflow"
)

// Server is the main qsplit HTTP server.
// It opens the ledger and blob store on start and closes them on shutdown.
type Server struct {
	httpServer *http.Server
	home       *home.Dir
	configMgr  *config.Manager
	extractor  workflow.Extractor
	patterns   *svcctx.Patterns
	logger     *slog.Logger

	ledger *ledger.Ledger
	runner *workflow.Runner

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080)
	Port string
	// Home is the qsplit home directory holding books and the ledger
	Home *home.Dir
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Extractor replaces the MinerU client built from config (tests)
	Extractor workflow.Extractor
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}
	if cfg.Home == nil {
		h, err := home.New("")
		if err != nil {
			return nil, err
		}
		cfg.Home = h
	}

	st, err := loadPatterns(cfg.ConfigManager.Get())
	if err != nil {
		return nil, fmt.Errorf("failed to load patterns: %w", err)
	}
	for _, e := range st.Errors {
		cfg.Logger.Warn("pattern override ignored", "source", st.Source, "error", e)
	}

	s := &Server{
		home:      cfg.Home,
		configMgr: cfg.ConfigManager,
		extractor: cfg.Extractor,
		patterns:  svcctx.NewPatterns(st),
		logger:    cfg.Logger,
	}

	// Swap the pattern catalog when the config file changes
	cfg.ConfigManager.OnChange(func(c *config.Config) {
		st, err := loadPatterns(c)
		if err != nil {
			s.logger.Error("pattern reload failed, keeping previous catalog", "error", err)
			return
		}
		s.patterns.Store(st)
		s.logger.Info("pattern catalog reloaded from config", "source", st.Source, "errors", len(st.Errors))
	})

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:        net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:     s.withServices(mux),
		ReadTimeout: 5 * time.Minute,
		// Extraction runs inside the request and can take as long as the
		// MinerU max wait.
		WriteTimeout: 65 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// loadPatterns builds an immutable pattern state from c.
func loadPatterns(c *config.Config) (*svcctx.PatternState, error) {
	cat, errs, err := c.LoadCatalog()
	if err != nil {
		return nil, err
	}
	return &svcctx.PatternState{
		Catalog: cat,
		Split:   c.SplitConfig(),
		Errors:  errs,
		Source:  c.PatternsFile,
	}, nil
}

// Start opens the ledger and blob store and serves HTTP.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.home.EnsureExists(); err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to create home directory: %w", err)
	}

	cfg := s.configMgr.Get()
	ledgerPath := cfg.Ledger.Path
	if ledgerPath == "" {
		ledgerPath = s.home.LedgerPath()
	}
	led, err := ledger.Open(ledgerPath)
	if err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	s.ledger = led
	s.logger.Info("ledger opened", "path", ledgerPath)

	store, err := blobstore.NewFS(s.home.Path())
	if err != nil {
		_ = s.shutdown()
		return fmt.Errorf("failed to open blob store: %w", err)
	}

	extractor := s.extractor
	if extractor == nil {
		mcfg, err := cfg.ToMinerUConfig()
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("invalid mineru config: %w", err)
		}
		mcfg.Logger = s.logger
		extractor = mineru.NewClient(mcfg)
	}

	registry, err := workflow.NewDefaultRegistry(workflow.Deps{
		Store:     store,
		Ledger:    led,
		Home:      s.home,
		Extractor: extractor,
	})
	if err != nil {
		_ = s.shutdown()
		return fmt.Errorf("failed to build stage registry: %w", err)
	}
	s.runner = &workflow.Runner{Registry: registry, Ledger: led, Logger: s.logger}

	var detector *detect.Detector
	if dcfg := cfg.ToDetectConfig(); dcfg.APIKey != "" {
		dcfg.Logger = s.logger
		detector = detect.New(dcfg)
	} else {
		s.logger.Warn("detect.api_key is empty, pattern detection disabled")
	}

	// Create services struct for context enrichment
	s.mu.Lock()
	s.services = &svcctx.Services{
		Config:   s.configMgr,
		Ledger:   led,
		Store:    store,
		Home:     s.home,
		Runner:   s.runner,
		Detector: detector,
		Patterns: s.patterns,
		Logger:   s.logger,
	}
	s.mu.Unlock()

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown performs graceful shutdown of the HTTP server and the ledger.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	// Shutdown HTTP server with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.mu.Lock()
	s.services = nil
	s.mu.Unlock()

	if s.ledger != nil {
		if err := s.ledger.Close(); err != nil {
			s.logger.Error("ledger close error", "error", err)
		}
		s.ledger = nil
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Runner returns the stage runner.
// Returns nil if the server hasn't started yet.
func (s *Server) Runner() *workflow.Runner {
	return s.runner
}

// Patterns returns the current pattern state.
func (s *Server) Patterns() *svcctx.PatternState {
	return s.patterns.Load()
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

func (s *Server) currentServices() *svcctx.Services {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.services
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc := s.currentServices(); svc != nil {
			ctx = svcctx.WithServices(ctx, svc)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable if the ledger or runner aren't ready.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc := s.currentServices()
		if svc == nil || svc.Ledger == nil || svc.Runner == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
