package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/qsplit/internal/api"
	"github.com/jackzampolin/qsplit/internal/config"
	"github.com/jackzampolin/qsplit/internal/home"
	"github.com/jackzampolin/qsplit/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "qsplit",
	Short: "Split OCR'd chapter markdown into question, answer-key and explanation files",
	Long: `qsplit splits the markdown of an OCR'd textbook chapter into separate files
by locating literal section markers.

The chapter is divided into:
  - Theory and competency-focused questions
  - Level 1 and level 2 questions, each split into two parts
  - The achievers section
  - Matching answer-key and explanation files for every section

Sections that cannot be found get a placeholder file, so every run produces
the same 19 files plus a report.`,
	Version:       version.GitRelease,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.qsplit/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "qsplit home directory (default: ~/.qsplit)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "info", "log level: debug, info, warn or error",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}

// newLogger returns a text logger on stderr at the --log-level level.
func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

// loadConfig loads the config from --config, falling back to the home
// directory's config.yaml when it exists.
func loadConfig(h *home.Dir) (*config.Manager, error) {
	path := cfgFile
	if path == "" && h != nil && h.ConfigExists() {
		path = h.ConfigPath()
	}
	return config.NewManager(path)
}

// setup resolves the home directory, logger and config shared by commands.
func setup() (*home.Dir, *config.Manager, *slog.Logger, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, nil, nil, err
	}
	h, err := home.New(homeDir)
	if err != nil {
		return nil, nil, nil, err
	}
	cm, err := loadConfig(h)
	if err != nil {
		return nil, nil, nil, err
	}
	slog.SetDefault(logger)
	return h, cm, logger, nil
}

// absPath makes a command-line path absolute for messages and stored keys.
func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
