package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/qsplit/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the qsplit server",
	Long: `Start the qsplit HTTP server.

The server opens the ledger in the home directory and serves the split,
pattern and book endpoints. Editing the config file or the patterns file it
names reloads the pattern catalog without a restart.

The server provides:
  - /health         - Basic server health check
  - /ready          - Readiness check (includes ledger status)
  - /api/split      - Split a chapter document
  - /api/books/...  - Book ingest, extraction, splitting and edit locks

Examples:
  qsplit serve                    # Start on the configured port (default 8080)
  qsplit serve --port 3000        # Start on custom port
  qsplit serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, cm, logger, err := setup()
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		host, port := serveHost, servePort
		if !cmd.Flags().Changed("host") {
			host = cm.Get().Server.Host
		}
		if !cmd.Flags().Changed("port") {
			port = cm.Get().Server.Port
		}

		srv, err := server.New(server.Config{
			Host:          host,
			Port:          port,
			Home:          h,
			ConfigManager: cm,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		if cm.FileUsed() != "" {
			cm.WatchConfig()
			logger.Info("watching config for changes", "file", cm.FileUsed())
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on")

	rootCmd.AddCommand(serveCmd)
}
