package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/pagesnap/internal/browser"
	"github.com/lehigh-university-libraries/pagesnap/internal/handlers"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the capture API server",
		Long: `Starts the pagesnap HTTP API.

Each session opens a page in the browser; clients select a region, annotate
it, and confirm to capture. Finished screenshots are served under
/screenshots/. Agents in other processes can post messages to /api/agent.`,
		Example: `  # Start server on default address :8888
  pagesnap serve

  # Start server on custom address with a remote Chrome
  PAGESNAP_BROWSER_URL=ws://127.0.0.1:9222/devtools/browser/... pagesnap serve --addr :3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			mgr := browser.NewManager(cfg.Browser)
			if err := mgr.Start(); err != nil {
				return fmt.Errorf("failed to start browser: %w", err)
			}
			defer mgr.Close()

			handler := handlers.New(cfg, handlers.BrowserOpener{Manager: mgr})
			defer handler.Close()

			server := &http.Server{
				Addr:    cfg.Server.Addr,
				Handler: handler.Routes(),
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Pagesnap API available", "addr", cfg.Server.Addr, "output_dir", cfg.OutputDir)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				// Give server 5 seconds to shut down gracefully
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Address to listen on (default from config, :8888)")

	return cmd
}
