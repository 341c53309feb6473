package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aatrooox/zotepad/internal/logging"
	"github.com/aatrooox/zotepad/internal/netutil"
	"github.com/aatrooox/zotepad/internal/server"
	"github.com/aatrooox/zotepad/internal/ui"
	"github.com/aatrooox/zotepad/internal/watcher"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync server",
	Long: `Run the sync protocol server the paired install connects to.

The server exposes /state, /pull, and /push on the LAN, watches the
database for writes made by the GUI, and notifies connected GUI clients
over /ws when a push lands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.New("server", cfg)

		port := cfg.Port
		if servePort > 0 {
			port = servePort
		}

		srv := server.New(&server.Config{
			Port:         port,
			Token:        cfg.Token,
			DatabasePath: cfg.DatabasePath,
			DataDir:      cfg.DataDir,
			BuildVersion: version,
			Logger:       logger,
		})

		ctx := context.Background()
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}

		w, err := watcher.New(&watcher.Config{
			DatabasePath: cfg.DatabasePath,
			Logger:       logging.New("watcher", cfg),
		}, srv.Allocator())
		if err != nil {
			_ = srv.Stop()
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		if err := w.Start(); err != nil {
			_ = srv.Stop()
			return fmt.Errorf("failed to start watcher: %w", err)
		}

		fmt.Println(ui.Success("Sync server listening on %s:%d", netutil.LocalIP(), port))
		fmt.Println(ui.Dim(fmt.Sprintf("  database: %s", cfg.DatabasePath)))
		fmt.Println(ui.Dim("  press Ctrl+C to stop"))

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		fmt.Println(ui.Info("Shutting down"))
		if err := w.Stop(); err != nil {
			logger.Printf("Watcher stop error: %v", err)
		}
		if err := srv.Stop(); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "override the configured port")
	rootCmd.AddCommand(serveCmd)
}
