package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jpalmerr/pricewatch"
	"github.com/jpalmerr/pricewatch/config"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts the PriceWatch dashboard server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard server",
	Long: `Start the PriceWatch dashboard server.

The server will:
  - Load configuration from the YAML file, or from defaults and --backend
  - Load the notification toggles from the backend
  - Serve the dashboard UI on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  pricewatch serve -c config.yaml
  pricewatch serve --backend http://localhost:5000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger(slog.LevelInfo)

	cfg, client, err := newClient(cmd)
	if err != nil {
		return err
	}

	logger.Info("config loaded",
		"backend", client.BaseURL(),
		"base_path", client.BasePath(),
	)
	logger.Info("starting server",
		"port", cfg.Port,
		"poll_interval", cfg.Polling.Interval.Duration().String(),
		"max_checks", cfg.Polling.MaxChecks,
	)

	d, err := pricewatch.NewDashboard(client, config.BuildDashboardOptions(cfg, logger)...)
	if err != nil {
		client.Close()
		return fmt.Errorf("failed to create dashboard: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signalContext(cmd)
	defer stop()

	// start server - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- d.Start(ctx)
	}()

	// wait for server to finish
	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
