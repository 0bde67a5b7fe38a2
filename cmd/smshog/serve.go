package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zauberware/smshog"
	"github.com/zauberware/smshog/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// newLogger creates a JSON logger for CLI use.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// serveCmd starts the emulator.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the SNS emulator",
	Long: `Start the SMSHog server.

Settings are resolved in order: built-in defaults, the config file (if
given), the SMSHOG_PERSIST, SMSHOG_PERSIST_PATH and PORT environment
variables, then command-line flags.

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  smshog serve
  smshog serve -c smshog.yaml
  smshog serve --port 4000 --persist --persist-path /tmp/sms.json`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file")
	serveCmd.Flags().IntP("port", "p", 0, "listen port")
	serveCmd.Flags().Bool("persist", false, "keep messages in a snapshot file")
	serveCmd.Flags().String("persist-path", "", "snapshot file path")
	serveCmd.Flags().String("log-level", "", "log level (debug, info, warn, error)")
}

// loadServeConfig resolves the configuration for serve.
func loadServeConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()

	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("persist") {
		cfg.Persistence.Enabled, _ = flags.GetBool("persist")
	}
	if flags.Changed("persist-path") {
		cfg.Persistence.Path, _ = flags.GetString("persist-path")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServeConfig(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Level())
	logger.Info("config loaded",
		"port", cfg.Port,
		"persistence", cfg.Persistence.Enabled,
		"metrics", cfg.Metrics.Enabled,
	)
	if cfg.Persistence.Enabled {
		logger.Info("persistence configured",
			"path", cfg.Persistence.Path,
			"flush_interval", cfg.Persistence.FlushInterval.Duration().String(),
		)
	}

	hog, err := smshog.New(config.BuildOptions(cfg, logger)...)
	if err != nil {
		return fmt.Errorf("failed to create SMSHog: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start server - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- hog.Start(ctx)
	}()

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
