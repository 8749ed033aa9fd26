// Package main provides the entry point for the scene assembler HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maauso/scene-assembler/internal/bootstrap"
	"github.com/maauso/scene-assembler/internal/config"
	"github.com/maauso/scene-assembler/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting scene assembler",
		slog.Int("port", cfg.Port),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("storage_driver", cfg.StorageDriver),
	)

	// Initialize dependencies using bootstrap
	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	// Initialize HTTP handlers and router
	handlers := server.NewHandlers(deps.RenderService, logger)
	router := server.NewRouter(handlers, logger, server.Config{AllowedOrigins: cfg.CORSAllowedOrigins})

	// Create HTTP server. WriteTimeout stays at zero: a render response is
	// written only when the job finishes.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go runSweeper(sweepCtx, deps, cfg.SweepInterval, cfg.WorkspaceMaxAge, logger)

	// Graceful shutdown handling
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal",
			slog.String("signal", sig.String()),
		)
	case err := <-errCh:
		return err
	}
	stopSweep()

	// Graceful shutdown: stop accepting requests, then let admitted renders
	// finish and write their logs.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	logger.Info("shutting down server...",
		slog.Duration("timeout", cfg.ShutdownTimeout),
	)
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if err := deps.RenderService.Drain(ctx); err != nil {
		active, _ := deps.RenderService.Capacity()
		return fmt.Errorf("renders still running (%d): %w", active, err)
	}

	logger.Info("server stopped gracefully")
	return nil
}

// runSweeper removes stale workspaces and jobs every interval until ctx is
// cancelled. A non-positive interval disables it.
func runSweeper(ctx context.Context, deps *bootstrap.Dependencies, interval, maxAge time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := deps.Sweep(ctx, maxAge)
			if err != nil {
				logger.Warn("sweep failed", slog.String("error", err.Error()))
			}
			if len(report.Workspaces) > 0 || report.Jobs > 0 {
				logger.Info("sweep complete",
					slog.Int("workspaces_removed", len(report.Workspaces)),
					slog.Int("jobs_pruned", report.Jobs),
				)
			}
		}
	}
}
