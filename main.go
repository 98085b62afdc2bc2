package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"triage_server/config"
	"triage_server/core/port/in"
	"triage_server/internal/bootstrap"
	"triage_server/pkg/logger"

	"github.com/joho/godotenv"
)

const (
	shutdownTimeout = 30 * time.Second // Maximum time to wait for graceful shutdown
)

func main() {
	// Load .env file if exists (for local development)
	envErr := godotenv.Load()

	mode := flag.String("mode", "all", "Run mode: api, worker, all, once")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	logger.Init(logger.Config{
		Level:   logger.ParseLevel(cfg.LogLevel),
		Service: "mail-triage",
		Pretty:  cfg.IsDevelopment(),
	})
	if envErr != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := bootstrap.NewDependencies(ctx, cfg, logger.Default())
	if err != nil {
		logger.Fatal("Failed to initialize dependencies: %v", err)
	}
	defer cleanup()

	switch *mode {
	case "api":
		runAPI(ctx, cfg, deps)
	case "worker":
		runWorker(ctx, cfg, deps)
	case "all":
		w := bootstrap.NewWorker(ctx, cfg, deps)
		w.Start()
		runAPI(ctx, cfg, deps)
		w.Stop(shutdownTimeout)
	case "once":
		runOnce(ctx, cfg, deps)
	default:
		logger.Error("Unknown mode: %s", *mode)
		cleanup()
		os.Exit(2)
	}
}

func runAPI(ctx context.Context, cfg *config.Config, deps *bootstrap.Dependencies) {
	app := bootstrap.NewAPI(ctx, cfg, deps)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info("Starting API server on %s", addr)
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("API server stopped: %v", err)
		}
		return
	case <-ctx.Done():
	}

	logger.Info("Shutting down API server (timeout: %v)...", shutdownTimeout)
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Error("Error shutting down: %v", err)
		return
	}
	logger.Info("API server shut down gracefully")
}

func runWorker(ctx context.Context, cfg *config.Config, deps *bootstrap.Dependencies) {
	w := bootstrap.NewWorker(ctx, cfg, deps)
	logger.Info("Starting worker...")
	w.Start()

	<-ctx.Done()
	logger.Info("Shutting down worker (timeout: %v)...", shutdownTimeout)
	w.Stop(shutdownTimeout)
}

// runOnce processes a single batch and exits, for cron-style deployments.
func runOnce(ctx context.Context, cfg *config.Config, deps *bootstrap.Dependencies) {
	runCtx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
	defer cancel()

	summary, err := deps.Triage.Run(runCtx, in.TriggerManual)
	if err != nil {
		logger.WithError(err).Error("Triage run failed")
		return
	}
	logger.WithFields(map[string]any{
		"run_id":   summary.RunID,
		"eligible": summary.Eligible,
		"applied":  summary.Applied,
		"deferred": summary.Deferred,
		"skipped":  summary.Skipped,
		"failed":   summary.Failed,
	}).WithDuration(summary.Duration).Info("Triage run complete")
}
