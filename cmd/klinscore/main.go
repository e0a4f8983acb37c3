// klinscore - Clinical risk score calculation engine.
// Copyright (c) 2026 openclinical
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/openclinical/klinscore/internal/api"
	"github.com/openclinical/klinscore/internal/bus"
	"github.com/openclinical/klinscore/internal/cache"
	"github.com/openclinical/klinscore/internal/domain"
	"github.com/openclinical/klinscore/internal/loader"
	"github.com/openclinical/klinscore/internal/repository"
	"github.com/openclinical/klinscore/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	cfg := loadConfig()

	logLevel := slog.LevelInfo
	if os.Getenv("KLINSCORE_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	slog.SetDefault(slog.New(handler))

	slog.Info("starting klinscore",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	slog.Info("configuration loaded",
		"scores_dir", cfg.ScoresDir,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Load score catalog
	registry, err := loader.LoadRegistry(cfg.ScoresDir, slog.Default())
	if err != nil {
		slog.Error("failed to load score catalog", "dir", cfg.ScoresDir, "error", err)
		os.Exit(1)
	}
	slog.Info("score catalog loaded", "scores", registry.Count(), "specialties", registry.Specialties())

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize audit worker
	auditWorker := worker.NewAuditWorker(busImpl, slog.Default())
	if err := auditWorker.Start(); err != nil {
		slog.Error("failed to start audit worker", "error", err)
		os.Exit(1)
	}
	slog.Info("audit worker started")

	// Initialize Server
	srv := api.NewServer(cfg.Server, registry, repo, cacheImpl, busImpl, cfg.ScoresDir, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("klinscore is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version, registry.Count())

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop audit worker first
	if err := auditWorker.Stop(); err != nil {
		slog.Error("failed to stop audit worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("klinscore shutdown complete")
}

// loadConfig builds the configuration from defaults and KLINSCORE_*
// environment overrides.
func loadConfig() *domain.Config {
	cfg := domain.DefaultConfig()
	if os.Getenv("KLINSCORE_CLUSTER") == "true" {
		cfg = domain.ClusterConfig()
	}

	if v := os.Getenv("KLINSCORE_SCORES_DIR"); v != "" {
		cfg.ScoresDir = v
	}
	if v := os.Getenv("KLINSCORE_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("KLINSCORE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("KLINSCORE_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("KLINSCORE_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("KLINSCORE_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("KLINSCORE_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("KLINSCORE_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("KLINSCORE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	return cfg
}

func printBanner(cfg *domain.Config, version string, scores int) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║             🩺 KLINSCORE                  ║")
	fmt.Println("  ║    Clinical Risk Score Engine             ║")
	fmt.Println("  ║    Evidence at the point of care.         ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Scores:   %d\n", scores)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /scores                      - List score catalog")
	fmt.Println("    GET  /scores/{id}                 - Get score definition")
	fmt.Println("    POST /scores/{id}/calculate       - Calculate a score")
	fmt.Println("    POST /scores/reload               - Hot-reload score catalog")
	fmt.Println("    GET  /specialties                 - List specialties")
	fmt.Println("    GET  /calculations                - List calculation history")
	fmt.Println("    GET  /calculations/{id}           - Get calculation by ID")
	fmt.Println("    GET  /calculations/{id}/export    - Export as CSV or JSON")
	fmt.Println("    GET  /stats                       - Usage statistics")
	fmt.Println("    GET  /health                      - Health check")
	fmt.Println()
}
