// Sentinel - Rule-based transaction fraud scoring.
// Copyright (c) 2025 transactai
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/transactai/sentinel/internal/alert"
	"github.com/transactai/sentinel/internal/api"
	"github.com/transactai/sentinel/internal/bus"
	"github.com/transactai/sentinel/internal/cache"
	"github.com/transactai/sentinel/internal/domain"
	"github.com/transactai/sentinel/internal/ingest"
	"github.com/transactai/sentinel/internal/repository"
	"github.com/transactai/sentinel/internal/rules"
	"github.com/transactai/sentinel/internal/velocity"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("SENTINEL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting sentinel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration from environment
	cfg := domain.LoadConfig()

	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"velocity_window", cfg.VelocityWindow.String(),
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

	// Initialize Velocity Service
	velocitySvc := velocity.NewService(repo, cacheImpl)
	slog.Info("velocity service initialized")

	// Initialize Rule Evaluator
	eval, err := rules.NewEvaluator()
	if err != nil {
		slog.Error("failed to initialize rule evaluator", "error", err)
		os.Exit(1)
	}
	slog.Info("rule evaluator initialized")

	// Initialize Alert Dispatcher + Deliverer
	dispatcher := alert.NewDispatcher(busImpl, cfg.AlertTimeout)
	deliverer := alert.NewDeliverer(busImpl, alert.LogNotifier{})
	if err := deliverer.Start(ctx); err != nil {
		slog.Error("failed to start alert deliverer", "error", err)
		os.Exit(1)
	}

	// Initialize Ingest pipeline
	ingestSvc := ingest.NewService(repo, eval, velocitySvc, dispatcher, cfg.VelocityWindow)

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, eval, ingestSvc, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("sentinel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop alert delivery first, then drain in-flight dispatches
	if err := deliverer.Stop(); err != nil {
		slog.Error("failed to stop alert deliverer", "error", err)
	}
	dispatcher.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("sentinel shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  SENTINEL - Transaction Fraud Scoring")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST   /detect            - Score a transaction")
	fmt.Println("    POST   /batchdetect       - Score a batch of transactions")
	fmt.Println("    GET    /rules             - List active rules")
	fmt.Println("    POST   /rules             - Create a rule")
	fmt.Println("    DELETE /rules/{id}        - Deactivate a rule")
	fmt.Println("    GET    /rules/meta        - Rule set last-modified timestamp")
	fmt.Println("    GET    /transactions      - List recent verdicts")
	fmt.Println("    GET    /transactions/{id} - Get verdict by transaction ID")
	fmt.Println("    GET    /health            - Health check")
	fmt.Println()
}
