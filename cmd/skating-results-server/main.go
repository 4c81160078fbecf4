package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/intermernet/skating-results/internal/api"
	"github.com/intermernet/skating-results/internal/config"
	"github.com/intermernet/skating-results/internal/database"
	"github.com/intermernet/skating-results/internal/logging"
	"github.com/intermernet/skating-results/internal/metrics"
)

// main is the entry point for the skating results server.
func main() {
	// --- 1. Load Configuration ---
	// A .env file is convenient during development; in production the
	// variables come from the environment.
	if err := godotenv.Load(); err != nil {
		log.Println("INFO: No .env file found, using environment variables from the system.")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: Failed to load application configuration: %v", err)
	}

	// --- 2. Set Up Logging ---
	logger := logging.NewJSON(logging.ParseLevel(cfg.LogLevel))
	logging.SetDefault(logger)
	defer func() { _ = logger.Sync() }()

	fatal := func(msg string, err error) {
		logger.Error(msg, "error", err)
		_ = logger.Sync()
		os.Exit(1)
	}

	// --- 3. Ensure Required Directories Exist ---
	dbDir := filepath.Dir(cfg.DatabasePath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		fatal("failed to create database directory", err)
	}

	// --- 4. Initialize Database Service and Schema ---
	dbService, err := database.NewService(cfg.DatabasePath, logger)
	if err != nil {
		fatal("failed to initialize database service", err)
	}
	defer dbService.Close()

	if err := dbService.Migrate(); err != nil {
		fatal("failed to migrate database schema", err)
	}

	// --- 5. Metrics ---
	metricsManager := metrics.NewManager()
	stored, err := dbService.CountResults(context.Background(), dbService.DB())
	if err != nil {
		fatal("failed to count stored results", err)
	}
	metricsManager.SetStoredResults(stored)
	logger.Info("database ready", "path", cfg.DatabasePath, "stored_results", stored)

	// --- 6. Set Up API Server and Routes ---
	serverAPI := api.NewServer(cfg, dbService, logger, metricsManager)
	router := chi.NewRouter()
	serverAPI.RegisterRoutes(router)

	// --- 7. Start the HTTP Server ---
	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("skating results server starting", "addr", cfg.ServerAddr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			fatal("server failed", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	// --- 8. Graceful Shutdown ---
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}
