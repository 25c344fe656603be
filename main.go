package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"loanapproval/config"
	"loanapproval/db"
	lhttp "loanapproval/http"
	"loanapproval/logger"
	"loanapproval/monitoring"
	"loanapproval/predictor"
)

func main() {
	configPath := flag.String("config", "config.yaml", "config file")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := monitoring.NewMetrics()
	deps := lhttp.Deps{Metrics: metrics, Logger: log}

	// 2. Initialize database
	if cfg.Database.Path != "" {
		store, err := db.Open(cfg.Database.Path)
		if err != nil {
			log.Fatal("Failed to initialize database", zap.String("path", cfg.Database.Path), zap.Error(err))
		}
		defer store.Close()
		deps.Store = store
		log.Info("Database initialized", zap.String("path", cfg.Database.Path))
	}

	// 3. Load model artifacts
	paths := predictor.Paths{Model: cfg.Artifacts.ModelPath(), Encoders: cfg.Artifacts.EncodersPath()}
	registry := predictor.NewRegistry(paths, predictor.Options{
		StrictEncoders: cfg.Predictor.StrictEncoders,
		ApprovedLabel:  cfg.Predictor.ApprovedLabel,
		CacheSize:      cfg.Predictor.CacheSize,
		Thresholds: predictor.Thresholds{
			HighIncome: cfg.Predictor.HighIncomeThreshold,
			LargeLoan:  cfg.Predictor.LargeLoanThreshold,
		},
		Logger: log,
	}, metrics)
	if err := registry.Reload(); err != nil {
		// The form still renders and reports the load error.
		log.Error("Error loading model or encoders", zap.Error(err))
	}
	deps.Registry = registry

	if cfg.Artifacts.Watch {
		go func() {
			if err := registry.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("artifact watcher stopped", zap.Error(err))
			}
		}()
	}

	// 4. Start HTTP server
	server := lhttp.NewServer(lhttp.ServerConfig{
		Port:            cfg.HTTP.Port,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		IdleTimeout:     cfg.HTTP.IdleTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		MaxBodyBytes:    cfg.HTTP.MaxBodyBytes,
		AllowedOrigins:  cfg.HTTP.AllowedOrigins,
	}, deps)
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 5. Handle graceful shutdown
	select {
	case <-ctx.Done():
		log.Info("Shutting down...")
	case err := <-errCh:
		log.Error("HTTP server failed", zap.Error(err))
	}

	if err := server.Stop(context.Background()); err != nil {
		log.Warn("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Exiting")
}
