package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yegors/flighttrack/internal/airports"
	"github.com/yegors/flighttrack/internal/api"
	"github.com/yegors/flighttrack/internal/config"
	"github.com/yegors/flighttrack/internal/feed"
	"github.com/yegors/flighttrack/internal/storage/sqlite"
	"github.com/yegors/flighttrack/internal/tracker"
	"github.com/yegors/flighttrack/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting flighttrack engine",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	// Airport elevation table
	table, err := airports.Load(cfg.Airports.DBPath)
	if err != nil {
		log.Error("Failed to load airports database", logger.Error(err))
		os.Exit(1)
	}
	log.Info("Airports database loaded", logger.Int("airports", table.Count()))

	// Storage
	store, err := sqlite.New(cfg.Storage.SQLitePath, log)
	if err != nil {
		log.Error("Failed to initialize storage", logger.Error(err))
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracking engine
	state := tracker.NewState()
	waypointDialer := feed.NewWaypointDialer(cfg.Feed, log)
	trackerService := tracker.NewService(store, state, table, waypointDialer, cfg.Tracking, log, nil)
	if err := trackerService.Start(ctx); err != nil {
		log.Error("Failed to start tracking service", logger.Error(err))
		os.Exit(1)
	}

	// Feed
	feedClient, err := feed.NewClient(cfg.Feed, trackerService.HandleTraffic, log)
	if err != nil {
		log.Error("Failed to create feed client", logger.Error(err))
		os.Exit(1)
	}
	feedClient.Start(ctx)

	// Sweeper
	sweeper := tracker.NewSweeper(store, state, trackerService.Lifecycle(), cfg.Tracking, log, nil)
	sweeper.Start(ctx)

	// Operational HTTP endpoint
	router := api.NewRouter(trackerService, feedClient, store, log)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
	}
	go func() {
		log.Info("HTTP server listening", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", logger.Error(err))
		}
	}()

	// Wait for termination signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("Received signal, shutting down", logger.String("signal", sig.String()))

	log.Info("Stopping sweeper...")
	sweeper.Stop()

	log.Info("Stopping feed client...")
	feedClient.Stop()

	log.Info("Stopping tracking service...")
	trackerService.Stop()

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
	}

	log.Info("Server fully stopped")
}
