package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/feedpoll/feedpoll/app/api"
	"github.com/feedpoll/feedpoll/app/cfg"
	"github.com/feedpoll/feedpoll/app/config"
	"github.com/feedpoll/feedpoll/app/feed"
	"github.com/feedpoll/feedpoll/app/health"
	"github.com/feedpoll/feedpoll/app/queue"
	"github.com/feedpoll/feedpoll/app/store"
	"github.com/feedpoll/feedpoll/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting feedpoll server", "version", appCfg.Version)

	db, err := store.NewConnection(appCfg.DBPath)
	if err != nil {
		log.Fatal("Failed to open record store:", err)
	}
	defer db.Close()

	version, dirty, err := store.RunMigrations(db)
	if err != nil {
		log.Fatal("Failed to run migrations:", err)
	}
	slog.Info("Record store ready", "path", appCfg.DBPath, "migration_version", version, "dirty", dirty)

	gateway := store.NewGateway(db)

	httpClient := &http.Client{}
	fetcher := feed.NewFetcher(httpClient, appCfg.UserAgent,
		time.Duration(appCfg.FetchTimeout)*time.Second)
	detector := feed.NewDetector(gateway)
	tracker := health.NewTracker(gateway)
	registrar := feed.NewRegistrar(fetcher, gateway)

	taskQueue := queue.New(appCfg.QueueSize)
	defer taskQueue.Close()

	registerSeedFeeds(registrar, taskQueue, appCfg.SeedFile)

	scheduler := tasks.NewScheduler(gateway, taskQueue, fetcher, detector, tracker,
		time.Duration(appCfg.SchedulerInterval)*time.Second, appCfg.WorkerCount)
	scheduler.Start()
	defer scheduler.Stop()
	slog.Info("Background scheduler started", "workers", appCfg.WorkerCount, "interval", appCfg.SchedulerInterval)

	apiHandler := api.NewHandler(gateway, registrar, taskQueue)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Scheduler and queue are stopped via defer
	slog.Info("Shutdown complete")
}

// registerSeedFeeds registers the URLs listed in the seed file. Feeds that
// already exist are skipped silently so restarts stay idempotent.
func registerSeedFeeds(registrar *feed.Registrar, taskQueue *queue.Queue, seedFile string) {
	seeds, err := config.NewLoader(seedFile).Load()
	if err != nil {
		slog.Error("Failed to load seed feeds", "file", seedFile, "error", err)
		return
	}
	if len(seeds) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	registered := 0
	for _, seed := range seeds {
		feedID, err := registrar.Register(ctx, seed.URL)
		if errors.Is(err, feed.ErrDuplicateFeed) {
			continue
		}
		if err != nil {
			slog.Warn("Failed to register seed feed", "url", seed.URL, "error", err)
			continue
		}

		if err := taskQueue.Publish(queue.Task{FeedID: feedID, FeedURL: seed.URL}); err != nil {
			slog.Warn("Failed to enqueue initial fetch task", "feed", feedID, "error", err)
		}
		registered++
	}

	slog.Info("Seed feeds processed", "total", len(seeds), "registered", registered)
}
