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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lysyi3m/linksift/app/api"
	"github.com/lysyi3m/linksift/app/cfg"
	"github.com/lysyi3m/linksift/app/database"
	"github.com/lysyi3m/linksift/app/embedding"
	"github.com/lysyi3m/linksift/app/links"
	"github.com/lysyi3m/linksift/app/metrics"
	"github.com/lysyi3m/linksift/app/page"
	"github.com/lysyi3m/linksift/app/search"
	"github.com/lysyi3m/linksift/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		return
	}

	level := slog.LevelInfo
	if appCfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	if err := run(appCfg); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(appCfg *cfg.Cfg) error {
	slog.Info("Starting linksift", "version", appCfg.Version, "db", appCfg.DBPath)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Database ready", "schema_version", version, "dirty", dirty)

	linkRepo := database.NewLinkRepository(db)
	queue := database.NewQueueRepository(db)
	chunks := database.NewChunkRepository(db)

	m := metrics.New(prometheus.DefaultRegisterer)

	browser := page.NewBrowser(page.Options{
		UserAgent: appCfg.UserAgent,
		Timeout:   appCfg.FetchTimeout,
	})
	defer browser.Close()

	if appCfg.EmbeddingAPIKey == "" {
		slog.Warn("Embedding API key not set, embed and search requests will fail")
	}
	gateway := embedding.NewGateway(
		embedding.NewClient(embedding.ClientOptions{
			BaseURL: appCfg.EmbeddingBaseURL,
			APIKey:  appCfg.EmbeddingAPIKey,
			Model:   appCfg.EmbeddingModel,
			Timeout: appCfg.EmbeddingTimeout,
		}),
		embedding.Options{
			MaxInput:   appCfg.EmbeddingMaxInput,
			Dimensions: appCfg.EmbeddingDimensions,
			BatchSize:  appCfg.EmbeddingBatchSize,
		},
	)

	linkService := links.NewService(linkRepo, queue, appCfg.MaxRetries)
	importer := links.NewFeedImporter(linkService, &http.Client{Timeout: appCfg.FetchTimeout}, appCfg.UserAgent)

	if appCfg.SeedFile != "" {
		seeded, err := linkService.Seed(context.Background(), appCfg.SeedFile)
		if err != nil {
			return fmt.Errorf("failed to seed links: %w", err)
		}
		slog.Info("Seed file applied", "file", appCfg.SeedFile, "created", len(seeded))
	}

	fetchWorker := tasks.NewFetchWorker(queue, browser, m)
	embedWorker := tasks.NewEmbedWorker(queue, gateway, m)
	engine := search.NewEngine(gateway, chunks, linkRepo, appCfg.SnippetRange, m)

	scheduler := tasks.NewScheduler(queue, []tasks.Worker{fetchWorker, embedWorker}, tasks.SchedulerOptions{
		Interval:   appCfg.PollInterval,
		StaleAfter: appCfg.StaleAfter,
		RunTimeout: appCfg.RunTimeout,
		Metrics:    m,
	})
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(linkService, importer, engine, fetchWorker, embedWorker, queue, appCfg.RunTimeout)
	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler, appCfg.APIAccessKey, prometheus.DefaultGatherer),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case serveErr = <-serverErrChan:
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	return serveErr
}
