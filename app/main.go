package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lysyi3m/boxd-relay/app/api"
	"github.com/lysyi3m/boxd-relay/app/cfg"
	"github.com/lysyi3m/boxd-relay/app/database"
	"github.com/lysyi3m/boxd-relay/app/feed"
	"github.com/lysyi3m/boxd-relay/app/publish"
	"github.com/lysyi3m/boxd-relay/app/summary"
	"github.com/lysyi3m/boxd-relay/app/tasks"
)

func main() {
	os.Exit(run())
}

func run() int {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if appCfg == nil {
		// Help was shown
		return 0
	}

	setupLogging(appCfg.Debug)

	slog.Info("Starting boxd-relay", "version", appCfg.Version, "source", appCfg.SourceURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	task, closeFn, err := buildPublishTask(ctx, appCfg)
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		return 1
	}
	defer closeFn()

	if appCfg.ServeAddr != "" {
		if err := serve(ctx, task); err != nil {
			slog.Error("Server error", "error", err)
			return 1
		}
		return 0
	}

	task.Start()
	if err := task.Execute(ctx); err != nil {
		return 1
	}
	return 0
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func buildPublishTask(ctx context.Context, appCfg *cfg.Cfg) (*tasks.PublishTask, func(), error) {
	targets, err := feed.LoadTargets(appCfg.TargetsFile, appCfg.MaxChars)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load targets: %w", err)
	}

	processed, err := database.OpenProcessedSet(ctx, appCfg.CacheBackend, appCfg.CachePath,
		appCfg.OnCorruptCache == cfg.CorruptCacheReset)
	if err != nil {
		if errors.Is(err, database.ErrCorruptCache) {
			return nil, nil, fmt.Errorf("%w (use --on-corrupt-cache=reset to start over)", err)
		}
		return nil, nil, fmt.Errorf("failed to load processed set: %w", err)
	}
	slog.Info("Processed set loaded", "backend", appCfg.CacheBackend, "path", appCfg.CachePath, "ids", processed.Len())

	// model stays a nil interface when no endpoint is configured
	var model summary.Prober
	if appCfg.SummarizerURL != "" {
		model = summary.NewModelSummarizer(appCfg.SummarizerURL, appCfg.SummarizerToken, appCfg.SummarizeTimeout)
	}
	summarizer := summary.Select(ctx, model)

	var publisher publish.Publisher = publish.NoopPublisher{}
	if !appCfg.NoPush {
		publisher = publish.NewGitPublisher(appCfg.RepoPath, appCfg.Remote, appCfg.Branch, appCfg.PushTimeout, nil)
	}

	httpClient := &http.Client{Timeout: appCfg.FetchTimeout}

	pipeline := tasks.Pipeline{
		Source:     feed.NewFetcher(appCfg.SourceURL, httpClient, feed.NewParser(), appCfg.UserAgent, appCfg.FetchTimeout),
		Filterer:   feed.NewFilterer(appCfg.ReviewPrefix),
		Cleaner:    feed.NewCleaner(),
		Renderer:   feed.NewRenderer(summary.NewFitter(summarizer), appCfg.Hashtag),
		Generator:  feed.NewGenerator(),
		History:    feed.NewHistoryReader(),
		Writer:     publish.NewArtifactWriter(),
		Publisher:  publisher,
		Processed:  processed,
		Targets:    targets,
		Meta:       feedMeta(appCfg),
		Summarizer: summarizer.Name(),
	}

	task := tasks.NewPublishTask(pipeline, tasks.PublishOptions{
		OutputDir:       appCfg.OutputDir,
		Limit:           appCfg.Limit,
		LimitSkipCommit: appCfg.LimitSkipCommit,
		ClearCache:      appCfg.ClearCache,
	})

	closeFn := func() {
		if err := processed.Close(); err != nil {
			slog.Warn("Failed to close processed set", "error", err)
		}
	}
	return task, closeFn, nil
}

func feedMeta(appCfg *cfg.Cfg) feed.FeedMeta {
	profile := strings.TrimSuffix(strings.TrimRight(appCfg.SourceURL, "/"), "/rss")
	return feed.FeedMeta{
		ID:      appCfg.SourceURL,
		Title:   "Letterboxd reviews",
		Link:    profile + "/",
		Version: appCfg.Version,
	}
}

func serve(ctx context.Context, task *tasks.PublishTask) error {
	appCfg := cfg.Get()
	interval := time.Duration(appCfg.Interval) * time.Second
	scheduler := tasks.NewScheduler(task, interval, 0)

	slog.Info("Starting background scheduler", "interval", interval)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(task, scheduler, appCfg.Version)
	server := api.NewServer(handler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         appCfg.ServeAddr,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "addr", appCfg.ServeAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("Received shutdown signal")
	case serveErr = <-serverErrChan:
	}

	slog.Info("Shutting down server gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	return serveErr
}
