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

	"github.com/lysyi3m/claude-rss-reader/app/aggregator"
	"github.com/lysyi3m/claude-rss-reader/app/api"
	"github.com/lysyi3m/claude-rss-reader/app/cfg"
	"github.com/lysyi3m/claude-rss-reader/app/feed"
	"github.com/lysyi3m/claude-rss-reader/app/notify"
	"github.com/lysyi3m/claude-rss-reader/app/provider"
	"github.com/lysyi3m/claude-rss-reader/app/tasks"
)

func main() {
	config, err := cfg.Load(os.Args[1:])
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if config == nil {
		return
	}

	logLevel := slog.LevelInfo
	if config.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting Claude RSS Reader", "version", config.Version, "config", config.ConfigFile)

	httpClient := &http.Client{Timeout: config.FetchTimeout}
	providerOpts := provider.Options{
		HTTPClient: httpClient,
		UserAgent:  config.UserAgent,
		Timeout:    config.FetchTimeout,
	}

	registry := provider.DefaultRegistry()
	providers := registry.BuildEnabled(config.Providers, providerOpts)

	feeds := aggregator.NewService(providers, config.CacheTTL, config.FetchLimit)
	hub := notify.NewHub()
	extractor := feed.NewContentExtractor(feed.NewFetcher(httpClient, config.UserAgent, config.FetchTimeout))

	if config.WarmInterval > 0 {
		scheduler := tasks.NewScheduler(feeds, config.WarmInterval, config.WorkerCount)
		scheduler.Start()
		defer scheduler.Stop()
	}

	handler := api.NewHandler(feeds, hub, extractor, registry.Available(), config.HeartbeatInterval)
	server := api.NewServer(handler)

	// No write timeout: /events responses stay open.
	httpServer := &http.Server{
		Addr:              config.Addr(),
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Open streams must finish before Shutdown can return.
	httpServer.RegisterOnShutdown(hub.Close)

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "url", "http://"+config.Addr(), "providers", feeds.Providers(), "cache_ttl", config.CacheTTL)

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

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	slog.Info("Claude RSS Reader shutdown complete")
}
