package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/marketsync/internal/api"
	"github.com/rickgao/marketsync/internal/cache"
	"github.com/rickgao/marketsync/internal/calendar"
	"github.com/rickgao/marketsync/internal/config"
	"github.com/rickgao/marketsync/internal/connection"
	"github.com/rickgao/marketsync/internal/metrics"
	"github.com/rickgao/marketsync/internal/model"
	"github.com/rickgao/marketsync/internal/partition"
	"github.com/rickgao/marketsync/internal/poller"
	"github.com/rickgao/marketsync/internal/scheduler"
	"github.com/rickgao/marketsync/internal/server"
	"github.com/rickgao/marketsync/internal/store"
	"github.com/rickgao/marketsync/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/marketsync.example.yaml", "path to config file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before the config")
	flag.Parse()

	if err := config.LoadEnvFile(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load env file: %v\n", err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting marketsync",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Open snapshot storage
	logger.Info("opening snapshot store", "backend", cfg.Storage.Backend)
	st, err := store.Open(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Error("failed to open snapshot store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	m := metrics.New()

	// Create API client
	apiClient := api.NewClient(
		cfg.API.RestURL,
		cfg.API.Token,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
		api.WithRateLimit(cfg.API.RateLimit, cfg.API.Burst),
	)

	sched := scheduler.New(scheduler.Config{
		BatchSize:         cfg.Scheduler.BatchSize,
		Stagger:           cfg.Scheduler.Stagger,
		BatchPause:        cfg.Scheduler.BatchPause,
		RateLimitCooldown: cfg.Scheduler.RateLimitCooldown,
		FetchTimeout:      cfg.Scheduler.FetchTimeout,
	}, logger)

	// Create one calendar service per enabled kind
	var (
		services  []*calendar.Service
		calendars []server.Calendar
		jobs      []poller.Job
	)
	for _, kind := range model.Kinds {
		cc := calendarConfig(cfg, kind)
		if cc.Disabled {
			logger.Info("calendar disabled", "kind", kind)
			continue
		}

		c := cache.New(st, cache.Options{
			Key:           cc.CacheKey,
			TTL:           cc.TTL,
			SchemaVersion: cc.SchemaVersion,
		}, logger)

		svc := calendar.NewService(kind, calendar.Config{
			Horizon: partition.Horizon{
				PastMonths:        cc.PastMonths,
				FutureMonths:      cc.FutureMonths,
				PastChunkMonths:   cc.PastChunkMonths,
				FutureChunkMonths: cc.FutureChunkMonths,
			},
			RefreshTimeout: cc.RefreshTimeout,
			Metrics:        m,
		}, apiClient, c, sched, logger)
		defer svc.Close()

		services = append(services, svc)
		calendars = append(calendars, svc)
		jobs = append(jobs, poller.Job{Service: svc, Schedule: cc.Schedule})
	}

	// Start calendar poller
	p := poller.New(poller.Config{Timeout: maxRefreshTimeout(cfg), Warm: true}, jobs, logger)
	if err := p.Start(ctx); err != nil {
		logger.Error("failed to start poller", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := p.Stop(shutdownCtx); err != nil {
			logger.Warn("poller stop", "error", err)
		}
	}()

	// Start live feed when symbols are configured
	var feed *connection.Feed
	var feedHandle server.Feed
	if len(cfg.Feed.Symbols) > 0 {
		dial := connection.NewDialer(connection.ClientConfig{
			URL:          cfg.API.WSURL,
			Token:        cfg.API.Token,
			PingTimeout:  cfg.Feed.PingTimeout,
			WriteTimeout: cfg.Feed.WriteTimeout,
		}, logger)

		feed = connection.NewFeed(connection.FeedConfig{
			Symbols:              cfg.Feed.Symbols,
			BufferSize:           cfg.Feed.BufferSize,
			ReconnectBaseDelay:   cfg.Feed.ReconnectBaseDelay,
			ReconnectMaxDelay:    cfg.Feed.ReconnectMaxDelay,
			MaxReconnectAttempts: cfg.Feed.MaxReconnectAttempts,
		}, dial, m, logger)

		if err := feed.Start(ctx); err != nil {
			logger.Error("failed to start live feed", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := feed.Stop(shutdownCtx); err != nil {
				logger.Warn("live feed stop", "error", err)
			}
		}()
		feedHandle = feed
	} else {
		logger.Info("live feed disabled, no symbols configured")
	}

	// Start HTTP server
	srv := server.New(server.Config{
		MetricsPath:    cfg.Server.MetricsPath,
		RequestTimeout: maxRefreshTimeout(cfg),
	}, calendars, feedHandle, m, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting http server", "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	logger.Info("marketsync running",
		"instance_id", cfg.Instance.ID,
		"calendars", len(services),
		"symbols", len(cfg.Feed.Symbols),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	// Graceful shutdown of http server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", "error", err)
	}

	logger.Info("marketsync stopped")
}

func calendarConfig(cfg *config.Config, kind model.CalendarKind) config.CalendarConfig {
	if kind == model.KindEarnings {
		return cfg.Calendars.Earnings
	}
	return cfg.Calendars.IPO
}

func maxRefreshTimeout(cfg *config.Config) time.Duration {
	d := cfg.Calendars.IPO.RefreshTimeout
	if cfg.Calendars.Earnings.RefreshTimeout > d {
		d = cfg.Calendars.Earnings.RefreshTimeout
	}
	return d
}
