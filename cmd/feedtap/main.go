// feedtap connects the live trade feed and streams ticks to the console.
// Usage: go run ./cmd/feedtap --config configs/marketsync.example.yaml
//
// Required environment variables:
//
//	FINNHUB_TOKEN - API token used for the WebSocket handshake
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rickgao/marketsync/internal/config"
	"github.com/rickgao/marketsync/internal/connection"
	"github.com/rickgao/marketsync/internal/model"
)

func main() {
	configPath := flag.String("config", "configs/marketsync.example.yaml", "path to config file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before the config")
	symbols := flag.String("symbols", "", "comma-separated symbols, overrides feed.symbols")
	verbose := flag.Bool("verbose", false, "print full tick JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	if err := config.LoadEnvFile(*envPath); err != nil {
		logger.Error("failed to load env file", "error", err)
		os.Exit(1)
	}

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *symbols != "" {
		cfg.Feed.Symbols = strings.Split(*symbols, ",")
	}
	if len(cfg.Feed.Symbols) == 0 {
		logger.Error("no symbols to subscribe, set feed.symbols or --symbols")
		os.Exit(1)
	}
	if cfg.API.Token == "" {
		logger.Error("API token required for WebSocket")
		logger.Info("Set environment variable: FINNHUB_TOKEN")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	dial := connection.NewDialer(connection.ClientConfig{
		URL:          cfg.API.WSURL,
		Token:        cfg.API.Token,
		PingTimeout:  cfg.Feed.PingTimeout,
		WriteTimeout: cfg.Feed.WriteTimeout,
	}, logger)

	feed := connection.NewFeed(connection.FeedConfig{
		Symbols:              cfg.Feed.Symbols,
		BufferSize:           cfg.Feed.BufferSize,
		ReconnectBaseDelay:   cfg.Feed.ReconnectBaseDelay,
		ReconnectMaxDelay:    cfg.Feed.ReconnectMaxDelay,
		MaxReconnectAttempts: cfg.Feed.MaxReconnectAttempts,
	}, dial, nil, logger)

	updates, unsubscribe := feed.Subscribe()
	defer unsubscribe()

	logger.Info("starting live feed", "symbols", cfg.Feed.Symbols)
	if err := feed.Start(ctx); err != nil {
		logger.Error("failed to start live feed", "error", err)
		os.Exit(1)
	}

	go printTicks(ctx, feed, updates, *verbose)

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := feed.Stats()
				logger.Info("stats",
					"state", stats.State,
					"attempts", stats.Attempts,
					"ticks_received", stats.TicksReceived,
					"reconnects", stats.Reconnects,
					"buffered", stats.Buffered,
					"last_error", stats.LastError,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	if err := feed.Stop(shutdownCtx); err != nil {
		logger.Warn("live feed stop", "error", err)
	}

	logger.Info("shutdown complete")
}

// printTicks prints ticks that arrived since the previous notification.
func printTicks(ctx context.Context, feed *connection.Feed, updates <-chan struct{}, verbose bool) {
	var lastID string
	var lastState model.ConnectionState = -1

	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
		}

		if st := feed.State(); st != lastState {
			fmt.Printf("[STATE] %s attempts=%d\n", st, feed.Attempts())
			lastState = st
		}

		ticks := feed.Ticks()
		var fresh []model.TradeTick
		for _, t := range ticks {
			if t.ID == lastID {
				break
			}
			fresh = append(fresh, t)
		}
		if len(ticks) > 0 {
			lastID = ticks[0].ID
		}

		// Ticks are newest first; print in arrival order.
		for i := len(fresh) - 1; i >= 0; i-- {
			t := fresh[i]
			if verbose {
				data, _ := json.MarshalIndent(t, "", "  ")
				fmt.Printf("[TRADE] %s\n", data)
			} else {
				fmt.Printf("[TRADE] symbol=%s price=%g volume=%g ts=%d\n",
					t.Symbol, t.Price, t.Volume, t.Timestamp)
			}
		}
	}
}
