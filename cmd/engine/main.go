// Package main is the entry point for the SolSentry wallet monitoring engine.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/solsentry/engine/internal/alert"
	"github.com/solsentry/engine/internal/config"
	"github.com/solsentry/engine/internal/enrich"
	"github.com/solsentry/engine/internal/metrics"
	"github.com/solsentry/engine/internal/monitor"
	"github.com/solsentry/engine/internal/rpc"
	"github.com/solsentry/engine/internal/scorer"
	"github.com/solsentry/engine/internal/ui"
	"github.com/solsentry/engine/internal/watchlist"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logger
	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	slog.Info("solsentry starting",
		"version", "1.0.0",
	)

	slog.Info("config_loaded",
		"rpc_http_url", cfg.RPCHTTPURL,
		"rpc_ws_url", cfg.RPCWSURL,
		"sweep_interval", cfg.SweepInterval,
		"counter_window", cfg.CounterWindow,
		"enrich_url", cfg.EnrichURL,
		"enrich_key", cfg.MaskedEnrichKey(),
		"watch_addresses", len(cfg.WatchAddresses),
		"enable_tui", cfg.EnableTUI,
		"prometheus_port", cfg.PrometheusPort,
	)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Metrics: in-process tracker for the dashboard, Prometheus for scraping
	tracker := metrics.NewTracker()
	metrics.Serve(cfg.PrometheusPort)

	// RPC gateway: HTTP lookups plus the WebSocket subscription stream
	client := rpc.NewClient(cfg.RPCHTTPURL, cfg.RPCTimeout)
	subscriber := rpc.NewSubscriber(cfg.RPCWSURL)
	subscriber.Start(ctx)
	gateway := monitor.NewGateway(client, subscriber)

	// Alert pipeline
	var sink alert.Sink
	var channelSink *alert.ChannelSink
	if cfg.EnableTUI {
		channelSink = alert.NewChannelSink(cfg.AlertBuffer)
		sink = channelSink
	} else {
		sink = alert.LogSink{}
	}
	synth := alert.NewSynthesizer(sink, cfg.AlertEntryTTL)

	// Optional AI enrichment
	var enricher monitor.Enricher
	if cfg.EnrichURL != "" {
		enricher = enrich.New(cfg.EnrichURL, cfg.EnrichAPIKey, cfg.EnrichTimeout)
		slog.Info("enrichment_enabled", "url", cfg.EnrichURL)
	}

	// Scorer with configured thresholds
	sc := scorer.New()
	sc.LargeTransferLamports = cfg.LargeTransferLamports
	sc.BalanceDropLamports = cfg.BalanceDropLamports
	sc.FanoutKeys = cfg.FanoutKeys
	sc.FreqTxCount = cfg.FreqTxCount
	sc.FreqRatePerMin = cfg.FreqRatePerMin

	registry := watchlist.NewRegistry()
	coordinator := monitor.NewCoordinator(gateway, registry, sc, synth, enricher, tracker, monitor.Options{
		CounterWindow:  cfg.CounterWindow,
		TxFetchTimeout: cfg.TxFetchTimeout,
		SweepInterval:  cfg.SweepInterval,
		EventBuffer:    cfg.EventBuffer,
		BackfillLimit:  cfg.BackfillLimit,
	})
	coordinator.Start(ctx)

	// Seed the watchlist from configuration
	for _, address := range cfg.WatchAddresses {
		if err := coordinator.Watch(ctx, address, cfg.DefaultUserID); err != nil {
			slog.Warn("initial_watch_rejected", "address", address, "error", err)
		}
	}

	// Periodic buffer gauge for the dashboard
	if channelSink != nil {
		go func() {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					tracker.SetChannelBuffer(len(channelSink.C), cap(channelSink.C))
				}
			}
		}()
	}

	slog.Info("engine_started",
		"status", "monitoring wallets",
		"watched", registry.Count(),
		"tui_enabled", cfg.EnableTUI,
	)

	// Start TUI or run in background mode
	if cfg.EnableTUI {
		slog.Info("starting_tui")
		app := ui.NewApp(channelSink.C, coordinator.Events(), tracker, cfg.UIRefreshRate)

		// Start TUI in goroutine so we can still handle signals
		go func() {
			if err := app.Run(); err != nil {
				slog.Error("tui_error", "error", err)
				cancel()
			}
		}()

		select {
		case sig := <-sigChan:
			slog.Info("shutdown_signal_received", "signal", sig.String())
			app.Stop()
		case <-ctx.Done():
			app.Stop()
		}
	} else {
		sig := <-sigChan
		slog.Info("shutdown_signal_received", "signal", sig.String())
	}

	cancel()

	// Graceful shutdown: stop the coordinator first so no new evaluations
	// start, then release the provider connection.
	slog.Info("shutting_down", "status", "stopping coordinator")
	coordinator.Stop()
	subscriber.Stop()

	if channelSink != nil {
		drainAlerts(channelSink.C)
	}

	slog.Info("shutdown_complete")
}

// drainAlerts logs alerts still buffered at shutdown so none are silently lost.
func drainAlerts(alerts <-chan alert.Alert) {
	drained := 0
	for {
		select {
		case a := <-alerts:
			slog.Warn("undelivered_alert",
				"severity", a.Severity,
				"score", a.Score,
				"address", a.Address,
			)
			drained++
		default:
			if drained > 0 {
				slog.Info("alerts_drained", "count", drained)
			}
			return
		}
	}
}

// setupLogger creates a structured logger with the specified level.
// Format: 2025-01-04 14:32:01 [INFO]  message key=value
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format("2006-01-02 15:04:05"))
				}
			}
			return a
		},
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler)
}
