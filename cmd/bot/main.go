package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/032383justin/dlmm-bot-sub006/config"
	"github.com/032383justin/dlmm-bot-sub006/internal/adapters/notify"
	"github.com/032383justin/dlmm-bot-sub006/internal/adapters/pricing"
	"github.com/032383justin/dlmm-bot-sub006/internal/adapters/storage"
	"github.com/032383justin/dlmm-bot-sub006/internal/application/epoch"
	"github.com/032383justin/dlmm-bot-sub006/internal/application/ledger"
	"github.com/032383justin/dlmm-bot-sub006/internal/application/reconcile"
	"github.com/032383justin/dlmm-bot-sub006/internal/domain"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	capital := flag.Float64("capital", 0, "fresh starting capital in USD (forces a fresh run; 0 = continue prior run)")
	once := flag.Bool("once", false, "reconcile, print the portfolio, and exit")
	demo := flag.Bool("demo", false, "run a scripted trading simulation against a throwaway ledger")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("dlmm-bot starting",
		"config", *configPath,
		"fresh_capital", *capital,
		"mode", cfg.Capital.Mode,
		"reconcile_interval", cfg.ReconcileInterval(),
	)

	store, err := storage.New(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Boot sequence: epoch → startup reconciliation → seeded ledger.
	// No trading entry point is reachable until all three succeed.
	epochs := epoch.NewManager(store)
	decision, err := epochs.ValidateStartupConditions(ctx, *capital > 0, *capital, cfg.Capital.DefaultUSD)
	if err != nil {
		slog.Error("startup validation failed", "err", err)
		os.Exit(1)
	}
	if !decision.Valid {
		slog.Error("FATAL: hybrid state blocked — resolve open positions before supplying fresh capital",
			"reason", decision.Reason)
		os.Exit(1)
	}

	if _, err := epochs.InitializeRunEpoch(ctx, decision); err != nil {
		slog.Error("failed to initialize run epoch", "err", err)
		os.Exit(1)
	}

	book := ledger.New(ledgerMode(cfg.Capital.Mode))
	startup := reconcile.NewStartup(store, epochs, book)

	sum, err := startup.Run(ctx, decision.Mode)
	if err != nil {
		if errors.Is(err, domain.ErrInvariantViolation) {
			slog.Error("FATAL: reconciled capital does not balance, refusing to trade", "err", err)
		} else {
			slog.Error("FATAL: startup reconciliation failed", "err", err)
		}
		os.Exit(1)
	}

	console := notify.NewConsole()
	console.ReconcileSummary(sum)

	prices := pricing.NewClient(cfg.Pricing.Base)
	pnl := reconcile.NewPnLService(store, epochs, book, prices, startup, cfg.GracePeriod())

	if *demo {
		if err := runDemo(ctx, store, epochs, book, pnl, console); err != nil {
			slog.Error("demo failed", "err", err)
			os.Exit(1)
		}
		return
	}

	if *once {
		console.PortfolioSnapshot(book.State(), book.OpenPositions())
		shutdown(epochs)
		return
	}

	// Trading strategy plugs in above this loop; the accounting substrate
	// only keeps itself honest on a cadence.
	ticker := time.NewTicker(cfg.ReconcileInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdown(epochs)
			slog.Info("dlmm-bot stopped cleanly")
			return
		case <-ticker.C:
			if err := pnl.Run(ctx, cfg.Reconcile.DriftThresholdUSD); err != nil {
				slog.Warn("pnl reconciliation pass failed", "err", err)
			}
		}
	}
}

func shutdown(epochs *epoch.Manager) {
	// Fresh context: the signal context is already cancelled by now.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := epochs.CloseActiveEpoch(ctx); err != nil {
		slog.Warn("failed to close run epoch", "err", err)
	}
}

func ledgerMode(s string) ledger.Mode {
	if s == "dev" {
		return ledger.ModeDev
	}
	return ledger.ModeProd
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
