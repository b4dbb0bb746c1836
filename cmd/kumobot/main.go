package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kumotrade/kumobot/config"
	"github.com/kumotrade/kumobot/internal/adapters/bybit"
	"github.com/kumotrade/kumobot/internal/adapters/journal"
	"github.com/kumotrade/kumobot/internal/adapters/notify"
	"github.com/kumotrade/kumobot/internal/adapters/paper"
	"github.com/kumotrade/kumobot/internal/adapters/statefile"
	"github.com/kumotrade/kumobot/internal/domain"
	"github.com/kumotrade/kumobot/internal/engine"
	"github.com/kumotrade/kumobot/internal/execution"
	"github.com/kumotrade/kumobot/internal/indicator"
	"github.com/kumotrade/kumobot/internal/ports"
	"github.com/kumotrade/kumobot/internal/risk"
	"github.com/kumotrade/kumobot/internal/strategy"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one tick and exit")
	paperMode := flag.Bool("paper", false, "force paper trading regardless of config")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *paperMode {
		cfg.Bot.Paper = true
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("kumobot starting",
		"config", *configPath,
		"symbol", cfg.Bot.Symbol,
		"interval", cfg.Bot.Interval,
		"paper", cfg.Bot.Paper,
		"once", *once,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !cfg.Bot.Paper {
		if !confirmLive(ctx, cfg) {
			return
		}
	}

	notifier := notify.NewConsole(*verbose)

	store := statefile.New(cfg.Storage.StatePath)
	store.FallbackHook = func(loadErr error) {
		notifier.Notify(ctx, domain.Event{
			Kind:   domain.EventStateFallback,
			Detail: fmt.Sprintf("primary state file unreadable, using backup: %v", loadErr),
			At:     time.Now(),
		})
	}

	jrnl, err := journal.NewSQLite(cfg.Storage.JournalDSN)
	if err != nil {
		slog.Error("failed to open journal", "err", err, "dsn", cfg.Storage.JournalDSN)
		os.Exit(1)
	}
	defer jrnl.Close()

	exch := buildExchange(cfg)

	ctrl := execution.New(exch, execution.Config{
		MaxAttempts:     cfg.Execution.MaxAttempts,
		BackoffBase:     cfg.BackoffBase(),
		Timeout:         cfg.ExecutionTimeout(),
		BreakerFailures: cfg.Execution.BreakerFailures,
		BreakerCooldown: cfg.BreakerCooldown(),
	})

	sizer := risk.NewSizer(risk.SizerConfig{
		RiskPerTrade: cfg.Risk.RiskPerTrade,
		FeeRate:      cfg.Risk.FeeRate,
		MinQtyStep:   cfg.Risk.MinQtyStep,
	})

	eng := engine.New(engine.Config{
		Symbol:          cfg.Bot.Symbol,
		Interval:        cfg.Bot.Interval,
		TickInterval:    cfg.TickInterval(),
		InitialCapital:  cfg.Bot.InitialCapital,
		FetchRetries:    cfg.Bot.FetchRetries,
		CandleFetchSize: cfg.Bot.CandleFetchSize,
	}, buildSlots(cfg), exch, store, jrnl, notifier, ctrl, sizer)

	if *once {
		if err := eng.Recover(ctx); err != nil {
			slog.Error("recovery failed", "err", err)
			os.Exit(1)
		}
		if err := eng.Tick(ctx); err != nil {
			slog.Error("tick failed", "err", err)
			os.Exit(1)
		}
		slog.Info("single tick complete")
		return
	}

	if err := eng.Run(ctx); err != nil {
		slog.Error("engine exited with error", "err", err)
		os.Exit(1)
	}
	slog.Info("kumobot stopped cleanly")
}

// buildExchange monta el exchange real o el simulador paper envolviendo al
// cliente real como fuente de velas.
func buildExchange(cfg *config.Config) ports.Exchange {
	client := bybit.New(bybit.Config{
		APIKey:    cfg.Exchange.APIKey,
		APISecret: cfg.Exchange.APISecret,
		Testnet:   cfg.Exchange.Testnet,
		BaseURL:   cfg.Exchange.BaseURL,
	})
	if !cfg.Bot.Paper {
		return client
	}
	return paper.New(client, paper.Config{
		InitialCash:  cfg.Bot.InitialCapital,
		FeeRate:      cfg.Risk.FeeRate,
		SlippageRate: cfg.Risk.SlippageRate,
	})
}

// buildSlots instancia el conjunto cerrado de estrategias con su allocation.
func buildSlots(cfg *config.Config) []engine.Slot {
	ich := cfg.Strategies.Ichimoku
	rev := cfg.Strategies.Reversal

	return []engine.Slot{
		{
			Strategy: strategy.NewIchimokuTrend(strategy.IchimokuTrendConfig{
				Cloud: indicator.IchimokuConfig{
					Tenkan:       ich.Tenkan,
					Kijun:        ich.Kijun,
					SenkouB:      ich.SenkouB,
					Displacement: ich.Displacement,
				},
				ATRPeriod:   ich.ATRPeriod,
				StopATRMult: ich.StopATRMult,
			}),
			Allocation: cfg.Risk.IchimokuAllocation,
		},
		{
			Strategy: strategy.NewRsiReversal(strategy.RsiReversalConfig{
				Period:      rev.Period,
				Oversold:    rev.Oversold,
				Overbought:  rev.Overbought,
				ATRPeriod:   rev.ATRPeriod,
				StopATRMult: rev.StopATRMult,
				MaxHold:     cfg.MaxHold(),
			}),
			Allocation: cfg.Risk.ReversalAllocation,
		},
	}
}

// confirmLive da una ventana de cancelación antes de operar con dinero real.
func confirmLive(ctx context.Context, cfg *config.Config) bool {
	slog.Warn("LIVE MODE: trading with real funds",
		"symbol", cfg.Bot.Symbol,
		"risk_per_trade", cfg.Risk.RiskPerTrade,
	)
	fmt.Println("  Starting LIVE trading in 5 seconds — Ctrl+C to abort")

	select {
	case <-time.After(5 * time.Second):
		return true
	case <-ctx.Done():
		fmt.Println("  Aborted.")
		return false
	}
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
