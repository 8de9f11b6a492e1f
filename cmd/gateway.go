package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nosdois/duet/internal/bus"
	"github.com/nosdois/duet/internal/config"
	"github.com/nosdois/duet/internal/dispatch"
	"github.com/nosdois/duet/internal/evolution"
	"github.com/nosdois/duet/internal/gateway"
	"github.com/nosdois/duet/internal/memory"
	"github.com/nosdois/duet/internal/providers"
	"github.com/nosdois/duet/internal/store"
	"github.com/nosdois/duet/internal/telemetry"
	"github.com/nosdois/duet/internal/trigger"
)

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the webhook gateway (default command)",
		Run: func(cmd *cobra.Command, args []string) {
			runGateway()
		},
	}
}

func runGateway() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	if cfg.GenAI.APIKey == "" {
		slog.Error("DUET_GOOGLE_API_KEY is not set")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry, Version)
	if err != nil {
		slog.Error("telemetry setup failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry flush failed", "error", err)
		}
	}()

	db, err := store.Open(config.ExpandHome(cfg.Store.Path))
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	sender, err := evolution.New(evolution.Options{
		BaseURL:  cfg.Evolution.BaseURL,
		Instance: cfg.Evolution.Instance,
		APIKey:   cfg.Evolution.APIKey,
		Timeout:  config.Duration(cfg.Evolution.Timeout, 30*time.Second),
	})
	if err != nil {
		slog.Error("evolution client setup failed", "error", err)
		os.Exit(1)
	}

	generator := providers.NewGeminiProvider(providers.GeminiOptions{
		APIKey:          cfg.GenAI.APIKey,
		Model:           cfg.GenAI.Model,
		MaxOutputTokens: cfg.GenAI.MaxOutputTokens,
		Temperature:     cfg.GenAI.Temperature,
		Timeout:         config.Duration(cfg.GenAI.Timeout, 60*time.Second),
	})

	dispatcher := dispatch.New(engineTuning(cfg), dispatch.Deps{
		Dedupe:     bus.NewDeduplicator(cfg.Engine.DedupTTLDuration(), cfg.Engine.DedupMaxEntries),
		Memory:     memory.NewManager(cfg.Engine.MemoryTurns, cfg.Engine.MemoryTTLDuration()),
		Trigger:    trigger.NewEvaluator(cfg.Engine.ActiveWindowDuration()),
		Activity:   trigger.NewActivityWindow(),
		Generator:  generator,
		Sender:     sender,
		Couples:    db,
		Mediations: db,
	})

	server := gateway.NewServer(cfg.Gateway, dispatcher)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(ctx)
	})
	g.Go(func() error {
		// Hot-reload the engine tunables on config edits. Server address and
		// credentials still need a restart.
		return config.Watch(ctx, cfgPath, func(next *config.Config) {
			dispatcher.Tune(engineTuning(next))
		})
	})

	if err := g.Wait(); err != nil {
		slog.Error("gateway exited", "error", err)
		os.Exit(1)
	}
	slog.Info("gateway stopped")
}

func engineTuning(cfg *config.Config) dispatch.Config {
	return dispatch.Config{
		MediationCooldown: cfg.Engine.MediationCooldownDuration(),
		MaxSegmentChars:   cfg.Engine.MaxSegmentChars,
	}
}
