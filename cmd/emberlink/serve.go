package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/emberfx/emberlink"
	"github.com/emberfx/emberlink/internal/logger"
	"github.com/emberfx/emberlink/internal/preset"
)

func newServeCmd() *cobra.Command {
	var f ServeFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine bridge daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(f)
		},
	}
	cmd.Flags().StringVarP(&f.ConfigPath, "config", "c", "emberlink.toml", "path to daemon config file")
	return cmd
}

func runServe(f ServeFlags) error {
	cfg, err := emberlink.LoadConfig(f.ConfigPath)
	if err != nil {
		return err
	}

	log := logger.New(os.Stderr, parseLevel(cfg.Log.Level))
	slog.SetDefault(log)

	if err := emberlink.RegisterMetricsDefault(); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	store, err := emberlink.OpenSettings(cfg.Paths.Settings, log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	if err := store.Watch(); err != nil {
		log.Warn("settings watch disabled", "error", err)
	}

	presets, err := emberlink.OpenPresets(cfg.Paths.Presets)
	if err != nil {
		return err
	}
	defer func() { _ = presets.Close() }()
	if err := presets.EnsureSchema(context.Background()); err != nil {
		return fmt.Errorf("preset schema: %w", err)
	}

	notifier := emberlink.NewNotifier(log)
	bridge := emberlink.New(cfg.EngineSpec(), log, notifier)

	// Any accepted settings change is forwarded to a running engine.
	unsubSettings := store.OnChange(func(a emberlink.AnimationSettings) {
		if !bridge.IsRunning() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if _, err := bridge.UpdateSettings(ctx, a.EngineMap()); err != nil {
			log.Warn("forwarding settings to engine failed", "error", err)
		}
	})
	defer unsubSettings()

	recordRuns(bridge, presets, log)

	srv, err := emberlink.NewHTTPServer(cfg.Server.Listen, cfg.Server.BasePath, bridge, store, presets)
	if err != nil {
		return err
	}
	log.Info("control API listening", "addr", cfg.Server.Listen, "base", cfg.Server.BasePath)

	if cfg.Metrics.Listen != "" {
		go func() {
			if err := emberlink.ServeMetrics(cfg.Metrics.Listen); err != nil {
				log.Error("metrics server stopped", "error", err)
			}
		}()
	}

	res := bridge.Start(context.Background())
	if !res.OK {
		log.Error("initial engine start failed", "error", res.Err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutting down", "signal", sig.String())

	bridge.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	return nil
}

// recordRuns keeps the engine_runs table current from bridge events. The
// handlers run on separate dispatcher goroutines, so the open-run id is
// handed over atomically.
func recordRuns(bridge *emberlink.Bridge, presets *preset.DB, log *slog.Logger) {
	var runID atomic.Int64
	bridge.OnReady(func(ev emberlink.ReadyEvent) {
		h := bridge.GetHealth()
		id, err := presets.RecordStart(context.Background(), h.PID, ev.Version, time.Now())
		if err != nil {
			log.Warn("recording engine start failed", "error", err)
			return
		}
		runID.Store(id)
	})
	bridge.OnExit(func(ev emberlink.ExitEvent) {
		id := runID.Swap(0)
		if id == 0 {
			return
		}
		if err := presets.RecordStop(context.Background(), id, time.Now(), ev.Code, true); err != nil {
			log.Warn("recording engine exit failed", "error", err)
		}
	})
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
