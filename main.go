package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pthm-cable/sandmpm/config"
	"github.com/pthm-cable/sandmpm/sim"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	statsWindow := flag.Int("stats-window", 0, "Stats window size in steps (0 = use config)")
	snapshotDir := flag.String("snapshot-dir", "", "Directory for event snapshot files")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	maxSteps := flag.Int("max-steps", 0, "Stop after N steps (0 = unlimited)")
	workers := flag.Int("workers", -1, "Worker goroutines (-1 = use config, 0 = GOMAXPROCS)")
	finalSnapshot := flag.Bool("final-snapshot", false, "Write a snapshot when the run ends (requires -snapshot-dir)")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	// CLI overrides
	if *statsWindow > 0 {
		cfg.Telemetry.StatsWindow = *statsWindow
	}
	if *workers >= 0 {
		cfg.Parallel.Workers = *workers
	}

	opts := sim.Options{
		LogStats:    *logStats,
		SnapshotDir: *snapshotDir,
		OutputDir:   *outputDir,
	}

	w, err := sim.New(cfg, opts)
	if err != nil {
		slog.Error("failed to create world", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := w.Close(); err != nil {
			slog.Error("failed to close world", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting simulation",
		"config", *configPath,
		"dt", cfg.Physics.DT,
		"max_steps", *maxSteps,
		"stats_window", cfg.Telemetry.StatsWindow,
	)

	for *maxSteps <= 0 || w.StepCount() < *maxSteps {
		if _, err := w.Step(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				slog.Info("interrupted", "step", w.StepCount())
				break
			}
			slog.Error("step failed", "step", w.StepCount()+1, "error", err)
			break
		}
	}

	if *maxSteps > 0 && w.StepCount() >= *maxSteps {
		slog.Info("max steps reached", "step", w.StepCount(), "sim_time", w.SimTime())
	}

	if *finalSnapshot && *snapshotDir != "" {
		path, err := w.SaveSnapshot(*snapshotDir, nil)
		if err != nil {
			slog.Error("failed to save final snapshot", "error", err)
			return
		}
		slog.Info("final snapshot saved", "path", path)
	}
}
