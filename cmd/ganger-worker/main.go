package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ganger/internal/config"
	"ganger/internal/db"
	"ganger/internal/gang"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	poolOpts := db.DefaultPoolOptions()
	poolOpts.MaxConns = int32(cfg.ReconcileParallel + 1)
	pool, err := db.Connect(ctx, cfg.DatabaseURL, poolOpts)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	svc := gang.NewService(pool, logger, gang.Options{TxMaxAttempts: cfg.TxMaxAttempts})

	run := func() error {
		summary, err := svc.ReconcileAll(ctx, cfg.ReconcileFix, cfg.ReconcileParallel)
		if err != nil {
			return err
		}
		logger.Info("reconcile pass complete",
			"checked", summary.Checked,
			"drifted", summary.Drifted,
			"fixed", summary.Fixed,
			"failed", summary.Failed,
			"duration", summary.Duration.String(),
		)
		return nil
	}

	runOnce := strings.EqualFold(strings.TrimSpace(os.Getenv("GANGER_WORKER_RUN_ONCE")), "true")
	if runOnce {
		if err := run(); err != nil {
			logger.Error("reconcile failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	ticker := time.NewTicker(cfg.ReconcileEvery)
	defer ticker.Stop()

	logger.Info("worker started", "reconcile_every", cfg.ReconcileEvery.String(), "fix", cfg.ReconcileFix, "parallel", cfg.ReconcileParallel)
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			if err := run(); err != nil {
				logger.Error("reconcile failed", "err", err)
			}
		}
	}
}
