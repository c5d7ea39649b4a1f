package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lemonphresh/osrsbingo-sub001/internal/config"
	"github.com/lemonphresh/osrsbingo-sub001/internal/db"
	"github.com/lemonphresh/osrsbingo-sub001/internal/hunt"
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
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	svc := hunt.NewService(db.NewStore(pool, logger), logger)

	if cfg.RunOnce {
		if err := reconcileAll(ctx, svc, logger); err != nil {
			logger.Error("reconcile failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	ticker := time.NewTicker(cfg.ReconcileEvery)
	defer ticker.Stop()

	logger.Info("worker started", "reconcile_every", cfg.ReconcileEvery.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			if err := reconcileAll(ctx, svc, logger); err != nil {
				logger.Error("reconcile pass failed", "err", err)
			}
		}
	}
}

// reconcileAll checks every active event. A failure on one event does not
// stop the pass.
func reconcileAll(ctx context.Context, svc *hunt.Service, logger *slog.Logger) error {
	ids, err := svc.ActiveEventIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		report, err := svc.Reconcile(ctx, id)
		if err != nil {
			logger.Error("event reconcile failed", "event_id", id, "err", err)
			continue
		}
		logger.Info("event reconciled", "event_id", id, "teams", report.TeamsChecked,
			"repaired", len(report.Repaired), "over_budget", len(report.OverBudget))
	}
	return nil
}
