package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lemonphresh/osrsbingo-sub001/internal/bot"
	"github.com/lemonphresh/osrsbingo-sub001/internal/config"
	"github.com/lemonphresh/osrsbingo-sub001/internal/db"
	"github.com/lemonphresh/osrsbingo-sub001/internal/hunt"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadBotFromEnv()
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

	huntSvc := hunt.NewService(db.NewStore(pool, logger), logger)
	ev, err := huntSvc.Event(ctx, cfg.EventID)
	if err != nil {
		logger.Error("event lookup failed", "event_id", cfg.EventID, "err", err)
		os.Exit(1)
	}

	b := bot.New(huntSvc, bot.Options{
		EventID: ev.ID,
		Prefix:  cfg.Prefix,
		Rate:    cfg.CommandRate,
		Burst:   cfg.CommandBurst,
	}, logger)

	logger.Info("hunt bot starting", "event_id", ev.ID, "event", ev.Name, "status", ev.Status, "prefix", cfg.Prefix)
	if err := b.Run(ctx, cfg.Token); err != nil {
		logger.Error("bot failed", "err", err)
		os.Exit(1)
	}
}
