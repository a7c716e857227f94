package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/nikhilbhutani/sayflow/internal/config"
	"github.com/nikhilbhutani/sayflow/internal/database"
	"github.com/nikhilbhutani/sayflow/internal/queue"
	"github.com/nikhilbhutani/sayflow/internal/queue/workers"
	"github.com/nikhilbhutani/sayflow/internal/usage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx := context.Background()
	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	const concurrency = 10
	srv := asynq.NewServer(
		queue.RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			Logger:   queue.NewLogger(logger.With("component", "asynq")),
			LogLevel: asynq.InfoLevel,
		},
	)

	registry := queue.NewHandlersRegistry()

	// Register workers
	usageWorker := workers.NewUsageWorker(usage.NewService(db))
	registry.Register(queue.TypeRealtimeUsageRecord, asynq.HandlerFunc(usageWorker.ProcessTask))

	slog.Info("starting worker", "concurrency", concurrency)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
