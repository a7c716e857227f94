package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/sayflow/internal/api"
	"github.com/nikhilbhutani/sayflow/internal/config"
	"github.com/nikhilbhutani/sayflow/internal/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Realtime.OpenAIKey == "" {
		slog.Warn("OPENAI_API_KEY not set, realtime transcription will fail to connect")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database connection (optional)
	var db *pgxpool.Pool
	if cfg.Database.URL == "" {
		slog.Warn("DATABASE_URL not set, running without usage storage")
	} else if pool, err := database.NewPool(ctx, cfg.Database); err != nil {
		slog.Warn("database unavailable, running without usage storage", "error", err)
	} else {
		db = pool
		defer db.Close()

		if err := database.RunMigrations(ctx, db, cfg.Database.MigrationsPath); err != nil {
			slog.Warn("migrations failed", "error", err)
		}
	}

	// Redis connection (optional)
	var rdb *redis.Client
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, running without cache or usage queue", "error", err)
		client.Close()
	} else {
		rdb = client
		defer rdb.Close()
	}

	router := api.NewRouter(db, rdb, cfg)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		// Realtime sessions run on hijacked connections; cancelling this
		// context ends them on shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr(), "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}
