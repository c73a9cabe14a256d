package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gamemart/ledger/internal/app"
	"github.com/gamemart/ledger/internal/auth"
	"github.com/gamemart/ledger/internal/infra"
	"github.com/gamemart/ledger/internal/notify"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if cfg.MigrateOnStart {
		if err := infra.RunMigrations(cfg.DSN(), logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	// Connect to Postgres
	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres")

	redisClient, err := infra.NewRedisClient(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	hub := infra.NewWSHub(cfg.CORSAllowedOrigins, logger)

	var fanout *notify.RedisFanout
	if redisClient != nil {
		fanout = notify.NewRedisFanout(redisClient, logger)
		go func() {
			if err := fanout.Subscribe(ctx, hub); err != nil {
				logger.Error("notification fan-out stopped", "error", err)
			}
		}()
	}

	router, err := app.NewRouter(app.RouterDeps{
		Pool:   pool,
		JWTMgr: auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiry),
		Logger: logger,
		Config: cfg,
		Hub:    hub,
		Redis:  redisClient,
		Fanout: fanout,
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
