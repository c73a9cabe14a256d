package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gamemart/ledger/internal/infra"
	"github.com/gamemart/ledger/internal/repository"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("outbox consumer failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.OutboxBatchSize < 1 || cfg.OutboxPollInterval <= 0 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE and OUTBOX_POLL_INTERVAL must be positive")
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("outbox-consumer connected to postgres")

	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()
	if !producer.Enabled() {
		logger.Warn("kafka disabled; outbox rows will be marked published without delivery")
	}

	source := repository.OutboxSource{DB: pool, Repo: repository.NewOutboxRepository()}
	poller := infra.NewOutboxPoller(source, producer, cfg.KafkaTopic, cfg.OutboxPollInterval, cfg.OutboxBatchSize, logger)

	poller.Run(ctx)
	logger.Info("outbox-consumer shutting down")
	return nil
}
