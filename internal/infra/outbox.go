package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/segmentio/kafka-go"
)

// OutboxSource reads and acknowledges rows of the event_outbox table.
type OutboxSource interface {
	FetchUnpublished(ctx context.Context, limit int) ([]domain.OutboxDraft, error)
	MarkPublished(ctx context.Context, ids []int64) error
}

// OutboxPoller polls the event_outbox table and publishes events to Kafka.
type OutboxPoller struct {
	source    OutboxSource
	producer  *KafkaProducer
	topic     string
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

// NewOutboxPoller creates a new outbox poller.
func NewOutboxPoller(source OutboxSource, producer *KafkaProducer, topic string, interval time.Duration, batchSize int, logger *slog.Logger) *OutboxPoller {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxPoller{
		source:    source,
		producer:  producer,
		topic:     topic,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run polls until ctx is cancelled.
func (p *OutboxPoller) Run(ctx context.Context) {
	p.logger.Info("outbox poller started", "interval", p.interval, "batch_size", p.batchSize, "topic", p.topic)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outbox poller stopped")
			return
		case <-ticker.C:
			if _, err := p.PollOnce(ctx); err != nil {
				p.logger.Error("outbox poll error", "error", err)
			}
		}
	}
}

// PollOnce publishes one batch and returns how many events were acknowledged.
// Rows are only removed after Kafka accepted the whole batch, so a failed
// publish is retried on the next tick (at-least-once delivery).
func (p *OutboxPoller) PollOnce(ctx context.Context) (int, error) {
	events, err := p.source.FetchUnpublished(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch unpublished: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	ids := make([]int64, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return 0, fmt.Errorf("marshal event %s: %w", e.EventID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.PartitionKey),
			Value: value,
			Time:  e.OccurredAt,
			Headers: []kafka.Header{
				{Key: "eventType", Value: []byte(e.EventType)},
				{Key: "aggregateType", Value: []byte(e.AggregateType)},
			},
		})
		ids = append(ids, e.SeqID)
	}

	if err := p.producer.Publish(ctx, p.topic, msgs...); err != nil {
		OutboxPublishFailures.Inc()
		return 0, fmt.Errorf("kafka publish: %w", err)
	}

	if err := p.source.MarkPublished(ctx, ids); err != nil {
		return 0, fmt.Errorf("mark published: %w", err)
	}

	OutboxEventsPublished.Add(float64(len(ids)))
	p.logger.Debug("outbox poll complete", "published", len(ids))
	return len(ids), nil
}
