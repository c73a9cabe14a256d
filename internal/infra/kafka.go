package infra

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaProducer wraps a kafka-go writer for publishing messages.
type KafkaProducer struct {
	writer  *kafka.Writer
	logger  *slog.Logger
	enabled bool
}

// NewKafkaProducer creates a Kafka producer. If brokers is empty or disabled, writes are no-ops.
func NewKafkaProducer(brokers string, enabled bool, logger *slog.Logger) *KafkaProducer {
	if !enabled || brokers == "" {
		logger.Info("kafka producer disabled")
		return &KafkaProducer{enabled: false, logger: logger}
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}

	logger.Info("kafka producer initialized", "brokers", brokers)
	return &KafkaProducer{writer: w, logger: logger, enabled: true}
}

// Enabled reports whether messages are actually sent.
func (p *KafkaProducer) Enabled() bool { return p.enabled }

// Publish sends messages to the given topic in one batch. No-op if disabled.
// Messages sharing a key land on the same partition.
func (p *KafkaProducer) Publish(ctx context.Context, topic string, msgs ...kafka.Message) error {
	if !p.enabled {
		return nil
	}
	for i := range msgs {
		msgs[i].Topic = topic
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

// Close shuts down the Kafka writer.
func (p *KafkaProducer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
