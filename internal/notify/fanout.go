package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Channel is the Redis pub/sub channel notifications fan out on.
const Channel = "ledger:notifications"

// envelope is what crosses Redis: the target room and the encoded
// websocket message.
type envelope struct {
	Room    string          `json:"room"`
	Payload json.RawMessage `json:"payload"`
}

// RedisFanout relays pushes to every API instance so a user connected to
// any instance receives them.
type RedisFanout struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisFanout creates a fan-out over client.
func NewRedisFanout(client *redis.Client, logger *slog.Logger) *RedisFanout {
	return &RedisFanout{client: client, logger: logger}
}

// Publish sends payload for room to all subscribers, this instance included.
func (f *RedisFanout) Publish(ctx context.Context, room string, payload []byte) error {
	msg, err := json.Marshal(envelope{Room: room, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := f.client.Publish(ctx, Channel, msg).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe delivers every fanned-out message to pusher until ctx is done.
func (f *RedisFanout) Subscribe(ctx context.Context, pusher Pusher) error {
	sub := f.client.Subscribe(ctx, Channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	f.logger.Info("notification fan-out subscribed", "channel", Channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
				f.logger.Warn("dropping malformed fan-out message", "error", err)
				continue
			}
			pusher.PublishRaw(env.Room, env.Payload)
		}
	}
}
