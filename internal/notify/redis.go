package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const changeChannel = "godseye:changes"

// RedisNotifier implements Notifier over a Redis pub/sub channel.
type RedisNotifier struct {
	client *redis.Client
}

// NewRedisNotifier creates a RedisNotifier from a Redis URL.
func NewRedisNotifier(redisURL string) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisNotifier{client: redis.NewClient(opts)}, nil
}

func (n *RedisNotifier) Publish(ctx context.Context, change Change) error {
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	if err := n.client.Publish(ctx, changeChannel, data).Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

func (n *RedisNotifier) Listen(ctx context.Context) (<-chan Change, error) {
	sub := n.client.Subscribe(ctx, changeChannel)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("subscribe changes: %w", err)
	}

	out := make(chan Change)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					slog.Warn("dropping malformed change notification", "error", err)
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

// Compile-time check that RedisNotifier implements Notifier.
var _ Notifier = (*RedisNotifier)(nil)
