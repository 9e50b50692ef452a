package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisList    = "authemu:messages"
	DefaultRedisChannel = "authemu:messages"
)

// RedisNotifier appends each message as JSON to a Redis list and publishes
// it on a channel, so test harnesses can read codes out of band.
type RedisNotifier struct {
	client  redis.UniversalClient
	list    string
	channel string
}

// NewRedisNotifier returns a notifier writing to list and channel. Empty
// names fall back to the defaults.
func NewRedisNotifier(client redis.UniversalClient, list, channel string) *RedisNotifier {
	if list == "" {
		list = DefaultRedisList
	}
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisNotifier{client: client, list: list, channel: channel}
}

func (n *RedisNotifier) Notify(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	pipe := n.client.TxPipeline()
	pipe.RPush(ctx, n.list, payload)
	pipe.Publish(ctx, n.channel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis notify: %w", err)
	}
	return nil
}

// Drain pops every queued message from the list in delivery order.
func (n *RedisNotifier) Drain(ctx context.Context) ([]Message, error) {
	var out []Message
	for {
		raw, err := n.client.LPop(ctx, n.list).Bytes()
		if err == redis.Nil {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("redis drain: %w", err)
		}
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			return out, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, msg)
	}
}
