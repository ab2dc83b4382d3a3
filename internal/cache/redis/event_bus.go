package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/arbcore/arbengine/internal/domain"
)

// streamMaxLen is the approximate maximum length for the durable event
// streams, enforced via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// EventBus implements domain.EventBus over Redis Pub/Sub, exposing the
// engine's topics to out-of-process consumers. Durable copies go to Redis
// Streams via Append.
type EventBus struct {
	rdb *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

// Publish sends a raw byte payload to a Redis Pub/Sub channel.
func (b *EventBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.rdb.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe creates a Redis Pub/Sub subscription and returns a read-only
// channel of raw payloads. The subscription closes with the context, and the
// returned channel is closed at that point as well.
func (b *EventBus) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if hasPattern(topic) {
		pubsub = b.rdb.PSubscribe(ctx, topic)
	} else {
		pubsub = b.rdb.Subscribe(ctx, topic)
	}

	// Verify the subscription is established by receiving the confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", topic, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// hasPattern returns true when the topic includes glob-style wildcards, in
// which case PSubscribe must be used instead of Subscribe.
func hasPattern(topic string) bool {
	return strings.ContainsAny(topic, "*?[")
}

// Append adds a payload to the topic's durable stream using XADD with an
// approximate MAXLEN for automatic trimming.
func (b *EventBus) Append(ctx context.Context, topic string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: "stream:" + topic,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"payload": payload,
		},
	}
	if err := b.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", topic, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.EventBus = (*EventBus)(nil)
