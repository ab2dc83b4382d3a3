// Package bus provides the in-process event bus that decouples the feed,
// detector, execution engine, and position tracker.
package bus

import (
	"context"
	"sync"
)

// subscriberBuffer sizes each subscription channel. Slow subscribers drop
// messages rather than blocking publishers.
const subscriberBuffer = 128

// Memory is an in-memory topic-based pub/sub bus satisfying domain.EventBus.
// It is safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	subs map[string][]chan []byte
}

// NewMemory creates an empty bus.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string][]chan []byte)}
}

// Publish delivers payload to every current subscriber of topic. Delivery is
// non-blocking: a subscriber whose buffer is full misses the message.
func (b *Memory) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[topic] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel that receives every payload published to topic
// after this call. The channel is closed when ctx is cancelled.
func (b *Memory) Subscribe(ctx context.Context, topic string) (<-chan []byte, error) {
	ch := make(chan []byte, subscriberBuffer)

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		chans := b.subs[topic]
		for i, c := range chans {
			if c == ch {
				b.subs[topic] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}
