package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/arbcore/arbengine/internal/domain"
)

// Appender receives a durable copy of each mirrored payload. Implemented by
// the Redis event bus's stream writer.
type Appender interface {
	Append(ctx context.Context, topic string, payload []byte) error
}

// Mirror republishes selected topics from one bus to another, typically from
// the in-process bus to Redis so external consumers can follow the engine.
type Mirror struct {
	src      domain.EventBus
	dst      domain.EventBus
	appender Appender
	topics   []string
	logger   *slog.Logger
}

// NewMirror creates a Mirror for the given topics. appender may be nil.
func NewMirror(src, dst domain.EventBus, appender Appender, topics []string, logger *slog.Logger) *Mirror {
	return &Mirror{
		src:      src,
		dst:      dst,
		appender: appender,
		topics:   topics,
		logger:   logger.With(slog.String("component", "mirror")),
	}
}

// Run forwards payloads until ctx is cancelled. Forwarding failures are
// logged, never fatal: the mirror is an observer, not part of the trading
// path.
func (m *Mirror) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, topic := range m.topics {
		ch, err := m.src.Subscribe(ctx, topic)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func(topic string, ch <-chan []byte) {
			defer wg.Done()
			m.forward(ctx, topic, ch)
		}(topic, ch)
	}
	wg.Wait()
	return ctx.Err()
}

func (m *Mirror) forward(ctx context.Context, topic string, ch <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			if err := m.dst.Publish(ctx, topic, payload); err != nil {
				m.logger.Warn("mirror publish failed",
					slog.String("topic", topic),
					slog.String("error", err.Error()))
			}
			if m.appender != nil {
				if err := m.appender.Append(ctx, topic, payload); err != nil {
					m.logger.Warn("mirror append failed",
						slog.String("topic", topic),
						slog.String("error", err.Error()))
				}
			}
		}
	}
}
