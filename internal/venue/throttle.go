package venue

import (
	"context"
	"log/slog"
	"time"

	"github.com/arbcore/arbengine/internal/domain"
)

// throttlePollInterval is how often a blocked Place retries the limiter.
const throttlePollInterval = 25 * time.Millisecond

// ThrottledSink wraps an OrderSink and holds order placements under a
// per-second rate limit so a burst of dislocations cannot exceed the venue's
// command quota. Cancels pass through unthrottled: they only ever reduce
// risk, and delaying one during an unwind makes things worse.
type ThrottledSink struct {
	sink    domain.OrderSink
	limiter domain.RateLimiter
	key     string
	limit   int
	logger  *slog.Logger
}

// NewThrottledSink creates a ThrottledSink allowing limit placements per
// second. A nil limiter or non-positive limit disables throttling.
func NewThrottledSink(sink domain.OrderSink, limiter domain.RateLimiter, key string, limit int, logger *slog.Logger) *ThrottledSink {
	return &ThrottledSink{
		sink:    sink,
		limiter: limiter,
		key:     key,
		limit:   limit,
		logger:  logger.With(slog.String("component", "order_throttle")),
	}
}

// Place blocks until the rate limit admits the order, then forwards it.
func (s *ThrottledSink) Place(ctx context.Context, req domain.OrderRequest) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	return s.sink.Place(ctx, req)
}

// Cancel forwards immediately.
func (s *ThrottledSink) Cancel(ctx context.Context, clientOrderID string) error {
	return s.sink.Cancel(ctx, clientOrderID)
}

// Updates returns the wrapped sink's update stream.
func (s *ThrottledSink) Updates() <-chan domain.OrderUpdate {
	return s.sink.Updates()
}

func (s *ThrottledSink) acquire(ctx context.Context) error {
	if s.limiter == nil || s.limit <= 0 {
		return nil
	}
	for {
		allowed, err := s.limiter.Allow(ctx, s.key, s.limit, time.Second)
		if err != nil {
			// Fail open: a broken limiter must not block the trading path.
			s.logger.Warn("rate limiter unavailable, passing order through",
				slog.String("error", err.Error()))
			return nil
		}
		if allowed {
			return nil
		}

		timer := time.NewTimer(throttlePollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

var _ domain.OrderSink = (*ThrottledSink)(nil)
