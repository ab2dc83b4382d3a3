// Package feed converts raw venue market-data events into order book store
// mutations and publishes normalized tick events onto the bus.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/arbcore/arbengine/internal/book"
	"github.com/arbcore/arbengine/internal/domain"
)

// Normalizer applies feed events to the book store. It detects per-market
// sequence gaps: on a gap it marks the market stale, requests a fresh
// snapshot from the feed, and suppresses incremental updates until the
// snapshot resynchronizes the book.
type Normalizer struct {
	feed   domain.MarketFeed
	books  *book.Store
	bus    domain.EventBus
	logger *slog.Logger

	mu        sync.Mutex
	lastSeq   map[string]uint64 // marketID -> last applied feed sequence
	resyncing map[string]bool
}

// NewNormalizer creates a Normalizer reading from feed and writing to books.
func NewNormalizer(feed domain.MarketFeed, books *book.Store, bus domain.EventBus, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		feed:      feed,
		books:     books,
		bus:       bus,
		logger:    logger.With(slog.String("component", "normalizer")),
		lastSeq:   make(map[string]uint64),
		resyncing: make(map[string]bool),
	}
}

// Run consumes feed events until ctx is cancelled.
func (n *Normalizer) Run(ctx context.Context) error {
	n.logger.Info("normalizer started")
	defer n.logger.Info("normalizer stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-n.feed.Events():
			if !ok {
				return nil
			}
			if err := n.Handle(ctx, ev); err != nil {
				n.logger.Warn("feed event dropped",
					slog.String("market", ev.MarketID),
					slog.Uint64("sequence", ev.Sequence),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Handle processes a single feed event.
func (n *Normalizer) Handle(ctx context.Context, ev domain.FeedEvent) error {
	switch ev.Type {
	case domain.FeedEventTick:
		return n.handleTick(ctx, ev)
	case domain.FeedEventSnapshot:
		return n.handleSnapshot(ctx, ev)
	default:
		return fmt.Errorf("normalizer: unknown event type %q", ev.Type)
	}
}

func (n *Normalizer) handleTick(ctx context.Context, ev domain.FeedEvent) error {
	n.mu.Lock()
	if n.resyncing[ev.MarketID] {
		n.mu.Unlock()
		return nil
	}
	last := n.lastSeq[ev.MarketID]
	if last > 0 && ev.Sequence > last+1 {
		n.resyncing[ev.MarketID] = true
		n.mu.Unlock()
		return n.startResync(ctx, ev.MarketID, last, ev.Sequence)
	}
	if ev.Sequence <= last {
		n.mu.Unlock()
		return nil
	}
	n.lastSeq[ev.MarketID] = ev.Sequence
	n.mu.Unlock()

	if err := n.books.ApplyUpdate(ev.MarketID, ev.Outcome, ev.Side, ev.Price, ev.Size, ev.Sequence); err != nil {
		return fmt.Errorf("normalizer: apply update: %w", err)
	}
	return n.publishTick(ctx, ev)
}

// startResync marks the market stale and asks the feed for a full snapshot
// instead of applying a partial update over the gap.
func (n *Normalizer) startResync(ctx context.Context, marketID string, last, got uint64) error {
	n.logger.Warn("sequence gap, requesting snapshot",
		slog.String("market", marketID),
		slog.Uint64("last", last),
		slog.Uint64("got", got),
	)
	if err := n.books.SetStatus(marketID, domain.MarketStatusStale); err != nil {
		return err
	}
	if err := n.feed.RequestSnapshot(ctx, marketID); err != nil {
		return fmt.Errorf("normalizer: request snapshot %s: %w", marketID, err)
	}
	return nil
}

func (n *Normalizer) handleSnapshot(ctx context.Context, ev domain.FeedEvent) error {
	if err := n.books.ApplySnapshot(ev.MarketID, ev.Outcome, ev.Bids, ev.Asks, ev.Sequence); err != nil {
		return fmt.Errorf("normalizer: apply snapshot: %w", err)
	}

	n.mu.Lock()
	n.lastSeq[ev.MarketID] = ev.Sequence
	wasResyncing := n.resyncing[ev.MarketID]
	delete(n.resyncing, ev.MarketID)
	n.mu.Unlock()

	if wasResyncing {
		if err := n.books.SetStatus(ev.MarketID, domain.MarketStatusActive); err != nil {
			return err
		}
		n.logger.Info("book resynchronized",
			slog.String("market", ev.MarketID),
			slog.Uint64("sequence", ev.Sequence),
		)
	}
	return n.publishTick(ctx, ev)
}

func (n *Normalizer) publishTick(ctx context.Context, ev domain.FeedEvent) error {
	groupID, err := n.books.GroupForMarket(ev.MarketID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(domain.TickEvent{
		GroupID:   groupID,
		MarketID:  ev.MarketID,
		Outcome:   ev.Outcome,
		Side:      ev.Side,
		Price:     ev.Price,
		Size:      ev.Size,
		Sequence:  ev.Sequence,
		Timestamp: ev.Timestamp,
	})
	if err != nil {
		return err
	}
	if err := n.bus.Publish(ctx, domain.TopicTicks, payload); err != nil {
		return fmt.Errorf("normalizer: publish tick: %w", err)
	}
	return nil
}
