package domain

import (
	"context"
	"time"
)

// EventBus delivers normalized ticks, fills, and position updates to
// in-process subscribers. Payloads are JSON so the same interface can be
// satisfied by an out-of-process mirror.
type EventBus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (<-chan []byte, error)
}

// Bus topics.
const (
	TopicTicks         = "ticks"
	TopicFills         = "fills"
	TopicPositions     = "positions"
	TopicOpportunities = "opportunities"
	TopicHalts         = "halts"
)

// FeedEventType distinguishes incremental ticks from full snapshots.
type FeedEventType string

const (
	FeedEventTick     FeedEventType = "tick"
	FeedEventSnapshot FeedEventType = "snapshot"
)

// FeedEvent is one normalized message from the market-data feed. Tick events
// carry Side/Price/Size; snapshot events carry the full Bids/Asks ladders for
// one outcome.
type FeedEvent struct {
	Type      FeedEventType
	MarketID  string
	Outcome   Outcome
	Sequence  uint64
	Timestamp time.Time

	// Tick fields.
	Side  BookSide
	Price float64
	Size  float64

	// Snapshot fields.
	Bids []PriceLevel
	Asks []PriceLevel
}

// MarketFeed produces feed events and serves resynchronization requests.
// Implemented by the venue WebSocket client.
type MarketFeed interface {
	Events() <-chan FeedEvent
	// RequestSnapshot asks the venue for full ladders for every outcome of
	// the market; the snapshots arrive later on Events().
	RequestSnapshot(ctx context.Context, marketID string) error
}

// OrderRequest is one order command sent to the venue.
type OrderRequest struct {
	ClientOrderID string
	MarketID      string
	Outcome       Outcome
	Side          OrderSide
	PriceTicks    int64
	SizeUnits     int64
}

// Price returns the float64 display price from fixed-point ticks.
func (r OrderRequest) Price() float64 { return float64(r.PriceTicks) / 1e6 }

// Size returns the float64 display size from fixed-point units.
func (r OrderRequest) Size() float64 { return float64(r.SizeUnits) / 1e6 }

// OrderUpdateType classifies asynchronous order events from the venue.
type OrderUpdateType string

const (
	OrderUpdateAck       OrderUpdateType = "ack"
	OrderUpdateFill      OrderUpdateType = "fill"
	OrderUpdateReject    OrderUpdateType = "reject"
	OrderUpdateCancelled OrderUpdateType = "cancelled"
)

// OrderUpdate is an asynchronous venue event correlated by ClientOrderID.
type OrderUpdate struct {
	ClientOrderID string
	VenueOrderID  string
	Type          OrderUpdateType
	FillPrice     float64
	FillSize      float64
	// Final reports whether a fill completes the order.
	Final     bool
	Reason    string
	Timestamp time.Time
}

// OrderSink accepts order commands and streams back their updates.
// Implemented by the venue client; tests use a scripted fake.
type OrderSink interface {
	Place(ctx context.Context, req OrderRequest) error
	Cancel(ctx context.Context, clientOrderID string) error
	Updates() <-chan OrderUpdate
}

// RateLimiter bounds the rate of venue commands per key.
type RateLimiter interface {
	// Allow reports whether one more request fits in the window, counting it
	// when it does.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Wait blocks until a request is allowed or ctx is cancelled.
	Wait(ctx context.Context, key string) error
}
