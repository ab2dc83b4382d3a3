package feed

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbcore/arbengine/internal/book"
	"github.com/arbcore/arbengine/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeFeed records snapshot requests; Events is unused when driving Handle
// directly.
type fakeFeed struct {
	events    chan domain.FeedEvent
	snapshots []string
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{events: make(chan domain.FeedEvent, 16)}
}

func (f *fakeFeed) Events() <-chan domain.FeedEvent { return f.events }

func (f *fakeFeed) RequestSnapshot(_ context.Context, marketID string) error {
	f.snapshots = append(f.snapshots, marketID)
	return nil
}

// captureBus collects published payloads per topic.
type captureBus struct {
	published map[string][][]byte
}

func newCaptureBus() *captureBus {
	return &captureBus{published: make(map[string][][]byte)}
}

func (b *captureBus) Publish(_ context.Context, topic string, payload []byte) error {
	b.published[topic] = append(b.published[topic], payload)
	return nil
}

func (b *captureBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *captureBus) ticks(t *testing.T) []domain.TickEvent {
	t.Helper()
	out := make([]domain.TickEvent, 0, len(b.published[domain.TopicTicks]))
	for _, payload := range b.published[domain.TopicTicks] {
		var ev domain.TickEvent
		require.NoError(t, json.Unmarshal(payload, &ev))
		out = append(out, ev)
	}
	return out
}

func tick(seq uint64, price, size float64) domain.FeedEvent {
	return domain.FeedEvent{
		Type:      domain.FeedEventTick,
		MarketID:  "mkt-1",
		Outcome:   domain.OutcomeYes,
		Side:      domain.BookSideBid,
		Price:     price,
		Size:      size,
		Sequence:  seq,
		Timestamp: time.Now().UTC(),
	}
}

func newTestNormalizer(t *testing.T) (*Normalizer, *book.Store, *fakeFeed, *captureBus) {
	t.Helper()
	books := book.NewStore()
	books.Register(domain.Market{
		ID:       "mkt-1",
		GroupID:  "grp-1",
		Outcomes: domain.Outcomes,
		Status:   domain.MarketStatusActive,
	})
	feed := newFakeFeed()
	bus := newCaptureBus()
	return NewNormalizer(feed, books, bus, testLogger()), books, feed, bus
}

func TestHandleTickAppliesAndPublishes(t *testing.T) {
	n, books, _, bus := newTestNormalizer(t)
	ctx := context.Background()

	require.NoError(t, n.Handle(ctx, tick(1, 0.40, 80)))
	require.NoError(t, n.Handle(ctx, tick(2, 0.42, 50)))

	snap, err := books.Snapshot("grp-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.42, snap.Quote(domain.OutcomeYes).BestBid.Price, 1e-9)

	ticks := bus.ticks(t)
	require.Len(t, ticks, 2)
	assert.Equal(t, "grp-1", ticks[0].GroupID)
	assert.Equal(t, uint64(2), ticks[1].Sequence)
}

func TestHandleTickStaleSequenceIsNoOp(t *testing.T) {
	n, books, _, bus := newTestNormalizer(t)
	ctx := context.Background()

	require.NoError(t, n.Handle(ctx, tick(5, 0.40, 80)))
	require.NoError(t, n.Handle(ctx, tick(5, 0.40, 10)))
	require.NoError(t, n.Handle(ctx, tick(4, 0.40, 20)))

	depth, err := books.Depth("mkt-1", domain.OutcomeYes, domain.BookSideBid)
	require.NoError(t, err)
	require.Len(t, depth, 1)
	assert.InDelta(t, 80, depth[0].Size, 1e-9)
	assert.Len(t, bus.ticks(t), 1)
}

func TestHandleTickGapTriggersResync(t *testing.T) {
	n, books, feed, bus := newTestNormalizer(t)
	ctx := context.Background()

	require.NoError(t, n.Handle(ctx, tick(1, 0.40, 80)))
	// Sequence jumps 1 -> 3: mark stale and ask for a snapshot.
	require.NoError(t, n.Handle(ctx, tick(3, 0.41, 70)))

	m, err := books.Market("mkt-1")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusStale, m.Status)
	assert.Equal(t, []string{"mkt-1"}, feed.snapshots)

	// Further incremental updates are suppressed until the snapshot lands.
	require.NoError(t, n.Handle(ctx, tick(4, 0.43, 60)))
	assert.Len(t, bus.ticks(t), 1)
	depth, err := books.Depth("mkt-1", domain.OutcomeYes, domain.BookSideBid)
	require.NoError(t, err)
	require.Len(t, depth, 1)
	assert.InDelta(t, 0.40, depth[0].Price, 1e-9)
}

func TestHandleSnapshotResynchronizes(t *testing.T) {
	n, books, feed, bus := newTestNormalizer(t)
	ctx := context.Background()

	require.NoError(t, n.Handle(ctx, tick(1, 0.40, 80)))
	require.NoError(t, n.Handle(ctx, tick(9, 0.41, 70))) // gap
	require.Len(t, feed.snapshots, 1)

	require.NoError(t, n.Handle(ctx, domain.FeedEvent{
		Type:      domain.FeedEventSnapshot,
		MarketID:  "mkt-1",
		Outcome:   domain.OutcomeYes,
		Sequence:  10,
		Bids:      []domain.PriceLevel{{Price: 0.42, Size: 55}},
		Asks:      []domain.PriceLevel{{Price: 0.45, Size: 90}},
		Timestamp: time.Now().UTC(),
	}))

	m, err := books.Market("mkt-1")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusActive, m.Status)

	snap, err := books.Snapshot("grp-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), snap.Sequence)
	assert.InDelta(t, 0.42, snap.Quote(domain.OutcomeYes).BestBid.Price, 1e-9)

	// Normal flow resumes after the snapshot.
	require.NoError(t, n.Handle(ctx, tick(11, 0.43, 40)))
	ticks := bus.ticks(t)
	assert.Equal(t, uint64(11), ticks[len(ticks)-1].Sequence)
}

func TestHandleUnknownEventType(t *testing.T) {
	n, _, _, _ := newTestNormalizer(t)
	err := n.Handle(context.Background(), domain.FeedEvent{Type: "heartbeat", MarketID: "mkt-1"})
	assert.Error(t, err)
}
