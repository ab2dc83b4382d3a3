package exec

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbcore/arbengine/internal/book"
	"github.com/arbcore/arbengine/internal/bus"
	"github.com/arbcore/arbengine/internal/domain"
	"github.com/arbcore/arbengine/internal/risk"
)

type fakeSink struct {
	mu       sync.Mutex
	updates  chan domain.OrderUpdate
	placed   []domain.OrderRequest
	cancels  []string
	onPlace  func(req domain.OrderRequest)
	onCancel func(clientOrderID string)
}

func newFakeSink() *fakeSink {
	return &fakeSink{updates: make(chan domain.OrderUpdate, 64)}
}

func (f *fakeSink) Place(_ context.Context, req domain.OrderRequest) error {
	f.mu.Lock()
	f.placed = append(f.placed, req)
	cb := f.onPlace
	f.mu.Unlock()
	if cb != nil {
		cb(req)
	}
	return nil
}

func (f *fakeSink) Cancel(_ context.Context, clientOrderID string) error {
	f.mu.Lock()
	f.cancels = append(f.cancels, clientOrderID)
	cb := f.onCancel
	f.mu.Unlock()
	if cb != nil {
		cb(clientOrderID)
	}
	return nil
}

func (f *fakeSink) Updates() <-chan domain.OrderUpdate { return f.updates }

func (f *fakeSink) placedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.placed)
}

func (f *fakeSink) ack(id string) {
	f.updates <- domain.OrderUpdate{
		ClientOrderID: id,
		VenueOrderID:  "v-" + id,
		Type:          domain.OrderUpdateAck,
		Timestamp:     time.Now().UTC(),
	}
}

func (f *fakeSink) fill(id string, price, size float64, final bool) {
	f.updates <- domain.OrderUpdate{
		ClientOrderID: id,
		Type:          domain.OrderUpdateFill,
		FillPrice:     price,
		FillSize:      size,
		Final:         final,
		Timestamp:     time.Now().UTC(),
	}
}

func (f *fakeSink) reject(id, reason string) {
	f.updates <- domain.OrderUpdate{
		ClientOrderID: id,
		Type:          domain.OrderUpdateReject,
		Reason:        reason,
		Timestamp:     time.Now().UTC(),
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		FeeRate:              0.01,
		MinEdge:              0.02,
		AckTimeout:           500 * time.Millisecond,
		InvalidationInterval: 10 * time.Millisecond,
		Retry:                RetryPolicy{MaxAttempts: 2, BaseDelay: 5 * time.Millisecond, MaxDelay: 50 * time.Millisecond},
	}
}

// seedBooks registers one market group with a buy-both dislocation:
// ask(YES)=0.45, ask(NO)=0.50 leaves 0.04 net edge after the 0.01 fee.
func seedBooks(t *testing.T, seq uint64) *book.Store {
	t.Helper()
	books := book.NewStore()
	books.Register(domain.Market{
		ID:           "mkt-1",
		GroupID:      "grp-1",
		Question:     "Will it settle yes?",
		Outcomes:     domain.Outcomes,
		TickSize:     0.01,
		MinOrderSize: 1,
		Volume24h:    25_000,
		Status:       domain.MarketStatusActive,
	})
	require.NoError(t, books.ApplySnapshot("mkt-1", domain.OutcomeYes,
		[]domain.PriceLevel{{Price: 0.44, Size: 100}},
		[]domain.PriceLevel{{Price: 0.45, Size: 100}}, seq))
	require.NoError(t, books.ApplySnapshot("mkt-1", domain.OutcomeNo,
		[]domain.PriceLevel{{Price: 0.48, Size: 100}},
		[]domain.PriceLevel{{Price: 0.50, Size: 100}}, seq))
	return books
}

func testPlan(seq uint64, size float64) domain.OrderPlan {
	now := time.Now().UTC()
	return domain.OrderPlan{
		ID:            uuid.New().String(),
		OpportunityID: uuid.New().String(),
		GroupID:       "grp-1",
		Kind:          domain.KindBuyBoth,
		Sequence:      seq,
		NetEdge:       0.04,
		State:         domain.PlanStateCreated,
		CreatedAt:     now,
		ExpiresAt:     now.Add(time.Second),
		Legs: []domain.PlanLeg{
			{
				ClientOrderID: "leg-yes",
				MarketID:      "mkt-1",
				Outcome:       domain.OutcomeYes,
				Side:          domain.OrderSideBuy,
				PriceTicks:    450_000,
				SizeUnits:     int64(size * 1e6),
			},
			{
				ClientOrderID: "leg-no",
				MarketID:      "mkt-1",
				Outcome:       domain.OutcomeNo,
				Side:          domain.OrderSideBuy,
				PriceTicks:    500_000,
				SizeUnits:     int64(size * 1e6),
			},
		},
	}
}

func startEngine(t *testing.T, cfg Config, sink domain.OrderSink, books *book.Store, inflight *risk.Inflight, eventBus domain.EventBus, alerter Alerter) *Engine {
	t.Helper()
	eng := NewEngine(cfg, sink, books, inflight, nil, eventBus, alerter, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go eng.Run(ctx)
	return eng
}

func TestExecuteFilledPlan(t *testing.T) {
	books := seedBooks(t, 7)
	sink := newFakeSink()
	sink.onPlace = func(req domain.OrderRequest) {
		sink.ack(req.ClientOrderID)
		sink.fill(req.ClientOrderID, req.Price(), req.Size(), true)
	}
	inflight := risk.NewInflight()
	require.NoError(t, inflight.TryAcquire("grp-1", 9.5))
	eng := startEngine(t, testConfig(), sink, books, inflight, bus.NewMemory(), nil)

	rec, err := eng.Execute(context.Background(), testPlan(7, 10))
	require.NoError(t, err)

	assert.Equal(t, domain.PlanStateFilled, rec.State)
	require.Len(t, rec.Legs, 2)
	assert.InDelta(t, 0.40, rec.NetPnL, 1e-9) // 10 * (1 - 0.45 - 0.50 - 0.01)
	require.NotNil(t, rec.CompletedAt)

	// Terminal state released the group.
	assert.NoError(t, inflight.TryAcquire("grp-1", 1))
}

func TestExecuteRejectsSupersededOpportunity(t *testing.T) {
	books := seedBooks(t, 7)
	// A newer snapshot moves the YES ask up and erases the edge.
	require.NoError(t, books.ApplyUpdate("mkt-1", domain.OutcomeYes, domain.BookSideAsk, 0.45, 0, 8))
	require.NoError(t, books.ApplyUpdate("mkt-1", domain.OutcomeYes, domain.BookSideAsk, 0.60, 100, 9))

	sink := newFakeSink()
	inflight := risk.NewInflight()
	require.NoError(t, inflight.TryAcquire("grp-1", 9.5))
	eng := startEngine(t, testConfig(), sink, books, inflight, bus.NewMemory(), nil)

	rec, err := eng.Execute(context.Background(), testPlan(7, 10))
	require.ErrorIs(t, err, domain.ErrStaleOpportunity)

	assert.Equal(t, domain.PlanStateRejected, rec.State)
	assert.Zero(t, sink.placedCount())
	assert.NoError(t, inflight.TryAcquire("grp-1", 1))
}

func TestExecuteRejectsExpiredPlan(t *testing.T) {
	books := seedBooks(t, 7)
	sink := newFakeSink()
	inflight := risk.NewInflight()
	require.NoError(t, inflight.TryAcquire("grp-1", 9.5))
	eng := startEngine(t, testConfig(), sink, books, inflight, bus.NewMemory(), nil)

	plan := testPlan(7, 10)
	plan.ExpiresAt = time.Now().UTC().Add(-time.Millisecond)

	_, err := eng.Execute(context.Background(), plan)
	require.ErrorIs(t, err, domain.ErrStaleOpportunity)
	assert.Zero(t, sink.placedCount())
}

func TestExecuteUnwindsOneSidedFill(t *testing.T) {
	books := seedBooks(t, 7)
	sink := newFakeSink()
	sink.onPlace = func(req domain.OrderRequest) {
		switch {
		case req.ClientOrderID == "leg-yes":
			sink.ack(req.ClientOrderID)
			sink.fill(req.ClientOrderID, req.Price(), req.Size(), true)
		case req.ClientOrderID == "leg-no":
			sink.reject(req.ClientOrderID, "insufficient depth")
		default:
			// Compensating sell of the filled YES inventory.
			sink.ack(req.ClientOrderID)
			sink.fill(req.ClientOrderID, req.Price(), req.Size(), true)
		}
	}
	inflight := risk.NewInflight()
	require.NoError(t, inflight.TryAcquire("grp-1", 9.5))
	eventBus := bus.NewMemory()
	eng := startEngine(t, testConfig(), sink, books, inflight, eventBus, nil)

	rec, err := eng.Execute(context.Background(), testPlan(7, 10))
	require.ErrorIs(t, err, domain.ErrVenueReject)

	assert.Equal(t, domain.PlanStateUnwound, rec.State)
	require.Len(t, rec.Legs, 3)

	offset := rec.Legs[2]
	assert.Equal(t, domain.OutcomeYes, offset.Outcome)
	assert.Equal(t, domain.OrderSideSell, offset.Side)
	assert.InDelta(t, 10.0, offset.FilledSize, 1e-9)
	assert.InDelta(t, 0.44, offset.FilledPrice, 1e-9)

	// Sold at 0.44 what was bought at 0.45, plus fee on the exit.
	assert.InDelta(t, 10*((0.44-0.45)-0.01), rec.NetPnL, 1e-9)
	assert.NoError(t, inflight.TryAcquire("grp-1", 1))
}

func TestExecuteHaltsGroupWhenUnwindImpossible(t *testing.T) {
	books := seedBooks(t, 7)
	// Drain the YES bid so the compensating sell has no liquidity. The asks
	// keep their edge, so the plan itself is not superseded.
	require.NoError(t, books.ApplyUpdate("mkt-1", domain.OutcomeYes, domain.BookSideBid, 0.44, 0, 8))

	sink := newFakeSink()
	sink.onPlace = func(req domain.OrderRequest) {
		if req.ClientOrderID == "leg-yes" {
			sink.ack(req.ClientOrderID)
			sink.fill(req.ClientOrderID, req.Price(), req.Size(), true)
			return
		}
		sink.reject(req.ClientOrderID, "insufficient depth")
	}
	inflight := risk.NewInflight()
	require.NoError(t, inflight.TryAcquire("grp-1", 9.5))
	eventBus := bus.NewMemory()

	haltCtx, haltCancel := context.WithCancel(context.Background())
	defer haltCancel()
	halts, err := eventBus.Subscribe(haltCtx, domain.TopicHalts)
	require.NoError(t, err)

	eng := startEngine(t, testConfig(), sink, books, inflight, eventBus, nil)

	rec, err := eng.Execute(context.Background(), testPlan(7, 10))
	require.ErrorIs(t, err, domain.ErrUnwindFailed)
	assert.Equal(t, domain.PlanStateHalted, rec.State)

	// The group refuses new plans until an operator clears it.
	require.ErrorIs(t, inflight.TryAcquire("grp-1", 1), domain.ErrGroupHalted)

	select {
	case payload := <-halts:
		var ev domain.HaltEvent
		require.NoError(t, json.Unmarshal(payload, &ev))
		assert.Equal(t, "grp-1", ev.GroupID)
		assert.Equal(t, rec.PlanID, ev.PlanID)
	case <-time.After(time.Second):
		t.Fatal("no halt event published")
	}

	inflight.Clear("grp-1")
	assert.NoError(t, inflight.TryAcquire("grp-1", 1))
}

func TestOpenPlansTrackLegProgress(t *testing.T) {
	books := seedBooks(t, 7)
	sink := newFakeSink()
	sink.onPlace = func(req domain.OrderRequest) {
		sink.ack(req.ClientOrderID)
	}
	inflight := risk.NewInflight()
	require.NoError(t, inflight.TryAcquire("grp-1", 9.5))

	cfg := testConfig()
	cfg.AckTimeout = 2 * time.Second
	eng := startEngine(t, cfg, sink, books, inflight, bus.NewMemory(), nil)

	plan := testPlan(7, 10)
	plan.ExpiresAt = time.Now().UTC().Add(5 * time.Second)

	done := make(chan domain.ExecutionRecord, 1)
	go func() {
		rec, _ := eng.Execute(context.Background(), plan)
		done <- rec
	}()

	openState := func() domain.PlanState {
		for _, p := range eng.OpenPlans() {
			if p.ID == plan.ID {
				return p.State
			}
		}
		return ""
	}

	require.Eventually(t, func() bool {
		return openState() == domain.PlanStateAcknowledged
	}, time.Second, 5*time.Millisecond, "acked legs never surfaced")

	sink.fill("leg-yes", 0.45, 4, false)
	require.Eventually(t, func() bool {
		return openState() == domain.PlanStatePartiallyFilled
	}, time.Second, 5*time.Millisecond, "partial fill never surfaced")

	sink.fill("leg-yes", 0.45, 6, true)
	sink.fill("leg-no", 0.50, 10, true)

	select {
	case rec := <-done:
		assert.Equal(t, domain.PlanStateFilled, rec.State)
	case <-time.After(2 * time.Second):
		t.Fatal("plan never completed")
	}
	assert.Empty(t, eng.OpenPlans())
}

func TestExecuteTimesOutWithoutAck(t *testing.T) {
	books := seedBooks(t, 7)
	sink := newFakeSink() // never acks
	sink.onCancel = func(id string) {
		sink.updates <- domain.OrderUpdate{
			ClientOrderID: id,
			Type:          domain.OrderUpdateCancelled,
			Timestamp:     time.Now().UTC(),
		}
	}
	inflight := risk.NewInflight()
	require.NoError(t, inflight.TryAcquire("grp-1", 9.5))

	cfg := testConfig()
	cfg.AckTimeout = 50 * time.Millisecond
	eng := startEngine(t, cfg, sink, books, inflight, bus.NewMemory(), nil)

	plan := testPlan(7, 10)
	plan.ExpiresAt = time.Now().UTC().Add(2 * time.Second)

	rec, err := eng.Execute(context.Background(), plan)
	require.ErrorIs(t, err, domain.ErrVenueTimeout)
	assert.Equal(t, domain.PlanStateTimedOut, rec.State)
	assert.NoError(t, inflight.TryAcquire("grp-1", 1))
}
