package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbcore/arbengine/internal/domain"
)

func registeredStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	s.Register(domain.Market{
		ID:       "mkt-1",
		GroupID:  "grp-1",
		Outcomes: domain.Outcomes,
		Status:   domain.MarketStatusActive,
	})
	return s
}

func TestStoreUnknownMarket(t *testing.T) {
	s := NewStore()

	_, err := s.Market("mkt-x")
	assert.ErrorIs(t, err, domain.ErrUnknownMarket)
	assert.ErrorIs(t, s.SetStatus("mkt-x", domain.MarketStatusStale), domain.ErrUnknownMarket)
	assert.ErrorIs(t, s.ApplyUpdate("mkt-x", domain.OutcomeYes, domain.BookSideBid, 0.5, 10, 1), domain.ErrUnknownMarket)
	_, err = s.Snapshot("grp-x")
	assert.ErrorIs(t, err, domain.ErrUnknownMarket)
	_, err = s.GroupForMarket("mkt-x")
	assert.ErrorIs(t, err, domain.ErrUnknownMarket)
}

func TestApplyUpdateBestQuotes(t *testing.T) {
	s := registeredStore(t)

	require.NoError(t, s.ApplyUpdate("mkt-1", domain.OutcomeYes, domain.BookSideBid, 0.40, 80, 1))
	require.NoError(t, s.ApplyUpdate("mkt-1", domain.OutcomeYes, domain.BookSideBid, 0.42, 50, 2))
	require.NoError(t, s.ApplyUpdate("mkt-1", domain.OutcomeYes, domain.BookSideAsk, 0.45, 100, 3))
	require.NoError(t, s.ApplyUpdate("mkt-1", domain.OutcomeYes, domain.BookSideAsk, 0.47, 30, 4))

	snap, err := s.Snapshot("grp-1")
	require.NoError(t, err)
	yes := snap.Quote(domain.OutcomeYes)
	assert.InDelta(t, 0.42, yes.BestBid.Price, 1e-9) // highest bid wins
	assert.InDelta(t, 50, yes.BestBid.Size, 1e-9)
	assert.InDelta(t, 0.45, yes.BestAsk.Price, 1e-9) // lowest ask wins
	assert.Equal(t, uint64(4), snap.Sequence)
}

func TestApplyUpdateStaleSequenceIsNoOp(t *testing.T) {
	s := registeredStore(t)

	require.NoError(t, s.ApplyUpdate("mkt-1", domain.OutcomeYes, domain.BookSideBid, 0.40, 80, 5))
	// Replays and reordered deliveries must not move the book backwards.
	require.NoError(t, s.ApplyUpdate("mkt-1", domain.OutcomeYes, domain.BookSideBid, 0.40, 10, 5))
	require.NoError(t, s.ApplyUpdate("mkt-1", domain.OutcomeYes, domain.BookSideBid, 0.40, 20, 3))

	depth, err := s.Depth("mkt-1", domain.OutcomeYes, domain.BookSideBid)
	require.NoError(t, err)
	require.Len(t, depth, 1)
	assert.InDelta(t, 80, depth[0].Size, 1e-9)

	seq, err := s.LatestSeq("grp-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), seq)
}

func TestApplyUpdateZeroSizeRemovesLevel(t *testing.T) {
	s := registeredStore(t)

	require.NoError(t, s.ApplyUpdate("mkt-1", domain.OutcomeNo, domain.BookSideAsk, 0.55, 40, 1))
	require.NoError(t, s.ApplyUpdate("mkt-1", domain.OutcomeNo, domain.BookSideAsk, 0.55, 0, 2))

	depth, err := s.Depth("mkt-1", domain.OutcomeNo, domain.BookSideAsk)
	require.NoError(t, err)
	assert.Empty(t, depth)

	snap, err := s.Snapshot("grp-1")
	require.NoError(t, err)
	assert.Zero(t, snap.Quote(domain.OutcomeNo).BestAsk.Size)
}

func TestApplyUpdateRejectsOffTickPrice(t *testing.T) {
	s := NewStore()
	s.Register(domain.Market{
		ID:       "mkt-t",
		GroupID:  "grp-t",
		Outcomes: domain.Outcomes,
		TickSize: 0.01,
		Status:   domain.MarketStatusActive,
	})

	err := s.ApplyUpdate("mkt-t", domain.OutcomeYes, domain.BookSideAsk, 0.4567, 10, 1)
	assert.ErrorIs(t, err, domain.ErrPriceNotAligned)

	// The rejected insert must not advance the sequence.
	require.NoError(t, s.ApplyUpdate("mkt-t", domain.OutcomeYes, domain.BookSideAsk, 0.45, 10, 1))

	depth, err := s.Depth("mkt-t", domain.OutcomeYes, domain.BookSideAsk)
	require.NoError(t, err)
	require.Len(t, depth, 1)
	assert.InDelta(t, 0.45, depth[0].Price, 1e-9)

	// Removals pass regardless of grid so a noisy feed cannot strand a level.
	require.NoError(t, s.ApplyUpdate("mkt-t", domain.OutcomeYes, domain.BookSideAsk, 0.4567, 0, 2))
}

func TestApplySnapshotReplacesLadders(t *testing.T) {
	s := registeredStore(t)

	require.NoError(t, s.ApplyUpdate("mkt-1", domain.OutcomeYes, domain.BookSideBid, 0.30, 10, 1))

	bids := []domain.PriceLevel{{Price: 0.41, Size: 20}, {Price: 0.40, Size: 30}, {Price: 0.39, Size: 0}}
	asks := []domain.PriceLevel{{Price: 0.44, Size: 15}}
	require.NoError(t, s.ApplySnapshot("mkt-1", domain.OutcomeYes, bids, asks, 9))

	depth, err := s.Depth("mkt-1", domain.OutcomeYes, domain.BookSideBid)
	require.NoError(t, err)
	require.Len(t, depth, 2) // pre-snapshot level and empty level both gone
	assert.InDelta(t, 0.41, depth[0].Price, 1e-9)
	assert.InDelta(t, 0.40, depth[1].Price, 1e-9)

	snap, err := s.Snapshot("grp-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), snap.Sequence)
	assert.InDelta(t, 0.44, snap.Quote(domain.OutcomeYes).BestAsk.Price, 1e-9)

	// Updates at or below the snapshot sequence are discarded.
	require.NoError(t, s.ApplyUpdate("mkt-1", domain.OutcomeYes, domain.BookSideBid, 0.50, 99, 8))
	depth, err = s.Depth("mkt-1", domain.OutcomeYes, domain.BookSideBid)
	require.NoError(t, err)
	assert.Len(t, depth, 2)
}

func TestDepthOrdering(t *testing.T) {
	s := registeredStore(t)

	for i, price := range []float64{0.42, 0.40, 0.44} {
		require.NoError(t, s.ApplyUpdate("mkt-1", domain.OutcomeYes, domain.BookSideAsk, price, 10, uint64(i+1)))
	}

	depth, err := s.Depth("mkt-1", domain.OutcomeYes, domain.BookSideAsk)
	require.NoError(t, err)
	require.Len(t, depth, 3)
	assert.InDelta(t, 0.40, depth[0].Price, 1e-9)
	assert.InDelta(t, 0.42, depth[1].Price, 1e-9)
	assert.InDelta(t, 0.44, depth[2].Price, 1e-9)
}

func TestRegisterKeepsLaddersOnReRegister(t *testing.T) {
	s := registeredStore(t)
	require.NoError(t, s.ApplyUpdate("mkt-1", domain.OutcomeYes, domain.BookSideBid, 0.40, 80, 1))

	m, err := s.Market("mkt-1")
	require.NoError(t, err)
	m.Question = "updated"
	s.Register(m)

	depth, err := s.Depth("mkt-1", domain.OutcomeYes, domain.BookSideBid)
	require.NoError(t, err)
	assert.Len(t, depth, 1)

	updated, err := s.Market("mkt-1")
	require.NoError(t, err)
	assert.Equal(t, "updated", updated.Question)
}

func TestGroupsAndMembership(t *testing.T) {
	s := registeredStore(t)
	s.Register(domain.Market{ID: "mkt-2", GroupID: "grp-2", Outcomes: domain.Outcomes})

	assert.Equal(t, []string{"grp-1", "grp-2"}, s.Groups())

	grp, err := s.GroupForMarket("mkt-2")
	require.NoError(t, err)
	assert.Equal(t, "grp-2", grp)
}

func TestSetStatus(t *testing.T) {
	s := registeredStore(t)

	require.NoError(t, s.SetStatus("mkt-1", domain.MarketStatusStale))
	m, err := s.Market("mkt-1")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusStale, m.Status)
}
