// Package book holds the latest per-market, per-outcome price/size ladders.
// It is a pure in-memory data structure: mutation happens only through the
// normalizer, and all cross-component reads go through immutable snapshots.
package book

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/arbcore/arbengine/internal/domain"
)

type ladderKey struct {
	marketID string
	outcome  domain.Outcome
	side     domain.BookSide
}

type ladder struct {
	levels  map[float64]float64 // price -> size
	lastSeq uint64
}

// Store is the order book store. Updates are idempotent for sequence numbers
// at or below the last applied one per (market, outcome, side).
type Store struct {
	mu      sync.RWMutex
	markets map[string]domain.Market
	groups  map[string][]string // groupID -> marketIDs
	ladders map[ladderKey]*ladder
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		markets: make(map[string]domain.Market),
		groups:  make(map[string][]string),
		ladders: make(map[ladderKey]*ladder),
	}
}

// Register adds a market and its empty ladders. Registering an existing id
// replaces the stored metadata but keeps the ladders.
func (s *Store) Register(m domain.Market) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[m.ID]; !ok {
		s.groups[m.GroupID] = append(s.groups[m.GroupID], m.ID)
		for _, o := range domain.Outcomes {
			for _, side := range []domain.BookSide{domain.BookSideBid, domain.BookSideAsk} {
				s.ladders[ladderKey{m.ID, o, side}] = &ladder{levels: make(map[float64]float64)}
			}
		}
	}
	s.markets[m.ID] = m
}

// Market returns the registered metadata for a market id.
func (s *Store) Market(marketID string) (domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markets[marketID]
	if !ok {
		return domain.Market{}, domain.ErrUnknownMarket
	}
	return m, nil
}

// SetStatus updates a market's status, the only mutable market field.
func (s *Store) SetStatus(marketID string, status domain.MarketStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[marketID]
	if !ok {
		return domain.ErrUnknownMarket
	}
	m.Status = status
	s.markets[marketID] = m
	return nil
}

// ApplyUpdate replaces or inserts a single level. It is a no-op when seq is
// at or below the last applied sequence for the (market, outcome, side)
// ladder. A zero (or negative) size removes the level: the store never holds
// levels with non-positive size. Inserts at a price off the market's tick
// grid are rejected without advancing the sequence.
func (s *Store) ApplyUpdate(marketID string, outcome domain.Outcome, side domain.BookSide, price, size float64, seq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.ladders[ladderKey{marketID, outcome, side}]
	if !ok {
		return domain.ErrUnknownMarket
	}
	if seq <= l.lastSeq {
		return nil
	}
	if size > 0 && !s.markets[marketID].TickAligned(price) {
		return fmt.Errorf("%w: %s %s/%s price %v", domain.ErrPriceNotAligned, marketID, outcome, side, price)
	}
	if size > 0 {
		l.levels[price] = size
	} else {
		delete(l.levels, price)
	}
	l.lastSeq = seq
	return nil
}

// ApplySnapshot atomically replaces both ladders for one outcome of a market
// and advances the sequence, resynchronizing the book after a feed gap.
func (s *Store) ApplySnapshot(marketID string, outcome domain.Outcome, bids, asks []domain.PriceLevel, seq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bidLadder, ok := s.ladders[ladderKey{marketID, outcome, domain.BookSideBid}]
	if !ok {
		return domain.ErrUnknownMarket
	}
	askLadder := s.ladders[ladderKey{marketID, outcome, domain.BookSideAsk}]

	bidLadder.levels = make(map[float64]float64, len(bids))
	for _, lvl := range bids {
		if lvl.Size > 0 {
			bidLadder.levels[lvl.Price] = lvl.Size
		}
	}
	askLadder.levels = make(map[float64]float64, len(asks))
	for _, lvl := range asks {
		if lvl.Size > 0 {
			askLadder.levels[lvl.Price] = lvl.Size
		}
	}
	bidLadder.lastSeq = seq
	askLadder.lastSeq = seq
	return nil
}

// Snapshot returns an immutable view of the best bid/ask for every outcome of
// every market in the group, tagged with the max sequence observed across it.
func (s *Store) Snapshot(groupID string) (domain.GroupSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	marketIDs, ok := s.groups[groupID]
	if !ok || len(marketIDs) == 0 {
		return domain.GroupSnapshot{}, domain.ErrUnknownMarket
	}

	snap := domain.GroupSnapshot{
		GroupID:  groupID,
		MarketID: marketIDs[0],
		Quotes:   make(map[domain.Outcome]domain.OutcomeQuote, len(domain.Outcomes)),
		Taken:    time.Now().UTC(),
	}
	for _, mid := range marketIDs {
		for _, o := range domain.Outcomes {
			bidLadder := s.ladders[ladderKey{mid, o, domain.BookSideBid}]
			askLadder := s.ladders[ladderKey{mid, o, domain.BookSideAsk}]
			q := domain.OutcomeQuote{
				BestBid: bestLevel(bidLadder.levels, true),
				BestAsk: bestLevel(askLadder.levels, false),
			}
			snap.Quotes[o] = q
			if bidLadder.lastSeq > snap.Sequence {
				snap.Sequence = bidLadder.lastSeq
			}
			if askLadder.lastSeq > snap.Sequence {
				snap.Sequence = askLadder.lastSeq
			}
		}
	}
	return snap, nil
}

// LatestSeq returns the max sequence observed across the group's ladders.
func (s *Store) LatestSeq(groupID string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	marketIDs, ok := s.groups[groupID]
	if !ok {
		return 0, domain.ErrUnknownMarket
	}
	var max uint64
	for _, mid := range marketIDs {
		for _, o := range domain.Outcomes {
			for _, side := range []domain.BookSide{domain.BookSideBid, domain.BookSideAsk} {
				if l := s.ladders[ladderKey{mid, o, side}]; l.lastSeq > max {
					max = l.lastSeq
				}
			}
		}
	}
	return max, nil
}

// Depth returns the full ladder for one side of an outcome, best price first.
func (s *Store) Depth(marketID string, outcome domain.Outcome, side domain.BookSide) ([]domain.PriceLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.ladders[ladderKey{marketID, outcome, side}]
	if !ok {
		return nil, domain.ErrUnknownMarket
	}
	out := make([]domain.PriceLevel, 0, len(l.levels))
	for p, sz := range l.levels {
		out = append(out, domain.PriceLevel{Price: p, Size: sz})
	}
	sort.Slice(out, func(i, j int) bool {
		if side == domain.BookSideBid {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	return out, nil
}

// Groups lists all registered group ids.
func (s *Store) Groups() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.groups))
	for g := range s.groups {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// GroupForMarket returns the group a market belongs to.
func (s *Store) GroupForMarket(marketID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markets[marketID]
	if !ok {
		return "", domain.ErrUnknownMarket
	}
	return m.GroupID, nil
}

func bestLevel(levels map[float64]float64, highest bool) domain.PriceLevel {
	var best domain.PriceLevel
	for p, sz := range levels {
		if best.Size == 0 || (highest && p > best.Price) || (!highest && p < best.Price) {
			best = domain.PriceLevel{Price: p, Size: sz}
		}
	}
	return best
}
