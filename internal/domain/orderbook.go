package domain

import "time"

// BookSide indicates which half of the book a level belongs to.
type BookSide string

const (
	BookSideBid BookSide = "bid"
	BookSideAsk BookSide = "ask"
)

// PriceLevel is a single price+size entry in an orderbook ladder.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OutcomeQuote is the top of book for one outcome of a market.
type OutcomeQuote struct {
	BestBid PriceLevel
	BestAsk PriceLevel
}

// GroupSnapshot is a point-in-logical-time view of the best bid/ask for every
// outcome in a market group. It is tagged with the maximum sequence number
// observed across the group and is never mutated once produced.
type GroupSnapshot struct {
	GroupID  string
	MarketID string
	Sequence uint64
	Quotes   map[Outcome]OutcomeQuote
	Taken    time.Time
}

// Quote returns the quote for the given outcome, zero-valued when absent.
func (s GroupSnapshot) Quote(o Outcome) OutcomeQuote {
	return s.Quotes[o]
}
