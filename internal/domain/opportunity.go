package domain

import "time"

// OpportunityKind is the closed set of fixed-sum arbitrage variants. New
// variants are added here, not via subtyping.
type OpportunityKind string

const (
	// KindBuyBoth buys YES and NO when their asks sum below 1.
	KindBuyBoth OpportunityKind = "buy_both"
	// KindSellBoth sells YES and NO when their bids sum above 1.
	KindSellBoth OpportunityKind = "sell_both"
)

// Opportunity is a detected fixed-sum dislocation. It is valid only while its
// Sequence is still the latest observed for the group and ExpiresAt has not
// passed.
type Opportunity struct {
	ID           string
	GroupID      string
	MarketID     string
	Kind         OpportunityKind
	YesPrice     float64 // executable YES price for Kind's direction
	NoPrice      float64 // executable NO price for Kind's direction
	GrossEdge    float64 // profit per unit before fees
	NetEdge      float64 // profit per unit after the fee allowance
	FeasibleSize float64 // min depth across the two legs
	Confidence   float64 // 0..1 liquidity/profit/volume blend
	Sequence     uint64
	DetectedAt   time.Time
	ExpiresAt    time.Time
	Executed     bool
}

// UnitCost is the notional spent (or received) per unit of the opportunity.
func (o Opportunity) UnitCost() float64 {
	return o.YesPrice + o.NoPrice
}

// ExpectedPnL is the profit in quote currency if the full feasible size fills.
func (o Opportunity) ExpectedPnL() float64 {
	return o.NetEdge * o.FeasibleSize
}
