package domain

import "time"

// Fill is a confirmed (partial) execution of an order at the venue.
type Fill struct {
	ClientOrderID string
	PlanID        string
	MarketID      string
	GroupID       string
	Outcome       Outcome
	Side          OrderSide
	Price         float64
	Size          float64
	Timestamp     time.Time
}

// Position is the signed inventory for one market outcome. AvgCost is a
// running weighted average over the fills that built the position; it is
// mutated only by the position tracker.
type Position struct {
	MarketID    string
	GroupID     string
	Outcome     Outcome
	Size        float64
	AvgCost     float64
	RealizedPnL float64
	UpdatedAt   time.Time
}

// UnrealizedPnL marks the open size against the given price. The sign of
// Size makes the same formula correct for longs and shorts.
func (p Position) UnrealizedPnL(mark float64) float64 {
	return p.Size * (mark - p.AvgCost)
}

// Notional is the position's value at its average cost.
func (p Position) Notional() float64 {
	size := p.Size
	if size < 0 {
		size = -size
	}
	return size * p.AvgCost
}
