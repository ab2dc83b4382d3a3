package domain

import "time"

// Outcome identifies one side of a binary market's fixed-sum outcome pair.
type Outcome string

const (
	OutcomeYes Outcome = "yes"
	OutcomeNo  Outcome = "no"
)

// Outcomes lists the fixed-sum outcome set in canonical order.
var Outcomes = [2]Outcome{OutcomeYes, OutcomeNo}

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive   MarketStatus = "active"
	MarketStatusPaused   MarketStatus = "paused"
	MarketStatusResolved MarketStatus = "resolved"
	// MarketStatusStale is set while the book is resynchronizing after a
	// feed sequence gap; no opportunities are evaluated in this state.
	MarketStatusStale MarketStatus = "stale"
)

// Market is a binary prediction market whose YES and NO outcome prices must
// sum to 1.0. Everything except Status is immutable after registration.
type Market struct {
	ID           string
	GroupID      string
	Question     string
	Outcomes     [2]Outcome
	TickSize     float64
	MinOrderSize float64
	Volume24h    float64
	Status       MarketStatus
	CreatedAt    time.Time
}

// TickAligned reports whether price is a multiple of the market's tick size.
func (m Market) TickAligned(price float64) bool {
	if m.TickSize <= 0 {
		return true
	}
	ticks := price / m.TickSize
	const eps = 1e-9
	diff := ticks - float64(int64(ticks+0.5))
	return diff < eps && diff > -eps
}
