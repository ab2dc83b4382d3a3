package domain

import "time"

// TickEvent is the JSON payload published to the "ticks" topic after a book
// mutation has been applied.
type TickEvent struct {
	GroupID   string    `json:"group_id"`
	MarketID  string    `json:"market_id"`
	Outcome   Outcome   `json:"outcome"`
	Side      BookSide  `json:"side"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

// FillEvent is the JSON payload published to the "fills" topic.
type FillEvent struct {
	ClientOrderID string    `json:"client_order_id"`
	PlanID        string    `json:"plan_id"`
	GroupID       string    `json:"group_id"`
	MarketID      string    `json:"market_id"`
	Outcome       Outcome   `json:"outcome"`
	Side          OrderSide `json:"side"`
	Price         float64   `json:"price"`
	Size          float64   `json:"size"`
	Timestamp     time.Time `json:"timestamp"`
}

// PositionEvent is the JSON payload published to the "positions" topic after
// the tracker applies a fill, so capacity checks see fresh exposure.
type PositionEvent struct {
	MarketID    string    `json:"market_id"`
	GroupID     string    `json:"group_id"`
	Outcome     Outcome   `json:"outcome"`
	Size        float64   `json:"size"`
	AvgCost     float64   `json:"avg_cost"`
	RealizedPnL float64   `json:"realized_pnl"`
	Timestamp   time.Time `json:"timestamp"`
}

// OpportunityEvent is the JSON payload published to the "opportunities" topic
// whenever the detector emits a dislocation, whether or not it executes.
type OpportunityEvent struct {
	ID           string          `json:"id"`
	GroupID      string          `json:"group_id"`
	MarketID     string          `json:"market_id"`
	Kind         OpportunityKind `json:"kind"`
	YesPrice     float64         `json:"yes_price"`
	NoPrice      float64         `json:"no_price"`
	NetEdge      float64         `json:"net_edge"`
	FeasibleSize float64         `json:"feasible_size"`
	Confidence   float64         `json:"confidence"`
	Sequence     uint64          `json:"sequence"`
	DetectedAt   time.Time       `json:"detected_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
}

// HaltEvent is the JSON payload published to the "halts" topic when a group
// is frozen after an unwind failure.
type HaltEvent struct {
	GroupID   string    `json:"group_id"`
	PlanID    string    `json:"plan_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}
