package domain

import "time"

// OrderSide indicates whether an order buys or sells an outcome token.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderState tracks a single order's lifecycle at the venue.
type OrderState string

const (
	OrderStatePending         OrderState = "pending"
	OrderStateAcknowledged    OrderState = "acknowledged"
	OrderStatePartiallyFilled OrderState = "partially_filled"
	OrderStateFilled          OrderState = "filled"
	OrderStateCancelled       OrderState = "cancelled"
	OrderStateRejected        OrderState = "rejected"
)

// Terminal reports whether the order can no longer change state.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateFilled, OrderStateCancelled, OrderStateRejected:
		return true
	}
	return false
}

// Order is the runtime record for one submitted plan leg. VenueOrderID is
// empty until the venue acknowledges the order.
type Order struct {
	ClientOrderID string
	VenueOrderID  string
	MarketID      string
	Outcome       Outcome
	Side          OrderSide
	PriceTicks    int64 // fixed-point: price * 1e6
	SizeUnits     int64 // fixed-point: size  * 1e6
	FilledSize    float64
	AvgFillPrice  float64
	State         OrderState
	CreatedAt     time.Time
}

// Price returns the float64 display price from fixed-point ticks.
func (o Order) Price() float64 { return float64(o.PriceTicks) / 1e6 }

// Size returns the float64 display size from fixed-point units.
func (o Order) Size() float64 { return float64(o.SizeUnits) / 1e6 }

// PlanState tracks the execution state machine for a whole OrderPlan.
type PlanState string

const (
	PlanStateCreated         PlanState = "created"
	PlanStateSubmitting      PlanState = "submitting"
	PlanStateAcknowledged    PlanState = "acknowledged"
	PlanStatePartiallyFilled PlanState = "partially_filled"
	PlanStateFilled          PlanState = "filled"
	PlanStateRejected        PlanState = "rejected"
	PlanStateCancelled       PlanState = "cancelled"
	PlanStateTimedOut        PlanState = "timed_out"
	// PlanStateUnwound marks a plan whose one-sided exposure was closed by a
	// compensating trade after the sibling leg failed.
	PlanStateUnwound PlanState = "unwound"
	// PlanStateHalted marks a plan whose unwind failed; the market group is
	// frozen until an operator clears it.
	PlanStateHalted PlanState = "halted"
)

// Terminal reports whether the plan has reached a final state and its market
// group lock may be released.
func (s PlanState) Terminal() bool {
	switch s {
	case PlanStateFilled, PlanStateRejected, PlanStateCancelled,
		PlanStateTimedOut, PlanStateUnwound, PlanStateHalted:
		return true
	}
	return false
}

// PlanLeg is one order of a multi-leg plan. All legs of a plan must execute
// together to realize the riskless edge.
type PlanLeg struct {
	ClientOrderID string
	MarketID      string
	Outcome       Outcome
	Side          OrderSide
	PriceTicks    int64
	SizeUnits     int64
}

// Price returns the float64 display price from fixed-point ticks.
func (l PlanLeg) Price() float64 { return float64(l.PriceTicks) / 1e6 }

// Size returns the float64 display size from fixed-point units.
func (l PlanLeg) Size() float64 { return float64(l.SizeUnits) / 1e6 }

// OrderPlan is a risk-approved set of offsetting legs derived from a single
// opportunity snapshot. Invariant: all legs reference the same Sequence, and
// at most one plan per market group is in a non-terminal state.
type OrderPlan struct {
	ID            string
	OpportunityID string
	GroupID       string
	Kind          OpportunityKind
	Sequence      uint64
	NetEdge       float64
	Legs          []PlanLeg
	State         PlanState
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Notional is the total quote-currency value committed by the plan.
func (p OrderPlan) Notional() float64 {
	var n float64
	for _, l := range p.Legs {
		n += l.Price() * l.Size()
	}
	return n
}

// ExecutedLeg records the outcome of one leg for PnL accounting.
type ExecutedLeg struct {
	ClientOrderID string    `json:"client_order_id"`
	VenueOrderID  string    `json:"venue_order_id"`
	MarketID      string    `json:"market_id"`
	Outcome       Outcome   `json:"outcome"`
	Side          OrderSide `json:"side"`
	ExpectedPrice float64   `json:"expected_price"`
	FilledPrice   float64   `json:"filled_price"`
	FilledSize    float64   `json:"filled_size"`
	State         OrderState `json:"state"`
}

// ExecutionRecord is the persisted result of one plan execution.
type ExecutionRecord struct {
	ID            string
	PlanID        string
	OpportunityID string
	GroupID       string
	Kind          OpportunityKind
	Legs          []ExecutedLeg
	State         PlanState
	NetPnL        float64
	StartedAt     time.Time
	CompletedAt   *time.Time
}
