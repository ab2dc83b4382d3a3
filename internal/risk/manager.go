// Package risk converts raw opportunities into bounded order plans and
// enforces position, exposure, and one-in-flight-per-group limits.
package risk

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arbcore/arbengine/internal/domain"
)

// Config holds the risk limits.
type Config struct {
	// MaxPositionPerMarket caps absolute outcome inventory per market.
	MaxPositionPerMarket float64
	// MaxAggregateExposure caps total open notional plus committed plans.
	MaxAggregateExposure float64
	// Capital is the session bankroll available for new plans.
	Capital float64
}

// PositionView is the tracker-side read surface the manager sizes against.
type PositionView interface {
	Position(marketID string, outcome domain.Outcome) domain.Position
	Exposure() float64
}

// Manager validates opportunities and produces order plans. Capacity checks
// are serialized under one lock so concurrent approvals for independent
// groups never double-count exposure.
type Manager struct {
	cfg       Config
	inflight  *Inflight
	positions PositionView
	stats     *Stats
	logger    *slog.Logger

	capacityMu sync.Mutex
}

// NewManager creates a Manager.
func NewManager(cfg Config, inflight *Inflight, positions PositionView, stats *Stats, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		inflight:  inflight,
		positions: positions,
		stats:     stats,
		logger:    logger.With(slog.String("component", "risk")),
	}
}

// Inflight exposes the in-flight registry for the execution engine's
// terminal-state release and halt handling.
func (m *Manager) Inflight() *Inflight { return m.inflight }

// Approve validates an opportunity against all limits and, when it passes,
// reserves the group and returns a bounded OrderPlan. Every rejection wraps
// domain.ErrRiskRejected except group contention, which surfaces
// ErrGroupBusy/ErrGroupHalted so callers can tell capacity from contention.
func (m *Manager) Approve(opp domain.Opportunity, mkt domain.Market) (domain.OrderPlan, error) {
	if m.stats != nil && !m.stats.CanTrade() {
		return domain.OrderPlan{}, fmt.Errorf("%w: session loss limits reached", domain.ErrRiskRejected)
	}

	// Sizing and reservation happen under one lock so concurrent approvals
	// cannot both claim the same remaining exposure.
	m.capacityMu.Lock()
	size := m.boundedSizeLocked(opp, mkt)
	if size < mkt.MinOrderSize || size <= 0 {
		m.capacityMu.Unlock()
		m.logger.Debug("opportunity below minimum size",
			slog.String("opp_id", opp.ID),
			slog.Float64("size", size),
			slog.Float64("min", mkt.MinOrderSize),
		)
		return domain.OrderPlan{}, fmt.Errorf("%w: size %.4f below market minimum %.4f",
			domain.ErrRiskRejected, size, mkt.MinOrderSize)
	}

	plan := buildPlan(opp, mkt, size)
	err := m.inflight.TryAcquire(opp.GroupID, plan.Notional())
	m.capacityMu.Unlock()
	if err != nil {
		return domain.OrderPlan{}, err
	}

	m.logger.Info("plan approved",
		slog.String("plan_id", plan.ID),
		slog.String("group", plan.GroupID),
		slog.String("kind", string(plan.Kind)),
		slog.Float64("size", size),
		slog.Float64("net_edge", plan.NetEdge),
		slog.Uint64("sequence", plan.Sequence),
	)
	return plan, nil
}

// boundedSizeLocked computes min(feasible, per-market remaining, aggregate
// remaining, capital remaining). Caller holds capacityMu.
func (m *Manager) boundedSizeLocked(opp domain.Opportunity, mkt domain.Market) float64 {
	size := opp.FeasibleSize

	if m.cfg.MaxPositionPerMarket > 0 {
		held := maxAbs(
			m.positions.Position(opp.MarketID, domain.OutcomeYes).Size,
			m.positions.Position(opp.MarketID, domain.OutcomeNo).Size,
		)
		remaining := m.cfg.MaxPositionPerMarket - held
		if remaining < size {
			size = remaining
		}
	}

	unitCost := opp.UnitCost()
	if unitCost <= 0 {
		return 0
	}

	if m.cfg.MaxAggregateExposure > 0 {
		open := m.positions.Exposure() + m.inflight.Committed()
		remaining := (m.cfg.MaxAggregateExposure - open) / unitCost
		if remaining < size {
			size = remaining
		}
	}

	if m.cfg.Capital > 0 {
		available := (m.cfg.Capital - m.inflight.Committed()) / unitCost
		if available < size {
			size = available
		}
	}

	if size < 0 {
		return 0
	}
	return size
}

// buildPlan expands an opportunity into two offsetting legs sharing the
// opportunity's snapshot sequence.
func buildPlan(opp domain.Opportunity, mkt domain.Market, size float64) domain.OrderPlan {
	side := domain.OrderSideBuy
	if opp.Kind == domain.KindSellBoth {
		side = domain.OrderSideSell
	}
	now := time.Now().UTC()
	return domain.OrderPlan{
		ID:            uuid.New().String(),
		OpportunityID: opp.ID,
		GroupID:       opp.GroupID,
		Kind:          opp.Kind,
		Sequence:      opp.Sequence,
		NetEdge:       opp.NetEdge,
		State:         domain.PlanStateCreated,
		CreatedAt:     now,
		ExpiresAt:     opp.ExpiresAt,
		Legs: []domain.PlanLeg{
			{
				ClientOrderID: uuid.New().String(),
				MarketID:      opp.MarketID,
				Outcome:       domain.OutcomeYes,
				Side:          side,
				PriceTicks:    int64(opp.YesPrice * 1e6),
				SizeUnits:     int64(size * 1e6),
			},
			{
				ClientOrderID: uuid.New().String(),
				MarketID:      opp.MarketID,
				Outcome:       domain.OutcomeNo,
				Side:          side,
				PriceTicks:    int64(opp.NoPrice * 1e6),
				SizeUnits:     int64(size * 1e6),
			},
		},
	}
}

func maxAbs(a, b float64) float64 {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	if a > b {
		return a
	}
	return b
}
