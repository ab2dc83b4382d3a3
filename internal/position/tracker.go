// Package position maintains signed per-outcome inventory from the fill
// stream. It is the single writer of average cost and realized PnL; the risk
// manager reads it for exposure checks.
package position

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arbcore/arbengine/internal/domain"
)

// Config holds the tracker's behavior switches.
type Config struct {
	// AllowShort permits sells to cross through zero into a short position.
	// When false, oversells clamp the position at flat and log a warning.
	AllowShort bool
}

type posKey struct {
	marketID string
	outcome  domain.Outcome
}

// Tracker folds fills into positions. Safe for concurrent use. The optional
// store receives a write-through upsert after every applied fill.
type Tracker struct {
	cfg    Config
	bus    domain.EventBus
	store  domain.PositionStore
	logger *slog.Logger

	mu        sync.RWMutex
	positions map[posKey]domain.Position
}

// NewTracker creates a Tracker. store may be nil.
func NewTracker(cfg Config, eventBus domain.EventBus, store domain.PositionStore, logger *slog.Logger) *Tracker {
	return &Tracker{
		cfg:       cfg,
		bus:       eventBus,
		store:     store,
		logger:    logger.With(slog.String("component", "position")),
		positions: make(map[posKey]domain.Position),
	}
}

// Run consumes the fills topic until ctx is cancelled, applying each fill and
// republishing the resulting position.
func (t *Tracker) Run(ctx context.Context) error {
	fills, err := t.bus.Subscribe(ctx, domain.TopicFills)
	if err != nil {
		return fmt.Errorf("position: subscribe fills: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-fills:
			if !ok {
				return nil
			}
			var ev domain.FillEvent
			if err := json.Unmarshal(payload, &ev); err != nil {
				t.logger.Warn("malformed fill event", slog.String("error", err.Error()))
				continue
			}
			pos := t.Apply(domain.Fill{
				ClientOrderID: ev.ClientOrderID,
				PlanID:        ev.PlanID,
				MarketID:      ev.MarketID,
				GroupID:       ev.GroupID,
				Outcome:       ev.Outcome,
				Side:          ev.Side,
				Price:         ev.Price,
				Size:          ev.Size,
				Timestamp:     ev.Timestamp,
			})
			t.publish(ctx, pos)
			if t.store != nil {
				if err := t.store.Upsert(ctx, pos); err != nil {
					t.logger.Warn("position upsert failed",
						slog.String("market", pos.MarketID),
						slog.String("error", err.Error()))
				}
			}
		}
	}
}

// Apply folds one fill into the inventory and returns the updated position.
// Buys that extend a position re-average the cost; sells first realize PnL
// against the held average, then either clamp at flat or open a short.
func (t *Tracker) Apply(f domain.Fill) domain.Position {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := posKey{f.MarketID, f.Outcome}
	p, ok := t.positions[key]
	if !ok {
		p = domain.Position{MarketID: f.MarketID, GroupID: f.GroupID, Outcome: f.Outcome}
	}

	delta := f.Size
	if f.Side == domain.OrderSideSell {
		delta = -f.Size
	}

	switch {
	case p.Size == 0 || sameSign(p.Size, delta):
		total := p.Size + delta
		if total != 0 {
			p.AvgCost = (p.AvgCost*abs(p.Size) + f.Price*abs(delta)) / abs(total)
		}
		p.Size = total
	default:
		closing := abs(delta)
		if held := abs(p.Size); closing > held {
			closing = held
		}
		if p.Size > 0 {
			p.RealizedPnL += closing * (f.Price - p.AvgCost)
		} else {
			p.RealizedPnL += closing * (p.AvgCost - f.Price)
		}

		remainder := abs(delta) - closing
		p.Size += sign(delta) * closing
		if remainder > 0 {
			if delta < 0 && !t.cfg.AllowShort {
				t.logger.Warn("oversell clamped at flat",
					slog.String("market", f.MarketID),
					slog.String("outcome", string(f.Outcome)),
					slog.Float64("excess", remainder))
			} else {
				p.Size = sign(delta) * remainder
				p.AvgCost = f.Price
			}
		}
		if p.Size == 0 {
			p.AvgCost = 0
		}
	}

	p.UpdatedAt = f.Timestamp
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	t.positions[key] = p
	return p
}

// Position returns the current inventory for one market outcome, zero-valued
// when nothing has filled.
func (t *Tracker) Position(marketID string, outcome domain.Outcome) domain.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.positions[posKey{marketID, outcome}]
}

// Positions returns a copy of every non-empty position.
func (t *Tracker) Positions() []domain.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Position, 0, len(t.positions))
	for _, p := range t.positions {
		out = append(out, p)
	}
	return out
}

// Exposure is the total open notional across all positions, the figure the
// risk manager holds against the aggregate cap.
func (t *Tracker) Exposure() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var total float64
	for _, p := range t.positions {
		total += p.Notional()
	}
	return total
}

// RealizedPnL sums realized profit across all positions.
func (t *Tracker) RealizedPnL() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var total float64
	for _, p := range t.positions {
		total += p.RealizedPnL
	}
	return total
}

func (t *Tracker) publish(ctx context.Context, p domain.Position) {
	ev := domain.PositionEvent{
		MarketID:    p.MarketID,
		GroupID:     p.GroupID,
		Outcome:     p.Outcome,
		Size:        p.Size,
		AvgCost:     p.AvgCost,
		RealizedPnL: p.RealizedPnL,
		Timestamp:   p.UpdatedAt,
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := t.bus.Publish(ctx, domain.TopicPositions, payload); err != nil {
		t.logger.Warn("position publish failed", slog.String("error", err.Error()))
	}
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
