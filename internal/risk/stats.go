package risk

import (
	"sync"
)

// statsHistoryCap bounds the per-session trade history used for VaR.
const statsHistoryCap = 1000

// StatsConfig holds session-level circuit breaker limits.
type StatsConfig struct {
	DailyLossLimit       float64
	MaxConsecutiveLosses int
	MaxDrawdown          float64 // fraction of peak capital, e.g. 0.15
}

// Stats tracks session trading results and gates further trading when loss
// limits are breached. It is safe for concurrent use.
type Stats struct {
	cfg StatsConfig

	mu                sync.Mutex
	history           []float64
	consecutiveLosses int
	dailyLoss         float64
	peakCapital       float64
	capital           float64
}

// NewStats creates a Stats tracker seeded with the starting capital.
func NewStats(cfg StatsConfig, startingCapital float64) *Stats {
	return &Stats{
		cfg:         cfg,
		peakCapital: startingCapital,
		capital:     startingCapital,
	}
}

// Update records the realized profit of a completed plan.
func (s *Stats) Update(profit float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, profit)
	if len(s.history) > statsHistoryCap {
		s.history = s.history[1:]
	}

	if profit < 0 {
		s.consecutiveLosses++
		s.dailyLoss += -profit
	} else {
		s.consecutiveLosses = 0
	}

	s.capital += profit
	if s.capital > s.peakCapital {
		s.peakCapital = s.capital
	}
}

// CanTrade reports whether session limits still permit new plans.
func (s *Stats) CanTrade() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.DailyLossLimit > 0 && s.dailyLoss >= s.cfg.DailyLossLimit {
		return false
	}
	if s.cfg.MaxConsecutiveLosses > 0 && s.consecutiveLosses >= s.cfg.MaxConsecutiveLosses {
		return false
	}
	if s.cfg.MaxDrawdown > 0 && s.peakCapital > 0 {
		drawdown := (s.peakCapital - s.capital) / s.peakCapital
		if drawdown >= s.cfg.MaxDrawdown {
			return false
		}
	}
	return true
}

// Capital returns the current session capital.
func (s *Stats) Capital() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capital
}

// ResetDaily zeroes the daily loss accumulator.
func (s *Stats) ResetDaily() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dailyLoss = 0
}
