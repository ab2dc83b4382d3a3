package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatsDailyLossLimit(t *testing.T) {
	stats := NewStats(StatsConfig{DailyLossLimit: 100}, 10_000)
	assert.True(t, stats.CanTrade())

	stats.Update(-60)
	assert.True(t, stats.CanTrade())

	stats.Update(-40)
	assert.False(t, stats.CanTrade())

	// The daily accumulator resets; the limit reopens trading.
	stats.ResetDaily()
	assert.True(t, stats.CanTrade())
}

func TestStatsConsecutiveLosses(t *testing.T) {
	stats := NewStats(StatsConfig{MaxConsecutiveLosses: 3}, 10_000)

	stats.Update(-5)
	stats.Update(-5)
	assert.True(t, stats.CanTrade())

	stats.Update(-5)
	assert.False(t, stats.CanTrade())
}

func TestStatsWinResetsLossStreak(t *testing.T) {
	stats := NewStats(StatsConfig{MaxConsecutiveLosses: 2}, 10_000)

	stats.Update(-5)
	stats.Update(10)
	stats.Update(-5)
	assert.True(t, stats.CanTrade())

	stats.Update(-5)
	assert.False(t, stats.CanTrade())
}

func TestStatsDrawdownFromPeak(t *testing.T) {
	stats := NewStats(StatsConfig{MaxDrawdown: 0.10}, 1_000)

	// Capital climbs to 1200, so the 10% drawdown gate sits at 1080.
	stats.Update(200)
	assert.InDelta(t, 1_200, stats.Capital(), 1e-9)
	assert.True(t, stats.CanTrade())

	stats.Update(-100)
	assert.True(t, stats.CanTrade())

	stats.Update(-20)
	assert.False(t, stats.CanTrade())
}

func TestStatsZeroLimitsDisableGates(t *testing.T) {
	stats := NewStats(StatsConfig{}, 1_000)
	for i := 0; i < 10; i++ {
		stats.Update(-200)
	}
	assert.True(t, stats.CanTrade())
}
