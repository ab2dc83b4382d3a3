package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Venue.Markets = []MarketConfig{{
		ID:           "mkt-1",
		GroupID:      "grp-1",
		TickSize:     0.01,
		MinOrderSize: 1,
	}}
	return cfg
}

func TestDefaultsValidateWithMarkets(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.Mode = "backtest" }},
		{"unknown log level", func(c *Config) { c.LogLevel = "trace" }},
		{"empty ws url", func(c *Config) { c.Venue.WsURL = "" }},
		{"no markets", func(c *Config) { c.Venue.Markets = nil }},
		{"duplicate market", func(c *Config) {
			c.Venue.Markets = append(c.Venue.Markets, c.Venue.Markets[0])
		}},
		{"zero min edge", func(c *Config) { c.Arbitrage.MinEdge = 0 }},
		{"fee rate out of range", func(c *Config) { c.Arbitrage.FeeRate = 1.5 }},
		{"zero capital", func(c *Config) { c.Risk.Capital = 0 }},
		{"drawdown out of range", func(c *Config) { c.Risk.MaxDrawdown = 1.0 }},
		{"zero ack timeout", func(c *Config) { c.Execution.AckTimeout = duration{} }},
		{"postgres enabled without host", func(c *Config) {
			c.Postgres.Enabled = true
			c.Postgres.Host = ""
		}},
		{"bad server port", func(c *Config) { c.Server.Port = 70000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
mode = "live"
log_level = "debug"

[venue]
ws_url = "wss://feed.test/ws"

[[venue.markets]]
id = "mkt-1"
group_id = "grp-1"
tick_size = 0.01
min_order_size = 1.0
volume_24h = 25000.0

[arbitrage]
fee_rate = 0.005
min_edge = 0.03
max_latency = "250ms"

[risk]
capital = 25000.0
allow_short = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "live", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "wss://feed.test/ws", cfg.Venue.WsURL)
	require.Len(t, cfg.Venue.Markets, 1)
	assert.Equal(t, "mkt-1", cfg.Venue.Markets[0].ID)
	assert.InDelta(t, 25000.0, cfg.Venue.Markets[0].Volume24h, 1e-9)
	assert.InDelta(t, 0.005, cfg.Arbitrage.FeeRate, 1e-12)
	assert.Equal(t, 250*time.Millisecond, cfg.Arbitrage.MaxLatency.Duration)
	assert.InDelta(t, 25000.0, cfg.Risk.Capital, 1e-9)
	assert.True(t, cfg.Risk.AllowShort)

	// Unspecified sections keep their defaults.
	assert.Equal(t, 2*time.Second, cfg.Execution.AckTimeout.Duration)
	assert.Equal(t, 8000, cfg.Server.Port)
	require.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ARB_MODE", "live")
	t.Setenv("ARB_ARBITRAGE_MIN_EDGE", "0.05")
	t.Setenv("ARB_RISK_ALLOW_SHORT", "true")
	t.Setenv("ARB_EXECUTION_ACK_TIMEOUT", "750ms")
	t.Setenv("ARB_SERVER_CORS_ORIGINS", "https://a.test, https://b.test")

	cfg := validConfig()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "live", cfg.Mode)
	assert.InDelta(t, 0.05, cfg.Arbitrage.MinEdge, 1e-12)
	assert.True(t, cfg.Risk.AllowShort)
	assert.Equal(t, 750*time.Millisecond, cfg.Execution.AckTimeout.Duration)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.Server.CORSOrigins)
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Venue.ApiKey = "venue-secret"
	cfg.Postgres.Password = "pg-secret"
	cfg.Notify.TelegramToken = "tg-secret"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Venue.ApiKey)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// The original is untouched.
	assert.Equal(t, "venue-secret", cfg.Venue.ApiKey)
}
