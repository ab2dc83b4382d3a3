// Package config defines the top-level configuration for the arbitrage
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARB_* environment variables.
type Config struct {
	Venue     VenueConfig     `toml:"venue"`
	Arbitrage ArbitrageConfig `toml:"arbitrage"`
	Risk      RiskConfig      `toml:"risk"`
	Execution ExecutionConfig `toml:"execution"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// VenueConfig holds the venue WebSocket endpoint, credentials, and the set
// of market groups the engine trades.
type VenueConfig struct {
	WsURL  string `toml:"ws_url"`
	ApiKey string `toml:"api_key"`
	// OrderRateLimit caps order commands per second sent to the venue.
	// Zero disables throttling.
	OrderRateLimit int            `toml:"order_rate_limit"`
	Markets        []MarketConfig `toml:"markets"`
}

// MarketConfig registers one binary market with the engine.
type MarketConfig struct {
	ID           string  `toml:"id"`
	GroupID      string  `toml:"group_id"`
	Question     string  `toml:"question"`
	TickSize     float64 `toml:"tick_size"`
	MinOrderSize float64 `toml:"min_order_size"`
	// Volume24h seeds the market's trailing 24h volume, used by the
	// confidence score until live volume tracking replaces it.
	Volume24h float64 `toml:"volume_24h"`
}

// ArbitrageConfig holds detection parameters.
type ArbitrageConfig struct {
	// FeeRate is the flat per-unit fee allowance subtracted from gross edge.
	FeeRate float64 `toml:"fee_rate"`
	// MinEdge is the minimum net edge per unit to emit an opportunity.
	MinEdge float64 `toml:"min_edge"`
	// MaxLatency bounds how long an emitted opportunity stays executable.
	MaxLatency duration `toml:"max_latency"`
}

// RiskConfig holds position and capital limits.
type RiskConfig struct {
	MaxPositionPerMarket float64 `toml:"max_position_per_market"`
	MaxAggregateExposure float64 `toml:"max_aggregate_exposure"`
	Capital              float64 `toml:"capital"`
	AllowShort           bool    `toml:"allow_short"`
	DailyLossLimit       float64 `toml:"daily_loss_limit"`
	MaxConsecutiveLosses int     `toml:"max_consecutive_losses"`
	// MaxDrawdown is a fraction of peak capital, e.g. 0.15.
	MaxDrawdown float64 `toml:"max_drawdown"`
}

// ExecutionConfig holds order submission and unwind parameters.
type ExecutionConfig struct {
	AckTimeout           duration `toml:"ack_timeout"`
	InvalidationInterval duration `toml:"invalidation_interval"`
	RetryMaxAttempts     int      `toml:"retry_max_attempts"`
	RetryBaseDelay       duration `toml:"retry_base_delay"`
	RetryMaxDelay        duration `toml:"retry_max_delay"`
}

// PostgresConfig holds PostgreSQL connection parameters. When disabled the
// engine runs without durable opportunity/execution history.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. When disabled the engine
// runs on the in-process bus only.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	ApiKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Venue: VenueConfig{
			WsURL:          "wss://feed.example-venue.com/ws",
			OrderRateLimit: 10,
		},
		Arbitrage: ArbitrageConfig{
			FeeRate:    0.01,
			MinEdge:    0.02,
			MaxLatency: duration{500 * time.Millisecond},
		},
		Risk: RiskConfig{
			MaxPositionPerMarket: 1_000,
			MaxAggregateExposure: 10_000,
			Capital:              10_000,
			AllowShort:           false,
			DailyLossLimit:       500,
			MaxConsecutiveLosses: 5,
			MaxDrawdown:          0.15,
		},
		Execution: ExecutionConfig{
			AckTimeout:           duration{2 * time.Second},
			InvalidationInterval: duration{25 * time.Millisecond},
			RetryMaxAttempts:     3,
			RetryBaseDelay:       duration{50 * time.Millisecond},
			RetryMaxDelay:        duration{500 * time.Millisecond},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "arbengine",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"group_halted", "daily_loss_limit"},
		},
		Mode:     "observe",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"live":    true,
	"observe": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, observe)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Venue
	if c.Venue.WsURL == "" {
		errs = append(errs, "venue: ws_url must not be empty")
	}
	if c.Venue.OrderRateLimit < 0 {
		errs = append(errs, "venue: order_rate_limit must be >= 0")
	}
	if len(c.Venue.Markets) == 0 {
		errs = append(errs, "venue: at least one market must be configured")
	}
	seen := make(map[string]bool, len(c.Venue.Markets))
	for i, m := range c.Venue.Markets {
		if m.ID == "" {
			errs = append(errs, fmt.Sprintf("venue: markets[%d]: id must not be empty", i))
			continue
		}
		if seen[m.ID] {
			errs = append(errs, fmt.Sprintf("venue: markets[%d]: duplicate market id %q", i, m.ID))
		}
		seen[m.ID] = true
		if m.GroupID == "" {
			errs = append(errs, fmt.Sprintf("venue: markets[%d]: group_id must not be empty", i))
		}
		if m.TickSize < 0 {
			errs = append(errs, fmt.Sprintf("venue: markets[%d]: tick_size must be >= 0", i))
		}
		if m.MinOrderSize < 0 {
			errs = append(errs, fmt.Sprintf("venue: markets[%d]: min_order_size must be >= 0", i))
		}
	}

	// Arbitrage
	if c.Arbitrage.FeeRate < 0 || c.Arbitrage.FeeRate >= 1 {
		errs = append(errs, fmt.Sprintf("arbitrage: fee_rate must be in [0, 1), got %g", c.Arbitrage.FeeRate))
	}
	if c.Arbitrage.MinEdge <= 0 {
		errs = append(errs, "arbitrage: min_edge must be > 0")
	}
	if c.Arbitrage.MaxLatency.Duration <= 0 {
		errs = append(errs, "arbitrage: max_latency must be > 0")
	}

	// Risk
	if c.Risk.Capital <= 0 {
		errs = append(errs, "risk: capital must be > 0")
	}
	if c.Risk.MaxPositionPerMarket <= 0 {
		errs = append(errs, "risk: max_position_per_market must be > 0")
	}
	if c.Risk.MaxAggregateExposure <= 0 {
		errs = append(errs, "risk: max_aggregate_exposure must be > 0")
	}
	if c.Risk.MaxDrawdown < 0 || c.Risk.MaxDrawdown >= 1 {
		errs = append(errs, fmt.Sprintf("risk: max_drawdown must be in [0, 1), got %g", c.Risk.MaxDrawdown))
	}

	// Execution
	if c.Execution.AckTimeout.Duration <= 0 {
		errs = append(errs, "execution: ack_timeout must be > 0")
	}
	if c.Execution.RetryMaxAttempts < 1 {
		errs = append(errs, "execution: retry_max_attempts must be >= 1")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
