package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Venue ──
	setStr(&cfg.Venue.WsURL, "ARB_VENUE_WS_URL")
	setStr(&cfg.Venue.ApiKey, "ARB_VENUE_API_KEY")
	setInt(&cfg.Venue.OrderRateLimit, "ARB_VENUE_ORDER_RATE_LIMIT")

	// ── Arbitrage ──
	setFloat64(&cfg.Arbitrage.FeeRate, "ARB_ARBITRAGE_FEE_RATE")
	setFloat64(&cfg.Arbitrage.MinEdge, "ARB_ARBITRAGE_MIN_EDGE")
	setDuration(&cfg.Arbitrage.MaxLatency, "ARB_ARBITRAGE_MAX_LATENCY")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxPositionPerMarket, "ARB_RISK_MAX_POSITION_PER_MARKET")
	setFloat64(&cfg.Risk.MaxAggregateExposure, "ARB_RISK_MAX_AGGREGATE_EXPOSURE")
	setFloat64(&cfg.Risk.Capital, "ARB_RISK_CAPITAL")
	setBool(&cfg.Risk.AllowShort, "ARB_RISK_ALLOW_SHORT")
	setFloat64(&cfg.Risk.DailyLossLimit, "ARB_RISK_DAILY_LOSS_LIMIT")
	setInt(&cfg.Risk.MaxConsecutiveLosses, "ARB_RISK_MAX_CONSECUTIVE_LOSSES")
	setFloat64(&cfg.Risk.MaxDrawdown, "ARB_RISK_MAX_DRAWDOWN")

	// ── Execution ──
	setDuration(&cfg.Execution.AckTimeout, "ARB_EXECUTION_ACK_TIMEOUT")
	setDuration(&cfg.Execution.InvalidationInterval, "ARB_EXECUTION_INVALIDATION_INTERVAL")
	setInt(&cfg.Execution.RetryMaxAttempts, "ARB_EXECUTION_RETRY_MAX_ATTEMPTS")
	setDuration(&cfg.Execution.RetryBaseDelay, "ARB_EXECUTION_RETRY_BASE_DELAY")
	setDuration(&cfg.Execution.RetryMaxDelay, "ARB_EXECUTION_RETRY_MAX_DELAY")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "ARB_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "ARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARB_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ARB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARB_REDIS_TLS_ENABLED")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARB_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ARB_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.ApiKey, "ARB_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARB_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARB_MODE")
	setStr(&cfg.LogLevel, "ARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				cleaned = append(cleaned, s)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
