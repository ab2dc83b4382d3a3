package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arbcore/arbengine/internal/book"
	"github.com/arbcore/arbengine/internal/bus"
	"github.com/arbcore/arbengine/internal/cache/redis"
	"github.com/arbcore/arbengine/internal/config"
	"github.com/arbcore/arbengine/internal/domain"
	"github.com/arbcore/arbengine/internal/notify"
	"github.com/arbcore/arbengine/internal/store/postgres"
)

// Dependencies bundles everything the pipeline modes need to operate. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Core in-process state.
	Books *book.Store
	Bus   domain.EventBus

	// Durable stores. Nil when postgres is disabled; every consumer
	// tolerates that.
	OpportunityStore domain.OpportunityStore
	ExecutionStore   domain.ExecutionStore
	PositionStore    domain.PositionStore

	// Redis mirror layer. Nil when redis is disabled.
	RedisBus      *redis.EventBus
	SnapshotCache *redis.SnapshotCache
	RateLimiter   domain.RateLimiter

	// Notifications.
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Books: book.NewStore(),
		Bus:   bus.NewMemory(),
	}

	// Register every configured market before any feed event can arrive.
	now := time.Now().UTC()
	for _, m := range cfg.Venue.Markets {
		deps.Books.Register(domain.Market{
			ID:           m.ID,
			GroupID:      m.GroupID,
			Question:     m.Question,
			Outcomes:     domain.Outcomes,
			TickSize:     m.TickSize,
			MinOrderSize: m.MinOrderSize,
			Volume24h:    m.Volume24h,
			Status:       domain.MarketStatusActive,
			CreatedAt:    now,
		})
	}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.OpportunityStore = postgres.NewOpportunityStore(pool)
		deps.ExecutionStore = postgres.NewExecutionStore(pool)
		deps.PositionStore = postgres.NewPositionStore(pool)
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RedisBus = redis.NewEventBus(redisClient)
		deps.SnapshotCache = redis.NewSnapshotCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
