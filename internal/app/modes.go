package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arbcore/arbengine/internal/arb"
	"github.com/arbcore/arbengine/internal/bus"
	"github.com/arbcore/arbengine/internal/detect"
	"github.com/arbcore/arbengine/internal/domain"
	"github.com/arbcore/arbengine/internal/exec"
	"github.com/arbcore/arbengine/internal/feed"
	"github.com/arbcore/arbengine/internal/position"
	"github.com/arbcore/arbengine/internal/risk"
	"github.com/arbcore/arbengine/internal/server"
	"github.com/arbcore/arbengine/internal/server/handler"
	"github.com/arbcore/arbengine/internal/server/ws"
	"github.com/arbcore/arbengine/internal/venue"
)

// mirrorTopics are the bus topics republished to Redis for external
// consumers.
var mirrorTopics = []string{
	domain.TopicTicks,
	domain.TopicOpportunities,
	domain.TopicFills,
	domain.TopicPositions,
	domain.TopicHalts,
}

// LiveMode runs the full pipeline: feed, detection, risk, execution,
// tracking, and the dashboard API. Approved plans are submitted to the venue.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting live mode")
	return a.runPipeline(ctx, deps, true)
}

// ObserveMode runs detection and recording only. Opportunities are published
// and persisted but no orders are ever placed.
func (a *App) ObserveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting observe mode, orders disabled")
	return a.runPipeline(ctx, deps, false)
}

// runPipeline wires the trading pipeline and blocks until the context is
// cancelled or a component fails.
func (a *App) runPipeline(ctx context.Context, deps *Dependencies, execute bool) error {
	g, ctx := errgroup.WithContext(ctx)

	// --- Venue connection ---
	client := venue.NewClient(a.cfg.Venue.WsURL, a.cfg.Venue.ApiKey, a.logger)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("app: venue connect: %w", err)
	}
	a.closers = append(a.closers, func() { _ = client.Close() })

	marketIDs := make([]string, 0, len(a.cfg.Venue.Markets))
	for _, m := range a.cfg.Venue.Markets {
		marketIDs = append(marketIDs, m.ID)
	}
	if err := client.Subscribe(ctx, marketIDs); err != nil {
		return fmt.Errorf("app: venue subscribe: %w", err)
	}

	// --- Normalizer: feed events into the book store ---
	normalizer := feed.NewNormalizer(client, deps.Books, deps.Bus, a.logger)
	g.Go(func() error {
		return normalizer.Run(ctx)
	})

	// --- Position tracker ---
	tracker := position.NewTracker(
		position.Config{AllowShort: a.cfg.Risk.AllowShort},
		deps.Bus, deps.PositionStore, a.logger,
	)
	g.Go(func() error {
		return tracker.Run(ctx)
	})

	// --- Risk ---
	inflight := risk.NewInflight()
	stats := risk.NewStats(risk.StatsConfig{
		DailyLossLimit:       a.cfg.Risk.DailyLossLimit,
		MaxConsecutiveLosses: a.cfg.Risk.MaxConsecutiveLosses,
		MaxDrawdown:          a.cfg.Risk.MaxDrawdown,
	}, a.cfg.Risk.Capital)
	riskMgr := risk.NewManager(risk.Config{
		MaxPositionPerMarket: a.cfg.Risk.MaxPositionPerMarket,
		MaxAggregateExposure: a.cfg.Risk.MaxAggregateExposure,
		Capital:              a.cfg.Risk.Capital,
	}, inflight, tracker, stats, a.logger)

	// Daily loss accounting rolls over at midnight UTC.
	g.Go(func() error {
		for {
			now := time.Now().UTC()
			timer := time.NewTimer(now.Truncate(24 * time.Hour).Add(24 * time.Hour).Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
				stats.ResetDaily()
				a.logger.InfoContext(ctx, "daily risk counters reset")
			}
		}
	})

	// --- Execution engine ---
	var sink domain.OrderSink = client
	if deps.RateLimiter != nil && a.cfg.Venue.OrderRateLimit > 0 {
		sink = venue.NewThrottledSink(
			client, deps.RateLimiter, "venue:orders",
			a.cfg.Venue.OrderRateLimit, a.logger,
		)
	}
	engine := exec.NewEngine(exec.Config{
		FeeRate:              a.cfg.Arbitrage.FeeRate,
		MinEdge:              a.cfg.Arbitrage.MinEdge,
		AckTimeout:           a.cfg.Execution.AckTimeout.Duration,
		InvalidationInterval: a.cfg.Execution.InvalidationInterval.Duration,
		Retry: exec.RetryPolicy{
			MaxAttempts: a.cfg.Execution.RetryMaxAttempts,
			BaseDelay:   a.cfg.Execution.RetryBaseDelay.Duration,
			MaxDelay:    a.cfg.Execution.RetryMaxDelay.Duration,
		},
	}, sink, deps.Books, inflight, stats, deps.Bus, deps.Notifier, a.logger)
	g.Go(func() error {
		return engine.Run(ctx)
	})

	// --- Detector + coordinator ---
	detector := detect.NewDetector(detect.Config{
		FeeRate:    a.cfg.Arbitrage.FeeRate,
		MinEdge:    a.cfg.Arbitrage.MinEdge,
		MaxLatency: a.cfg.Arbitrage.MaxLatency.Duration,
	}, a.logger)
	coordinator := arb.NewCoordinator(
		arb.Config{Execute: execute},
		deps.Books, detector, riskMgr, engine, deps.Bus,
		deps.OpportunityStore, deps.ExecutionStore, a.logger,
	)
	g.Go(func() error {
		return coordinator.Run(ctx)
	})

	// --- Redis mirror ---
	if deps.RedisBus != nil {
		mirror := bus.NewMirror(deps.Bus, deps.RedisBus, deps.RedisBus, mirrorTopics, a.logger)
		g.Go(func() error {
			return mirror.Run(ctx)
		})
	}
	if deps.SnapshotCache != nil {
		g.Go(func() error {
			return a.syncSnapshots(ctx, deps)
		})
	}

	// --- Dashboard API ---
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, engine, tracker, inflight)
	}

	return g.Wait()
}

// syncSnapshots keeps the Redis snapshot cache current: every tick refreshes
// the cached group snapshot so external consumers read the latest top of
// book without touching the engine.
func (a *App) syncSnapshots(ctx context.Context, deps *Dependencies) error {
	ch, err := deps.Bus.Subscribe(ctx, domain.TopicTicks)
	if err != nil {
		return fmt.Errorf("app: snapshot sync subscribe: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			var tick domain.TickEvent
			if err := json.Unmarshal(payload, &tick); err != nil {
				continue
			}
			snap, err := deps.Books.Snapshot(tick.GroupID)
			if err != nil {
				continue
			}
			if err := deps.SnapshotCache.Set(ctx, snap); err != nil {
				a.logger.WarnContext(ctx, "snapshot cache write failed",
					slog.String("group", tick.GroupID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// startHTTPServer adds the dashboard API server and WebSocket hub to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	engine *exec.Engine,
	tracker *position.Tracker,
	inflight *risk.Inflight,
) {
	hub := ws.NewHub(deps.Bus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(a.logger),
		Opportunities: handler.NewOpportunityHandler(deps.OpportunityStore, a.logger),
		Executions:    handler.NewExecutionHandler(deps.ExecutionStore, a.logger),
		Positions:     handler.NewPositionHandler(tracker, deps.Books, a.logger),
		Groups:        handler.NewGroupHandler(deps.Books, inflight, a.logger),
		Plans:         handler.NewPlanHandler(engine, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.ApiKey,
		RateLimiter: deps.RateLimiter,
		RateLimit:   100,
		RateWindow:  time.Minute,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
