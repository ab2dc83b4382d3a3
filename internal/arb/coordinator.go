// Package arb wires detection to execution: it watches the tick stream,
// re-evaluates dislocated groups, and pushes approved plans through the
// execution engine one at a time per group.
package arb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/arbcore/arbengine/internal/book"
	"github.com/arbcore/arbengine/internal/detect"
	"github.com/arbcore/arbengine/internal/domain"
	"github.com/arbcore/arbengine/internal/risk"
)

// Executor runs one approved plan to a terminal state. Satisfied by
// exec.Engine.
type Executor interface {
	Execute(ctx context.Context, plan domain.OrderPlan) (domain.ExecutionRecord, error)
}

// Config holds the coordinator's switches.
type Config struct {
	// Execute submits approved plans to the venue. Observe mode leaves it
	// false: opportunities are detected, published, and recorded only.
	Execute bool
}

// Coordinator consumes ticks and drives the detect/approve/execute pipeline.
// Each market group gets its own worker goroutine; tick bursts coalesce into
// a single re-evaluation of the latest snapshot.
type Coordinator struct {
	cfg      Config
	books    *book.Store
	detector *detect.Detector
	riskMgr  *risk.Manager
	executor Executor
	bus      domain.EventBus
	opps     domain.OpportunityStore
	execs    domain.ExecutionStore
	logger   *slog.Logger

	mu      sync.Mutex
	wakeups map[string]chan struct{}
}

// NewCoordinator creates a Coordinator. opps and execs may be nil when
// persistence is disabled.
func NewCoordinator(cfg Config, books *book.Store, detector *detect.Detector, riskMgr *risk.Manager, executor Executor, eventBus domain.EventBus, opps domain.OpportunityStore, execs domain.ExecutionStore, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		books:    books,
		detector: detector,
		riskMgr:  riskMgr,
		executor: executor,
		bus:      eventBus,
		opps:     opps,
		execs:    execs,
		logger:   logger.With(slog.String("component", "coordinator")),
		wakeups:  make(map[string]chan struct{}),
	}
}

// Run consumes the ticks topic until ctx is cancelled, waking the relevant
// group worker for each applied tick.
func (c *Coordinator) Run(ctx context.Context) error {
	ticks, err := c.bus.Subscribe(ctx, domain.TopicTicks)
	if err != nil {
		return fmt.Errorf("arb: subscribe ticks: %w", err)
	}
	var workers sync.WaitGroup
	defer workers.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-ticks:
			if !ok {
				return nil
			}
			var ev domain.TickEvent
			if err := json.Unmarshal(payload, &ev); err != nil {
				c.logger.Warn("malformed tick event", slog.String("error", err.Error()))
				continue
			}
			c.wake(ctx, &workers, ev.GroupID)
		}
	}
}

// wake signals the group's worker, spawning it on first use. The signal
// channel has capacity one so bursts coalesce.
func (c *Coordinator) wake(ctx context.Context, workers *sync.WaitGroup, groupID string) {
	c.mu.Lock()
	ch, ok := c.wakeups[groupID]
	if !ok {
		ch = make(chan struct{}, 1)
		c.wakeups[groupID] = ch
		workers.Add(1)
		go func() {
			defer workers.Done()
			c.groupWorker(ctx, groupID, ch)
		}()
	}
	c.mu.Unlock()

	select {
	case ch <- struct{}{}:
	default:
	}
}

func (c *Coordinator) groupWorker(ctx context.Context, groupID string, wake <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-wake:
			c.evaluate(ctx, groupID)
		}
	}
}

// evaluate re-prices one group against its latest snapshot and, in execute
// mode, runs the best surviving opportunity. Execution is synchronous, so a
// second dislocation on the same group waits for the first plan's terminal
// state.
func (c *Coordinator) evaluate(ctx context.Context, groupID string) {
	snap, err := c.books.Snapshot(groupID)
	if err != nil {
		c.logger.Warn("snapshot failed", slog.String("group", groupID), slog.String("error", err.Error()))
		return
	}
	mkt, err := c.books.Market(snap.MarketID)
	if err != nil {
		c.logger.Warn("market lookup failed", slog.String("market", snap.MarketID), slog.String("error", err.Error()))
		return
	}

	opps := c.detector.Evaluate(snap, mkt)
	for _, opp := range opps {
		c.record(ctx, opp)
		if !c.cfg.Execute {
			continue
		}
		if c.execute(ctx, opp, mkt) {
			// The book moved under the executed plan; stop working this
			// snapshot and wait for the next tick.
			return
		}
	}
}

// execute pushes one opportunity through approval and execution. It reports
// whether an order actually reached the venue.
func (c *Coordinator) execute(ctx context.Context, opp domain.Opportunity, mkt domain.Market) bool {
	plan, err := c.riskMgr.Approve(opp, mkt)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrGroupBusy), errors.Is(err, domain.ErrGroupHalted):
			c.logger.Debug("group unavailable", slog.String("group", opp.GroupID), slog.String("reason", err.Error()))
		case errors.Is(err, domain.ErrRiskRejected):
			c.logger.Debug("risk rejected", slog.String("opp_id", opp.ID), slog.String("reason", err.Error()))
		default:
			c.logger.Warn("approval failed", slog.String("opp_id", opp.ID), slog.String("error", err.Error()))
		}
		return false
	}

	rec, err := c.executor.Execute(ctx, plan)
	if err != nil && !errors.Is(err, domain.ErrStaleOpportunity) {
		c.logger.Warn("execution ended with error",
			slog.String("plan_id", plan.ID),
			slog.String("state", string(rec.State)),
			slog.String("error", err.Error()))
	}

	if c.execs != nil {
		if serr := c.execs.Create(ctx, rec); serr != nil {
			c.logger.Warn("execution record store failed", slog.String("plan_id", plan.ID), slog.String("error", serr.Error()))
		}
	}
	if c.opps != nil && rec.State == domain.PlanStateFilled {
		if serr := c.opps.MarkExecuted(ctx, opp.ID); serr != nil {
			c.logger.Warn("opportunity mark failed", slog.String("opp_id", opp.ID), slog.String("error", serr.Error()))
		}
	}
	return !errors.Is(err, domain.ErrStaleOpportunity)
}

func (c *Coordinator) record(ctx context.Context, opp domain.Opportunity) {
	ev := domain.OpportunityEvent{
		ID:           opp.ID,
		GroupID:      opp.GroupID,
		MarketID:     opp.MarketID,
		Kind:         opp.Kind,
		YesPrice:     opp.YesPrice,
		NoPrice:      opp.NoPrice,
		NetEdge:      opp.NetEdge,
		FeasibleSize: opp.FeasibleSize,
		Confidence:   opp.Confidence,
		Sequence:     opp.Sequence,
		DetectedAt:   opp.DetectedAt,
		ExpiresAt:    opp.ExpiresAt,
	}
	if payload, err := json.Marshal(ev); err == nil {
		if err := c.bus.Publish(ctx, domain.TopicOpportunities, payload); err != nil {
			c.logger.Warn("opportunity publish failed", slog.String("error", err.Error()))
		}
	}
	if c.opps != nil {
		if err := c.opps.Insert(ctx, opp); err != nil {
			c.logger.Warn("opportunity store failed", slog.String("opp_id", opp.ID), slog.String("error", err.Error()))
		}
	}
}
