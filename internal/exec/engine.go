// Package exec submits risk-approved order plans to the venue and drives
// each plan through its state machine: concurrent leg submission, fill
// accounting, best-effort unwind of one-sided exposure, and group halt
// escalation when an unwind cannot complete.
package exec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arbcore/arbengine/internal/book"
	"github.com/arbcore/arbengine/internal/detect"
	"github.com/arbcore/arbengine/internal/domain"
	"github.com/arbcore/arbengine/internal/risk"
)

// sizeEpsilon is the float tolerance below which a residual exposure is
// treated as flat.
const sizeEpsilon = 1e-9

// updateBuffer sizes the per-order update channel.
const updateBuffer = 16

// Alerter pushes operator notifications. Satisfied by notify.Notifier.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds the engine's tunables.
type Config struct {
	// FeeRate and MinEdge mirror the detector's thresholds; the engine
	// re-derives edge on fresh snapshots to catch invalidation mid-flight.
	FeeRate float64
	MinEdge float64
	// AckTimeout bounds how long a placed leg may stay unacknowledged.
	AckTimeout time.Duration
	// InvalidationInterval is how often in-flight plans are re-priced against
	// the live book before all legs are acknowledged.
	InvalidationInterval time.Duration
	// Retry bounds compensating unwind attempts.
	Retry RetryPolicy
}

// Engine executes order plans against a venue OrderSink. One Execute call
// handles one plan; the group lock acquired at approval is always released
// (halting a group is orthogonal to releasing its lock).
type Engine struct {
	cfg      Config
	sink     domain.OrderSink
	books    *book.Store
	inflight *risk.Inflight
	stats    *risk.Stats
	bus      domain.EventBus
	alerter  Alerter
	logger   *slog.Logger

	mu     sync.Mutex
	routes map[string]chan domain.OrderUpdate
	open   map[string]domain.OrderPlan
}

// NewEngine creates an Engine. stats and alerter may be nil.
func NewEngine(cfg Config, sink domain.OrderSink, books *book.Store, inflight *risk.Inflight, stats *risk.Stats, bus domain.EventBus, alerter Alerter, logger *slog.Logger) *Engine {
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 2 * time.Second
	}
	if cfg.InvalidationInterval <= 0 {
		cfg.InvalidationInterval = 25 * time.Millisecond
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	return &Engine{
		cfg:      cfg,
		sink:     sink,
		books:    books,
		inflight: inflight,
		stats:    stats,
		bus:      bus,
		alerter:  alerter,
		logger:   logger.With(slog.String("component", "executor")),
		routes:   make(map[string]chan domain.OrderUpdate),
		open:     make(map[string]domain.OrderPlan),
	}
}

// Run demultiplexes the sink's update stream to per-order channels. It must
// be running for Execute to observe acks and fills.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-e.sink.Updates():
			if !ok {
				return fmt.Errorf("exec: venue update stream closed")
			}
			e.route(u)
		}
	}
}

func (e *Engine) route(u domain.OrderUpdate) {
	e.mu.Lock()
	ch, ok := e.routes[u.ClientOrderID]
	e.mu.Unlock()
	if !ok {
		e.logger.Debug("update for unknown order", slog.String("client_order_id", u.ClientOrderID))
		return
	}
	select {
	case ch <- u:
	default:
		e.logger.Warn("order update channel full, dropping", slog.String("client_order_id", u.ClientOrderID))
	}
}

func (e *Engine) register(clientOrderID string) chan domain.OrderUpdate {
	ch := make(chan domain.OrderUpdate, updateBuffer)
	e.mu.Lock()
	e.routes[clientOrderID] = ch
	e.mu.Unlock()
	return ch
}

func (e *Engine) unregister(clientOrderID string) {
	e.mu.Lock()
	delete(e.routes, clientOrderID)
	e.mu.Unlock()
}

// OpenPlans lists plans currently being executed.
func (e *Engine) OpenPlans() []domain.OrderPlan {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.OrderPlan, 0, len(e.open))
	for _, p := range e.open {
		out = append(out, p)
	}
	return out
}

func (e *Engine) setOpen(p domain.OrderPlan) {
	e.mu.Lock()
	e.open[p.ID] = p
	e.mu.Unlock()
}

// openStateRank orders the non-terminal states so markOpen never moves a
// plan backwards when a late sibling ack arrives after a fill.
var openStateRank = map[domain.PlanState]int{
	domain.PlanStateCreated:         0,
	domain.PlanStateSubmitting:      1,
	domain.PlanStateAcknowledged:    2,
	domain.PlanStatePartiallyFilled: 3,
}

// markOpen advances the dashboard-visible state of an in-flight plan.
func (e *Engine) markOpen(planID string, state domain.PlanState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.open[planID]
	if !ok || openStateRank[state] <= openStateRank[p.State] {
		return
	}
	p.State = state
	e.open[planID] = p
}

func (e *Engine) clearOpen(planID string) {
	e.mu.Lock()
	delete(e.open, planID)
	e.mu.Unlock()
}

type legOutcome struct {
	leg domain.PlanLeg
	ord domain.Order
	err error
}

// Execute drives one plan to a terminal state and returns its execution
// record. The group lock is released on every path; a halted group stays
// frozen through the Inflight halt flag, not the lock.
func (e *Engine) Execute(ctx context.Context, plan domain.OrderPlan) (domain.ExecutionRecord, error) {
	now := time.Now().UTC()
	rec := domain.ExecutionRecord{
		ID:            uuid.New().String(),
		PlanID:        plan.ID,
		OpportunityID: plan.OpportunityID,
		GroupID:       plan.GroupID,
		Kind:          plan.Kind,
		StartedAt:     now,
	}
	defer e.inflight.Release(plan.GroupID)
	defer e.clearOpen(plan.ID)

	finish := func(state domain.PlanState, legs []legOutcome, pnl float64) domain.ExecutionRecord {
		done := time.Now().UTC()
		rec.State = state
		rec.NetPnL = pnl
		rec.CompletedAt = &done
		for _, lo := range legs {
			rec.Legs = append(rec.Legs, executedLeg(lo))
		}
		if e.stats != nil && anyFill(legs) {
			e.stats.Update(pnl)
			if e.alerter != nil && !e.stats.CanTrade() {
				msg := fmt.Sprintf("session loss limits reached after plan %s (pnl %.2f), trading gated", plan.ID, pnl)
				if err := e.alerter.Notify(ctx, "daily_loss_limit", "loss limit reached", msg); err != nil {
					e.logger.Warn("loss limit notification failed", slog.String("error", err.Error()))
				}
			}
		}
		return rec
	}

	if !plan.ExpiresAt.IsZero() && now.After(plan.ExpiresAt) {
		rec = finish(domain.PlanStateRejected, nil, 0)
		return rec, fmt.Errorf("%w: plan %s expired before submission", domain.ErrStaleOpportunity, plan.ID)
	}
	if stale, err := e.superseded(plan); err != nil {
		rec = finish(domain.PlanStateRejected, nil, 0)
		return rec, err
	} else if stale {
		rec = finish(domain.PlanStateRejected, nil, 0)
		return rec, fmt.Errorf("%w: edge gone on snapshot newer than seq %d", domain.ErrStaleOpportunity, plan.Sequence)
	}

	plan.State = domain.PlanStateSubmitting
	e.setOpen(plan)

	channels := make(map[string]chan domain.OrderUpdate, len(plan.Legs))
	for _, leg := range plan.Legs {
		channels[leg.ClientOrderID] = e.register(leg.ClientOrderID)
	}
	defer func() {
		for id := range channels {
			e.unregister(id)
		}
	}()

	ackDeadline := now.Add(e.cfg.AckTimeout)
	fillDeadline := plan.ExpiresAt
	if fillDeadline.IsZero() || fillDeadline.Before(ackDeadline) {
		fillDeadline = ackDeadline
	}

	// Re-price the plan against the live book until every leg is
	// acknowledged; a superseding snapshot that erases the edge cancels the
	// outstanding legs.
	var ackedLegs sync.WaitGroup
	ackedLegs.Add(len(plan.Legs))
	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	go func() {
		done := make(chan struct{})
		go func() { ackedLegs.Wait(); close(done) }()
		ticker := time.NewTicker(e.cfg.InvalidationInterval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				if stale, _ := e.superseded(plan); stale {
					e.logger.Info("plan invalidated mid-flight, cancelling legs",
						slog.String("plan_id", plan.ID))
					for _, leg := range plan.Legs {
						if err := e.sink.Cancel(monitorCtx, leg.ClientOrderID); err != nil {
							e.logger.Warn("invalidation cancel failed",
								slog.String("client_order_id", leg.ClientOrderID),
								slog.String("error", err.Error()))
						}
					}
					return
				}
			}
		}
	}()

	results := make([]legOutcome, len(plan.Legs))
	var wg sync.WaitGroup
	for i, leg := range plan.Legs {
		wg.Add(1)
		go func(i int, leg domain.PlanLeg) {
			defer wg.Done()
			ord, err := e.runLeg(ctx, plan, leg, channels[leg.ClientOrderID], ackDeadline, fillDeadline, ackedLegs.Done)
			results[i] = legOutcome{leg: leg, ord: ord, err: err}
		}(i, leg)
	}
	wg.Wait()
	stopMonitor()

	if allFilled(results) {
		pnl := matchedPnL(plan.Kind, results, e.cfg.FeeRate)
		rec = finish(domain.PlanStateFilled, results, pnl)
		e.logger.Info("plan filled",
			slog.String("plan_id", plan.ID),
			slog.String("group", plan.GroupID),
			slog.Float64("pnl", pnl))
		return rec, nil
	}

	offset, unwindErr := e.unwind(ctx, plan, results, channels)
	if unwindErr != nil {
		e.inflight.Halt(plan.GroupID)
		e.publishHalt(ctx, plan, unwindErr)
		rec = finish(domain.PlanStateHalted, results, exposedPnL(plan.Kind, results, offset, e.cfg.FeeRate))
		e.logger.Error("unwind failed, group halted",
			slog.String("plan_id", plan.ID),
			slog.String("group", plan.GroupID),
			slog.String("error", unwindErr.Error()))
		return rec, fmt.Errorf("%w: plan %s: %v", domain.ErrUnwindFailed, plan.ID, unwindErr)
	}
	if offset != nil {
		results = append(results, legOutcome{leg: offsetLegOf(*offset), ord: *offset})
	}

	state := classifyFailure(results)
	pnl := exposedPnL(plan.Kind, results, offset, e.cfg.FeeRate)
	rec = finish(state, results, pnl)
	e.logger.Info("plan closed",
		slog.String("plan_id", plan.ID),
		slog.String("group", plan.GroupID),
		slog.String("state", string(state)),
		slog.Float64("pnl", pnl))
	return rec, firstError(results)
}

// superseded reports whether a snapshot newer than the plan's sequence no
// longer carries the plan's edge.
func (e *Engine) superseded(plan domain.OrderPlan) (bool, error) {
	latest, err := e.books.LatestSeq(plan.GroupID)
	if err != nil {
		return false, err
	}
	if latest <= plan.Sequence {
		return false, nil
	}
	snap, err := e.books.Snapshot(plan.GroupID)
	if err != nil {
		return false, err
	}
	return detect.Edge(plan.Kind, snap, e.cfg.FeeRate) <= e.cfg.MinEdge, nil
}

// runLeg places one leg and consumes its update stream until the order is
// terminal, the fill deadline passes, or the ack deadline passes without an
// acknowledgement. onAck is invoked exactly once.
func (e *Engine) runLeg(ctx context.Context, plan domain.OrderPlan, leg domain.PlanLeg, updates <-chan domain.OrderUpdate, ackDeadline, fillDeadline time.Time, onAck func()) (domain.Order, error) {
	ord := domain.Order{
		ClientOrderID: leg.ClientOrderID,
		MarketID:      leg.MarketID,
		Outcome:       leg.Outcome,
		Side:          leg.Side,
		PriceTicks:    leg.PriceTicks,
		SizeUnits:     leg.SizeUnits,
		State:         domain.OrderStatePending,
		CreatedAt:     time.Now().UTC(),
	}
	acked := false
	defer func() {
		if !acked {
			onAck()
		}
	}()

	req := domain.OrderRequest{
		ClientOrderID: leg.ClientOrderID,
		MarketID:      leg.MarketID,
		Outcome:       leg.Outcome,
		Side:          leg.Side,
		PriceTicks:    leg.PriceTicks,
		SizeUnits:     leg.SizeUnits,
	}
	if err := e.sink.Place(ctx, req); err != nil {
		ord.State = domain.OrderStateRejected
		return ord, fmt.Errorf("%w: place %s: %v", domain.ErrVenueReject, leg.ClientOrderID, err)
	}

	ackTimer := time.NewTimer(time.Until(ackDeadline))
	defer ackTimer.Stop()
	fillTimer := time.NewTimer(time.Until(fillDeadline))
	defer fillTimer.Stop()
	ackC := ackTimer.C

	for {
		select {
		case <-ctx.Done():
			return ord, ctx.Err()
		case <-ackC:
			if ord.State == domain.OrderStatePending {
				return ord, fmt.Errorf("%w: no ack for %s within %s",
					domain.ErrVenueTimeout, leg.ClientOrderID, e.cfg.AckTimeout)
			}
			ackC = nil
		case <-fillTimer.C:
			return ord, fmt.Errorf("%w: %s unfilled at plan expiry", domain.ErrVenueTimeout, leg.ClientOrderID)
		case u := <-updates:
			switch u.Type {
			case domain.OrderUpdateAck:
				ord.VenueOrderID = u.VenueOrderID
				if ord.State == domain.OrderStatePending {
					ord.State = domain.OrderStateAcknowledged
				}
				e.markOpen(plan.ID, domain.PlanStateAcknowledged)
				if !acked {
					acked = true
					onAck()
				}
			case domain.OrderUpdateFill:
				applyFill(&ord, u)
				e.markOpen(plan.ID, domain.PlanStatePartiallyFilled)
				e.publishFill(ctx, plan, ord, u)
				if u.Final || ord.FilledSize+sizeEpsilon >= ord.Size() {
					ord.State = domain.OrderStateFilled
					return ord, nil
				}
				ord.State = domain.OrderStatePartiallyFilled
			case domain.OrderUpdateReject:
				ord.State = domain.OrderStateRejected
				return ord, fmt.Errorf("%w: %s: %s", domain.ErrVenueReject, leg.ClientOrderID, u.Reason)
			case domain.OrderUpdateCancelled:
				ord.State = domain.OrderStateCancelled
				return ord, nil
			}
		}
	}
}

// unwind closes whatever one-sided exposure a failed plan left behind: it
// cancels every still-working order and places a compensating trade for the
// fill imbalance. Both steps retry on the bounded policy. The returned order
// is the compensating trade, when one was needed.
func (e *Engine) unwind(ctx context.Context, plan domain.OrderPlan, results []legOutcome, channels map[string]chan domain.OrderUpdate) (*domain.Order, error) {
	for i := range results {
		if results[i].ord.State.Terminal() {
			continue
		}
		if err := e.cancelWithRetry(ctx, &results[i].ord, channels[results[i].ord.ClientOrderID]); err != nil {
			return nil, err
		}
	}

	over, excess := fillImbalance(results)
	if excess <= sizeEpsilon {
		return nil, nil
	}

	offset, err := e.placeOffset(ctx, plan, over.ord, excess)
	if err != nil {
		return offset, err
	}
	return offset, nil
}

// cancelWithRetry issues Cancel and waits for a terminal update, retrying on
// the bounded policy. Fills racing the cancel are applied to ord.
func (e *Engine) cancelWithRetry(ctx context.Context, ord *domain.Order, updates <-chan domain.OrderUpdate) error {
	for attempt := 0; attempt < e.cfg.Retry.MaxAttempts; attempt++ {
		if d := e.cfg.Retry.Delay(attempt); d > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
			}
		}
		if err := e.sink.Cancel(ctx, ord.ClientOrderID); err != nil {
			e.logger.Warn("cancel attempt failed",
				slog.String("client_order_id", ord.ClientOrderID),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()))
			continue
		}
		wait := e.cfg.Retry.Delay(attempt + 1)
		if wait <= 0 {
			wait = e.cfg.Retry.BaseDelay
		}
		if e.awaitTerminal(ctx, ord, updates, wait) {
			return nil
		}
	}
	return fmt.Errorf("cancel %s: no confirmation after %d attempts", ord.ClientOrderID, e.cfg.Retry.MaxAttempts)
}

// awaitTerminal consumes updates for ord until it goes terminal or the wait
// elapses.
func (e *Engine) awaitTerminal(ctx context.Context, ord *domain.Order, updates <-chan domain.OrderUpdate, wait time.Duration) bool {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return false
		case u := <-updates:
			switch u.Type {
			case domain.OrderUpdateFill:
				applyFill(ord, u)
				if u.Final || ord.FilledSize+sizeEpsilon >= ord.Size() {
					ord.State = domain.OrderStateFilled
					return true
				}
				ord.State = domain.OrderStatePartiallyFilled
			case domain.OrderUpdateCancelled:
				ord.State = domain.OrderStateCancelled
				return true
			case domain.OrderUpdateReject:
				ord.State = domain.OrderStateRejected
				return true
			}
		}
	}
}

// placeOffset submits the compensating trade that flattens the over-filled
// leg's excess at the current top of book.
func (e *Engine) placeOffset(ctx context.Context, plan domain.OrderPlan, over domain.Order, excess float64) (*domain.Order, error) {
	snap, err := e.books.Snapshot(plan.GroupID)
	if err != nil {
		return nil, fmt.Errorf("offset pricing: %w", err)
	}
	quote := snap.Quote(over.Outcome)

	side := domain.OrderSideSell
	level := quote.BestBid
	if over.Side == domain.OrderSideSell {
		side = domain.OrderSideBuy
		level = quote.BestAsk
	}
	if level.Size <= 0 {
		return nil, fmt.Errorf("offset %s %s: no liquidity", over.MarketID, over.Outcome)
	}

	ord := domain.Order{
		ClientOrderID: uuid.New().String(),
		MarketID:      over.MarketID,
		Outcome:       over.Outcome,
		Side:          side,
		PriceTicks:    int64(level.Price * 1e6),
		SizeUnits:     int64(excess * 1e6),
		State:         domain.OrderStatePending,
		CreatedAt:     time.Now().UTC(),
	}
	ch := e.register(ord.ClientOrderID)
	defer e.unregister(ord.ClientOrderID)

	req := domain.OrderRequest{
		ClientOrderID: ord.ClientOrderID,
		MarketID:      ord.MarketID,
		Outcome:       ord.Outcome,
		Side:          ord.Side,
		PriceTicks:    ord.PriceTicks,
		SizeUnits:     ord.SizeUnits,
	}
	for attempt := 0; attempt < e.cfg.Retry.MaxAttempts; attempt++ {
		if d := e.cfg.Retry.Delay(attempt); d > 0 {
			select {
			case <-ctx.Done():
				return &ord, ctx.Err()
			case <-time.After(d):
			}
		}
		if err := e.sink.Place(ctx, req); err != nil {
			e.logger.Warn("offset place failed",
				slog.String("client_order_id", ord.ClientOrderID),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()))
			continue
		}
		wait := e.cfg.Retry.MaxDelay
		if e.awaitTerminal(ctx, &ord, ch, wait) && ord.State == domain.OrderStateFilled {
			e.publishFill(ctx, plan, ord, domain.OrderUpdate{
				ClientOrderID: ord.ClientOrderID,
				Type:          domain.OrderUpdateFill,
				FillPrice:     ord.AvgFillPrice,
				FillSize:      ord.FilledSize,
				Final:         true,
				Timestamp:     time.Now().UTC(),
			})
			return &ord, nil
		}
	}
	return &ord, fmt.Errorf("offset %s: not filled after %d attempts", ord.ClientOrderID, e.cfg.Retry.MaxAttempts)
}

func (e *Engine) publishFill(ctx context.Context, plan domain.OrderPlan, ord domain.Order, u domain.OrderUpdate) {
	ev := domain.FillEvent{
		ClientOrderID: ord.ClientOrderID,
		PlanID:        plan.ID,
		GroupID:       plan.GroupID,
		MarketID:      ord.MarketID,
		Outcome:       ord.Outcome,
		Side:          ord.Side,
		Price:         u.FillPrice,
		Size:          u.FillSize,
		Timestamp:     u.Timestamp,
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, domain.TopicFills, payload); err != nil {
		e.logger.Warn("fill publish failed", slog.String("error", err.Error()))
	}
}

func (e *Engine) publishHalt(ctx context.Context, plan domain.OrderPlan, cause error) {
	ev := domain.HaltEvent{
		GroupID:   plan.GroupID,
		PlanID:    plan.ID,
		Reason:    cause.Error(),
		Timestamp: time.Now().UTC(),
	}
	if payload, err := json.Marshal(ev); err == nil {
		if err := e.bus.Publish(ctx, domain.TopicHalts, payload); err != nil {
			e.logger.Warn("halt publish failed", slog.String("error", err.Error()))
		}
	}
	if e.alerter != nil {
		msg := fmt.Sprintf("group %s halted after failed unwind of plan %s: %v", plan.GroupID, plan.ID, cause)
		if err := e.alerter.Notify(ctx, "group_halted", "group halted", msg); err != nil {
			e.logger.Warn("halt notification failed", slog.String("error", err.Error()))
		}
	}
}

func applyFill(ord *domain.Order, u domain.OrderUpdate) {
	total := ord.FilledSize + u.FillSize
	if total > 0 {
		ord.AvgFillPrice = (ord.AvgFillPrice*ord.FilledSize + u.FillPrice*u.FillSize) / total
	}
	ord.FilledSize = total
}

func allFilled(results []legOutcome) bool {
	for _, lo := range results {
		if lo.ord.State != domain.OrderStateFilled {
			return false
		}
	}
	return true
}

func anyFill(results []legOutcome) bool {
	for _, lo := range results {
		if lo.ord.FilledSize > sizeEpsilon {
			return true
		}
	}
	return false
}

// fillImbalance returns the leg with the larger filled size and the excess
// over its sibling, the exposure a compensating trade must flatten.
func fillImbalance(results []legOutcome) (legOutcome, float64) {
	var over legOutcome
	var most, least float64
	least = math.MaxFloat64
	for _, lo := range results {
		if lo.ord.FilledSize > most {
			most = lo.ord.FilledSize
			over = lo
		}
		if lo.ord.FilledSize < least {
			least = lo.ord.FilledSize
		}
	}
	if least == math.MaxFloat64 {
		least = 0
	}
	return over, most - least
}

// classifyFailure picks the terminal plan state for a plan whose legs did not
// all fill but whose exposure was closed. Any fill makes it unwound; pure
// failures rank timeout over reject over cancel.
func classifyFailure(results []legOutcome) domain.PlanState {
	if anyFill(results) {
		return domain.PlanStateUnwound
	}
	state := domain.PlanStateCancelled
	for _, lo := range results {
		switch {
		case errors.Is(lo.err, domain.ErrVenueTimeout):
			return domain.PlanStateTimedOut
		case errors.Is(lo.err, domain.ErrVenueReject):
			state = domain.PlanStateRejected
		}
	}
	return state
}

func firstError(results []legOutcome) error {
	for _, lo := range results {
		if lo.err != nil {
			return lo.err
		}
	}
	return nil
}

// matchedPnL values a fully matched two-leg fill: a bought pair is worth 1 at
// resolution, a sold pair collects the premium over 1. Fees accrue per unit.
func matchedPnL(kind domain.OpportunityKind, results []legOutcome, feeRate float64) float64 {
	matched := math.MaxFloat64
	var priceSum float64
	for _, lo := range results {
		if lo.ord.FilledSize < matched {
			matched = lo.ord.FilledSize
		}
		priceSum += lo.ord.AvgFillPrice
	}
	if matched == math.MaxFloat64 || matched <= 0 {
		return 0
	}
	if kind == domain.KindSellBoth {
		return matched * (priceSum - 1 - feeRate)
	}
	return matched * (1 - priceSum - feeRate)
}

// exposedPnL values a partially executed plan: the matched portion of the
// original legs plus the realized result of the compensating trade.
func exposedPnL(kind domain.OpportunityKind, results []legOutcome, offset *domain.Order, feeRate float64) float64 {
	original := results
	if offset != nil && len(results) > 0 {
		// The offset, if appended, is excluded from the matched-pair leg set.
		trimmed := make([]legOutcome, 0, len(results))
		for _, lo := range results {
			if lo.ord.ClientOrderID != offset.ClientOrderID {
				trimmed = append(trimmed, lo)
			}
		}
		original = trimmed
	}
	pnl := matchedPnL(kind, original, feeRate)
	if offset == nil || offset.FilledSize <= sizeEpsilon {
		return pnl
	}

	over, _ := fillImbalance(original)
	entry := over.ord.AvgFillPrice
	exit := offset.AvgFillPrice
	diff := exit - entry
	if offset.Side == domain.OrderSideBuy {
		// Closing a short: profit when buying back below the entry price.
		diff = entry - exit
	}
	return pnl + offset.FilledSize*(diff-feeRate)
}

func offsetLegOf(ord domain.Order) domain.PlanLeg {
	return domain.PlanLeg{
		ClientOrderID: ord.ClientOrderID,
		MarketID:      ord.MarketID,
		Outcome:       ord.Outcome,
		Side:          ord.Side,
		PriceTicks:    ord.PriceTicks,
		SizeUnits:     ord.SizeUnits,
	}
}

func executedLeg(lo legOutcome) domain.ExecutedLeg {
	return domain.ExecutedLeg{
		ClientOrderID: lo.ord.ClientOrderID,
		VenueOrderID:  lo.ord.VenueOrderID,
		MarketID:      lo.ord.MarketID,
		Outcome:       lo.ord.Outcome,
		Side:          lo.ord.Side,
		ExpectedPrice: lo.leg.Price(),
		FilledPrice:   lo.ord.AvgFillPrice,
		FilledSize:    lo.ord.FilledSize,
		State:         lo.ord.State,
	}
}

