// Package detect implements the fixed-sum arbitrage rule for binary markets:
// complementary outcome prices must sum to 1.0, and any priced-in deviation
// beyond fees is exploitable.
package detect

import (
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/arbcore/arbengine/internal/domain"
)

// Config holds the detector's tunable thresholds.
type Config struct {
	// FeeRate is the flat per-unit fee allowance subtracted from gross edge.
	FeeRate float64
	// MinEdge is the minimum net edge per unit for an opportunity to be
	// emitted.
	MinEdge float64
	// MaxLatency bounds how long an emitted opportunity stays executable.
	MaxLatency time.Duration
}

// Detector evaluates group snapshots for exploitable dislocations.
type Detector struct {
	cfg    Config
	logger *slog.Logger
}

// NewDetector creates a Detector.
func NewDetector(cfg Config, logger *slog.Logger) *Detector {
	return &Detector{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "detector")),
	}
}

// Evaluate applies the fixed-sum rule in both directions to a snapshot and
// returns the opportunities whose net edge clears MinEdge, sorted by
// descending edge. The market provides sizing metadata; snapshots from stale
// or paused markets yield nothing.
func (d *Detector) Evaluate(snap domain.GroupSnapshot, mkt domain.Market) []domain.Opportunity {
	if mkt.Status != domain.MarketStatusActive {
		return nil
	}

	yes := snap.Quote(domain.OutcomeYes)
	no := snap.Quote(domain.OutcomeNo)
	now := time.Now().UTC()

	var opps []domain.Opportunity

	// Buy side: ask(YES) + ask(NO) < 1 locks a profit of the shortfall.
	if yes.BestAsk.Size > 0 && no.BestAsk.Size > 0 {
		gross := 1 - (yes.BestAsk.Price + no.BestAsk.Price)
		if opp, ok := d.build(snap, mkt, domain.KindBuyBoth, yes.BestAsk, no.BestAsk, gross, now); ok {
			opps = append(opps, opp)
		}
	}

	// Sell side mirror: bid(YES) + bid(NO) > 1.
	if yes.BestBid.Size > 0 && no.BestBid.Size > 0 {
		gross := (yes.BestBid.Price + no.BestBid.Price) - 1
		if opp, ok := d.build(snap, mkt, domain.KindSellBoth, yes.BestBid, no.BestBid, gross, now); ok {
			opps = append(opps, opp)
		}
	}

	SortByEdge(opps)
	return opps
}

func (d *Detector) build(snap domain.GroupSnapshot, mkt domain.Market, kind domain.OpportunityKind, yesLvl, noLvl domain.PriceLevel, gross float64, now time.Time) (domain.Opportunity, bool) {
	net := gross - d.cfg.FeeRate
	if net <= d.cfg.MinEdge {
		return domain.Opportunity{}, false
	}
	size := yesLvl.Size
	if noLvl.Size < size {
		size = noLvl.Size
	}
	if size <= 0 {
		return domain.Opportunity{}, false
	}

	opp := domain.Opportunity{
		ID:           uuid.New().String(),
		GroupID:      snap.GroupID,
		MarketID:     snap.MarketID,
		Kind:         kind,
		YesPrice:     yesLvl.Price,
		NoPrice:      noLvl.Price,
		GrossEdge:    gross,
		NetEdge:      net,
		FeasibleSize: size,
		Confidence:   confidence(yesLvl, noLvl, net, mkt.Volume24h),
		Sequence:     snap.Sequence,
		DetectedAt:   now,
		ExpiresAt:    now.Add(d.cfg.MaxLatency),
	}
	d.logger.Debug("opportunity detected",
		slog.String("group", opp.GroupID),
		slog.String("kind", string(opp.Kind)),
		slog.Float64("net_edge", opp.NetEdge),
		slog.Float64("size", opp.FeasibleSize),
		slog.Uint64("sequence", opp.Sequence),
	)
	return opp, true
}

// Edge recomputes the net edge an opportunity kind would have on a fresh
// snapshot. The execution engine uses it to decide whether a superseding
// snapshot has invalidated an in-flight plan.
func Edge(kind domain.OpportunityKind, snap domain.GroupSnapshot, feeRate float64) float64 {
	yes := snap.Quote(domain.OutcomeYes)
	no := snap.Quote(domain.OutcomeNo)
	switch kind {
	case domain.KindBuyBoth:
		if yes.BestAsk.Size <= 0 || no.BestAsk.Size <= 0 {
			return 0
		}
		return 1 - (yes.BestAsk.Price + no.BestAsk.Price) - feeRate
	case domain.KindSellBoth:
		if yes.BestBid.Size <= 0 || no.BestBid.Size <= 0 {
			return 0
		}
		return (yes.BestBid.Price + no.BestBid.Price) - 1 - feeRate
	}
	return 0
}

// SortByEdge orders opportunities by descending net edge, the processing
// order when several groups dislocate at once.
func SortByEdge(opps []domain.Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].NetEdge > opps[j].NetEdge
	})
}

// confidence blends liquidity, profit, and volume scores into a 0..1 figure
// used for reporting and store ranking, not for gating.
func confidence(yesLvl, noLvl domain.PriceLevel, edge, volume24h float64) float64 {
	liquidity := yesLvl.Price*yesLvl.Size + noLvl.Price*noLvl.Size
	liquidityScore := clamp01(liquidity / 10_000)
	profitScore := clamp01(edge / 0.05)
	volumeScore := clamp01(volume24h / 50_000)
	return liquidityScore*0.3 + profitScore*0.5 + volumeScore*0.2
}

func clamp01(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
