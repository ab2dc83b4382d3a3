package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/arbcore/arbengine/internal/domain"
)

// PositionView exposes the in-memory position book to the dashboard.
type PositionView interface {
	Positions() []domain.Position
	Exposure() float64
	RealizedPnL() float64
}

// PositionHandler serves position-related HTTP endpoints. When a BookView is
// supplied, open positions are marked against the current mid price to report
// unrealized PnL.
type PositionHandler struct {
	positions PositionView
	books     BookView
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler. books may be nil, in which
// case unrealized PnL is omitted.
func NewPositionHandler(positions PositionView, books BookView, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		books:     books,
		logger:    logHandler(logger, "positions"),
	}
}

// positionResponse is the JSON shape of a single position.
type positionResponse struct {
	MarketID      string  `json:"market_id"`
	GroupID       string  `json:"group_id"`
	Outcome       string  `json:"outcome"`
	Size          float64 `json:"size"`
	AvgCost       float64 `json:"avg_cost"`
	Notional      float64 `json:"notional"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	UpdatedAt     string  `json:"updated_at"`
}

// markPrice returns the mid of the current best quotes for the position's
// outcome, or false when either side of the book is empty.
func (h *PositionHandler) markPrice(p domain.Position) (float64, bool) {
	if h.books == nil {
		return 0, false
	}
	snap, err := h.books.Snapshot(p.GroupID)
	if err != nil {
		return 0, false
	}
	q := snap.Quote(p.Outcome)
	if q.BestBid.Size <= 0 || q.BestAsk.Size <= 0 {
		return 0, false
	}
	return (q.BestBid.Price + q.BestAsk.Price) / 2, true
}

// ListPositions returns every non-flat position plus aggregate exposure,
// realized PnL, and mark-to-mid unrealized PnL.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions := h.positions.Positions()

	var unrealizedTotal float64
	out := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		var unrealized float64
		if mark, ok := h.markPrice(p); ok {
			unrealized = p.UnrealizedPnL(mark)
			unrealizedTotal += unrealized
		}
		out = append(out, positionResponse{
			MarketID:      p.MarketID,
			GroupID:       p.GroupID,
			Outcome:       string(p.Outcome),
			Size:          p.Size,
			AvgCost:       p.AvgCost,
			Notional:      p.Notional(),
			RealizedPnL:   p.RealizedPnL,
			UnrealizedPnL: unrealized,
			UpdatedAt:     p.UpdatedAt.UTC().Format(time.RFC3339Nano),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"positions":      out,
		"exposure":       h.positions.Exposure(),
		"realized_pnl":   h.positions.RealizedPnL(),
		"unrealized_pnl": unrealizedTotal,
	})
}
