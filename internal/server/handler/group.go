package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/arbcore/arbengine/internal/domain"
)

// BookView exposes the in-memory orderbook store to the dashboard.
type BookView interface {
	Groups() []string
	Snapshot(groupID string) (domain.GroupSnapshot, error)
}

// HaltController manages per-group halt flags set after failed unwinds.
type HaltController interface {
	Halted() []string
	IsHalted(groupID string) bool
	Clear(groupID string)
}

// GroupHandler serves market-group HTTP endpoints, including the operator
// action that re-enables a halted group.
type GroupHandler struct {
	books  BookView
	halts  HaltController
	logger *slog.Logger
}

// NewGroupHandler creates a GroupHandler with the given views and logger.
func NewGroupHandler(books BookView, halts HaltController, logger *slog.Logger) *GroupHandler {
	return &GroupHandler{
		books:  books,
		halts:  halts,
		logger: logHandler(logger, "groups"),
	}
}

// quoteResponse is the JSON shape of one outcome's top of book.
type quoteResponse struct {
	BidPrice float64 `json:"bid_price"`
	BidSize  float64 `json:"bid_size"`
	AskPrice float64 `json:"ask_price"`
	AskSize  float64 `json:"ask_size"`
}

// groupResponse is the JSON shape of a market group with its current quotes.
type groupResponse struct {
	GroupID  string                   `json:"group_id"`
	MarketID string                   `json:"market_id"`
	Sequence uint64                   `json:"sequence"`
	Halted   bool                     `json:"halted"`
	Quotes   map[string]quoteResponse `json:"quotes"`
	Taken    string                   `json:"taken"`
}

func (h *GroupHandler) toGroupResponse(snap domain.GroupSnapshot) groupResponse {
	quotes := make(map[string]quoteResponse, len(snap.Quotes))
	for outcome, q := range snap.Quotes {
		quotes[string(outcome)] = quoteResponse{
			BidPrice: q.BestBid.Price,
			BidSize:  q.BestBid.Size,
			AskPrice: q.BestAsk.Price,
			AskSize:  q.BestAsk.Size,
		}
	}
	return groupResponse{
		GroupID:  snap.GroupID,
		MarketID: snap.MarketID,
		Sequence: snap.Sequence,
		Halted:   h.halts.IsHalted(snap.GroupID),
		Quotes:   quotes,
		Taken:    snap.Taken.UTC().Format(time.RFC3339Nano),
	}
}

// ListGroups returns every tracked market group with its current top of book.
// GET /api/groups
func (h *GroupHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groupIDs := h.books.Groups()

	out := make([]groupResponse, 0, len(groupIDs))
	for _, id := range groupIDs {
		snap, err := h.books.Snapshot(id)
		if err != nil {
			// A group registered between Groups() and Snapshot() may have no
			// book yet. Skip it rather than failing the whole listing.
			continue
		}
		out = append(out, h.toGroupResponse(snap))
	}

	writeJSON(w, http.StatusOK, map[string]any{"groups": out})
}

// ListHalted returns the IDs of all currently halted groups.
// GET /api/groups/halted
func (h *GroupHandler) ListHalted(w http.ResponseWriter, r *http.Request) {
	halted := h.halts.Halted()
	if halted == nil {
		halted = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"halted": halted})
}

// ClearHalt removes the halt flag from a group after operator review, making
// it eligible for execution again.
// POST /api/groups/{id}/clear
func (h *GroupHandler) ClearHalt(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing group id")
		return
	}

	if !h.halts.IsHalted(id) {
		writeError(w, http.StatusNotFound, "group is not halted")
		return
	}

	h.halts.Clear(id)
	h.logger.InfoContext(r.Context(), "handler: group halt cleared",
		slog.String("group_id", id),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"group_id": id,
		"halted":   false,
	})
}
