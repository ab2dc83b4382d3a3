package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/arbcore/arbengine/internal/domain"
)

// OpportunityService defines the methods that the opportunity handler requires.
type OpportunityService interface {
	ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error)
}

// OpportunityHandler serves detected-opportunity HTTP endpoints. When no
// store is configured (postgres disabled), List returns 501.
type OpportunityHandler struct {
	opps   OpportunityService
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler with the given service
// and logger.
func NewOpportunityHandler(opps OpportunityService, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{opps: opps, logger: logHandler(logger, "opportunities")}
}

// opportunityResponse is the JSON shape of a single opportunity.
type opportunityResponse struct {
	ID           string  `json:"id"`
	GroupID      string  `json:"group_id"`
	MarketID     string  `json:"market_id"`
	Kind         string  `json:"kind"`
	YesPrice     float64 `json:"yes_price"`
	NoPrice      float64 `json:"no_price"`
	GrossEdge    float64 `json:"gross_edge"`
	NetEdge      float64 `json:"net_edge"`
	FeasibleSize float64 `json:"feasible_size"`
	ExpectedPnL  float64 `json:"expected_pnl"`
	Confidence   float64 `json:"confidence"`
	Sequence     uint64  `json:"sequence"`
	DetectedAt   string  `json:"detected_at"`
	ExpiresAt    string  `json:"expires_at"`
	Executed     bool    `json:"executed"`
}

func toOpportunityResponse(o domain.Opportunity) opportunityResponse {
	return opportunityResponse{
		ID:           o.ID,
		GroupID:      o.GroupID,
		MarketID:     o.MarketID,
		Kind:         string(o.Kind),
		YesPrice:     o.YesPrice,
		NoPrice:      o.NoPrice,
		GrossEdge:    o.GrossEdge,
		NetEdge:      o.NetEdge,
		FeasibleSize: o.FeasibleSize,
		ExpectedPnL:  o.ExpectedPnL(),
		Confidence:   o.Confidence,
		Sequence:     o.Sequence,
		DetectedAt:   o.DetectedAt.UTC().Format(time.RFC3339Nano),
		ExpiresAt:    o.ExpiresAt.UTC().Format(time.RFC3339Nano),
		Executed:     o.Executed,
	}
}

// List returns the most recently detected opportunities.
// GET /api/opportunities?limit=20
func (h *OpportunityHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.opps == nil {
		writeError(w, http.StatusNotImplemented, "opportunity history not configured")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 200 {
		limit = 200
	}

	opps, err := h.opps.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list opportunities failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}

	out := make([]opportunityResponse, 0, len(opps))
	for _, o := range opps {
		out = append(out, toOpportunityResponse(o))
	}

	writeJSON(w, http.StatusOK, map[string]any{"opportunities": out})
}
