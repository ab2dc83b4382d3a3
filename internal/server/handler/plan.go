package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/arbcore/arbengine/internal/domain"
)

// PlanLister exposes the execution engine's in-flight plans.
type PlanLister interface {
	OpenPlans() []domain.OrderPlan
}

// PlanHandler serves the in-flight plan endpoint.
type PlanHandler struct {
	plans  PlanLister
	logger *slog.Logger
}

// NewPlanHandler creates a PlanHandler with the given lister and logger.
func NewPlanHandler(plans PlanLister, logger *slog.Logger) *PlanHandler {
	return &PlanHandler{plans: plans, logger: logHandler(logger, "plans")}
}

// planLegResponse is the JSON shape of a single plan leg.
type planLegResponse struct {
	ClientOrderID string  `json:"client_order_id"`
	MarketID      string  `json:"market_id"`
	Outcome       string  `json:"outcome"`
	Side          string  `json:"side"`
	Price         float64 `json:"price"`
	Size          float64 `json:"size"`
}

// planResponse is the JSON shape of an in-flight plan.
type planResponse struct {
	ID            string            `json:"id"`
	OpportunityID string            `json:"opportunity_id"`
	GroupID       string            `json:"group_id"`
	Kind          string            `json:"kind"`
	Sequence      uint64            `json:"sequence"`
	NetEdge       float64           `json:"net_edge"`
	Notional      float64           `json:"notional"`
	State         string            `json:"state"`
	Legs          []planLegResponse `json:"legs"`
	CreatedAt     string            `json:"created_at"`
	ExpiresAt     string            `json:"expires_at"`
}

// ListPlans returns every plan currently being worked by the execution engine.
// GET /api/plans
func (h *PlanHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans := h.plans.OpenPlans()

	out := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		legs := make([]planLegResponse, 0, len(p.Legs))
		for _, l := range p.Legs {
			legs = append(legs, planLegResponse{
				ClientOrderID: l.ClientOrderID,
				MarketID:      l.MarketID,
				Outcome:       string(l.Outcome),
				Side:          string(l.Side),
				Price:         l.Price(),
				Size:          l.Size(),
			})
		}
		out = append(out, planResponse{
			ID:            p.ID,
			OpportunityID: p.OpportunityID,
			GroupID:       p.GroupID,
			Kind:          string(p.Kind),
			Sequence:      p.Sequence,
			NetEdge:       p.NetEdge,
			Notional:      p.Notional(),
			State:         string(p.State),
			Legs:          legs,
			CreatedAt:     p.CreatedAt.UTC().Format(time.RFC3339Nano),
			ExpiresAt:     p.ExpiresAt.UTC().Format(time.RFC3339Nano),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"plans": out})
}
