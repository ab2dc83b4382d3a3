package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/arbcore/arbengine/internal/domain"
)

// ExecutionService defines the methods that the execution handler requires.
type ExecutionService interface {
	ListRecent(ctx context.Context, limit int) ([]domain.ExecutionRecord, error)
	GetByID(ctx context.Context, id string) (domain.ExecutionRecord, error)
	SumPnL(ctx context.Context, since time.Time) (float64, error)
}

// ExecutionHandler serves execution-history and PnL HTTP endpoints. When no
// execution store is configured (postgres disabled), all endpoints return 501.
type ExecutionHandler struct {
	execs  ExecutionService
	logger *slog.Logger
}

// NewExecutionHandler creates an ExecutionHandler. execs may be nil.
func NewExecutionHandler(execs ExecutionService, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{execs: execs, logger: logHandler(logger, "executions")}
}

// executionResponse is the JSON shape of a single execution record.
type executionResponse struct {
	ID            string               `json:"id"`
	PlanID        string               `json:"plan_id"`
	OpportunityID string               `json:"opportunity_id"`
	GroupID       string               `json:"group_id"`
	Kind          string               `json:"kind"`
	State         string               `json:"state"`
	NetPnL        float64              `json:"net_pnl"`
	Legs          []domain.ExecutedLeg `json:"legs"`
	StartedAt     string               `json:"started_at"`
	CompletedAt   string               `json:"completed_at,omitempty"`
}

func toExecutionResponse(rec domain.ExecutionRecord) executionResponse {
	out := executionResponse{
		ID:            rec.ID,
		PlanID:        rec.PlanID,
		OpportunityID: rec.OpportunityID,
		GroupID:       rec.GroupID,
		Kind:          string(rec.Kind),
		State:         string(rec.State),
		NetPnL:        rec.NetPnL,
		Legs:          rec.Legs,
		StartedAt:     rec.StartedAt.UTC().Format(time.RFC3339Nano),
	}
	if out.Legs == nil {
		out.Legs = []domain.ExecutedLeg{}
	}
	if rec.CompletedAt != nil {
		out.CompletedAt = rec.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
	return out
}

// List returns recent executions with their legs.
// GET /api/executions?limit=50
func (h *ExecutionHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.execs == nil {
		writeError(w, http.StatusNotImplemented, "execution history not configured")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 200 {
		limit = 200
	}

	recs, err := h.execs.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list executions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}

	out := make([]executionResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toExecutionResponse(rec))
	}

	writeJSON(w, http.StatusOK, map[string]any{"executions": out})
}

// Get returns a single execution by id.
// GET /api/executions/{id}
func (h *ExecutionHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.execs == nil {
		writeError(w, http.StatusNotImplemented, "execution history not configured")
		return
	}

	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing execution id")
		return
	}

	rec, err := h.execs.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "execution not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get execution failed",
			slog.String("execution_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get execution")
		return
	}

	writeJSON(w, http.StatusOK, toExecutionResponse(rec))
}

// PnL returns total realized PnL for executions started at or after `since`.
// GET /api/pnl?since=2026-01-01
func (h *ExecutionHandler) PnL(w http.ResponseWriter, r *http.Request) {
	if h.execs == nil {
		writeError(w, http.StatusNotImplemented, "execution history not configured")
		return
	}

	since := time.Now().UTC().Add(-24 * time.Hour)
	if v := r.URL.Query().Get("since"); v != "" {
		if t, err := time.ParseInLocation("2006-01-02", v, time.UTC); err == nil {
			since = t
		}
	}

	total, err := h.execs.SumPnL(r.Context(), since)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: sum pnl failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute pnl")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"since":     since.Format(time.RFC3339),
		"total_pnl": total,
	})
}
