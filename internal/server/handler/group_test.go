package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbcore/arbengine/internal/domain"
)

type fakeBooks struct {
	snaps map[string]domain.GroupSnapshot
}

func (f *fakeBooks) Groups() []string {
	ids := make([]string, 0, len(f.snaps))
	for id := range f.snaps {
		ids = append(ids, id)
	}
	return ids
}

func (f *fakeBooks) Snapshot(groupID string) (domain.GroupSnapshot, error) {
	snap, ok := f.snaps[groupID]
	if !ok {
		return domain.GroupSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

type fakeHalts struct {
	halted map[string]bool
}

func (f *fakeHalts) Halted() []string {
	var out []string
	for id, h := range f.halted {
		if h {
			out = append(out, id)
		}
	}
	return out
}

func (f *fakeHalts) IsHalted(groupID string) bool { return f.halted[groupID] }

func (f *fakeHalts) Clear(groupID string) { delete(f.halted, groupID) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMux(h *GroupHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/groups", h.ListGroups)
	mux.HandleFunc("GET /api/groups/halted", h.ListHalted)
	mux.HandleFunc("POST /api/groups/{id}/clear", h.ClearHalt)
	return mux
}

func TestListGroupsReportsHaltFlag(t *testing.T) {
	books := &fakeBooks{snaps: map[string]domain.GroupSnapshot{
		"grp-1": {
			GroupID:  "grp-1",
			MarketID: "mkt-1",
			Sequence: 42,
			Quotes: map[domain.Outcome]domain.OutcomeQuote{
				domain.OutcomeYes: {
					BestBid: domain.PriceLevel{Price: 0.44, Size: 100},
					BestAsk: domain.PriceLevel{Price: 0.45, Size: 100},
				},
			},
			Taken: time.Now().UTC(),
		},
	}}
	halts := &fakeHalts{halted: map[string]bool{"grp-1": true}}
	mux := testMux(NewGroupHandler(books, halts, testLogger()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/groups", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Groups []struct {
			GroupID  string `json:"group_id"`
			Sequence uint64 `json:"sequence"`
			Halted   bool   `json:"halted"`
		} `json:"groups"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Groups, 1)
	assert.Equal(t, "grp-1", body.Groups[0].GroupID)
	assert.Equal(t, uint64(42), body.Groups[0].Sequence)
	assert.True(t, body.Groups[0].Halted)
}

func TestClearHalt(t *testing.T) {
	books := &fakeBooks{snaps: map[string]domain.GroupSnapshot{}}
	halts := &fakeHalts{halted: map[string]bool{"grp-1": true}}
	mux := testMux(NewGroupHandler(books, halts, testLogger()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/groups/grp-1/clear", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, halts.IsHalted("grp-1"))
}

func TestClearHaltNotHalted(t *testing.T) {
	books := &fakeBooks{snaps: map[string]domain.GroupSnapshot{}}
	halts := &fakeHalts{halted: map[string]bool{}}
	mux := testMux(NewGroupHandler(books, halts, testLogger()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/groups/grp-1/clear", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type fakeOpps struct {
	opps []domain.Opportunity
}

func (f *fakeOpps) ListRecent(_ context.Context, limit int) ([]domain.Opportunity, error) {
	if limit < len(f.opps) {
		return f.opps[:limit], nil
	}
	return f.opps, nil
}

func TestListOpportunities(t *testing.T) {
	opps := &fakeOpps{opps: []domain.Opportunity{{
		ID:           "opp-1",
		GroupID:      "grp-1",
		Kind:         domain.KindBuyBoth,
		NetEdge:      0.04,
		FeasibleSize: 50,
		Sequence:     7,
	}}}
	h := NewOpportunityHandler(opps, testLogger())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/opportunities", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Opportunities []struct {
			ID          string  `json:"id"`
			Kind        string  `json:"kind"`
			NetEdge     float64 `json:"net_edge"`
			ExpectedPnL float64 `json:"expected_pnl"`
		} `json:"opportunities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Opportunities, 1)
	assert.Equal(t, "opp-1", body.Opportunities[0].ID)
	assert.Equal(t, string(domain.KindBuyBoth), body.Opportunities[0].Kind)
	assert.InDelta(t, 0.04, body.Opportunities[0].NetEdge, 1e-9)
	assert.InDelta(t, 2.0, body.Opportunities[0].ExpectedPnL, 1e-9)
}

func TestExecutionsNotConfigured(t *testing.T) {
	h := NewExecutionHandler(nil, testLogger())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/executions", nil))

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
