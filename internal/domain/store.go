package domain

import (
	"context"
	"time"
)

// OpportunityStore persists detected opportunities.
type OpportunityStore interface {
	Insert(ctx context.Context, opp Opportunity) error
	MarkExecuted(ctx context.Context, id string) error
	ListRecent(ctx context.Context, limit int) ([]Opportunity, error)
}

// ExecutionStore persists plan executions and their legs for PnL tracking.
type ExecutionStore interface {
	Create(ctx context.Context, rec ExecutionRecord) error
	GetByID(ctx context.Context, id string) (ExecutionRecord, error)
	ListRecent(ctx context.Context, limit int) ([]ExecutionRecord, error)
	SumPnL(ctx context.Context, since time.Time) (float64, error)
}

// PositionStore persists the tracker's positions.
type PositionStore interface {
	Upsert(ctx context.Context, pos Position) error
	List(ctx context.Context) ([]Position, error)
}
