package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arbcore/arbengine/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates an ExecutionStore backed by the given pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Create inserts an execution record and its legs in one transaction.
func (s *ExecutionStore) Create(ctx context.Context, rec domain.ExecutionRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO executions (id, plan_id, opportunity_id, group_id, kind, state, net_pnl, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.PlanID, rec.OpportunityID, rec.GroupID,
		string(rec.Kind), string(rec.State), rec.NetPnL, rec.StartedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution: %w", err)
	}

	for _, leg := range rec.Legs {
		_, err = tx.Exec(ctx, `
			INSERT INTO execution_legs (execution_id, client_order_id, venue_order_id, market_id, outcome, side, expected_price, filled_price, filled_size, state)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			rec.ID, leg.ClientOrderID, leg.VenueOrderID, leg.MarketID,
			string(leg.Outcome), string(leg.Side),
			leg.ExpectedPrice, leg.FilledPrice, leg.FilledSize, string(leg.State),
		)
		if err != nil {
			return fmt.Errorf("postgres: insert execution leg: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// GetByID returns an execution with its legs.
func (s *ExecutionStore) GetByID(ctx context.Context, id string) (domain.ExecutionRecord, error) {
	var rec domain.ExecutionRecord
	var kind, state string
	err := s.pool.QueryRow(ctx, `
		SELECT id, plan_id, opportunity_id, group_id, kind, state, net_pnl, started_at, completed_at
		FROM executions WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.PlanID, &rec.OpportunityID, &rec.GroupID,
		&kind, &state, &rec.NetPnL, &rec.StartedAt, &rec.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExecutionRecord{}, domain.ErrNotFound
		}
		return domain.ExecutionRecord{}, fmt.Errorf("postgres: get execution %s: %w", id, err)
	}
	rec.Kind = domain.OpportunityKind(kind)
	rec.State = domain.PlanState(state)

	legs, err := s.legsFor(ctx, id)
	if err != nil {
		return domain.ExecutionRecord{}, err
	}
	rec.Legs = legs
	return rec, nil
}

// ListRecent returns the most recent executions with their legs.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.ExecutionRecord, error) {
	query := `
		SELECT id, plan_id, opportunity_id, group_id, kind, state, net_pnl, started_at, completed_at
		FROM executions ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent executions: %w", err)
	}
	defer rows.Close()

	var recs []domain.ExecutionRecord
	for rows.Next() {
		var rec domain.ExecutionRecord
		var kind, state string
		if err := rows.Scan(
			&rec.ID, &rec.PlanID, &rec.OpportunityID, &rec.GroupID,
			&kind, &state, &rec.NetPnL, &rec.StartedAt, &rec.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		rec.Kind = domain.OpportunityKind(kind)
		rec.State = domain.PlanState(state)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate executions: %w", err)
	}

	for i := range recs {
		legs, err := s.legsFor(ctx, recs[i].ID)
		if err != nil {
			return nil, err
		}
		recs[i].Legs = legs
	}
	return recs, nil
}

// SumPnL totals the realized PnL of executions started at or after since.
func (s *ExecutionStore) SumPnL(ctx context.Context, since time.Time) (float64, error) {
	var total float64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(net_pnl), 0) FROM executions WHERE started_at >= $1`,
		since,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("postgres: sum pnl: %w", err)
	}
	return total, nil
}

func (s *ExecutionStore) legsFor(ctx context.Context, executionID string) ([]domain.ExecutedLeg, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT client_order_id, venue_order_id, market_id, outcome, side, expected_price, filled_price, filled_size, state
		FROM execution_legs WHERE execution_id = $1 ORDER BY id`,
		executionID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list execution legs %s: %w", executionID, err)
	}
	defer rows.Close()

	var legs []domain.ExecutedLeg
	for rows.Next() {
		var leg domain.ExecutedLeg
		var outcome, side, state string
		if err := rows.Scan(
			&leg.ClientOrderID, &leg.VenueOrderID, &leg.MarketID,
			&outcome, &side,
			&leg.ExpectedPrice, &leg.FilledPrice, &leg.FilledSize, &state,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan execution leg: %w", err)
		}
		leg.Outcome = domain.Outcome(outcome)
		leg.Side = domain.OrderSide(side)
		leg.State = domain.OrderState(state)
		legs = append(legs, leg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate execution legs: %w", err)
	}
	return legs, nil
}
