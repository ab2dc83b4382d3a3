package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arbcore/arbengine/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Upsert writes the tracker's current position for one market outcome.
func (s *PositionStore) Upsert(ctx context.Context, pos domain.Position) error {
	const query = `
		INSERT INTO positions (market_id, outcome, group_id, size, avg_cost, realized_pnl, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (market_id, outcome) DO UPDATE SET
			group_id     = EXCLUDED.group_id,
			size         = EXCLUDED.size,
			avg_cost     = EXCLUDED.avg_cost,
			realized_pnl = EXCLUDED.realized_pnl,
			updated_at   = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		pos.MarketID, string(pos.Outcome), pos.GroupID,
		pos.Size, pos.AvgCost, pos.RealizedPnL, pos.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s/%s: %w", pos.MarketID, pos.Outcome, err)
	}
	return nil
}

// List returns every persisted position.
func (s *PositionStore) List(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT market_id, outcome, group_id, size, avg_cost, realized_pnl, updated_at
		FROM positions ORDER BY market_id, outcome`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		var outcome string
		if err := rows.Scan(
			&p.MarketID, &outcome, &p.GroupID,
			&p.Size, &p.AvgCost, &p.RealizedPnL, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		p.Outcome = domain.Outcome(outcome)
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate positions: %w", err)
	}
	return positions, nil
}
