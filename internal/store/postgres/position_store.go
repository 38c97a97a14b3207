package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/mmsim/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Append inserts a newly opened lot.
func (s *PositionStore) Append(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, run_id, market_id, side, shares, entry_price, cost_basis_usd,
			current_price, exit_price, proceeds_usd, realized_pnl_usd,
			status, opened_at_tick, closed_at_tick, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, NOW()
		)`
	_, err := s.pool.Exec(ctx, query,
		p.ID, p.RunID, p.MarketID, string(p.Side),
		p.Shares, p.EntryPrice, p.CostBasisUSD,
		p.CurrentPrice, p.ExitPrice, p.ProceedsUSD, p.RealizedPnLUSD,
		string(p.Status), p.OpenedAtTick, p.ClosedAtTick,
	)
	if err != nil {
		return fmt.Errorf("postgres: append position: %w", err)
	}
	return nil
}

// MarkClosed updates the lot's closing fields.
func (s *PositionStore) MarkClosed(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE positions SET
			current_price = NULL,
			exit_price = $2,
			proceeds_usd = $3,
			realized_pnl_usd = $4,
			status = $5,
			closed_at_tick = $6,
			updated_at = NOW()
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query,
		p.ID, p.ExitPrice, p.ProceedsUSD, p.RealizedPnLUSD,
		string(p.Status), p.ClosedAtTick,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark position closed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: position %s: %w", p.ID, domain.ErrNotFound)
	}
	return nil
}

// ListByRun returns the run's lots in open order.
func (s *PositionStore) ListByRun(ctx context.Context, runID string) ([]domain.Position, error) {
	const query = `
		SELECT id, run_id, market_id, side, shares, entry_price, cost_basis_usd,
			current_price, exit_price, proceeds_usd, realized_pnl_usd,
			status, opened_at_tick, closed_at_tick
		FROM positions
		WHERE run_id = $1
		ORDER BY opened_at_tick, id`
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()
	return scanPositions(rows)
}

func scanPositions(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		var side, status string
		if err := rows.Scan(
			&p.ID, &p.RunID, &p.MarketID, &side,
			&p.Shares, &p.EntryPrice, &p.CostBasisUSD,
			&p.CurrentPrice, &p.ExitPrice, &p.ProceedsUSD, &p.RealizedPnLUSD,
			&status, &p.OpenedAtTick, &p.ClosedAtTick,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		p.Side = domain.Side(side)
		p.Status = domain.PositionStatus(status)
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate positions: %w", err)
	}
	return positions, nil
}
