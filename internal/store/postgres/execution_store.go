package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/mmsim/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates an ExecutionStore backed by the given pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Append inserts one diagnostics row. Rows are never updated.
func (s *ExecutionStore) Append(ctx context.Context, r domain.ExecutionRecord) error {
	const query = `
		INSERT INTO executions (
			order_id, run_id, market_id, side, tick,
			decision_ts, send_ts, ack_ts, fill_ts,
			best_bid, best_ask, mid_price, depth_bid, depth_ask, last_trade_price,
			quote_price, fill_price, fill_size_usd, filled_share, fees_usd,
			latency_ms, quote_slippage_pct, baseline_slippage_pct,
			spread_crossed, impact_proxy, liquidity_tier
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20,
			$21, $22, $23,
			$24, $25, $26
		)`
	_, err := s.pool.Exec(ctx, query,
		r.OrderID, r.RunID, r.MarketID, string(r.Side), r.Tick,
		r.DecisionTS, r.SendTS, r.AckTS, r.FillTS,
		r.BestBid, r.BestAsk, r.MidPrice, r.DepthBid, r.DepthAsk, r.LastTradePrice,
		r.QuotePrice, r.FillPrice, r.FillSizeUSD, r.FilledShare, r.FeesUSD,
		r.LatencyMS, r.QuoteSlippagePct, r.BaselineSlippagePct,
		r.SpreadCrossed, r.ImpactProxy, r.LiquidityTier,
	)
	if err != nil {
		return fmt.Errorf("postgres: append execution: %w", err)
	}
	return nil
}

// ListByRun returns the run's diagnostics rows in write order.
func (s *ExecutionStore) ListByRun(ctx context.Context, runID string) ([]domain.ExecutionRecord, error) {
	const query = `
		SELECT order_id, run_id, market_id, side, tick,
			decision_ts, send_ts, ack_ts, fill_ts,
			best_bid, best_ask, mid_price, depth_bid, depth_ask, last_trade_price,
			quote_price, fill_price, fill_size_usd, filled_share, fees_usd,
			latency_ms, quote_slippage_pct, baseline_slippage_pct,
			spread_crossed, impact_proxy, liquidity_tier
		FROM executions
		WHERE run_id = $1
		ORDER BY tick, created_at`
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()

	var records []domain.ExecutionRecord
	for rows.Next() {
		var r domain.ExecutionRecord
		var side string
		if err := rows.Scan(
			&r.OrderID, &r.RunID, &r.MarketID, &side, &r.Tick,
			&r.DecisionTS, &r.SendTS, &r.AckTS, &r.FillTS,
			&r.BestBid, &r.BestAsk, &r.MidPrice, &r.DepthBid, &r.DepthAsk, &r.LastTradePrice,
			&r.QuotePrice, &r.FillPrice, &r.FillSizeUSD, &r.FilledShare, &r.FeesUSD,
			&r.LatencyMS, &r.QuoteSlippagePct, &r.BaselineSlippagePct,
			&r.SpreadCrossed, &r.ImpactProxy, &r.LiquidityTier,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		r.Side = domain.Side(side)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate executions: %w", err)
	}
	return records, nil
}
