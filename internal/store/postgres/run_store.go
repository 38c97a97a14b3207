package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/mmsim/internal/domain"
)

// RunStore implements domain.RunStore using PostgreSQL. The finalized
// report is stored as JSONB alongside the lifecycle row.
type RunStore struct {
	pool *pgxpool.Pool
}

// NewRunStore creates a RunStore backed by the given pool.
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Create inserts the run lifecycle row.
func (s *RunStore) Create(ctx context.Context, run domain.Run) error {
	const query = `
		INSERT INTO runs (id, state, seed, fill_model, markets, halt_reason, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.pool.Exec(ctx, query,
		run.ID, string(run.State), run.Seed, run.FillModel,
		run.Markets, run.HaltReason, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create run: %w", err)
	}
	return nil
}

// Finish stamps the run's terminal state.
func (s *RunStore) Finish(ctx context.Context, runID string, state domain.RunState, haltReason string) error {
	const query = `
		UPDATE runs SET state = $2, halt_reason = $3, finished_at = NOW()
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, runID, string(state), haltReason)
	if err != nil {
		return fmt.Errorf("postgres: finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: run %s: %w", runID, domain.ErrNotFound)
	}
	return nil
}

// SaveReport stores the finalized report as JSONB.
func (s *RunStore) SaveReport(ctx context.Context, report domain.RunReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("postgres: marshal report: %w", err)
	}
	const query = `
		INSERT INTO run_reports (run_id, report, generated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id) DO UPDATE SET
			report = EXCLUDED.report,
			generated_at = EXCLUDED.generated_at`
	if _, err := s.pool.Exec(ctx, query, report.RunID, data, report.GeneratedAt); err != nil {
		return fmt.Errorf("postgres: save report: %w", err)
	}
	return nil
}

// GetReport returns the finalized report for a run.
func (s *RunStore) GetReport(ctx context.Context, runID string) (domain.RunReport, error) {
	const query = `SELECT report FROM run_reports WHERE run_id = $1`
	var data []byte
	err := s.pool.QueryRow(ctx, query, runID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RunReport{}, fmt.Errorf("postgres: report %s: %w", runID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.RunReport{}, fmt.Errorf("postgres: get report: %w", err)
	}

	var report domain.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return domain.RunReport{}, fmt.Errorf("postgres: decode report: %w", err)
	}
	return report, nil
}
