// Package memory provides in-process ledger implementations. They back
// offline runs that need no database and the engine's tests. Writes are
// kept in insertion order, matching the append-only contract of the
// durable stores.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/quantfold/mmsim/internal/domain"
)

// Ledger implements PositionStore, ExecutionStore and RunStore in memory.
// A single mutex guards all maps; the status server reads concurrently
// with the tick loop's writes.
type Ledger struct {
	mu         sync.Mutex
	positions  map[string][]domain.Position
	executions map[string][]domain.ExecutionRecord
	runs       map[string]domain.Run
	reports    map[string]domain.RunReport
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		positions:  make(map[string][]domain.Position),
		executions: make(map[string][]domain.ExecutionRecord),
		runs:       make(map[string]domain.Run),
		reports:    make(map[string]domain.RunReport),
	}
}

// Append records a newly opened position.
func (l *Ledger) Append(_ context.Context, pos domain.Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.positions[pos.RunID] = append(l.positions[pos.RunID], pos)
	return nil
}

// MarkClosed replaces the stored row for a closed position.
func (l *Ledger) MarkClosed(_ context.Context, pos domain.Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rows := l.positions[pos.RunID]
	for i := range rows {
		if rows[i].ID == pos.ID {
			rows[i] = pos
			return nil
		}
	}
	return fmt.Errorf("memory: position %s: %w", pos.ID, domain.ErrNotFound)
}

// ListByRun returns the run's positions in open order.
func (l *Ledger) ListByRun(_ context.Context, runID string) ([]domain.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Position, len(l.positions[runID]))
	copy(out, l.positions[runID])
	return out, nil
}

// AppendExecution records one diagnostics row.
func (l *Ledger) AppendExecution(_ context.Context, rec domain.ExecutionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.executions[rec.RunID] = append(l.executions[rec.RunID], rec)
	return nil
}

// ListExecutionsByRun returns the run's diagnostics rows in write order.
func (l *Ledger) ListExecutionsByRun(_ context.Context, runID string) ([]domain.ExecutionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.ExecutionRecord, len(l.executions[runID]))
	copy(out, l.executions[runID])
	return out, nil
}

// Create inserts the run lifecycle row.
func (l *Ledger) Create(_ context.Context, run domain.Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs[run.ID] = run
	return nil
}

// Finish stamps the run's terminal state.
func (l *Ledger) Finish(_ context.Context, runID string, state domain.RunState, haltReason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	run, ok := l.runs[runID]
	if !ok {
		return fmt.Errorf("memory: run %s: %w", runID, domain.ErrNotFound)
	}
	run.State = state
	run.HaltReason = haltReason
	l.runs[runID] = run
	return nil
}

// SaveReport stores the finalized report.
func (l *Ledger) SaveReport(_ context.Context, report domain.RunReport) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reports[report.RunID] = report
	return nil
}

// GetReport returns the finalized report for a run.
func (l *Ledger) GetReport(_ context.Context, runID string) (domain.RunReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	report, ok := l.reports[runID]
	if !ok {
		return domain.RunReport{}, fmt.Errorf("memory: report %s: %w", runID, domain.ErrNotFound)
	}
	return report, nil
}

// GetRun returns the lifecycle row for a run.
func (l *Ledger) GetRun(_ context.Context, runID string) (domain.Run, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	run, ok := l.runs[runID]
	if !ok {
		return domain.Run{}, fmt.Errorf("memory: run %s: %w", runID, domain.ErrNotFound)
	}
	return run, nil
}

// Positions returns a PositionStore view of the ledger.
func (l *Ledger) Positions() domain.PositionStore { return l }

// Executions returns an ExecutionStore view of the ledger.
func (l *Ledger) Executions() domain.ExecutionStore { return executionView{l} }

// Runs returns a RunStore view of the ledger.
func (l *Ledger) Runs() domain.RunStore { return l }

// executionView renames the execution methods onto the ExecutionStore
// interface, which shares method names with PositionStore.
type executionView struct {
	l *Ledger
}

func (v executionView) Append(ctx context.Context, rec domain.ExecutionRecord) error {
	return v.l.AppendExecution(ctx, rec)
}

func (v executionView) ListByRun(ctx context.Context, runID string) ([]domain.ExecutionRecord, error) {
	return v.l.ListExecutionsByRun(ctx, runID)
}
