package domain

import "context"

// MarketDataSource supplies one snapshot per market per tick. A live feed
// and a replayed recording are indistinguishable to the engine. Next
// returns ErrEndOfStream when a recording is exhausted and
// ErrSnapshotUnavailable on transient failure; retry and backoff belong to
// the source, not the caller.
type MarketDataSource interface {
	Markets() []string
	Next(ctx context.Context, marketID string) (MarketSnapshot, error)
	Close() error
}

// PositionStore is the durable, write-through position ledger. The engine
// never re-reads its own writes within a tick; open state lives in the
// accounting book.
type PositionStore interface {
	Append(ctx context.Context, pos Position) error
	MarkClosed(ctx context.Context, pos Position) error
	ListByRun(ctx context.Context, runID string) ([]Position, error)
}

// ExecutionStore persists append-only execution diagnostics rows.
type ExecutionStore interface {
	Append(ctx context.Context, rec ExecutionRecord) error
	ListByRun(ctx context.Context, runID string) ([]ExecutionRecord, error)
}

// RunStore persists run lifecycle rows and the finalized report.
type RunStore interface {
	Create(ctx context.Context, run Run) error
	Finish(ctx context.Context, runID string, state RunState, haltReason string) error
	SaveReport(ctx context.Context, report RunReport) error
	GetReport(ctx context.Context, runID string) (RunReport, error)
}

// StatusPublisher receives completed, published state at tick boundaries.
// Implementations must never be handed a half-updated tick.
type StatusPublisher interface {
	PublishTick(ctx context.Context, status TickStatus) error
	PublishReport(ctx context.Context, report RunReport) error
}

// BlobWriter archives finalized run artifacts (reports, halt bundles) to
// object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}
