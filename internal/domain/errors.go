package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrEndOfStream is returned by a MarketDataSource when a replayed
	// recording has no further snapshots for a market.
	ErrEndOfStream = errors.New("end of stream")
	// ErrSnapshotUnavailable marks a transient source failure; the engine
	// treats it as a missing snapshot for that market-tick.
	ErrSnapshotUnavailable = errors.New("snapshot unavailable")
	// ErrExposureBreach marks a cap breach detected after admission. It is
	// fatal and transitions the run to HALTED.
	ErrExposureBreach = errors.New("exposure cap breached after admission")
	// ErrReconciliation marks a failed accounting reconciliation. It is
	// fatal and never suppressed.
	ErrReconciliation = errors.New("reconciliation failed")
)
