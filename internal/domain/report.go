package domain

import "time"

// RunState is the orchestrator's terminal-visible state machine.
type RunState string

const (
	RunStateInit      RunState = "init"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateHalted    RunState = "halted"
)

// Verdict is the acceptance checker's overall call on a completed run.
type Verdict string

const (
	VerdictPass Verdict = "PASS"
	VerdictFail Verdict = "FAIL"
)

// CheckResult is one acceptance threshold with the observed value. Failed
// checks carry enough detail for the operator to see observed vs required.
type CheckResult struct {
	Name     string  `json:"name"`
	Passed   bool    `json:"passed"`
	Observed float64 `json:"observed"`
	Required float64 `json:"required"`
	Detail   string  `json:"detail,omitempty"`
}

// RunReport is the analyzer's aggregation of a completed run plus the
// acceptance verdict. It is derived read-only from the accumulated ledger
// and finalized once.
type RunReport struct {
	RunID     string   `json:"run_id"`
	State     RunState `json:"state"`
	Ticks     int      `json:"ticks"`
	FillCount int      `json:"fill_count"`

	TruthfulRate float64 `json:"truthful_rate"`

	LatencyP50MS float64 `json:"latency_p50_ms"`
	LatencyP90MS float64 `json:"latency_p90_ms"`
	LatencyP95MS float64 `json:"latency_p95_ms"`

	SlippageP50Pct float64 `json:"slippage_p50_pct"`
	SlippageP90Pct float64 `json:"slippage_p90_pct"`
	SlippageP95Pct float64 `json:"slippage_p95_pct"`

	MaxTotalExposureUSD    float64            `json:"max_total_exposure_usd"`
	MaxExposureByMarketUSD map[string]float64 `json:"max_exposure_by_market_usd"`

	Cash              float64 `json:"cash"`
	OpenValueUSD      float64 `json:"open_value_usd"`
	PortfolioValueUSD float64 `json:"portfolio_value_usd"`
	RealizedPnLUSD    float64 `json:"realized_pnl_usd"`
	UnrealizedPnLUSD  float64 `json:"unrealized_pnl_usd"`
	FeesUSD           float64 `json:"fees_usd"`

	Verdict    Verdict       `json:"verdict"`
	Violations []CheckResult `json:"violations,omitempty"`
	HaltReason string        `json:"halt_reason,omitempty"`
	HaltTick   *int          `json:"halt_tick,omitempty"`

	GeneratedAt time.Time `json:"generated_at"`
}

// Run is the durable lifecycle row for one simulation run.
type Run struct {
	ID         string
	State      RunState
	Seed       int64
	FillModel  string
	Markets    int
	StartedAt  time.Time
	FinishedAt *time.Time
	HaltReason string
}

// TickStatus is the published view of one completed tick, safe for the
// status server to read while the run continues. Only whole ticks are
// ever published.
type TickStatus struct {
	RunID            string             `json:"run_id"`
	Tick             int                `json:"tick"`
	TotalExposureUSD float64            `json:"total_exposure_usd"`
	ExposureByMarket map[string]float64 `json:"exposure_by_market"`
	FillCount        int                `json:"fill_count"`
	Cash             float64            `json:"cash"`
	At               time.Time          `json:"at"`
}
