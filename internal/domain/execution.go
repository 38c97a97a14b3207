package domain

import "time"

// ExecutionRecord is the append-only diagnostics row written once per fill.
// Snapshot fields are captured at decision time; derived metrics are
// computed once by the recorder and never revised.
type ExecutionRecord struct {
	RunID    string
	OrderID  string
	MarketID string
	Side     Side
	Tick     int

	DecisionTS time.Time
	SendTS     time.Time
	AckTS      time.Time
	FillTS     time.Time

	// Snapshot at decision time.
	BestBid        *float64
	BestAsk        *float64
	MidPrice       *float64
	DepthBid       *float64
	DepthAsk       *float64
	LastTradePrice *float64

	QuotePrice  float64
	FillPrice   float64
	FillSizeUSD float64
	FilledShare float64
	FeesUSD     float64

	// Derived metrics.
	LatencyMS           float64
	QuoteSlippagePct    float64
	BaselineSlippagePct float64
	SpreadCrossed       bool
	ImpactProxy         *float64
	LiquidityTier       string
}
