// Package diagnostics turns each fill into an append-only execution record
// with latency and slippage metrics derived once at write time.
package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quantfold/mmsim/internal/domain"
)

const priceEps = 1e-9

// Liquidity tier cutoffs. Tight books with real depth are tier A, the
// middle band is B, everything else is C.
const (
	tierASpreadPct = 0.01
	tierADepthUSD  = 1000
	tierBSpreadPct = 0.03
	tierBDepthUSD  = 250
)

// Fill carries everything known about one executed quote at record time.
type Fill struct {
	RunID      string
	MarketID   string
	Side       domain.Side
	Tick       int
	DecisionTS time.Time
	SendTS     time.Time
	AckTS      time.Time
	FillTS     time.Time
	Snapshot   domain.MarketSnapshot
	QuotePrice float64
	Outcome    domain.FillOutcome
	Shares     float64
	FeesUSD    float64
}

// Recorder derives metrics from fills and appends them to the execution
// ledger. Records are immutable once written.
type Recorder struct {
	store  domain.ExecutionStore
	logger *slog.Logger
}

// NewRecorder wires a Recorder to its backing store.
func NewRecorder(store domain.ExecutionStore, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		logger: logger.With(slog.String("component", "diagnostics")),
	}
}

// Record derives the metric set for one fill and appends it.
func (r *Recorder) Record(ctx context.Context, f Fill) (domain.ExecutionRecord, error) {
	rec := Derive(f)
	if err := r.store.Append(ctx, rec); err != nil {
		return rec, fmt.Errorf("diagnostics: append record: %w", err)
	}
	r.logger.Debug("fill recorded",
		slog.String("market_id", rec.MarketID),
		slog.String("side", string(rec.Side)),
		slog.Int("tick", rec.Tick),
		slog.Float64("fill_price", rec.FillPrice),
		slog.Float64("quote_slippage_pct", rec.QuoteSlippagePct),
		slog.String("liquidity_tier", rec.LiquidityTier),
	)
	return rec, nil
}

// Derive computes the full metric set for a fill without persisting it.
//
//	latency_ms            fill_ts - decision_ts
//	quote_slippage_pct    (fill - quote) / quote
//	baseline_slippage_pct (fill - decision mid) / decision mid
//	spread_crossed        fill strictly past the decision-time mid
//	impact_proxy          fill size / depth on the quoted side
func Derive(f Fill) domain.ExecutionRecord {
	snap := f.Snapshot
	rec := domain.ExecutionRecord{
		RunID:          f.RunID,
		OrderID:        uuid.NewString(),
		MarketID:       f.MarketID,
		Side:           f.Side,
		Tick:           f.Tick,
		DecisionTS:     f.DecisionTS,
		SendTS:         f.SendTS,
		AckTS:          f.AckTS,
		FillTS:         f.FillTS,
		BestBid:        snap.BestBid,
		BestAsk:        snap.BestAsk,
		MidPrice:       snap.MidPrice,
		DepthBid:       snap.DepthBid,
		DepthAsk:       snap.DepthAsk,
		LastTradePrice: snap.LastTradePrice,
		QuotePrice:     f.QuotePrice,
		FillPrice:      f.Outcome.Price,
		FillSizeUSD:    f.Outcome.SizeUSD,
		FilledShare:    f.Shares,
		FeesUSD:        f.FeesUSD,
	}

	rec.LatencyMS = float64(f.FillTS.Sub(f.DecisionTS)) / float64(time.Millisecond)

	if f.QuotePrice > 0 {
		rec.QuoteSlippagePct = (rec.FillPrice - f.QuotePrice) / f.QuotePrice
	}

	if mid := snap.Mid(); mid != nil && *mid > 0 {
		rec.BaselineSlippagePct = (rec.FillPrice - *mid) / *mid
		switch f.Side {
		case domain.SideBid:
			rec.SpreadCrossed = rec.FillPrice > *mid+priceEps
		case domain.SideAsk:
			rec.SpreadCrossed = rec.FillPrice < *mid-priceEps
		}
	}

	depth := snap.DepthBid
	if f.Side == domain.SideAsk {
		depth = snap.DepthAsk
	}
	if depth != nil && *depth > 0 {
		rec.ImpactProxy = domain.Float64Ptr(rec.FillSizeUSD / *depth)
	}

	rec.LiquidityTier = Tier(snap)
	return rec
}

// Tier buckets a snapshot into a liquidity tier from its spread and summed
// depth. Missing fields push the market toward tier C.
func Tier(snap domain.MarketSnapshot) string {
	spread := 1.0
	if s := snap.SpreadPct(); s != nil {
		spread = *s
	}
	var depth float64
	if snap.DepthBid != nil {
		depth += *snap.DepthBid
	}
	if snap.DepthAsk != nil {
		depth += *snap.DepthAsk
	}

	switch {
	case spread <= tierASpreadPct && depth >= tierADepthUSD:
		return "A"
	case spread <= tierBSpreadPct && depth >= tierBDepthUSD:
		return "B"
	default:
		return "C"
	}
}
