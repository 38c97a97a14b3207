// Package analyze aggregates a finished run's ledger into a RunReport and
// applies the acceptance thresholds.
package analyze

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/quantfold/mmsim/internal/domain"
	"github.com/quantfold/mmsim/internal/engine"
)

// DefaultTruthfulRate is the minimum fraction of trusted snapshot
// evaluations a run must achieve to pass.
const DefaultTruthfulRate = 0.99

// Thresholds are the fixed acceptance limits applied to a completed run.
type Thresholds struct {
	TruthfulRate            float64
	MaxTotalExposureUSD     float64
	MaxPerMarketExposureUSD float64
}

// Analyzer reads the run's diagnostics ledger and renders the report.
type Analyzer struct {
	executions domain.ExecutionStore
	thresholds Thresholds
	logger     *slog.Logger
}

// New creates an Analyzer. A zero truthful-rate threshold falls back to
// the default.
func New(executions domain.ExecutionStore, thresholds Thresholds, logger *slog.Logger) *Analyzer {
	if thresholds.TruthfulRate <= 0 {
		thresholds.TruthfulRate = DefaultTruthfulRate
	}
	return &Analyzer{
		executions: executions,
		thresholds: thresholds,
		logger:     logger.With(slog.String("component", "analyze")),
	}
}

// Report aggregates the run and renders the PASS/FAIL verdict.
func (a *Analyzer) Report(ctx context.Context, res engine.Result) (domain.RunReport, error) {
	records, err := a.executions.ListByRun(ctx, res.RunID)
	if err != nil {
		return domain.RunReport{}, fmt.Errorf("analyze: list executions: %w", err)
	}

	latencies := make([]float64, 0, len(records))
	slippages := make([]float64, 0, len(records))
	var fees float64
	for _, rec := range records {
		latencies = append(latencies, rec.LatencyMS)
		slippages = append(slippages, rec.QuoteSlippagePct)
		fees += rec.FeesUSD
	}

	report := domain.RunReport{
		RunID:     res.RunID,
		State:     res.State,
		Ticks:     res.Ticks,
		FillCount: res.FillCount,

		TruthfulRate: truthfulRate(res),

		LatencyP50MS: Percentile(latencies, 50),
		LatencyP90MS: Percentile(latencies, 90),
		LatencyP95MS: Percentile(latencies, 95),

		SlippageP50Pct: Percentile(slippages, 50),
		SlippageP90Pct: Percentile(slippages, 90),
		SlippageP95Pct: Percentile(slippages, 95),

		MaxTotalExposureUSD:    res.MaxTotalExposureUSD,
		MaxExposureByMarketUSD: res.MaxExposureByMarketUSD,

		HaltReason: res.HaltReason,
		HaltTick:   res.HaltTick,
	}

	if res.Book != nil {
		report.Cash = res.Book.CashUSD()
		report.OpenValueUSD = res.Book.PortfolioValueUSD() - res.Book.CashUSD()
		report.PortfolioValueUSD = res.Book.PortfolioValueUSD()
		report.RealizedPnLUSD = res.Book.RealizedPnLUSD()
		report.UnrealizedPnLUSD = res.Book.UnrealizedPnLUSD()
		report.FeesUSD = fees
	}

	report.Verdict, report.Violations = a.accept(res, report)
	a.logger.Info("run analyzed",
		slog.String("run_id", res.RunID),
		slog.String("verdict", string(report.Verdict)),
		slog.Float64("truthful_rate", report.TruthfulRate),
		slog.Int("fills", report.FillCount),
	)
	return report, nil
}

// accept applies the fixed thresholds. A run with zero fills passes
// automatically; a halted run always fails.
func (a *Analyzer) accept(res engine.Result, report domain.RunReport) (domain.Verdict, []domain.CheckResult) {
	if res.State == domain.RunStateHalted {
		return domain.VerdictFail, []domain.CheckResult{{
			Name:   "run_completed",
			Passed: false,
			Detail: fmt.Sprintf("halted: %s", res.HaltReason),
		}}
	}
	if res.FillCount == 0 {
		return domain.VerdictPass, nil
	}

	maxPerMarket := 0.0
	for _, v := range res.MaxExposureByMarketUSD {
		maxPerMarket = math.Max(maxPerMarket, v)
	}

	checks := []domain.CheckResult{
		{
			Name:     "truthful_rate",
			Passed:   report.TruthfulRate >= a.thresholds.TruthfulRate,
			Observed: report.TruthfulRate,
			Required: a.thresholds.TruthfulRate,
		},
		{
			Name:     "max_total_exposure_usd",
			Passed:   res.MaxTotalExposureUSD <= a.thresholds.MaxTotalExposureUSD,
			Observed: res.MaxTotalExposureUSD,
			Required: a.thresholds.MaxTotalExposureUSD,
		},
		{
			Name:     "max_per_market_exposure_usd",
			Passed:   maxPerMarket <= a.thresholds.MaxPerMarketExposureUSD,
			Observed: maxPerMarket,
			Required: a.thresholds.MaxPerMarketExposureUSD,
		},
	}

	var violations []domain.CheckResult
	for _, c := range checks {
		if !c.Passed {
			violations = append(violations, c)
		}
	}
	if len(violations) > 0 {
		return domain.VerdictFail, violations
	}
	return domain.VerdictPass, nil
}

func truthfulRate(res engine.Result) float64 {
	if res.TrustTotalEvals == 0 {
		return 1
	}
	return float64(res.TrustOKEvals) / float64(res.TrustTotalEvals)
}

// Percentile returns the p-th percentile of values using linear
// interpolation between closest ranks. An empty input yields 0.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
