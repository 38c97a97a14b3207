package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/quantfold/mmsim/internal/fill"
)

// Config is the engine's immutable runtime configuration, fixed at INIT.
type Config struct {
	BankrollUSD  float64
	QuoteSizeUSD float64
	TickSize     float64
	KTicks       int
	SkewTicks    float64
	MaxSpreadPct *float64
	FeeBps       float64

	MaxTotalExposureUSD     float64
	MaxPerMarketExposureUSD float64

	FillModel         string
	Seed              int64
	FillAlpha         float64
	FillPMax          float64
	FillBaseLiquidity float64

	MaxRuntime      time.Duration
	SnapshotTimeout time.Duration

	TrustStaleness    time.Duration
	TrustMidTolerance float64
	ReconcileEps      float64
}

// Validate rejects invalid combinations before the run starts. All
// problems are reported together.
func (c Config) Validate() error {
	var errs []error

	if c.BankrollUSD <= 0 {
		errs = append(errs, fmt.Errorf("bankroll_usd must be positive, got %v", c.BankrollUSD))
	}
	if c.QuoteSizeUSD <= 0 {
		errs = append(errs, fmt.Errorf("quote_size_usd must be positive, got %v", c.QuoteSizeUSD))
	}
	if c.TickSize <= 0 {
		errs = append(errs, fmt.Errorf("tick_size must be positive, got %v", c.TickSize))
	}
	if c.KTicks < 0 {
		errs = append(errs, fmt.Errorf("k_ticks must be >= 0, got %d", c.KTicks))
	}
	if c.FeeBps < 0 {
		errs = append(errs, fmt.Errorf("fee_bps must be >= 0, got %v", c.FeeBps))
	}
	if c.MaxTotalExposureUSD < 0 {
		errs = append(errs, fmt.Errorf("max_total_exposure_usd must be >= 0, got %v", c.MaxTotalExposureUSD))
	}
	if c.MaxPerMarketExposureUSD < 0 {
		errs = append(errs, fmt.Errorf("max_per_market_exposure_usd must be >= 0, got %v", c.MaxPerMarketExposureUSD))
	}
	if c.MaxRuntime < 0 {
		errs = append(errs, fmt.Errorf("max_runtime must be >= 0, got %v", c.MaxRuntime))
	}

	switch c.FillModel {
	case fill.ModelStrict:
	case fill.ModelProbabilistic:
		if c.FillAlpha < 0 {
			errs = append(errs, fmt.Errorf("fill_alpha must be >= 0, got %v", c.FillAlpha))
		}
		if c.FillPMax <= 0 || c.FillPMax > 1 {
			errs = append(errs, fmt.Errorf("fill_pmax must be in (0, 1], got %v", c.FillPMax))
		}
		if c.FillBaseLiquidity < 0 {
			errs = append(errs, fmt.Errorf("fill_base_liquidity must be >= 0, got %v", c.FillBaseLiquidity))
		}
	default:
		errs = append(errs, fmt.Errorf("fill_model must be %q or %q, got %q",
			fill.ModelStrict, fill.ModelProbabilistic, c.FillModel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("engine: invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// feesFor returns the fee charged on one fill of the given notional.
func (c Config) feesFor(sizeUSD float64) float64 {
	return sizeUSD * c.FeeBps / 10_000
}
