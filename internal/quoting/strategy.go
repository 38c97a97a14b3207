// Package quoting turns a trusted snapshot into candidate passive quotes:
// a symmetric two-sided pair offset k ticks from the reference price,
// optionally skewed away from accumulated inventory.
package quoting

import (
	"github.com/quantfold/mmsim/internal/domain"
)

const priceEps = 1e-9

// Pause reasons attached to a tick that produced no quotes.
const (
	PauseNoReference  = "no_reference_price"
	PauseSpreadWide   = "spread_too_wide"
	PauseBoundsBroken = "invalid_quote_bounds"
)

// SuppressNoInventory marks an ask candidate dropped because there is no
// long inventory to sell against.
const SuppressNoInventory = "no_inventory"

// Config holds the quoting parameters, fixed for a run.
type Config struct {
	TickSize     float64
	KTicks       int
	SkewTicks    float64
	QuoteSizeUSD float64
	// MaxSpreadPct pauses quoting when the observed spread exceeds it.
	// Nil disables the guard.
	MaxSpreadPct *float64
}

// Inventory is the strategy's view of current holdings in one market.
type Inventory struct {
	NetUSD float64
}

// Decision is the outcome of one quoting evaluation. When PauseReason is
// set no quotes were produced for the tick.
type Decision struct {
	Quotes      []domain.Quote
	PauseReason string
}

// Strategy computes quote pairs. It holds no mutable state; every tick is
// evaluated from scratch against the fresh snapshot.
type Strategy struct {
	cfg Config
}

// New creates a Strategy from the given config.
func New(cfg Config) *Strategy {
	return &Strategy{cfg: cfg}
}

// Prices returns the raw bid/ask pair around mid. k_ticks = 0 degenerates
// to a best-effort at-mid quote using a half tick so bid stays strictly
// below ask.
func (s *Strategy) Prices(mid float64, skewDirection float64) (bid, ask float64) {
	base := float64(s.cfg.KTicks) * s.cfg.TickSize
	if s.cfg.KTicks == 0 {
		base = s.cfg.TickSize / 2
	}
	skew := s.cfg.SkewTicks * s.cfg.TickSize * skewDirection
	return mid - base - skew, mid + base - skew
}

// Quote evaluates one trusted snapshot and returns the candidate quotes for
// this tick. Exposure admission happens downstream; the only suppression
// applied here is the long-only inventory rule for asks.
func (s *Strategy) Quote(snap domain.MarketSnapshot, tick int, inv Inventory) Decision {
	ref := snap.ReferencePrice()
	if ref == nil {
		return Decision{PauseReason: PauseNoReference}
	}

	if s.cfg.MaxSpreadPct != nil {
		if spread := snap.SpreadPct(); spread != nil && *spread > *s.cfg.MaxSpreadPct {
			return Decision{PauseReason: PauseSpreadWide}
		}
	}

	skewDirection := 0.0
	if inv.NetUSD > 0 {
		skewDirection = 1
	} else if inv.NetUSD < 0 {
		skewDirection = -1
	}
	bid, ask := s.Prices(*ref, skewDirection)

	// Clamp, then require both sides strictly inside (0,1) and uncrossed.
	bid = clamp01(bid)
	ask = clamp01(ask)
	if bid <= priceEps || ask >= 1-priceEps || bid >= ask {
		return Decision{PauseReason: PauseBoundsBroken}
	}

	quotes := []domain.Quote{
		{
			MarketID:     snap.MarketID,
			Side:         domain.SideBid,
			Price:        bid,
			SizeUSD:      s.cfg.QuoteSizeUSD,
			PostedAtTick: tick,
			Status:       domain.QuotePosted,
		},
	}

	askQuote := domain.Quote{
		MarketID:     snap.MarketID,
		Side:         domain.SideAsk,
		Price:        ask,
		SizeUSD:      s.cfg.QuoteSizeUSD,
		PostedAtTick: tick,
		Status:       domain.QuotePosted,
	}
	if inv.NetUSD <= 0 {
		// Long-only inventory: nothing to sell.
		askQuote.Status = domain.QuoteSuppressed
		askQuote.SuppressReason = SuppressNoInventory
	}
	quotes = append(quotes, askQuote)

	return Decision{Quotes: quotes}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
