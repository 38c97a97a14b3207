// Package fill decides whether posted quotes execute against the next
// snapshot. Two models are provided: a deterministic crossing test and a
// conservative probabilistic model whose randomness is derived
// independently per (seed, market, tick, side) so fills are reproducible
// regardless of market iteration order.
package fill

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"

	"github.com/quantfold/mmsim/internal/domain"
)

const priceEps = 1e-9

// Model names accepted in configuration.
const (
	ModelStrict        = "strict"
	ModelProbabilistic = "probabilistic"
)

// Model resolves one posted quote against the snapshot that arrived after
// it was posted. A nil outcome means no fill. Suppressed quotes are never
// evaluated.
type Model interface {
	Name() string
	Resolve(q domain.Quote, next domain.MarketSnapshot, tick int) *domain.FillOutcome
}

// Params holds the tunables shared by the model constructors.
type Params struct {
	TickSize      float64
	Alpha         float64
	BaseLiquidity float64
	PMax          float64
	Seed          int64
}

// New selects a model by name. The choice is made once at INIT and never
// re-selected mid-run.
func New(name string, p Params) (Model, error) {
	switch name {
	case ModelStrict:
		return &StrictModel{}, nil
	case ModelProbabilistic:
		return &ProbabilisticModel{params: p}, nil
	default:
		return nil, fmt.Errorf("fill: unknown model %q", name)
	}
}

// StrictModel fills iff the next snapshot's last trade price crosses the
// quote: bids fill when the trade printed at or below the quote, asks when
// it printed at or above. Fills are at the quote price for the full size.
type StrictModel struct{}

// Name returns the model identifier.
func (m *StrictModel) Name() string { return ModelStrict }

// Resolve applies the crossing test. No randomness is involved.
func (m *StrictModel) Resolve(q domain.Quote, next domain.MarketSnapshot, _ int) *domain.FillOutcome {
	if q.Status == domain.QuoteSuppressed {
		return nil
	}
	if next.LastTradePrice == nil {
		return nil
	}
	ltp := *next.LastTradePrice

	var crossed bool
	switch q.Side {
	case domain.SideBid:
		crossed = ltp <= q.Price+priceEps
	case domain.SideAsk:
		crossed = ltp >= q.Price-priceEps
	}
	if !crossed {
		return nil
	}
	return &domain.FillOutcome{Price: q.Price, SizeUSD: q.SizeUSD}
}

// ProbabilisticModel fills with probability
//
//	p = min(p_max, base_liquidity * exp(-alpha * dist_ticks))
//
// where dist_ticks is the quote's distance from the reference price in
// ticks. Each (market, tick, side) gets its own uniform draw derived from
// the run seed, so replays with the same seed and snapshot sequence
// reproduce the same fills byte for byte.
type ProbabilisticModel struct {
	params Params
}

// Name returns the model identifier.
func (m *ProbabilisticModel) Name() string { return ModelProbabilistic }

// Probability returns the capped fill probability for a quote at the given
// tick distance.
func (m *ProbabilisticModel) Probability(distTicks float64) float64 {
	raw := m.params.BaseLiquidity * math.Exp(-m.params.Alpha*distTicks)
	return math.Min(m.params.PMax, raw)
}

// Resolve draws the quote's uniform value and compares it to the fill
// probability. The fill price is the midpoint of quote and reference,
// clamped to [0,1], so fills are not marked exactly at our own limit.
func (m *ProbabilisticModel) Resolve(q domain.Quote, next domain.MarketSnapshot, tick int) *domain.FillOutcome {
	if q.Status == domain.QuoteSuppressed {
		return nil
	}
	ref := next.ReferencePrice()
	if ref == nil {
		return nil
	}

	distTicks := 0.0
	if m.params.TickSize > 0 {
		distTicks = math.Abs(q.Price-*ref) / m.params.TickSize
	}
	p := m.Probability(distTicks)
	draw := uniformDraw(m.params.Seed, q.MarketID, tick, q.Side)
	if draw >= p {
		return nil
	}

	price := (q.Price + *ref) / 2
	if price < 0 {
		price = 0
	} else if price > 1 {
		price = 1
	}
	return &domain.FillOutcome{
		Price:           price,
		SizeUSD:         q.SizeUSD,
		FillProbability: p,
		Draw:            draw,
	}
}

// uniformDraw derives one uniform value in [0,1) from the seed tuple. The
// tuple is mixed through 64-bit FNV-1a so draws are independent of the
// order markets are iterated in.
func uniformDraw(seed int64, marketID string, tick int, side domain.Side) float64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(seed))
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte(marketID))
	binary.BigEndian.PutUint64(buf[:], uint64(tick))
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte(side))

	rng := rand.New(rand.NewSource(int64(h.Sum64())))
	return rng.Float64()
}
