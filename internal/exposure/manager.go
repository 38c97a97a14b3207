// Package exposure tracks capital at risk per market and in aggregate, and
// gates new quotes against the configured caps. Admission is checked as if
// the quote filled fully; a cap breach detected after admission is fatal,
// never clamped.
package exposure

import (
	"fmt"

	"github.com/quantfold/mmsim/internal/domain"
)

const capEps = 1e-9

// Manager owns the exposure ledger for one run. Committed exposure is
// mutated only at fill time, together with the matching position mutation;
// admitted-but-unresolved bids hold a reservation so quotes admitted in the
// same tick cannot jointly overrun a cap when they all fill. The tick loop
// is single-threaded so no locking is needed.
type Manager struct {
	maxTotalUSD     float64
	maxPerMarketUSD float64

	perMarket map[string]float64
	total     float64

	pendingPerMarket map[string]float64
	pendingTotal     float64

	maxTotalSeen     float64
	maxPerMarketSeen map[string]float64
}

// NewManager creates a Manager with the given caps. Caps must be >= 0;
// validation happens at INIT, not here.
func NewManager(maxTotalUSD, maxPerMarketUSD float64) *Manager {
	return &Manager{
		maxTotalUSD:      maxTotalUSD,
		maxPerMarketUSD:  maxPerMarketUSD,
		perMarket:        make(map[string]float64),
		pendingPerMarket: make(map[string]float64),
		maxPerMarketSeen: make(map[string]float64),
	}
}

// Admit reports whether the quote may be posted. A bid is admitted iff a
// full fill would keep both the per-market and the aggregate exposure
// within their caps, counting the reservations of every bid already
// admitted and still unresolved; admission reserves the bid's notional
// until Settle. Asks close existing inventory and are always admitted.
func (m *Manager) Admit(q domain.Quote) bool {
	if q.Side == domain.SideAsk {
		return true
	}
	if m.perMarket[q.MarketID]+m.pendingPerMarket[q.MarketID]+q.SizeUSD > m.maxPerMarketUSD+capEps {
		return false
	}
	if m.total+m.pendingTotal+q.SizeUSD > m.maxTotalUSD+capEps {
		return false
	}
	m.pendingPerMarket[q.MarketID] += q.SizeUSD
	m.pendingTotal += q.SizeUSD
	return true
}

// Settle drops the reservation held for an admitted bid once the quote
// resolves, whether it filled or expired. The fill path then commits the
// actual cost basis via ApplyOpen. Asks carry no reservation.
func (m *Manager) Settle(q domain.Quote) {
	if q.Side != domain.SideBid {
		return
	}
	m.pendingPerMarket[q.MarketID] -= q.SizeUSD
	if m.pendingPerMarket[q.MarketID] < capEps {
		delete(m.pendingPerMarket, q.MarketID)
	}
	m.pendingTotal -= q.SizeUSD
	if m.pendingTotal < capEps {
		m.pendingTotal = 0
	}
}

// PendingUSD returns the aggregate reserved notional of admitted,
// unresolved bids.
func (m *Manager) PendingUSD() float64 {
	return m.pendingTotal
}

// ApplyOpen records cost basis added by a position open. It re-checks the
// caps after applying: a breach here means an admitted quote slipped past
// the gate, which is a reconciliation-class failure.
func (m *Manager) ApplyOpen(marketID string, costBasisUSD float64) error {
	m.perMarket[marketID] += costBasisUSD
	m.total += costBasisUSD
	m.track(marketID)

	if m.perMarket[marketID] > m.maxPerMarketUSD+capEps {
		return fmt.Errorf("exposure: market %s at %.6f exceeds cap %.6f: %w",
			marketID, m.perMarket[marketID], m.maxPerMarketUSD, domain.ErrExposureBreach)
	}
	if m.total > m.maxTotalUSD+capEps {
		return fmt.Errorf("exposure: total at %.6f exceeds cap %.6f: %w",
			m.total, m.maxTotalUSD, domain.ErrExposureBreach)
	}
	return nil
}

// Release removes cost basis when a position closes.
func (m *Manager) Release(marketID string, costBasisUSD float64) {
	m.perMarket[marketID] -= costBasisUSD
	if m.perMarket[marketID] < capEps {
		delete(m.perMarket, marketID)
	}
	m.total -= costBasisUSD
	if m.total < capEps {
		m.total = 0
	}
}

// NetUSD returns the open cost basis for one market.
func (m *Manager) NetUSD(marketID string) float64 {
	return m.perMarket[marketID]
}

// TotalUSD returns the aggregate open cost basis.
func (m *Manager) TotalUSD() float64 {
	return m.total
}

// State returns a copy of the current exposure ledger, safe to publish.
func (m *Manager) State() domain.ExposureState {
	per := make(map[string]float64, len(m.perMarket))
	for k, v := range m.perMarket {
		per[k] = v
	}
	return domain.ExposureState{PerMarketUSD: per, TotalUSD: m.total}
}

// MaxObserved returns the high-water marks seen over the run: the aggregate
// peak and a copy of the per-market peaks.
func (m *Manager) MaxObserved() (float64, map[string]float64) {
	per := make(map[string]float64, len(m.maxPerMarketSeen))
	for k, v := range m.maxPerMarketSeen {
		per[k] = v
	}
	return m.maxTotalSeen, per
}

func (m *Manager) track(marketID string) {
	if m.total > m.maxTotalSeen {
		m.maxTotalSeen = m.total
	}
	if v := m.perMarket[marketID]; v > m.maxPerMarketSeen[marketID] {
		m.maxPerMarketSeen[marketID] = v
	}
}
