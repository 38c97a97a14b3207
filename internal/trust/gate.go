// Package trust validates market snapshots before they may be quoted
// against. The gate is a pure function: same snapshot, same verdict, no
// side effects.
package trust

import (
	"time"

	"github.com/quantfold/mmsim/internal/domain"
)

const (
	// DefaultStaleness is the maximum snapshot age relative to the
	// evaluating tick.
	DefaultStaleness = 30 * time.Second
	// DefaultMidTolerance is the allowed absolute deviation between the
	// reported mid and (bid+ask)/2.
	DefaultMidTolerance = 1e-6
)

// Gate holds the thresholds applied to every snapshot.
type Gate struct {
	Staleness    time.Duration
	MidTolerance float64
}

// NewGate returns a Gate with the given thresholds; zero values fall back
// to the defaults.
func NewGate(staleness time.Duration, midTolerance float64) Gate {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	if midTolerance <= 0 {
		midTolerance = DefaultMidTolerance
	}
	return Gate{Staleness: staleness, MidTolerance: midTolerance}
}

// Evaluate classifies a snapshot relative to the current tick time. An
// inverted book always wins over every other defect.
func (g Gate) Evaluate(snap domain.MarketSnapshot, now time.Time) domain.TrustVerdict {
	if snap.BestBid != nil && snap.BestAsk != nil && *snap.BestBid > *snap.BestAsk {
		return reject(domain.TrustInvertedBook)
	}

	for _, p := range []*float64{snap.BestBid, snap.BestAsk, snap.MidPrice, snap.LastTradePrice} {
		if p != nil && (*p < 0 || *p > 1) {
			return reject(domain.TrustOutOfRange)
		}
	}

	if now.Sub(snap.Timestamp) > g.Staleness {
		return reject(domain.TrustStale)
	}

	if snap.MidPrice != nil && snap.BestBid != nil && snap.BestAsk != nil {
		expected := (*snap.BestBid + *snap.BestAsk) / 2
		if diff := *snap.MidPrice - expected; diff > g.MidTolerance || diff < -g.MidTolerance {
			return reject(domain.TrustMidMismatch)
		}
	}

	return domain.TrustVerdict{Trusted: true, Reason: domain.TrustOK}
}

func reject(reason domain.TrustReason) domain.TrustVerdict {
	return domain.TrustVerdict{Trusted: false, Reason: reason}
}
