package domain

import "time"

// MarketSnapshot is one observation of a market's order book at a tick.
// Every field except MarketID and Timestamp is optional: a thin book may
// carry no bid or ask at all. Snapshots are immutable and discarded after
// the tick that consumed them.
type MarketSnapshot struct {
	MarketID       string
	Timestamp      time.Time
	BestBid        *float64
	BestAsk        *float64
	MidPrice       *float64
	DepthBid       *float64
	DepthAsk       *float64
	LastTradePrice *float64
}

// Mid returns the usable mid price for the snapshot: the average of bid and
// ask when both sides exist, otherwise the reported MidPrice.
func (s MarketSnapshot) Mid() *float64 {
	if s.BestBid != nil && s.BestAsk != nil {
		m := (*s.BestBid + *s.BestAsk) / 2
		return &m
	}
	return s.MidPrice
}

// ReferencePrice resolves the quoting reference: mid price first, then the
// bid/ask average, then the last trade price for one-sided books. Returns
// nil when no usable reference exists.
func (s MarketSnapshot) ReferencePrice() *float64 {
	if s.MidPrice != nil {
		return s.MidPrice
	}
	if m := s.Mid(); m != nil {
		return m
	}
	return s.LastTradePrice
}

// SpreadPct returns (ask-bid)/mid, or nil when either side or the mid is
// missing.
func (s MarketSnapshot) SpreadPct() *float64 {
	mid := s.Mid()
	if s.BestBid == nil || s.BestAsk == nil || mid == nil || *mid == 0 {
		return nil
	}
	p := (*s.BestAsk - *s.BestBid) / *mid
	return &p
}

// TrustReason classifies why a snapshot was accepted or rejected by the
// trust gate.
type TrustReason string

const (
	TrustOK           TrustReason = "ok"
	TrustStale        TrustReason = "stale"
	TrustMidMismatch  TrustReason = "mid_mismatch"
	TrustInvertedBook TrustReason = "inverted_book"
	TrustOutOfRange   TrustReason = "out_of_range"
)

// TrustVerdict is the trust gate's decision for one snapshot. It is derived
// per tick and never persisted.
type TrustVerdict struct {
	Trusted bool
	Reason  TrustReason
}

// Float64Ptr returns a pointer to v. Snapshot fixtures and tests build
// optional fields with it.
func Float64Ptr(v float64) *float64 { return &v }
