package trust

import (
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/quantfold/mmsim/internal/domain"
)

func snap(ts time.Time, bid, ask, mid, ltp *float64) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		MarketID:       "mkt-1",
		Timestamp:      ts,
		BestBid:        bid,
		BestAsk:        ask,
		MidPrice:       mid,
		LastTradePrice: ltp,
	}
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fresh := now.Add(-time.Second)
	gate := NewGate(30*time.Second, 1e-6)

	tests := []struct {
		name    string
		snap    domain.MarketSnapshot
		trusted bool
		reason  domain.TrustReason
	}{
		{
			name:    "clean two-sided book",
			snap:    snap(fresh, domain.Float64Ptr(0.48), domain.Float64Ptr(0.52), domain.Float64Ptr(0.50), nil),
			trusted: true,
			reason:  domain.TrustOK,
		},
		{
			name:    "one-sided book is still trusted",
			snap:    snap(fresh, nil, nil, nil, domain.Float64Ptr(0.41)),
			trusted: true,
			reason:  domain.TrustOK,
		},
		{
			name:   "inverted book",
			snap:   snap(fresh, domain.Float64Ptr(0.60), domain.Float64Ptr(0.40), nil, nil),
			reason: domain.TrustInvertedBook,
		},
		{
			name:   "inverted book wins over staleness",
			snap:   snap(now.Add(-time.Hour), domain.Float64Ptr(0.60), domain.Float64Ptr(0.40), domain.Float64Ptr(0.9), nil),
			reason: domain.TrustInvertedBook,
		},
		{
			name:   "stale snapshot",
			snap:   snap(now.Add(-time.Minute), domain.Float64Ptr(0.48), domain.Float64Ptr(0.52), domain.Float64Ptr(0.50), nil),
			reason: domain.TrustStale,
		},
		{
			name:   "mid mismatch",
			snap:   snap(fresh, domain.Float64Ptr(0.48), domain.Float64Ptr(0.52), domain.Float64Ptr(0.55), nil),
			reason: domain.TrustMidMismatch,
		},
		{
			name:   "bid above one",
			snap:   snap(fresh, domain.Float64Ptr(1.02), domain.Float64Ptr(1.05), nil, nil),
			reason: domain.TrustOutOfRange,
		},
		{
			name:   "negative last trade price",
			snap:   snap(fresh, nil, nil, nil, domain.Float64Ptr(-0.01)),
			reason: domain.TrustOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := gate.Evaluate(tt.snap, now)
			if v.Trusted != tt.trusted {
				t.Fatalf("Trusted = %v, want %v (reason %s)", v.Trusted, tt.trusted, v.Reason)
			}
			if v.Reason != tt.reason {
				t.Fatalf("Reason = %s, want %s", v.Reason, tt.reason)
			}
		})
	}
}

func TestEvaluateDefaults(t *testing.T) {
	g := NewGate(0, 0)
	if g.Staleness != DefaultStaleness {
		t.Fatalf("Staleness = %v, want %v", g.Staleness, DefaultStaleness)
	}
	if g.MidTolerance != DefaultMidTolerance {
		t.Fatalf("MidTolerance = %v, want %v", g.MidTolerance, DefaultMidTolerance)
	}
}

// An inverted book is rejected with reason inverted_book no matter what the
// other fields look like.
func TestProperty_InvertedBookAlwaysRejected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		ask := rapid.Float64Range(0, 0.99).Draw(t, "ask")
		bid := rapid.Float64Range(ask+1e-9, 1).Draw(t, "bid")
		ageSec := rapid.Int64Range(0, 3600).Draw(t, "ageSec")

		s := domain.MarketSnapshot{
			MarketID:  "mkt",
			Timestamp: now.Add(-time.Duration(ageSec) * time.Second),
			BestBid:   &bid,
			BestAsk:   &ask,
		}
		if rapid.Bool().Draw(t, "withMid") {
			s.MidPrice = domain.Float64Ptr(rapid.Float64Range(0, 1).Draw(t, "mid"))
		}
		if rapid.Bool().Draw(t, "withLTP") {
			s.LastTradePrice = domain.Float64Ptr(rapid.Float64Range(0, 1).Draw(t, "ltp"))
		}

		v := NewGate(0, 0).Evaluate(s, now)
		if v.Trusted || v.Reason != domain.TrustInvertedBook {
			t.Fatalf("verdict = %+v, want inverted_book rejection", v)
		}
	})
}
