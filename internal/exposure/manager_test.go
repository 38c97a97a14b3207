package exposure

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"pgregory.net/rapid"

	"github.com/quantfold/mmsim/internal/domain"
)

func bidQuote(market string, size float64) domain.Quote {
	return domain.Quote{MarketID: market, Side: domain.SideBid, Price: 0.5, SizeUSD: size}
}

func TestAdmitPerMarketCap(t *testing.T) {
	m := NewManager(10_000, 500)
	if err := m.ApplyOpen("mkt-1", 480); err != nil {
		t.Fatalf("ApplyOpen: %v", err)
	}

	// 480 + 40 = 520 > 500: suppressed before reaching the fill model.
	if m.Admit(bidQuote("mkt-1", 40)) {
		t.Fatal("quote breaching per-market cap was admitted")
	}
	// Exactly at the cap is fine.
	if !m.Admit(bidQuote("mkt-1", 20)) {
		t.Fatal("quote landing exactly on the cap was denied")
	}
	// Another market is unaffected.
	if !m.Admit(bidQuote("mkt-2", 500)) {
		t.Fatal("fresh market quote was denied")
	}
}

func TestAdmitTotalCap(t *testing.T) {
	m := NewManager(1000, 600)
	if err := m.ApplyOpen("mkt-1", 600); err != nil {
		t.Fatalf("ApplyOpen: %v", err)
	}
	if err := m.ApplyOpen("mkt-2", 350); err != nil {
		t.Fatalf("ApplyOpen: %v", err)
	}
	if m.Admit(bidQuote("mkt-3", 100)) {
		t.Fatal("quote breaching total cap was admitted")
	}
	if !m.Admit(bidQuote("mkt-3", 50)) {
		t.Fatal("quote within total cap was denied")
	}
}

func TestAsksAlwaysAdmitted(t *testing.T) {
	m := NewManager(100, 100)
	if err := m.ApplyOpen("mkt-1", 100); err != nil {
		t.Fatalf("ApplyOpen: %v", err)
	}
	ask := domain.Quote{MarketID: "mkt-1", Side: domain.SideAsk, Price: 0.6, SizeUSD: 100}
	if !m.Admit(ask) {
		t.Fatal("closing ask was denied at full exposure")
	}
}

func TestApplyOpenBreachIsFatal(t *testing.T) {
	m := NewManager(10_000, 500)
	err := m.ApplyOpen("mkt-1", 520)
	if !errors.Is(err, domain.ErrExposureBreach) {
		t.Fatalf("err = %v, want ErrExposureBreach", err)
	}
}

func TestReleaseAndHighWaterMarks(t *testing.T) {
	m := NewManager(10_000, 1000)
	_ = m.ApplyOpen("mkt-1", 400)
	_ = m.ApplyOpen("mkt-1", 300)
	m.Release("mkt-1", 400)

	if got := m.NetUSD("mkt-1"); math.Abs(got-300) > 1e-9 {
		t.Fatalf("NetUSD = %.2f, want 300", got)
	}
	if got := m.TotalUSD(); math.Abs(got-300) > 1e-9 {
		t.Fatalf("TotalUSD = %.2f, want 300", got)
	}

	maxTotal, maxPer := m.MaxObserved()
	if math.Abs(maxTotal-700) > 1e-9 {
		t.Fatalf("max total = %.2f, want 700", maxTotal)
	}
	if math.Abs(maxPer["mkt-1"]-700) > 1e-9 {
		t.Fatalf("max per market = %.2f, want 700", maxPer["mkt-1"])
	}
}

func TestStateIsACopy(t *testing.T) {
	m := NewManager(1000, 1000)
	_ = m.ApplyOpen("mkt-1", 100)
	st := m.State()
	st.PerMarketUSD["mkt-1"] = 999
	if m.NetUSD("mkt-1") != 100 {
		t.Fatal("mutating the published state leaked into the manager")
	}
}

func TestAdmitCountsPendingQuotes(t *testing.T) {
	m := NewManager(100, 100)
	qa := bidQuote("mkt-1", 60)
	qb := bidQuote("mkt-2", 60)

	if !m.Admit(qa) {
		t.Fatal("first bid within caps was denied")
	}
	// 60 reserved + 60 = 120 > 100: a joint fill would overrun the
	// total cap, so the second bid must be denied while the first is
	// still unresolved.
	if m.Admit(qb) {
		t.Fatal("second bid admitted on top of a pending reservation")
	}

	// The first quote resolves and fills; its reservation becomes
	// committed exposure and must keep blocking.
	m.Settle(qa)
	if err := m.ApplyOpen("mkt-1", 60); err != nil {
		t.Fatalf("ApplyOpen: %v", err)
	}
	if m.Admit(qb) {
		t.Fatal("committed exposure no longer blocks after settle")
	}

	// The position closes; capacity returns.
	m.Release("mkt-1", 60)
	if !m.Admit(qb) {
		t.Fatal("capacity not restored after release")
	}
}

func TestSettleReleasesExpiredReservation(t *testing.T) {
	m := NewManager(100, 100)
	q := bidQuote("mkt-1", 80)
	if !m.Admit(q) {
		t.Fatal("bid within caps was denied")
	}
	if m.Admit(bidQuote("mkt-2", 40)) {
		t.Fatal("bid admitted against a held reservation")
	}

	// The quote expires unfilled; its reservation must vanish.
	m.Settle(q)
	if got := m.PendingUSD(); got != 0 {
		t.Fatalf("pending = %v, want 0 after settle", got)
	}
	if !m.Admit(bidQuote("mkt-2", 40)) {
		t.Fatal("capacity not restored after expiry")
	}
}

// No sequence of admitted quotes can push exposure above either cap, even
// when a whole batch is admitted before any of it resolves, which is how
// the tick loop behaves across markets.
func TestProperty_AdmissionSafety(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxPer := rapid.Float64Range(1, 1000).Draw(t, "maxPer")
		maxTotal := rapid.Float64Range(maxPer, 5000).Draw(t, "maxTotal")
		m := NewManager(maxTotal, maxPer)

		rounds := rapid.IntRange(1, 40).Draw(t, "rounds")
		for i := 0; i < rounds; i++ {
			batch := rapid.IntRange(1, 8).Draw(t, "batch")
			var admitted []domain.Quote
			for j := 0; j < batch; j++ {
				market := fmt.Sprintf("mkt-%d", rapid.IntRange(0, 7).Draw(t, "market"))
				size := rapid.Float64Range(0.01, 400).Draw(t, "size")
				q := bidQuote(market, size)
				if m.Admit(q) {
					admitted = append(admitted, q)
				}
			}

			// Resolve the batch: every admitted quote settles, a random
			// subset fills.
			for _, q := range admitted {
				m.Settle(q)
				if !rapid.Bool().Draw(t, "fills") {
					continue
				}
				if err := m.ApplyOpen(q.MarketID, q.SizeUSD); err != nil {
					t.Fatalf("admitted quote breached on apply: %v", err)
				}
				if m.TotalUSD() > maxTotal+1e-6 {
					t.Fatalf("total %.6f above cap %.6f", m.TotalUSD(), maxTotal)
				}
				if m.NetUSD(q.MarketID) > maxPer+1e-6 {
					t.Fatalf("market %s at %.6f above cap %.6f", q.MarketID, m.NetUSD(q.MarketID), maxPer)
				}
			}
		}
		if m.PendingUSD() != 0 {
			t.Fatalf("pending = %v after all quotes settled, want 0", m.PendingUSD())
		}
	})
}
