package pnl

import (
	"errors"
	"math"
	"testing"

	"pgregory.net/rapid"

	"github.com/quantfold/mmsim/internal/domain"
)

func TestComputeShares(t *testing.T) {
	shares, err := ComputeShares(100, 0.50)
	if err != nil {
		t.Fatalf("ComputeShares: %v", err)
	}
	if shares != 200 {
		t.Fatalf("shares = %v, want 200", shares)
	}

	if _, err := ComputeShares(100, 0); err == nil {
		t.Fatal("expected error for zero entry price")
	}
	if _, err := ComputeShares(100, -0.1); err == nil {
		t.Fatal("expected error for negative entry price")
	}
}

// Open at 0.50 with 100 USD, close at 0.60: 200 shares, 120 proceeds,
// 20 realized.
func TestRoundTrip(t *testing.T) {
	b := NewBook("run-1", 1000)

	pos, err := b.Open("mkt-1", 1, 0.50, 100, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if pos.Shares != 200 {
		t.Fatalf("shares = %v, want 200", pos.Shares)
	}
	if got := b.CashUSD(); got != 900 {
		t.Fatalf("cash after open = %v, want 900", got)
	}
	if got := b.OpenCostBasisUSD("mkt-1"); got != 100 {
		t.Fatalf("open cost basis = %v, want 100", got)
	}

	closed, err := b.CloseOldest("mkt-1", 5, 0.60, 0)
	if err != nil {
		t.Fatalf("CloseOldest: %v", err)
	}
	if math.Abs(closed.ProceedsUSD-120) > Eps {
		t.Fatalf("proceeds = %v, want 120", closed.ProceedsUSD)
	}
	if math.Abs(closed.RealizedPnLUSD-20) > Eps {
		t.Fatalf("realized = %v, want 20", closed.RealizedPnLUSD)
	}
	if closed.ClosedAtTick == nil || *closed.ClosedAtTick != 5 {
		t.Fatal("closed tick not recorded")
	}
	if math.Abs(b.CashUSD()-1020) > Eps {
		t.Fatalf("cash after close = %v, want 1020", b.CashUSD())
	}
	if got := b.OpenCostBasisUSD("mkt-1"); got != 0 {
		t.Fatalf("open cost basis after close = %v, want 0", got)
	}
}

func TestCloseIsFIFO(t *testing.T) {
	b := NewBook("run-1", 1000)

	first, _ := b.Open("mkt-1", 1, 0.40, 40, 0)
	second, _ := b.Open("mkt-1", 2, 0.50, 50, 0)

	closed, err := b.CloseOldest("mkt-1", 3, 0.55, 0)
	if err != nil {
		t.Fatalf("CloseOldest: %v", err)
	}
	if closed.ID != first.ID {
		t.Fatal("closed the wrong lot: FIFO order not respected")
	}
	if second.Status != domain.PositionStatusOpen {
		t.Fatal("second lot should still be open")
	}
}

func TestCloseWithoutInventory(t *testing.T) {
	b := NewBook("run-1", 1000)
	if _, err := b.CloseOldest("mkt-1", 1, 0.60, 0); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFeesReduceCash(t *testing.T) {
	b := NewBook("run-1", 1000)
	if _, err := b.Open("mkt-1", 1, 0.50, 100, 0.25); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if math.Abs(b.CashUSD()-899.75) > Eps {
		t.Fatalf("cash = %v, want 899.75", b.CashUSD())
	}
	if _, err := b.CloseOldest("mkt-1", 2, 0.60, 0.25); err != nil {
		t.Fatalf("CloseOldest: %v", err)
	}
	if math.Abs(b.FeesPaidUSD()-0.50) > Eps {
		t.Fatalf("fees = %v, want 0.50", b.FeesPaidUSD())
	}
	if err := NewReconciler(0).Check(b, 2); err != nil {
		t.Fatalf("reconcile with fees: %v", err)
	}
}

func TestMarkPriceMovesUnrealized(t *testing.T) {
	b := NewBook("run-1", 1000)
	if _, err := b.Open("mkt-1", 1, 0.50, 100, 0); err != nil {
		t.Fatalf("Open: %v", err)
	}

	b.MarkPrice("mkt-1", 0.55)
	if math.Abs(b.UnrealizedPnLUSD()-10) > Eps {
		t.Fatalf("unrealized = %v, want 10", b.UnrealizedPnLUSD())
	}
	// cash 900 + 200 shares * 0.55
	if math.Abs(b.PortfolioValueUSD()-1010) > Eps {
		t.Fatalf("portfolio value = %v, want 1010", b.PortfolioValueUSD())
	}
}

func TestReconcilerCatchesCorruption(t *testing.T) {
	mk := func() *Book {
		b := NewBook("run-1", 1000)
		if _, err := b.Open("mkt-1", 1, 0.50, 100, 0); err != nil {
			t.Fatalf("Open: %v", err)
		}
		if _, err := b.Open("mkt-2", 1, 0.25, 50, 0); err != nil {
			t.Fatalf("Open: %v", err)
		}
		if _, err := b.CloseOldest("mkt-1", 2, 0.60, 0); err != nil {
			t.Fatalf("CloseOldest: %v", err)
		}
		return b
	}

	r := NewReconciler(0)
	if err := r.Check(mk(), 2); err != nil {
		t.Fatalf("clean book should reconcile: %v", err)
	}

	corruptions := map[string]func(b *Book){
		"shares":       func(b *Book) { b.Positions()[1].Shares += 1 },
		"proceeds":     func(b *Book) { b.Positions()[0].ProceedsUSD += 0.01 },
		"realized":     func(b *Book) { b.Positions()[0].RealizedPnLUSD -= 0.01 },
		"cash":         func(b *Book) { b.cashUSD += 5 },
		"price fields": func(b *Book) { b.Positions()[0].CurrentPrice = domain.Float64Ptr(0.5) },
	}
	for name, corrupt := range corruptions {
		b := mk()
		corrupt(b)
		if err := r.Check(b, 3); !errors.Is(err, domain.ErrReconciliation) {
			t.Fatalf("%s corruption: err = %v, want ErrReconciliation", name, err)
		}
	}
}

// A book driven only through its own methods reconciles after every step.
func TestProperty_BookAlwaysReconciles(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := NewBook("run-prop", 10_000)
		r := NewReconciler(0)
		markets := []string{"m1", "m2", "m3"}

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for tick := 0; tick < steps; tick++ {
			market := rapid.SampledFrom(markets).Draw(t, "market")
			price := rapid.Float64Range(0.01, 0.99).Draw(t, "price")

			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				size := rapid.Float64Range(1, 200).Draw(t, "size")
				if _, err := b.Open(market, tick, price, size, 0); err != nil {
					t.Fatalf("Open: %v", err)
				}
			case 1:
				if _, err := b.CloseOldest(market, tick, price, 0); err != nil &&
					!errors.Is(err, domain.ErrNotFound) {
					t.Fatalf("CloseOldest: %v", err)
				}
			case 2:
				b.MarkPrice(market, price)
			}

			if err := r.Check(b, tick); err != nil {
				t.Fatalf("reconcile failed on a clean book: %v", err)
			}
		}
	})
}
