package pnl

import (
	"fmt"
	"math"

	"github.com/quantfold/mmsim/internal/domain"
)

// Reconciler recomputes every derived accounting field from primitives and
// compares against the stored values. It runs once per tick and once at run
// end. A mismatch is never suppressed: the caller halts the run.
type Reconciler struct {
	Eps float64
}

// NewReconciler returns a Reconciler with the given tolerance, defaulting
// to Eps when zero.
func NewReconciler(eps float64) *Reconciler {
	if eps <= 0 {
		eps = Eps
	}
	return &Reconciler{Eps: eps}
}

// Check validates every position invariant and the portfolio cash identity.
// The returned error wraps ErrReconciliation and names the first mismatched
// field with its stored and recomputed values.
func (r *Reconciler) Check(b *Book, tick int) error {
	var closedProceeds, allCostBasis float64

	for _, pos := range b.Positions() {
		if err := r.checkPosition(pos, tick); err != nil {
			return err
		}
		allCostBasis += pos.CostBasisUSD
		if pos.Status == domain.PositionStatusClosed {
			closedProceeds += pos.ProceedsUSD
		}
	}

	wantCash := b.BankrollUSD() - allCostBasis + closedProceeds - b.FeesPaidUSD()
	if math.Abs(b.CashUSD()-wantCash) > r.Eps {
		return r.mismatch(tick, "", "cash_usd", b.CashUSD(), wantCash)
	}

	wantPortfolio := b.CashUSD()
	for _, pos := range b.Positions() {
		wantPortfolio += pos.CurrentValueUSD()
	}
	if math.Abs(b.PortfolioValueUSD()-wantPortfolio) > r.Eps {
		return r.mismatch(tick, "", "portfolio_value_usd", b.PortfolioValueUSD(), wantPortfolio)
	}
	return nil
}

func (r *Reconciler) checkPosition(pos *domain.Position, tick int) error {
	if pos.EntryPrice <= 0 {
		return fmt.Errorf("pnl: reconcile tick %d: position %s: non-positive entry price %v: %w",
			tick, pos.ID, pos.EntryPrice, domain.ErrReconciliation)
	}

	open := pos.Status == domain.PositionStatusOpen
	if open == (pos.ExitPrice != nil) || open != (pos.CurrentPrice != nil) {
		return fmt.Errorf("pnl: reconcile tick %d: position %s: open/closed price fields inconsistent: %w",
			tick, pos.ID, domain.ErrReconciliation)
	}

	wantShares := pos.CostBasisUSD / pos.EntryPrice
	if math.Abs(pos.Shares-wantShares) > r.Eps {
		return r.mismatch(tick, pos.ID, "shares", pos.Shares, wantShares)
	}

	if !open {
		wantProceeds := Proceeds(pos.Shares, *pos.ExitPrice)
		if math.Abs(pos.ProceedsUSD-wantProceeds) > r.Eps {
			return r.mismatch(tick, pos.ID, "proceeds_usd", pos.ProceedsUSD, wantProceeds)
		}
		wantRealized := RealizedPnL(pos.ProceedsUSD, pos.CostBasisUSD)
		if math.Abs(pos.RealizedPnLUSD-wantRealized) > r.Eps {
			return r.mismatch(tick, pos.ID, "realized_pnl_usd", pos.RealizedPnLUSD, wantRealized)
		}
	}
	return nil
}

func (r *Reconciler) mismatch(tick int, positionID, field string, stored, want float64) error {
	if positionID == "" {
		return fmt.Errorf("pnl: reconcile tick %d: %s stored %.8f, recomputed %.8f: %w",
			tick, field, stored, want, domain.ErrReconciliation)
	}
	return fmt.Errorf("pnl: reconcile tick %d: position %s: %s stored %.8f, recomputed %.8f: %w",
		tick, positionID, field, stored, want, domain.ErrReconciliation)
}
