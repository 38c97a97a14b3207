// Package pnl is the single source of truth for position accounting. Every
// derived field stored on a position is produced by the functions here, and
// the Reconciler recomputes the same identities from primitives each tick to
// catch drift between stored and true values.
package pnl

import "fmt"

// Eps is the absolute tolerance used when comparing recomputed values
// against stored ones.
const Eps = 1e-6

// ComputeShares converts a USD cost basis into a share count. A
// non-positive entry price makes the share count undefined and is a fatal
// input error, never a zero result.
func ComputeShares(costBasisUSD, entryPrice float64) (float64, error) {
	if entryPrice <= 0 {
		return 0, fmt.Errorf("pnl: entry price must be positive, got %v", entryPrice)
	}
	return costBasisUSD / entryPrice, nil
}

// CostBasis returns the USD spent acquiring the given shares.
func CostBasis(shares, entryPrice float64) float64 {
	return shares * entryPrice
}

// Proceeds returns the USD received for selling the given shares.
func Proceeds(shares, exitPrice float64) float64 {
	return shares * exitPrice
}

// RealizedPnL returns the profit on a closed lot.
func RealizedPnL(proceedsUSD, costBasisUSD float64) float64 {
	return proceedsUSD - costBasisUSD
}

// UnrealizedPnL returns the mark-to-market profit on an open lot.
func UnrealizedPnL(shares, entryPrice, currentPrice float64) float64 {
	return shares * (currentPrice - entryPrice)
}

// CurrentValue returns the mark-to-market USD value of an open lot.
func CurrentValue(shares, currentPrice float64) float64 {
	return shares * currentPrice
}
