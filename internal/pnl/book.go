package pnl

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/quantfold/mmsim/internal/domain"
)

// Book holds the cash balance and every position lot for one run. Bids
// open a new lot; asks close the oldest open lot in the market (FIFO).
// The tick loop is single-threaded, so the Book has no locking.
type Book struct {
	runID       string
	bankrollUSD float64

	cashUSD     float64
	feesPaidUSD float64
	positions   []*domain.Position
	openByMkt   map[string][]*domain.Position
}

// NewBook creates a Book funded with the run's bankroll.
func NewBook(runID string, bankrollUSD float64) *Book {
	return &Book{
		runID:       runID,
		bankrollUSD: bankrollUSD,
		cashUSD:     bankrollUSD,
		openByMkt:   make(map[string][]*domain.Position),
	}
}

// Open records a bid fill as a new open lot. Cash decreases by the cost
// basis plus fees; the lot's share count is derived from the fill price.
func (b *Book) Open(marketID string, tick int, fillPrice, costBasisUSD, feesUSD float64) (*domain.Position, error) {
	shares, err := ComputeShares(costBasisUSD, fillPrice)
	if err != nil {
		return nil, fmt.Errorf("pnl: open %s: %w", marketID, err)
	}

	pos := &domain.Position{
		ID:           uuid.NewString(),
		RunID:        b.runID,
		MarketID:     marketID,
		Side:         domain.SideBid,
		Shares:       shares,
		EntryPrice:   fillPrice,
		CostBasisUSD: costBasisUSD,
		CurrentPrice: domain.Float64Ptr(fillPrice),
		Status:       domain.PositionStatusOpen,
		OpenedAtTick: tick,
	}
	b.positions = append(b.positions, pos)
	b.openByMkt[marketID] = append(b.openByMkt[marketID], pos)
	b.cashUSD -= costBasisUSD + feesUSD
	b.feesPaidUSD += feesUSD
	return pos, nil
}

// CloseOldest closes the market's oldest open lot at the given exit price.
// Cash increases by the proceeds net of fees. Returns ErrNotFound when the
// market has no open inventory.
func (b *Book) CloseOldest(marketID string, tick int, exitPrice, feesUSD float64) (*domain.Position, error) {
	open := b.openByMkt[marketID]
	if len(open) == 0 {
		return nil, fmt.Errorf("pnl: close %s: no open lot: %w", marketID, domain.ErrNotFound)
	}
	pos := open[0]
	b.openByMkt[marketID] = open[1:]
	if len(b.openByMkt[marketID]) == 0 {
		delete(b.openByMkt, marketID)
	}

	pos.Status = domain.PositionStatusClosed
	pos.CurrentPrice = nil
	pos.ExitPrice = domain.Float64Ptr(exitPrice)
	pos.ProceedsUSD = Proceeds(pos.Shares, exitPrice)
	pos.RealizedPnLUSD = RealizedPnL(pos.ProceedsUSD, pos.CostBasisUSD)
	pos.ClosedAtTick = &tick

	b.cashUSD += pos.ProceedsUSD - feesUSD
	b.feesPaidUSD += feesUSD
	return pos, nil
}

// MarkPrice updates the mark on every open lot in the market.
func (b *Book) MarkPrice(marketID string, price float64) {
	for _, pos := range b.openByMkt[marketID] {
		pos.CurrentPrice = domain.Float64Ptr(price)
	}
}

// OpenCostBasisUSD returns the cost basis tied up in the market's open
// lots. The quoting strategy uses it as the net inventory signal.
func (b *Book) OpenCostBasisUSD(marketID string) float64 {
	var total float64
	for _, pos := range b.openByMkt[marketID] {
		total += pos.CostBasisUSD
	}
	return total
}

// OpenShares returns the shares held across the market's open lots.
func (b *Book) OpenShares(marketID string) float64 {
	var total float64
	for _, pos := range b.openByMkt[marketID] {
		total += pos.Shares
	}
	return total
}

// CashUSD returns the current cash balance.
func (b *Book) CashUSD() float64 { return b.cashUSD }

// FeesPaidUSD returns cumulative fees deducted from cash.
func (b *Book) FeesPaidUSD() float64 { return b.feesPaidUSD }

// BankrollUSD returns the starting cash.
func (b *Book) BankrollUSD() float64 { return b.bankrollUSD }

// Positions returns every lot, open and closed, in open order.
func (b *Book) Positions() []*domain.Position { return b.positions }

// PortfolioValueUSD returns cash plus the mark-to-market value of every
// open lot.
func (b *Book) PortfolioValueUSD() float64 {
	total := b.cashUSD
	for _, open := range b.openByMkt {
		for _, pos := range open {
			total += pos.CurrentValueUSD()
		}
	}
	return total
}

// RealizedPnLUSD returns the summed realized profit across closed lots.
func (b *Book) RealizedPnLUSD() float64 {
	var total float64
	for _, pos := range b.positions {
		if pos.Status == domain.PositionStatusClosed {
			total += pos.RealizedPnLUSD
		}
	}
	return total
}

// UnrealizedPnLUSD returns the summed mark-to-market profit across open
// lots.
func (b *Book) UnrealizedPnLUSD() float64 {
	var total float64
	for _, open := range b.openByMkt {
		for _, pos := range open {
			total += pos.UnrealizedPnLUSD()
		}
	}
	return total
}
