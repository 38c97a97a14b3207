package domain

// PositionStatus tracks whether a lot is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// Position is one lot of inventory, opened by a bid fill and closed by an
// ask fill. Exactly one of CurrentPrice (open) or ExitPrice (closed) is
// populated; the reconciliation gate treats any other shape as fatal.
//
// Canonical identities, enforced per tick:
//
//	Shares       = CostBasisUSD / EntryPrice
//	ProceedsUSD  = Shares * ExitPrice            (closed)
//	RealizedPnL  = ProceedsUSD - CostBasisUSD    (closed)
type Position struct {
	ID             string
	RunID          string
	MarketID       string
	Side           Side
	Shares         float64
	EntryPrice     float64
	CostBasisUSD   float64
	CurrentPrice   *float64
	ExitPrice      *float64
	ProceedsUSD    float64
	RealizedPnLUSD float64
	Status         PositionStatus
	OpenedAtTick   int
	ClosedAtTick   *int
}

// CurrentValueUSD returns shares * current price for an open lot, or 0 for
// a closed one.
func (p Position) CurrentValueUSD() float64 {
	if p.Status != PositionStatusOpen || p.CurrentPrice == nil {
		return 0
	}
	return p.Shares * *p.CurrentPrice
}

// UnrealizedPnLUSD returns (current - entry) * shares for an open lot.
func (p Position) UnrealizedPnLUSD() float64 {
	if p.Status != PositionStatusOpen || p.CurrentPrice == nil {
		return 0
	}
	return (*p.CurrentPrice - p.EntryPrice) * p.Shares
}
