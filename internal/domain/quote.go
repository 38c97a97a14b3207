package domain

// Side indicates which side of the book a quote rests on.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// QuoteStatus tracks the one-tick quote lifecycle.
type QuoteStatus string

const (
	QuotePosted     QuoteStatus = "posted"
	QuoteFilled     QuoteStatus = "filled"
	QuoteExpired    QuoteStatus = "expired"
	QuoteSuppressed QuoteStatus = "suppressed"
)

// Quote is a candidate passive limit quote. Quotes live for at most one
// tick: posted against one snapshot, resolved against the next, then either
// filled or expired. Price is a probability in [0,1], size is USD notional.
type Quote struct {
	MarketID       string
	Side           Side
	Price          float64
	SizeUSD        float64
	PostedAtTick   int
	Status         QuoteStatus
	SuppressReason string
}

// FillOutcome describes a simulated execution of a quote.
type FillOutcome struct {
	Price   float64
	SizeUSD float64
	// Probability diagnostics from the probabilistic model; zero for the
	// strict model.
	FillProbability float64
	Draw            float64
}
