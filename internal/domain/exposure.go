package domain

// ExposureState is the published view of open cost basis at risk, per
// market and in aggregate. It is a copy; mutating it does not affect the
// exposure manager.
type ExposureState struct {
	PerMarketUSD map[string]float64
	TotalUSD     float64
}
