package domain

// BuyResult summarizes a completed buy: how many shares were minted, how the
// net amount split between book fills and the pool, and the fee taken.
type BuyResult struct {
	SharesOut    uint64
	MatchedUnits uint64 // net amount filled against resting orders
	PooledUnits  uint64 // net amount priced by the pool
	Fee          uint64
	SpotPriceBps uint64 // pre-trade spot price used for matched fills
}

// SellResult summarizes a completed sell.
type SellResult struct {
	Payout       uint64 // collateral credited after fee
	MatchedUnits uint64
	PooledUnits  uint64
	Fee          uint64
	SpotPriceBps uint64
}

// PlaceOrderResult summarizes order placement. Rested is false when the
// order filled completely against the book and was never persisted.
type PlaceOrderResult struct {
	OrderID   string
	FilledQty uint64
	Rested    bool
}

// ConvertResult summarizes a NegRisk position conversion.
type ConvertResult struct {
	BurnedAnswers uint8  // popcount of the index set
	MintedPerLeg  uint64 // YES shares minted on each cleared-bit answer
	CollateralOut uint64
	FeeCollected  uint64
}

// ClaimResult summarizes a post-resolution claim.
type ClaimResult struct {
	Payout uint64
}
