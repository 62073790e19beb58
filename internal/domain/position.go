package domain

// Position tracks one owner's YES/NO share balances in a binary market.
// Shares are abstract claims, redeemable 1:1 against collateral only for the
// winning side after resolution. Positions are never destroyed, only zeroed
// on claim.
type Position struct {
	Owner     string
	Market    string
	YesShares uint64
	NoShares  uint64
}

// MultiPosition tracks share balances per answer of a multi-outcome market.
// The arrays are indexed by answer index; MaxAnswerCount caps the usable
// slots.
type MultiPosition struct {
	Owner     string
	Market    string
	YesShares [MaxAnswerCount]uint64
	NoShares  [MaxAnswerCount]uint64
}
