// Package fees implements basis-point fee assessment. Every money-moving
// operation consults it before funds reach a pool or the ledger: fees come
// off the incoming amount on buys and off the computed payout on sells.
package fees

import (
	"github.com/farsight-markets/farsight/internal/domain"
	"github.com/farsight-markets/farsight/internal/num"
)

// MaxTotalFeeBps caps the sum of all configured fee categories at 10%.
const MaxTotalFeeBps = 1000

// Schedule is a market's fee configuration, one rate per category.
type Schedule struct {
	FeeBps          uint16
	CreatorFeeBps   uint16
	PlatformFeeBps  uint16
	LiquidityFeeBps uint16
}

// Total returns the combined rate across all categories. Widened to uint32
// so four maximal uint16 rates cannot wrap.
func (s Schedule) Total() uint32 {
	return uint32(s.FeeBps) + uint32(s.CreatorFeeBps) + uint32(s.PlatformFeeBps) + uint32(s.LiquidityFeeBps)
}

// Validate rejects schedules whose combined rate exceeds MaxTotalFeeBps.
func (s Schedule) Validate() error {
	if total := s.Total(); total > MaxTotalFeeBps {
		return &domain.ValidationError{Code: domain.CodeFeesTooHigh, Field: "fee_bps", Value: total}
	}
	return nil
}

// Fee returns floor(amount*feeBps/10000) through a widened intermediate.
// A zero rate always yields a zero fee.
func Fee(amount uint64, feeBps uint16) uint64 {
	if feeBps == 0 {
		return 0
	}
	// The quotient is at most amount/10 so it always fits.
	f, _ := num.MulDiv(amount, uint64(feeBps), domain.PriceScale)
	return f
}
