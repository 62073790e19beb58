// Package orderbook implements the limit-order book index and the greedy
// matching engine. The engine consumes candidates strictly in the order the
// caller presents them; it enforces market, answer, side, and price
// compatibility per candidate but never re-sorts for price-optimality across
// the set. Book buckets store insertion order only, so priority is
// placement-time priority.
package orderbook

import (
	"github.com/farsight-markets/farsight/internal/domain"
	"github.com/farsight-markets/farsight/internal/num"
)

// MatchResult reports how much of a request the book absorbed.
type MatchResult struct {
	FilledAmount    uint64
	RemainingAmount uint64
	MatchedPrice    uint64
}

// Match greedily fills the request against candidates. A candidate fills only
// when it belongs to marketID, carries the same answer index (both nil for
// binary), sits on the opposite side and direction, has remaining quantity,
// and is price-compatible: at or below the limit for buys, at or above for
// sells. Compatible candidates have FilledQty bumped in place; the caller is
// responsible for persisting them and destroying fully-filled ones.
func Match(marketID string, candidates []*domain.LimitOrder, answerIndex *uint8, isYes, isBuy bool, limitPrice, amount uint64) MatchResult {
	remaining := amount
	var filled uint64

	for _, o := range candidates {
		if remaining == 0 {
			break
		}
		if o.Market != marketID {
			continue
		}
		if !sameAnswer(o.AnswerIndex, answerIndex) {
			continue
		}
		// Opposite side and opposite direction only.
		if o.IsYes == isYes || o.IsBid == isBuy {
			continue
		}
		if o.FilledQty >= o.Qty {
			continue
		}

		compatible := o.Price <= limitPrice
		if !isBuy {
			compatible = o.Price >= limitPrice
		}
		if !compatible {
			continue
		}

		fill := num.Min(remaining, o.Remaining())
		o.FilledQty += fill
		filled += fill
		remaining -= fill
	}

	return MatchResult{
		FilledAmount:    filled,
		RemainingAmount: remaining,
		MatchedPrice:    limitPrice,
	}
}

func sameAnswer(a, b *uint8) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// MatchedShares converts a matched buy amount into shares at the pre-trade
// spot price: filled*10000/max(price,1).
func MatchedShares(filled, spotPriceBps uint64) (uint64, error) {
	p := spotPriceBps
	if p == 0 {
		p = 1
	}
	shares, ok := num.MulDiv(filled, domain.PriceScale, p)
	if !ok {
		return 0, &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "matched shares"}
	}
	return shares, nil
}

// MatchedPayout converts matched sold shares into collateral at the
// pre-trade spot price: filled*price/10000.
func MatchedPayout(filled, spotPriceBps uint64) (uint64, error) {
	payout, ok := num.MulDiv(filled, spotPriceBps, domain.PriceScale)
	if !ok {
		return 0, &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "matched payout"}
	}
	return payout, nil
}
