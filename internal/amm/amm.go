// Package amm implements the constant-product-style pool pricing engine for
// YES/NO markets. Buying one side adds the net amount to the opposite pool,
// which raises the purchased side's subsequent cost; selling drains the
// opposite pool by the payout.
//
// Every function here is a pure computation over pool values. It returns
// proposed pool states; the service layer applies them in one storage
// transaction so no intermediate state is ever observable.
package amm

import (
	"github.com/farsight-markets/farsight/internal/domain"
	"github.com/farsight-markets/farsight/internal/num"
)

// PoolChange is the proposed post-trade pool state.
type PoolChange struct {
	YesPool uint64
	NoPool  uint64
}

// Prices returns the implied YES and NO prices in bps. They sum to exactly
// 10000 by construction: NO is computed as the complement of the floored
// YES price.
func Prices(yesPool, noPool uint64) (domain.PriceQuote, error) {
	total, ok := num.Add(yesPool, noPool)
	if !ok {
		return domain.PriceQuote{}, &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "pool total"}
	}
	if total == 0 {
		return domain.PriceQuote{}, &domain.PreconditionError{Code: domain.CodeInsufficientLiquidity, Detail: "empty pools"}
	}
	yes, _ := num.MulDiv(noPool, domain.PriceScale, total)
	return domain.PriceQuote{YesBps: yes, NoBps: domain.PriceScale - yes}, nil
}

// SpotPrice returns the bps price of one side: the YES price for isYes,
// otherwise the NO price computed directly as yesPool*10000/total.
func SpotPrice(yesPool, noPool uint64, isYes bool) (uint64, error) {
	total, ok := num.Add(yesPool, noPool)
	if !ok {
		return 0, &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "pool total"}
	}
	if total == 0 {
		return 0, &domain.PreconditionError{Code: domain.CodeInsufficientLiquidity, Detail: "empty pools"}
	}
	if isYes {
		p, _ := num.MulDiv(noPool, domain.PriceScale, total)
		return p, nil
	}
	p, _ := num.MulDiv(yesPool, domain.PriceScale, total)
	return p, nil
}

// SharesOut returns the shares minted for a net buy of amount on one side:
// amount + amount*samePool/(oppositePool+amount), with the denominator
// floored at 1. The formula is deliberately not the algebraic inverse of
// SellPayout; the asymmetry is part of the model.
func SharesOut(yesPool, noPool, amount uint64, isYes bool) (uint64, error) {
	same, opposite := yesPool, noPool
	if !isYes {
		same, opposite = noPool, yesPool
	}

	den, ok := num.Add(opposite, amount)
	if !ok {
		return 0, &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "shares-out denominator"}
	}
	if den == 0 {
		den = 1
	}
	bonus, ok := num.MulDiv(amount, same, den)
	if !ok {
		return 0, &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "shares-out product"}
	}
	out, ok := num.Add(amount, bonus)
	if !ok {
		return 0, &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "shares-out total"}
	}
	return out, nil
}

// Buy computes the shares minted for a net amount and the resulting pools.
// Buying YES grows the NO pool by amount, and vice versa.
func Buy(yesPool, noPool, amount uint64, isYes bool) (uint64, PoolChange, error) {
	shares, err := SharesOut(yesPool, noPool, amount, isYes)
	if err != nil {
		return 0, PoolChange{}, err
	}

	pc := PoolChange{YesPool: yesPool, NoPool: noPool}
	if isYes {
		grown, ok := num.Add(noPool, amount)
		if !ok {
			return 0, PoolChange{}, &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "buy pool growth"}
		}
		pc.NoPool = grown
	} else {
		grown, ok := num.Add(yesPool, amount)
		if !ok {
			return 0, PoolChange{}, &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "buy pool growth"}
		}
		pc.YesPool = grown
	}
	return shares, pc, nil
}

// Sell computes the payout for shares sold on one side and the resulting
// pools: payout = shares*oppositePool/(samePool+shares), drained from the
// opposite pool.
func Sell(yesPool, noPool, shares uint64, isYes bool) (uint64, PoolChange, error) {
	same, opposite := yesPool, noPool
	if !isYes {
		same, opposite = noPool, yesPool
	}

	den, ok := num.Add(same, shares)
	if !ok {
		return 0, PoolChange{}, &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "sell denominator"}
	}
	payout, ok := num.MulDiv(shares, opposite, den)
	if !ok {
		return 0, PoolChange{}, &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "sell payout"}
	}
	drained, ok := num.Sub(opposite, payout)
	if !ok {
		return 0, PoolChange{}, &domain.ArithmeticError{Code: domain.CodeUnderflow, Op: "sell pool drain"}
	}

	pc := PoolChange{YesPool: yesPool, NoPool: noPool}
	if isYes {
		pc.NoPool = drained
	} else {
		pc.YesPool = drained
	}
	return payout, pc, nil
}

// CheckTradeSize rejects multi-outcome trades larger than a quarter of the
// answer's total pool. Binary markets carry no such guard.
func CheckTradeSize(yesPool, noPool, amount uint64) error {
	total, ok := num.Add(yesPool, noPool)
	if !ok {
		return &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "pool total"}
	}
	if max := total / 4; amount > max {
		return &domain.ResourceLimitError{Code: domain.CodeTradeTooLarge, Limit: max, Actual: amount}
	}
	return nil
}
