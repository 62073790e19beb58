// Package negrisk keeps the per-answer pools of a one-winner multi-outcome
// market mutually consistent: after any pool mutation the implied YES
// probabilities across all answers must sum to exactly 10000 bps.
//
// The rebalancer cannot discover siblings itself; the orchestration layer
// supplies the sibling set inside the same atomic operation, and the engine
// only validates membership. Updates are applied to the passed copies; the
// caller persists them.
package negrisk

import (
	"github.com/farsight-markets/farsight/internal/domain"
	"github.com/farsight-markets/farsight/internal/num"
)

// maxNudgeBps bounds the rounding compensation: discrepancies of 100 bps or
// more indicate an inconsistent sibling set and are left alone.
const maxNudgeBps = 100

// Rebalance redistributes the probability budget 10000−newYesBps across the
// siblings of the just-traded answer, preserving each sibling's pool total.
// Entries for the traded answer, for other markets, or with empty pools are
// silently skipped. It fails with missing_siblings when fewer than
// expectedSiblings entries are supplied, and is a no-op success when no
// entry survives the filters. The returned slice holds the siblings whose
// pools changed, in processing order.
func Rebalance(tradedIndex uint8, newYesBps uint64, marketID string, expectedSiblings int, siblings []*domain.Answer) ([]*domain.Answer, error) {
	if len(siblings) < expectedSiblings {
		return nil, &domain.PreconditionError{
			Code:   domain.CodeMissingSiblings,
			Detail: marketID,
		}
	}

	type entry struct {
		answer *domain.Answer
		total  uint64
		prob   uint64
	}
	var (
		entries []entry
		probSum uint64
	)
	for _, s := range siblings {
		if s.Market != marketID || s.Index == tradedIndex {
			continue
		}
		total, ok := num.Add(s.YesPool, s.NoPool)
		if !ok {
			return nil, &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "sibling pool total"}
		}
		if total == 0 {
			continue
		}
		p, _ := num.MulDiv(s.NoPool, domain.PriceScale, total)
		probSum += p
		entries = append(entries, entry{answer: s, total: total, prob: p})
	}
	if len(entries) == 0 {
		return nil, nil
	}

	var targetSum uint64
	if newYesBps < domain.PriceScale {
		targetSum = domain.PriceScale - newYesBps
	}

	// Proportional redistribution, floor division per sibling.
	var realizedSum uint64
	updated := make([]*domain.Answer, 0, len(entries))
	for _, e := range entries {
		newProb := targetSum
		if probSum > 0 {
			p, ok := num.MulDiv(e.prob, targetSum, probSum)
			if !ok {
				return nil, &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "sibling probability"}
			}
			newProb = p
		}

		newNo, ok := num.MulDiv(e.total, newProb, domain.PriceScale)
		if !ok {
			return nil, &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "sibling no pool"}
		}
		e.answer.NoPool = newNo
		e.answer.YesPool = e.total - newNo

		realized, _ := num.MulDiv(e.answer.NoPool, domain.PriceScale, e.total)
		realizedSum += realized
		updated = append(updated, e.answer)
	}

	// Per-sibling floor division can leave the realized sum short of (or past)
	// the target. Nudge the last-processed sibling's NoPool by the signed
	// difference scaled to its pool units, clamped at zero, to force an exact
	// match.
	last := entries[len(entries)-1]
	if realizedSum != targetSum {
		var diff, sign uint64 // sign: 0 = add, 1 = subtract
		if targetSum > realizedSum {
			diff = targetSum - realizedSum
		} else {
			diff = realizedSum - targetSum
			sign = 1
		}
		if diff < maxNudgeBps {
			adj, _ := num.MulDiv(last.total, diff, domain.PriceScale)
			if sign == 0 {
				no, ok := num.Add(last.answer.NoPool, adj)
				if !ok {
					return nil, &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "sibling nudge"}
				}
				last.answer.NoPool = no
			} else if adj >= last.answer.NoPool {
				last.answer.NoPool = 0
			} else {
				last.answer.NoPool -= adj
			}
			if last.answer.NoPool >= last.total {
				last.answer.YesPool = 0
			} else {
				last.answer.YesPool = last.total - last.answer.NoPool
			}
		}
	}

	return updated, nil
}

// ProbabilitySum returns the summed implied YES probabilities (bps) of the
// given answers, skipping empty pool pairs. Used by the rebalance operation
// to report the post-rebalance invariant.
func ProbabilitySum(answers []domain.Answer) uint64 {
	var sum uint64
	for _, a := range answers {
		total := a.TotalPool()
		if total == 0 {
			continue
		}
		p, _ := num.MulDiv(a.NoPool, domain.PriceScale, total)
		sum += p
	}
	return sum
}
