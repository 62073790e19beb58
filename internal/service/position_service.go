package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/bits"

	"github.com/farsight-markets/farsight/internal/domain"
	"github.com/farsight-markets/farsight/internal/fees"
	"github.com/farsight-markets/farsight/internal/num"
)

// PositionService implements the collateral-backed position operations on
// multi-outcome markets: split, merge, and NegRisk conversion. None of them
// touch the pools; they move collateral against share balances directly.
type PositionService struct {
	markets   domain.MultiMarketStore
	answers   domain.AnswerStore
	positions domain.MultiPositionStore
	ledger    domain.CollateralLedger
	locks     domain.LockManager
	tx        domain.TxRunner
	audit     domain.AuditStore
	logger    *slog.Logger
}

// NewPositionService creates a PositionService with all required
// dependencies.
func NewPositionService(
	markets domain.MultiMarketStore,
	answers domain.AnswerStore,
	positions domain.MultiPositionStore,
	ledger domain.CollateralLedger,
	locks domain.LockManager,
	tx domain.TxRunner,
	audit domain.AuditStore,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		markets:   markets,
		answers:   answers,
		positions: positions,
		ledger:    ledger,
		locks:     locks,
		tx:        tx,
		audit:     audit,
		logger:    logger,
	}
}

// Split deposits amount collateral and mints amount YES plus amount NO on
// one answer, a guaranteed 1:1 alternative to pool pricing.
func (s *PositionService) Split(ctx context.Context, marketID string, answerIndex uint8, owner string, amount uint64) error {
	if amount == 0 {
		return &domain.ValidationError{Code: domain.CodeInvalidAmount, Field: "amount", Value: amount}
	}

	unlock, err := s.locks.Acquire(ctx, lockKey(marketID), lockTTL)
	if err != nil {
		return fmt.Errorf("position_service: acquire lock: %w", err)
	}
	defer unlock()

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.answers.Get(ctx, marketID, answerIndex); err != nil {
			return fmt.Errorf("position_service: get answer %d: %w", answerIndex, err)
		}

		pos, err := s.getOrInitPosition(ctx, marketID, owner)
		if err != nil {
			return err
		}
		slot := int(answerIndex)
		var ok bool
		if pos.YesShares[slot], ok = num.Add(pos.YesShares[slot], amount); !ok {
			return &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "split yes shares"}
		}
		if pos.NoShares[slot], ok = num.Add(pos.NoShares[slot], amount); !ok {
			return &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "split no shares"}
		}

		if err := s.ledger.DebitUser(ctx, marketID, owner, amount); err != nil {
			return fmt.Errorf("position_service: debit collateral: %w", err)
		}
		if err := s.positions.Upsert(ctx, pos); err != nil {
			return fmt.Errorf("position_service: upsert position: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.auditLog(ctx, "position_split", map[string]any{
		"market_id": marketID,
		"answer":    answerIndex,
		"owner":     owner,
		"amount":    amount,
	})
	s.logger.InfoContext(ctx, "position_service: split",
		slog.String("market_id", marketID),
		slog.Int("answer", int(answerIndex)),
		slog.Uint64("amount", amount),
	)
	return nil
}

// Merge burns amount YES plus amount NO on one answer and releases amount
// collateral, the exact inverse of Split.
func (s *PositionService) Merge(ctx context.Context, marketID string, answerIndex uint8, owner string, amount uint64) error {
	if amount == 0 {
		return &domain.ValidationError{Code: domain.CodeInvalidAmount, Field: "amount", Value: amount}
	}

	unlock, err := s.locks.Acquire(ctx, lockKey(marketID), lockTTL)
	if err != nil {
		return fmt.Errorf("position_service: acquire lock: %w", err)
	}
	defer unlock()

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.answers.Get(ctx, marketID, answerIndex); err != nil {
			return fmt.Errorf("position_service: get answer %d: %w", answerIndex, err)
		}

		pos, err := s.getOrInitPosition(ctx, marketID, owner)
		if err != nil {
			return err
		}
		slot := int(answerIndex)
		if pos.YesShares[slot] < amount || pos.NoShares[slot] < amount {
			return &domain.PreconditionError{Code: domain.CodeInsufficientShares, Detail: marketID}
		}
		pos.YesShares[slot] -= amount
		pos.NoShares[slot] -= amount

		if err := s.positions.Upsert(ctx, pos); err != nil {
			return fmt.Errorf("position_service: upsert position: %w", err)
		}
		if err := s.ledger.CreditUser(ctx, marketID, owner, amount); err != nil {
			return fmt.Errorf("position_service: credit collateral: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.auditLog(ctx, "position_merged", map[string]any{
		"market_id": marketID,
		"answer":    answerIndex,
		"owner":     owner,
		"amount":    amount,
	})
	s.logger.InfoContext(ctx, "position_service: merge",
		slog.String("market_id", marketID),
		slog.Int("answer", int(answerIndex)),
		slog.Uint64("amount", amount),
	)
	return nil
}

// Convert burns amount NO shares on every answer in indexSet and mints the
// net-of-fee amount of YES on every other answer, releasing (k-1) times the
// net amount as collateral, where k is the number of set bits. The burned NO
// is gone forever. One-winner markets only.
func (s *PositionService) Convert(ctx context.Context, marketID, owner string, indexSet uint16, amount uint64) (domain.ConvertResult, error) {
	unlock, err := s.locks.Acquire(ctx, lockKey(marketID), lockTTL)
	if err != nil {
		return domain.ConvertResult{}, fmt.Errorf("position_service: acquire lock: %w", err)
	}
	defer unlock()

	var result domain.ConvertResult
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		m, err := s.markets.Get(ctx, marketID)
		if err != nil {
			return fmt.Errorf("position_service: get market %q: %w", marketID, err)
		}
		if !m.IsOneWinner {
			return &domain.PreconditionError{Code: domain.CodeNotOneWinnerMarket, Detail: marketID}
		}
		if m.Resolved {
			return &domain.PreconditionError{Code: domain.CodeMarketResolved, Detail: marketID}
		}
		if indexSet == 0 || indexSet>>m.AnswerCount != 0 {
			return &domain.ValidationError{Code: domain.CodeInvalidIndexSet, Field: "index_set", Value: indexSet}
		}
		if amount == 0 {
			// Explicit no-op.
			return nil
		}

		k := uint64(bits.OnesCount16(indexSet))
		if k == 0 {
			return &domain.PreconditionError{Code: domain.CodeNoConvertiblePositions, Detail: marketID}
		}

		pos, err := s.getOrInitPosition(ctx, marketID, owner)
		if err != nil {
			return err
		}
		for i := 0; i < int(m.AnswerCount); i++ {
			if indexSet&(1<<i) != 0 && pos.NoShares[i] < amount {
				return &domain.PreconditionError{Code: domain.CodeInsufficientShares, Detail: fmt.Sprintf("answer %d", i)}
			}
		}

		fee := fees.Fee(amount, m.FeeBps)
		afterFee := amount - fee

		for i := 0; i < int(m.AnswerCount); i++ {
			if indexSet&(1<<i) != 0 {
				pos.NoShares[i] -= amount
				continue
			}
			var ok bool
			if pos.YesShares[i], ok = num.Add(pos.YesShares[i], afterFee); !ok {
				return &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "convert yes shares"}
			}
		}

		collateralOut, ok := num.Mul(k-1, afterFee)
		if !ok {
			return &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "convert collateral"}
		}
		totalFee, ok := num.Mul(fee, k-1)
		if !ok {
			return &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "convert fee"}
		}

		if err := s.positions.Upsert(ctx, pos); err != nil {
			return fmt.Errorf("position_service: upsert position: %w", err)
		}
		if totalFee > 0 {
			if err := s.ledger.CollectFee(ctx, marketID, totalFee); err != nil {
				return fmt.Errorf("position_service: collect fee: %w", err)
			}
		}
		if collateralOut > 0 {
			if err := s.ledger.CreditUser(ctx, marketID, owner, collateralOut); err != nil {
				return fmt.Errorf("position_service: credit collateral: %w", err)
			}
		}

		result = domain.ConvertResult{
			BurnedAnswers: uint8(k),
			MintedPerLeg:  afterFee,
			CollateralOut: collateralOut,
			FeeCollected:  totalFee,
		}
		return nil
	})
	if err != nil {
		return domain.ConvertResult{}, err
	}

	s.auditLog(ctx, "positions_converted", map[string]any{
		"market_id": marketID,
		"owner":     owner,
		"index_set": indexSet,
		"amount":    amount,
		"payout":    result.CollateralOut,
	})
	s.logger.InfoContext(ctx, "position_service: convert",
		slog.String("market_id", marketID),
		slog.Int("burned_answers", int(result.BurnedAnswers)),
		slog.Uint64("collateral_out", result.CollateralOut),
	)
	return result, nil
}

func (s *PositionService) getOrInitPosition(ctx context.Context, marketID, owner string) (domain.MultiPosition, error) {
	pos, err := s.positions.Get(ctx, marketID, owner)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.MultiPosition{Owner: owner, Market: marketID}, nil
		}
		return domain.MultiPosition{}, fmt.Errorf("position_service: get position: %w", err)
	}
	return pos, nil
}

func (s *PositionService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "position_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
