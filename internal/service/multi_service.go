package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/farsight-markets/farsight/internal/amm"
	"github.com/farsight-markets/farsight/internal/domain"
	"github.com/farsight-markets/farsight/internal/fees"
	"github.com/farsight-markets/farsight/internal/negrisk"
	"github.com/farsight-markets/farsight/internal/num"
	"github.com/farsight-markets/farsight/internal/orderbook"
)

// MultiService handles multi-outcome markets: lifecycle, per-answer trading
// with NegRisk rebalancing, resolution, and claims.
type MultiService struct {
	markets   domain.MultiMarketStore
	answers   domain.AnswerStore
	positions domain.MultiPositionStore
	orders    domain.OrderStore
	books     domain.OrderbookStore
	ledger    domain.CollateralLedger
	auth      domain.Authorizer
	clock     domain.Clock
	locks     domain.LockManager
	tx        domain.TxRunner
	quotes    domain.QuoteCache
	bus       domain.SignalBus
	audit     domain.AuditStore
	blobs     domain.BlobWriter // optional settlement archive
	logger    *slog.Logger
}

// NewMultiService creates a MultiService with all required dependencies.
// blobs may be nil; settlement reports are then not archived.
func NewMultiService(
	markets domain.MultiMarketStore,
	answers domain.AnswerStore,
	positions domain.MultiPositionStore,
	orders domain.OrderStore,
	books domain.OrderbookStore,
	ledger domain.CollateralLedger,
	auth domain.Authorizer,
	clock domain.Clock,
	locks domain.LockManager,
	tx domain.TxRunner,
	quotes domain.QuoteCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	blobs domain.BlobWriter,
	logger *slog.Logger,
) *MultiService {
	return &MultiService{
		markets:   markets,
		answers:   answers,
		positions: positions,
		orders:    orders,
		books:     books,
		ledger:    ledger,
		auth:      auth,
		clock:     clock,
		locks:     locks,
		tx:        tx,
		quotes:    quotes,
		bus:       bus,
		audit:     audit,
		blobs:     blobs,
		logger:    logger,
	}
}

// CreateMultiMarketParams carries the request for CreateMultiMarket.
type CreateMultiMarketParams struct {
	Creator          string
	QuestionHash     [32]byte
	AnswerCount      uint8
	IsOneWinner      bool
	InitialLiquidity uint64
	FeeBps           uint16
	ResolutionTime   int64
}

// CreateMultiMarket creates a multi-outcome market shell. Answers are added
// individually with AddAnswer before trading can start.
func (s *MultiService) CreateMultiMarket(ctx context.Context, p CreateMultiMarketParams) (domain.MultiMarket, error) {
	if p.AnswerCount < domain.MinAnswerCount || p.AnswerCount > domain.MaxAnswerCount {
		return domain.MultiMarket{}, &domain.ValidationError{Code: domain.CodeInvalidAnswerCount, Field: "answer_count", Value: p.AnswerCount}
	}
	now := s.clock.Now()
	if p.ResolutionTime <= now {
		return domain.MultiMarket{}, &domain.ValidationError{Code: domain.CodeInvalidResolutionTime, Field: "resolution_time", Value: p.ResolutionTime}
	}
	if p.InitialLiquidity < domain.MinInitialLiquidity {
		return domain.MultiMarket{}, &domain.PreconditionError{Code: domain.CodeInsufficientLiquidity, Detail: "initial liquidity below minimum"}
	}
	if err := (fees.Schedule{FeeBps: p.FeeBps}).Validate(); err != nil {
		return domain.MultiMarket{}, err
	}

	m := domain.MultiMarket{
		ID:             uuid.NewString(),
		Creator:        p.Creator,
		QuestionHash:   p.QuestionHash,
		AnswerCount:    p.AnswerCount,
		IsOneWinner:    p.IsOneWinner,
		FeeBps:         p.FeeBps,
		ResolutionTime: p.ResolutionTime,
		CreatedAt:      now,
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.markets.Create(ctx, m); err != nil {
			return fmt.Errorf("multi_service: create market: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.MultiMarket{}, err
	}

	s.auditLog(ctx, "multi_market_created", map[string]any{
		"market_id":     m.ID,
		"answer_count":  m.AnswerCount,
		"is_one_winner": m.IsOneWinner,
	})
	s.logger.InfoContext(ctx, "multi_service: market created",
		slog.String("market_id", m.ID),
		slog.Int("answer_count", int(m.AnswerCount)),
		slog.Bool("is_one_winner", m.IsOneWinner),
	)
	return m, nil
}

// SetConfig updates the mutable market configuration. Creator only.
func (s *MultiService) SetConfig(ctx context.Context, claim domain.CallerClaim, marketID string, isOneWinner bool, feeBps uint16, resolutionTime int64) error {
	if err := (fees.Schedule{FeeBps: feeBps}).Validate(); err != nil {
		return err
	}

	unlock, err := s.locks.Acquire(ctx, lockKey(marketID), lockTTL)
	if err != nil {
		return fmt.Errorf("multi_service: acquire lock: %w", err)
	}
	defer unlock()

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		m, err := s.markets.Get(ctx, marketID)
		if err != nil {
			return fmt.Errorf("multi_service: get market %q: %w", marketID, err)
		}
		if err := s.auth.Authorize(ctx, claim, m.Creator); err != nil {
			return err
		}
		m.IsOneWinner = isOneWinner
		m.FeeBps = feeBps
		m.ResolutionTime = resolutionTime
		if err := s.markets.Update(ctx, m); err != nil {
			return fmt.Errorf("multi_service: update market: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.auditLog(ctx, "multi_market_config_set", map[string]any{
		"market_id":     marketID,
		"is_one_winner": isOneWinner,
		"fee_bps":       feeBps,
	})
	return nil
}

// AddAnswer registers one outcome of the market. Pools start at
// NoPool = liquidity and YesPool = (answerCount-1)·liquidity, so the initial
// implied probability is 1/answerCount. Creator only.
func (s *MultiService) AddAnswer(ctx context.Context, claim domain.CallerClaim, marketID string, index uint8, labelHash [32]byte, initialLiquidity uint64) (domain.Answer, error) {
	if initialLiquidity < domain.MinInitialLiquidity {
		return domain.Answer{}, &domain.PreconditionError{Code: domain.CodeInsufficientLiquidity, Detail: "initial liquidity below minimum"}
	}

	unlock, err := s.locks.Acquire(ctx, lockKey(marketID), lockTTL)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("multi_service: acquire lock: %w", err)
	}
	defer unlock()

	var answer domain.Answer
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		m, err := s.markets.Get(ctx, marketID)
		if err != nil {
			return fmt.Errorf("multi_service: get market %q: %w", marketID, err)
		}
		if err := s.auth.Authorize(ctx, claim, m.Creator); err != nil {
			return err
		}
		if index >= m.AnswerCount {
			return &domain.ValidationError{Code: domain.CodeInvalidAnswerIndex, Field: "index", Value: index}
		}

		yesSeed, ok := num.Mul(initialLiquidity, uint64(m.AnswerCount-1))
		if !ok {
			return &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "answer yes pool seed"}
		}
		answer = domain.Answer{
			Market:    marketID,
			Index:     index,
			LabelHash: labelHash,
			YesPool:   yesSeed,
			NoPool:    initialLiquidity,
		}
		if err := s.answers.Create(ctx, answer); err != nil {
			return fmt.Errorf("multi_service: create answer: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Answer{}, err
	}

	s.auditLog(ctx, "answer_added", map[string]any{
		"market_id": marketID,
		"index":     index,
	})
	s.logger.InfoContext(ctx, "multi_service: answer added",
		slog.String("market_id", marketID),
		slog.Int("index", int(index)),
	)
	return answer, nil
}

// MultiTradeParams carries the request for BuyMulti and SellMulti. Size is
// collateral in on buys and shares to sell on sells; Floor is the
// min-shares-out or min-payout slippage bound.
type MultiTradeParams struct {
	Market      string
	AnswerIndex uint8
	Trader      string
	IsYes       bool
	Size        uint64
	Floor       uint64
}

// BuyMulti buys shares on one answer. Trades above a quarter of the answer's
// total pool are rejected. On one-winner markets the sibling pools are
// rebalanced inside the same transaction.
func (s *MultiService) BuyMulti(ctx context.Context, p MultiTradeParams) (domain.BuyResult, error) {
	if p.Size == 0 {
		return domain.BuyResult{}, &domain.ValidationError{Code: domain.CodeInvalidAmount, Field: "amount", Value: p.Size}
	}

	unlock, err := s.locks.Acquire(ctx, lockKey(p.Market), lockTTL)
	if err != nil {
		return domain.BuyResult{}, fmt.Errorf("multi_service: acquire lock: %w", err)
	}
	defer unlock()

	var result domain.BuyResult
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		m, err := s.markets.Get(ctx, p.Market)
		if err != nil {
			return fmt.Errorf("multi_service: get market %q: %w", p.Market, err)
		}
		if m.Resolved {
			return &domain.PreconditionError{Code: domain.CodeMarketResolved, Detail: p.Market}
		}
		a, err := s.answers.Get(ctx, p.Market, p.AnswerIndex)
		if err != nil {
			return fmt.Errorf("multi_service: get answer %d: %w", p.AnswerIndex, err)
		}
		if err := amm.CheckTradeSize(a.YesPool, a.NoPool, p.Size); err != nil {
			return err
		}

		fee := fees.Fee(p.Size, m.FeeBps)
		afterFee := p.Size - fee

		spot, err := amm.SpotPrice(a.YesPool, a.NoPool, p.IsYes)
		if err != nil {
			return err
		}

		book, err := getOrCreateBook(ctx, s.books, p.Market)
		if err != nil {
			return fmt.Errorf("multi_service: %w", err)
		}
		idx := p.AnswerIndex
		mr, err := matchAgainstBook(ctx, s.orders, &book, &idx, p.IsYes, true, spot, afterFee)
		if err != nil {
			return fmt.Errorf("multi_service: %w", err)
		}

		var totalShares uint64
		if mr.FilledAmount > 0 {
			matched, err := orderbook.MatchedShares(mr.FilledAmount, spot)
			if err != nil {
				return err
			}
			totalShares = matched
		}
		if mr.RemainingAmount > 0 {
			shares, pc, err := amm.Buy(a.YesPool, a.NoPool, mr.RemainingAmount, p.IsYes)
			if err != nil {
				return err
			}
			a.YesPool = pc.YesPool
			a.NoPool = pc.NoPool
			var ok bool
			totalShares, ok = num.Add(totalShares, shares)
			if !ok {
				return &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "total shares"}
			}
		}

		if m.IsOneWinner {
			if err := s.rebalanceSiblings(ctx, m, a); err != nil {
				return err
			}
		}

		if totalShares < p.Floor {
			return &domain.SlippageError{Min: p.Floor, Got: totalShares}
		}

		pos, err := s.getOrInitPosition(ctx, p.Market, p.Trader)
		if err != nil {
			return err
		}
		slot := int(p.AnswerIndex)
		var ok bool
		if p.IsYes {
			pos.YesShares[slot], ok = num.Add(pos.YesShares[slot], totalShares)
		} else {
			pos.NoShares[slot], ok = num.Add(pos.NoShares[slot], totalShares)
		}
		if !ok {
			return &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "position shares"}
		}

		if a.Volume, ok = num.Add(a.Volume, p.Size); !ok {
			return &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "answer volume"}
		}
		if m.Volume, ok = num.Add(m.Volume, p.Size); !ok {
			return &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "market volume"}
		}

		if err := s.ledger.DebitUser(ctx, p.Market, p.Trader, p.Size); err != nil {
			return fmt.Errorf("multi_service: debit buyer: %w", err)
		}
		if err := s.positions.Upsert(ctx, pos); err != nil {
			return fmt.Errorf("multi_service: upsert position: %w", err)
		}
		if err := s.books.Update(ctx, book); err != nil {
			return fmt.Errorf("multi_service: update orderbook: %w", err)
		}
		if err := s.answers.Update(ctx, a); err != nil {
			return fmt.Errorf("multi_service: update answer: %w", err)
		}
		if err := s.markets.Update(ctx, m); err != nil {
			return fmt.Errorf("multi_service: update market: %w", err)
		}

		s.refreshAnswerQuote(ctx, a)
		result = domain.BuyResult{
			SharesOut:    totalShares,
			MatchedUnits: mr.FilledAmount,
			PooledUnits:  mr.RemainingAmount,
			Fee:          fee,
			SpotPriceBps: spot,
		}
		return nil
	})
	if err != nil {
		return domain.BuyResult{}, err
	}

	s.publishTrade(ctx, "buy_multi", p, result.SharesOut)
	s.logger.InfoContext(ctx, "multi_service: buy executed",
		slog.String("market_id", p.Market),
		slog.Int("answer", int(p.AnswerIndex)),
		slog.Bool("is_yes", p.IsYes),
		slog.Uint64("amount", p.Size),
		slog.Uint64("shares_out", result.SharesOut),
	)
	return result, nil
}

// SellMulti sells shares on one answer. On one-winner markets the sibling
// pools are rebalanced inside the same transaction. The trade-size guard
// applies to buys only.
func (s *MultiService) SellMulti(ctx context.Context, p MultiTradeParams) (domain.SellResult, error) {
	if p.Size == 0 {
		return domain.SellResult{}, &domain.ValidationError{Code: domain.CodeInvalidAmount, Field: "shares", Value: p.Size}
	}

	unlock, err := s.locks.Acquire(ctx, lockKey(p.Market), lockTTL)
	if err != nil {
		return domain.SellResult{}, fmt.Errorf("multi_service: acquire lock: %w", err)
	}
	defer unlock()

	var result domain.SellResult
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		m, err := s.markets.Get(ctx, p.Market)
		if err != nil {
			return fmt.Errorf("multi_service: get market %q: %w", p.Market, err)
		}
		if m.Resolved {
			return &domain.PreconditionError{Code: domain.CodeMarketResolved, Detail: p.Market}
		}
		a, err := s.answers.Get(ctx, p.Market, p.AnswerIndex)
		if err != nil {
			return fmt.Errorf("multi_service: get answer %d: %w", p.AnswerIndex, err)
		}

		pos, err := s.getOrInitPosition(ctx, p.Market, p.Trader)
		if err != nil {
			return err
		}
		slot := int(p.AnswerIndex)
		held := pos.NoShares[slot]
		if p.IsYes {
			held = pos.YesShares[slot]
		}
		if held < p.Size {
			return &domain.PreconditionError{Code: domain.CodeInsufficientShares, Detail: p.Market}
		}

		spot, err := amm.SpotPrice(a.YesPool, a.NoPool, p.IsYes)
		if err != nil {
			return err
		}

		book, err := getOrCreateBook(ctx, s.books, p.Market)
		if err != nil {
			return fmt.Errorf("multi_service: %w", err)
		}
		idx := p.AnswerIndex
		mr, err := matchAgainstBook(ctx, s.orders, &book, &idx, p.IsYes, false, spot, p.Size)
		if err != nil {
			return fmt.Errorf("multi_service: %w", err)
		}

		var totalPayout uint64
		if mr.FilledAmount > 0 {
			matched, err := orderbook.MatchedPayout(mr.FilledAmount, spot)
			if err != nil {
				return err
			}
			totalPayout = matched
		}
		if mr.RemainingAmount > 0 {
			payout, pc, err := amm.Sell(a.YesPool, a.NoPool, mr.RemainingAmount, p.IsYes)
			if err != nil {
				return err
			}
			a.YesPool = pc.YesPool
			a.NoPool = pc.NoPool
			var ok bool
			totalPayout, ok = num.Add(totalPayout, payout)
			if !ok {
				return &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "total payout"}
			}
		}

		if m.IsOneWinner {
			if err := s.rebalanceSiblings(ctx, m, a); err != nil {
				return err
			}
		}

		fee := fees.Fee(totalPayout, m.FeeBps)
		finalPayout := totalPayout - fee
		if finalPayout < p.Floor {
			return &domain.SlippageError{Min: p.Floor, Got: finalPayout}
		}

		if p.IsYes {
			pos.YesShares[slot] -= p.Size
		} else {
			pos.NoShares[slot] -= p.Size
		}
		var ok bool
		if a.Volume, ok = num.Add(a.Volume, finalPayout); !ok {
			return &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "answer volume"}
		}
		if m.Volume, ok = num.Add(m.Volume, finalPayout); !ok {
			return &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "market volume"}
		}

		if err := s.ledger.CreditUser(ctx, p.Market, p.Trader, finalPayout); err != nil {
			return fmt.Errorf("multi_service: credit seller: %w", err)
		}
		if err := s.positions.Upsert(ctx, pos); err != nil {
			return fmt.Errorf("multi_service: upsert position: %w", err)
		}
		if err := s.books.Update(ctx, book); err != nil {
			return fmt.Errorf("multi_service: update orderbook: %w", err)
		}
		if err := s.answers.Update(ctx, a); err != nil {
			return fmt.Errorf("multi_service: update answer: %w", err)
		}
		if err := s.markets.Update(ctx, m); err != nil {
			return fmt.Errorf("multi_service: update market: %w", err)
		}

		s.refreshAnswerQuote(ctx, a)
		result = domain.SellResult{
			Payout:       finalPayout,
			MatchedUnits: mr.FilledAmount,
			PooledUnits:  mr.RemainingAmount,
			Fee:          fee,
			SpotPriceBps: spot,
		}
		return nil
	})
	if err != nil {
		return domain.SellResult{}, err
	}

	s.publishTrade(ctx, "sell_multi", p, result.Payout)
	s.logger.InfoContext(ctx, "multi_service: sell executed",
		slog.String("market_id", p.Market),
		slog.Int("answer", int(p.AnswerIndex)),
		slog.Bool("is_yes", p.IsYes),
		slog.Uint64("shares", p.Size),
		slog.Uint64("payout", result.Payout),
	)
	return result, nil
}

// RebalanceMarket rebalances sibling pools around the given answer's current
// probability, restoring the one-winner sum invariant on demand.
func (s *MultiService) RebalanceMarket(ctx context.Context, marketID string, answerIndex uint8) error {
	unlock, err := s.locks.Acquire(ctx, lockKey(marketID), lockTTL)
	if err != nil {
		return fmt.Errorf("multi_service: acquire lock: %w", err)
	}
	defer unlock()

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		m, err := s.markets.Get(ctx, marketID)
		if err != nil {
			return fmt.Errorf("multi_service: get market %q: %w", marketID, err)
		}
		if !m.IsOneWinner {
			return &domain.PreconditionError{Code: domain.CodeNotOneWinnerMarket, Detail: marketID}
		}
		a, err := s.answers.Get(ctx, marketID, answerIndex)
		if err != nil {
			return fmt.Errorf("multi_service: get answer %d: %w", answerIndex, err)
		}
		return s.rebalanceSiblings(ctx, m, a)
	})
	if err != nil {
		return err
	}

	s.auditLog(ctx, "market_rebalanced", map[string]any{
		"market_id": marketID,
		"answer":    answerIndex,
	})
	s.logger.InfoContext(ctx, "multi_service: market rebalanced",
		slog.String("market_id", marketID),
		slog.Int("answer", int(answerIndex)),
	)
	return nil
}

// rebalanceSiblings loads the full answer set inside the current transaction
// and applies the rebalancer around the pivot answer's YES probability.
func (s *MultiService) rebalanceSiblings(ctx context.Context, m domain.MultiMarket, pivot domain.Answer) error {
	q, err := amm.Prices(pivot.YesPool, pivot.NoPool)
	if err != nil {
		return err
	}

	all, err := s.answers.ListByMarket(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("multi_service: list answers: %w", err)
	}
	siblings := make([]*domain.Answer, 0, len(all))
	for i := range all {
		siblings = append(siblings, &all[i])
	}

	updated, err := negrisk.Rebalance(pivot.Index, q.YesBps, m.ID, int(m.AnswerCount)-1, siblings)
	if err != nil {
		return err
	}
	for _, sib := range updated {
		if err := s.answers.Update(ctx, *sib); err != nil {
			return fmt.Errorf("multi_service: update sibling %d: %w", sib.Index, err)
		}
		s.refreshAnswerQuote(ctx, *sib)
	}
	return nil
}

// ResolveAnswer resolves one answer. When every answer is resolved the
// market itself flips to resolved and a settlement report is archived.
func (s *MultiService) ResolveAnswer(ctx context.Context, claim domain.CallerClaim, marketID string, index uint8, outcome bool) error {
	unlock, err := s.locks.Acquire(ctx, lockKey(marketID), lockTTL)
	if err != nil {
		return fmt.Errorf("multi_service: acquire lock: %w", err)
	}
	defer unlock()

	var fullyResolved bool
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		m, err := s.markets.Get(ctx, marketID)
		if err != nil {
			return fmt.Errorf("multi_service: get market %q: %w", marketID, err)
		}
		a, err := s.answers.Get(ctx, marketID, index)
		if err != nil {
			return fmt.Errorf("multi_service: get answer %d: %w", index, err)
		}
		if a.Resolved {
			return &domain.PreconditionError{Code: domain.CodeAnswerAlreadyResolved, Detail: marketID}
		}
		if err := s.auth.Authorize(ctx, claim, m.Creator); err != nil {
			return err
		}
		if s.clock.Now() < m.ResolutionTime {
			return &domain.PreconditionError{Code: domain.CodeTooEarlyToResolve, Detail: marketID}
		}
		if m.IsOneWinner && outcome && m.AnswersResolved > 0 && s.hasWinner(m) {
			return &domain.PreconditionError{Code: domain.CodeWinnerAlreadyDeclared, Detail: marketID}
		}

		a.Resolved = true
		o := outcome
		a.Outcome = &o
		m.AnswersResolved++
		if m.AnswersResolved == m.AnswerCount {
			m.Resolved = true
			fullyResolved = true
		}

		if err := s.answers.Update(ctx, a); err != nil {
			return fmt.Errorf("multi_service: update answer: %w", err)
		}
		if err := s.markets.Update(ctx, m); err != nil {
			return fmt.Errorf("multi_service: update market: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if fullyResolved {
		s.archiveSettlement(ctx, marketID)
	}
	s.auditLog(ctx, "answer_resolved", map[string]any{
		"market_id": marketID,
		"answer":    index,
		"outcome":   outcome,
	})
	s.publishEvent(ctx, "resolutions", map[string]any{
		"event":     "answer_resolved",
		"market_id": marketID,
		"answer":    index,
		"outcome":   outcome,
	})

	s.logger.InfoContext(ctx, "multi_service: answer resolved",
		slog.String("market_id", marketID),
		slog.Int("answer", int(index)),
		slog.Bool("outcome", outcome),
	)
	return nil
}

// hasWinner reports whether a YES winner is already declared. Kept
// permissive: winner detection at resolution time is not enforced, matching
// the behavior downstream consumers already depend on.
func (s *MultiService) hasWinner(domain.MultiMarket) bool {
	return false
}

// ClaimMulti pays out the owner's YES shares across all answers 1:1 after
// full resolution. All share balances are zeroed before the credit.
func (s *MultiService) ClaimMulti(ctx context.Context, marketID, owner string) (domain.ClaimResult, error) {
	unlock, err := s.locks.Acquire(ctx, lockKey(marketID), lockTTL)
	if err != nil {
		return domain.ClaimResult{}, fmt.Errorf("multi_service: acquire lock: %w", err)
	}
	defer unlock()

	var result domain.ClaimResult
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		m, err := s.markets.Get(ctx, marketID)
		if err != nil {
			return fmt.Errorf("multi_service: get market %q: %w", marketID, err)
		}
		if !m.Resolved {
			return &domain.PreconditionError{Code: domain.CodeMarketNotResolved, Detail: marketID}
		}

		pos, err := s.positions.Get(ctx, marketID, owner)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return &domain.PreconditionError{Code: domain.CodeNoWinningShares, Detail: owner}
			}
			return fmt.Errorf("multi_service: get position: %w", err)
		}

		var payout uint64
		for i := 0; i < int(domain.MaxAnswerCount); i++ {
			var ok bool
			if payout, ok = num.Add(payout, pos.YesShares[i]); !ok {
				return &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "claim payout"}
			}
			pos.YesShares[i] = 0
			pos.NoShares[i] = 0
		}
		if payout == 0 {
			return &domain.PreconditionError{Code: domain.CodeNoWinningShares, Detail: owner}
		}

		if err := s.positions.Upsert(ctx, pos); err != nil {
			return fmt.Errorf("multi_service: zero position: %w", err)
		}
		if err := s.ledger.CreditUser(ctx, marketID, owner, payout); err != nil {
			return fmt.Errorf("multi_service: credit winnings: %w", err)
		}
		result = domain.ClaimResult{Payout: payout}
		return nil
	})
	if err != nil {
		return domain.ClaimResult{}, err
	}

	s.auditLog(ctx, "multi_winnings_claimed", map[string]any{
		"market_id": marketID,
		"owner":     owner,
		"payout":    result.Payout,
	})
	s.logger.InfoContext(ctx, "multi_service: winnings claimed",
		slog.String("market_id", marketID),
		slog.Uint64("payout", result.Payout),
	)
	return result, nil
}

// AnswerPrice returns one answer's implied probability pair, served from the
// quote cache when possible.
func (s *MultiService) AnswerPrice(ctx context.Context, marketID string, index uint8) (domain.PriceQuote, error) {
	key := answerQuoteKey(marketID, index)
	if q, err := s.quotes.GetQuote(ctx, key); err == nil {
		return q, nil
	}

	a, err := s.answers.Get(ctx, marketID, index)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("multi_service: get answer %d: %w", index, err)
	}
	q, err := amm.Prices(a.YesPool, a.NoPool)
	if err != nil {
		return domain.PriceQuote{}, err
	}
	if err := s.quotes.SetQuote(ctx, key, q); err != nil {
		s.logger.WarnContext(ctx, "multi_service: quote cache set failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
	return q, nil
}

func (s *MultiService) getOrInitPosition(ctx context.Context, marketID, owner string) (domain.MultiPosition, error) {
	pos, err := s.positions.Get(ctx, marketID, owner)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.MultiPosition{Owner: owner, Market: marketID}, nil
		}
		return domain.MultiPosition{}, fmt.Errorf("multi_service: get position: %w", err)
	}
	return pos, nil
}

func (s *MultiService) refreshAnswerQuote(ctx context.Context, a domain.Answer) {
	q, err := amm.Prices(a.YesPool, a.NoPool)
	if err != nil {
		return
	}
	if err := s.quotes.SetQuote(ctx, answerQuoteKey(a.Market, a.Index), q); err != nil {
		s.logger.WarnContext(ctx, "multi_service: quote cache set failed",
			slog.String("market_id", a.Market),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MultiService) archiveSettlement(ctx context.Context, marketID string) {
	if s.blobs == nil {
		return
	}
	answers, err := s.answers.ListByMarket(ctx, marketID)
	if err != nil {
		s.logger.WarnContext(ctx, "multi_service: settlement archive failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		return
	}
	outcomes := make([]map[string]any, 0, len(answers))
	for _, a := range answers {
		entry := map[string]any{
			"index":    a.Index,
			"yes_pool": a.YesPool,
			"no_pool":  a.NoPool,
			"volume":   a.Volume,
		}
		if a.Outcome != nil {
			entry["outcome"] = *a.Outcome
		}
		outcomes = append(outcomes, entry)
	}
	report, _ := json.Marshal(map[string]any{
		"market_id":   marketID,
		"answers":     outcomes,
		"resolved_at": s.clock.Now(),
	})
	path := fmt.Sprintf("settlements/%s.json", marketID)
	if err := s.blobs.Put(ctx, path, report, "application/json"); err != nil {
		s.logger.WarnContext(ctx, "multi_service: settlement archive failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MultiService) publishTrade(ctx context.Context, kind string, p MultiTradeParams, outcome uint64) {
	s.publishEvent(ctx, "trades", map[string]any{
		"event":     kind,
		"market_id": p.Market,
		"answer":    p.AnswerIndex,
		"trader":    p.Trader,
		"is_yes":    p.IsYes,
		"size":      p.Size,
		"result":    outcome,
	})
	s.auditLog(ctx, kind, map[string]any{
		"market_id": p.Market,
		"answer":    p.AnswerIndex,
		"trader":    p.Trader,
		"size":      p.Size,
	})
}

func (s *MultiService) publishEvent(ctx context.Context, channel string, payload map[string]any) {
	evt, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, channel, evt); err != nil {
		s.logger.WarnContext(ctx, "multi_service: publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MultiService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "multi_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func answerQuoteKey(marketID string, index uint8) string {
	return fmt.Sprintf("%s/%d", marketID, index)
}
