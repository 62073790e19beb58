package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/farsight-markets/farsight/internal/amm"
	"github.com/farsight-markets/farsight/internal/domain"
	"github.com/farsight-markets/farsight/internal/fees"
	"github.com/farsight-markets/farsight/internal/num"
	"github.com/farsight-markets/farsight/internal/orderbook"
)

// TradeService executes buys and sells on binary markets: book liquidity
// first at the pre-trade spot price, the remainder through the pool.
type TradeService struct {
	markets   domain.MarketStore
	positions domain.PositionStore
	orders    domain.OrderStore
	books     domain.OrderbookStore
	ledger    domain.CollateralLedger
	locks     domain.LockManager
	tx        domain.TxRunner
	quotes    domain.QuoteCache
	bus       domain.SignalBus
	audit     domain.AuditStore
	logger    *slog.Logger
}

// NewTradeService creates a TradeService with all required dependencies.
func NewTradeService(
	markets domain.MarketStore,
	positions domain.PositionStore,
	orders domain.OrderStore,
	books domain.OrderbookStore,
	ledger domain.CollateralLedger,
	locks domain.LockManager,
	tx domain.TxRunner,
	quotes domain.QuoteCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		markets:   markets,
		positions: positions,
		orders:    orders,
		books:     books,
		ledger:    ledger,
		locks:     locks,
		tx:        tx,
		quotes:    quotes,
		bus:       bus,
		audit:     audit,
		logger:    logger,
	}
}

// BuyParams carries the request for Buy.
type BuyParams struct {
	Market       string
	Buyer        string
	IsYes        bool
	Amount       uint64
	MinSharesOut uint64
}

// Buy spends Amount collateral on one side. The fee comes off first, the net
// amount matches against compatible resting orders at the pre-trade spot
// price, and the remainder is priced by the pool, which grows the opposite
// pool. Fails with slippage when total shares fall below MinSharesOut.
func (s *TradeService) Buy(ctx context.Context, p BuyParams) (domain.BuyResult, error) {
	if p.Amount == 0 {
		return domain.BuyResult{}, &domain.ValidationError{Code: domain.CodeInvalidAmount, Field: "amount", Value: p.Amount}
	}

	unlock, err := s.locks.Acquire(ctx, lockKey(p.Market), lockTTL)
	if err != nil {
		return domain.BuyResult{}, fmt.Errorf("trade_service: acquire lock: %w", err)
	}
	defer unlock()

	var result domain.BuyResult
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		m, err := s.markets.Get(ctx, p.Market)
		if err != nil {
			return fmt.Errorf("trade_service: get market %q: %w", p.Market, err)
		}
		if m.Resolved {
			return &domain.PreconditionError{Code: domain.CodeMarketResolved, Detail: p.Market}
		}

		fee := fees.Fee(p.Amount, m.FeeBps)
		afterFee := p.Amount - fee
		collected, ok := num.Add(m.CollectedFees, fee)
		if !ok {
			return &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "collected fees"}
		}
		m.CollectedFees = collected

		spot, err := amm.SpotPrice(m.YesPool, m.NoPool, p.IsYes)
		if err != nil {
			return err
		}

		book, err := getOrCreateBook(ctx, s.books, p.Market)
		if err != nil {
			return fmt.Errorf("trade_service: %w", err)
		}
		mr, err := matchAgainstBook(ctx, s.orders, &book, nil, p.IsYes, true, spot, afterFee)
		if err != nil {
			return fmt.Errorf("trade_service: %w", err)
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
			shares, pc, err := amm.Buy(m.YesPool, m.NoPool, mr.RemainingAmount, p.IsYes)
			if err != nil {
				return err
			}
			m.YesPool = pc.YesPool
			m.NoPool = pc.NoPool
			totalShares, ok = num.Add(totalShares, shares)
			if !ok {
				return &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "total shares"}
			}
		}

		if totalShares < p.MinSharesOut {
			return &domain.SlippageError{Min: p.MinSharesOut, Got: totalShares}
		}

		pos, err := s.getOrInitPosition(ctx, p.Market, p.Buyer)
		if err != nil {
			return err
		}
		if p.IsYes {
			pos.YesShares, ok = num.Add(pos.YesShares, totalShares)
		} else {
			pos.NoShares, ok = num.Add(pos.NoShares, totalShares)
		}
		if !ok {
			return &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "position shares"}
		}
		volume, ok := num.Add(m.TotalVolume, p.Amount)
		if !ok {
			return &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "market volume"}
		}
		m.TotalVolume = volume

		if err := s.ledger.DebitUser(ctx, p.Market, p.Buyer, p.Amount); err != nil {
			return fmt.Errorf("trade_service: debit buyer: %w", err)
		}
		if err := s.positions.Upsert(ctx, pos); err != nil {
			return fmt.Errorf("trade_service: upsert position: %w", err)
		}
		if err := s.books.Update(ctx, book); err != nil {
			return fmt.Errorf("trade_service: update orderbook: %w", err)
		}
		if err := s.markets.Update(ctx, m); err != nil {
			return fmt.Errorf("trade_service: update market: %w", err)
		}

		s.refreshQuote(ctx, p.Market, m.YesPool, m.NoPool)
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

	s.publishTrade(ctx, "buy", p.Market, p.Buyer, p.IsYes, p.Amount, result.SharesOut)
	s.logger.InfoContext(ctx, "trade_service: buy executed",
		slog.String("market_id", p.Market),
		slog.Bool("is_yes", p.IsYes),
		slog.Uint64("amount", p.Amount),
		slog.Uint64("shares_out", result.SharesOut),
		slog.Uint64("matched", result.MatchedUnits),
	)
	return result, nil
}

// SellParams carries the request for Sell.
type SellParams struct {
	Market    string
	Seller    string
	IsYes     bool
	Shares    uint64
	MinPayout uint64
}

// Sell disposes of Shares on one side: book bids first at the pre-trade spot
// price, the remainder against the pool, which shrinks the opposite pool by
// the payout. The fee comes off the combined payout. Fails with slippage
// when the final payout falls below MinPayout.
func (s *TradeService) Sell(ctx context.Context, p SellParams) (domain.SellResult, error) {
	if p.Shares == 0 {
		return domain.SellResult{}, &domain.ValidationError{Code: domain.CodeInvalidAmount, Field: "shares", Value: p.Shares}
	}

	unlock, err := s.locks.Acquire(ctx, lockKey(p.Market), lockTTL)
	if err != nil {
		return domain.SellResult{}, fmt.Errorf("trade_service: acquire lock: %w", err)
	}
	defer unlock()

	var result domain.SellResult
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		m, err := s.markets.Get(ctx, p.Market)
		if err != nil {
			return fmt.Errorf("trade_service: get market %q: %w", p.Market, err)
		}
		if m.Resolved {
			return &domain.PreconditionError{Code: domain.CodeMarketResolved, Detail: p.Market}
		}

		pos, err := s.getOrInitPosition(ctx, p.Market, p.Seller)
		if err != nil {
			return err
		}
		held := pos.NoShares
		if p.IsYes {
			held = pos.YesShares
		}
		if held < p.Shares {
			return &domain.PreconditionError{Code: domain.CodeInsufficientShares, Detail: p.Market}
		}

		spot, err := amm.SpotPrice(m.YesPool, m.NoPool, p.IsYes)
		if err != nil {
			return err
		}

		book, err := getOrCreateBook(ctx, s.books, p.Market)
		if err != nil {
			return fmt.Errorf("trade_service: %w", err)
		}
		mr, err := matchAgainstBook(ctx, s.orders, &book, nil, p.IsYes, false, spot, p.Shares)
		if err != nil {
			return fmt.Errorf("trade_service: %w", err)
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
			payout, pc, err := amm.Sell(m.YesPool, m.NoPool, mr.RemainingAmount, p.IsYes)
			if err != nil {
				return err
			}
			m.YesPool = pc.YesPool
			m.NoPool = pc.NoPool
			var ok bool
			totalPayout, ok = num.Add(totalPayout, payout)
			if !ok {
				return &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "total payout"}
			}
		}

		fee := fees.Fee(totalPayout, m.FeeBps)
		finalPayout := totalPayout - fee
		collected, ok := num.Add(m.CollectedFees, fee)
		if !ok {
			return &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "collected fees"}
		}
		m.CollectedFees = collected

		if finalPayout < p.MinPayout {
			return &domain.SlippageError{Min: p.MinPayout, Got: finalPayout}
		}

		if p.IsYes {
			pos.YesShares -= p.Shares
		} else {
			pos.NoShares -= p.Shares
		}
		// Sell volume counts the payout, not the shares; this mirrors the
		// buy side counting collateral in.
		volume, ok := num.Add(m.TotalVolume, finalPayout)
		if !ok {
			return &domain.ArithmeticError{Code: domain.CodeOverflow, Op: "market volume"}
		}
		m.TotalVolume = volume

		if err := s.ledger.CreditUser(ctx, p.Market, p.Seller, finalPayout); err != nil {
			return fmt.Errorf("trade_service: credit seller: %w", err)
		}
		if err := s.positions.Upsert(ctx, pos); err != nil {
			return fmt.Errorf("trade_service: upsert position: %w", err)
		}
		if err := s.books.Update(ctx, book); err != nil {
			return fmt.Errorf("trade_service: update orderbook: %w", err)
		}
		if err := s.markets.Update(ctx, m); err != nil {
			return fmt.Errorf("trade_service: update market: %w", err)
		}

		s.refreshQuote(ctx, p.Market, m.YesPool, m.NoPool)
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

	s.publishTrade(ctx, "sell", p.Market, p.Seller, p.IsYes, p.Shares, result.Payout)
	s.logger.InfoContext(ctx, "trade_service: sell executed",
		slog.String("market_id", p.Market),
		slog.Bool("is_yes", p.IsYes),
		slog.Uint64("shares", p.Shares),
		slog.Uint64("payout", result.Payout),
		slog.Uint64("matched", result.MatchedUnits),
	)
	return result, nil
}

func (s *TradeService) getOrInitPosition(ctx context.Context, marketID, owner string) (domain.Position, error) {
	pos, err := s.positions.Get(ctx, marketID, owner)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Position{Owner: owner, Market: marketID}, nil
		}
		return domain.Position{}, fmt.Errorf("trade_service: get position: %w", err)
	}
	return pos, nil
}

func (s *TradeService) refreshQuote(ctx context.Context, marketID string, yesPool, noPool uint64) {
	q, err := amm.Prices(yesPool, noPool)
	if err != nil {
		return
	}
	if err := s.quotes.SetQuote(ctx, marketID, q); err != nil {
		s.logger.WarnContext(ctx, "trade_service: quote cache set failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *TradeService) publishTrade(ctx context.Context, kind, marketID, trader string, isYes bool, size, outcome uint64) {
	evt, _ := json.Marshal(map[string]any{
		"event":     kind,
		"market_id": marketID,
		"trader":    trader,
		"is_yes":    isYes,
		"size":      size,
		"result":    outcome,
	})
	if err := s.bus.Publish(ctx, "trades", evt); err != nil {
		s.logger.WarnContext(ctx, "trade_service: publish failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.audit.Log(ctx, kind, map[string]any{
		"market_id": marketID,
		"trader":    trader,
		"size":      size,
	}); err != nil {
		s.logger.WarnContext(ctx, "trade_service: audit log failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}
