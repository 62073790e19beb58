package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/farsight-markets/farsight/internal/amm"
	"github.com/farsight-markets/farsight/internal/domain"
	"github.com/farsight-markets/farsight/internal/fees"
)

// lockTTL bounds how long a market lock survives a crashed holder.
const lockTTL = 10 * time.Second

// MarketService handles binary market lifecycle: creation, fee
// configuration, resolution, price queries, and post-resolution claims.
type MarketService struct {
	markets   domain.MarketStore
	positions domain.PositionStore
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

// NewMarketService creates a MarketService with all required dependencies.
// blobs may be nil; settlement reports are then not archived.
func NewMarketService(
	markets domain.MarketStore,
	positions domain.PositionStore,
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
) *MarketService {
	return &MarketService{
		markets:   markets,
		positions: positions,
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

// CreateMarketParams carries the request for CreateMarket.
type CreateMarketParams struct {
	Creator          string
	Question         string
	ResolutionTime   int64
	InitialLiquidity uint64
	GroupID          string
	AnswerLabel      string
}

// CreateMarket creates a binary market with both pools seeded at the initial
// liquidity, so the starting implied probability is 5000 bps. Fees default
// to zero until SetFees configures them.
func (s *MarketService) CreateMarket(ctx context.Context, p CreateMarketParams) (domain.Market, error) {
	if len(p.Question) > domain.MaxQuestionLen {
		return domain.Market{}, &domain.ValidationError{Code: domain.CodeQuestionTooLong, Field: "question", Value: len(p.Question)}
	}
	now := s.clock.Now()
	if p.ResolutionTime <= now {
		return domain.Market{}, &domain.ValidationError{Code: domain.CodeInvalidResolutionTime, Field: "resolution_time", Value: p.ResolutionTime}
	}
	if p.InitialLiquidity < domain.MinInitialLiquidity {
		return domain.Market{}, &domain.PreconditionError{Code: domain.CodeInsufficientLiquidity, Detail: "initial liquidity below minimum"}
	}

	m := domain.Market{
		ID:             uuid.NewString(),
		Creator:        p.Creator,
		Question:       p.Question,
		ResolutionTime: p.ResolutionTime,
		YesPool:        p.InitialLiquidity,
		NoPool:         p.InitialLiquidity,
		CreatedAt:      now,
		GroupID:        p.GroupID,
		AnswerLabel:    p.AnswerLabel,
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.markets.Create(ctx, m); err != nil {
			return fmt.Errorf("market_service: create market: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Market{}, err
	}

	if err := s.quotes.SetQuote(ctx, m.ID, domain.PriceQuote{YesBps: domain.PriceScale / 2, NoBps: domain.PriceScale / 2}); err != nil {
		s.logger.WarnContext(ctx, "market_service: quote cache set failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
	s.auditLog(ctx, "market_created", map[string]any{
		"market_id": m.ID,
		"creator":   m.Creator,
	})
	s.publish(ctx, "markets", map[string]any{
		"event":     "market_created",
		"market_id": m.ID,
	})

	s.logger.InfoContext(ctx, "market_service: market created",
		slog.String("market_id", m.ID),
		slog.Uint64("initial_liquidity", p.InitialLiquidity),
	)
	return m, nil
}

// SetFees configures the market's fee schedule. Only the creator may call
// it, and the category sum is capped at 1000 bps.
func (s *MarketService) SetFees(ctx context.Context, claim domain.CallerClaim, marketID string, schedule fees.Schedule) error {
	if err := schedule.Validate(); err != nil {
		return err
	}

	unlock, err := s.locks.Acquire(ctx, lockKey(marketID), lockTTL)
	if err != nil {
		return fmt.Errorf("market_service: acquire lock: %w", err)
	}
	defer unlock()

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		m, err := s.markets.Get(ctx, marketID)
		if err != nil {
			return fmt.Errorf("market_service: get market %q: %w", marketID, err)
		}
		if err := s.auth.Authorize(ctx, claim, m.Creator); err != nil {
			return err
		}

		m.FeeBps = schedule.FeeBps
		m.CreatorFeeBps = schedule.CreatorFeeBps
		m.PlatformFeeBps = schedule.PlatformFeeBps
		m.LiquidityFeeBps = schedule.LiquidityFeeBps
		if err := s.markets.Update(ctx, m); err != nil {
			return fmt.Errorf("market_service: update market: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.auditLog(ctx, "fees_set", map[string]any{
		"market_id": marketID,
		"total_bps": schedule.Total(),
	})
	return nil
}

// ResolveMarket marks the market resolved with the given outcome. Only the
// creator may resolve, and only at or after the resolution time.
func (s *MarketService) ResolveMarket(ctx context.Context, claim domain.CallerClaim, marketID string, outcome bool) error {
	unlock, err := s.locks.Acquire(ctx, lockKey(marketID), lockTTL)
	if err != nil {
		return fmt.Errorf("market_service: acquire lock: %w", err)
	}
	defer unlock()

	var resolved domain.Market
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		m, err := s.markets.Get(ctx, marketID)
		if err != nil {
			return fmt.Errorf("market_service: get market %q: %w", marketID, err)
		}
		if m.Resolved {
			return &domain.PreconditionError{Code: domain.CodeMarketResolved, Detail: marketID}
		}
		if err := s.auth.Authorize(ctx, claim, m.Creator); err != nil {
			return err
		}
		if s.clock.Now() < m.ResolutionTime {
			return &domain.PreconditionError{Code: domain.CodeTooEarlyToResolve, Detail: marketID}
		}

		m.Resolved = true
		m.Outcome = outcome
		if err := s.markets.Update(ctx, m); err != nil {
			return fmt.Errorf("market_service: update market: %w", err)
		}
		resolved = m
		return nil
	})
	if err != nil {
		return err
	}

	s.archiveSettlement(ctx, resolved)
	s.auditLog(ctx, "market_resolved", map[string]any{
		"market_id": marketID,
		"outcome":   outcome,
	})
	s.publish(ctx, "resolutions", map[string]any{
		"event":     "market_resolved",
		"market_id": marketID,
		"outcome":   outcome,
	})

	s.logger.InfoContext(ctx, "market_service: market resolved",
		slog.String("market_id", marketID),
		slog.Bool("outcome", outcome),
	)
	return nil
}

// Price returns the market's implied probability pair, served from the quote
// cache when possible.
func (s *MarketService) Price(ctx context.Context, marketID string) (domain.PriceQuote, error) {
	if q, err := s.quotes.GetQuote(ctx, marketID); err == nil {
		return q, nil
	}

	m, err := s.markets.Get(ctx, marketID)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("market_service: get market %q: %w", marketID, err)
	}
	q, err := amm.Prices(m.YesPool, m.NoPool)
	if err != nil {
		return domain.PriceQuote{}, err
	}
	if err := s.quotes.SetQuote(ctx, marketID, q); err != nil {
		s.logger.WarnContext(ctx, "market_service: quote cache set failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
	return q, nil
}

// Claim pays out the owner's winning-side shares 1:1 after resolution. Both
// share balances are zeroed before the ledger credit so a repeated claim
// finds nothing.
func (s *MarketService) Claim(ctx context.Context, marketID, owner string) (domain.ClaimResult, error) {
	unlock, err := s.locks.Acquire(ctx, lockKey(marketID), lockTTL)
	if err != nil {
		return domain.ClaimResult{}, fmt.Errorf("market_service: acquire lock: %w", err)
	}
	defer unlock()

	var result domain.ClaimResult
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		m, err := s.markets.Get(ctx, marketID)
		if err != nil {
			return fmt.Errorf("market_service: get market %q: %w", marketID, err)
		}
		if !m.Resolved {
			return &domain.PreconditionError{Code: domain.CodeMarketNotResolved, Detail: marketID}
		}

		pos, err := s.positions.Get(ctx, marketID, owner)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return &domain.PreconditionError{Code: domain.CodeNoWinningShares, Detail: owner}
			}
			return fmt.Errorf("market_service: get position: %w", err)
		}

		winning := pos.NoShares
		if m.Outcome {
			winning = pos.YesShares
		}
		if winning == 0 {
			return &domain.PreconditionError{Code: domain.CodeNoWinningShares, Detail: owner}
		}

		pos.YesShares = 0
		pos.NoShares = 0
		if err := s.positions.Upsert(ctx, pos); err != nil {
			return fmt.Errorf("market_service: zero position: %w", err)
		}
		if err := s.ledger.CreditUser(ctx, marketID, owner, winning); err != nil {
			return fmt.Errorf("market_service: credit winnings: %w", err)
		}
		result = domain.ClaimResult{Payout: winning}
		return nil
	})
	if err != nil {
		return domain.ClaimResult{}, err
	}

	s.auditLog(ctx, "winnings_claimed", map[string]any{
		"market_id": marketID,
		"owner":     owner,
		"payout":    result.Payout,
	})
	s.logger.InfoContext(ctx, "market_service: winnings claimed",
		slog.String("market_id", marketID),
		slog.Uint64("payout", result.Payout),
	)
	return result, nil
}

func (s *MarketService) archiveSettlement(ctx context.Context, m domain.Market) {
	if s.blobs == nil {
		return
	}
	report, _ := json.Marshal(map[string]any{
		"market_id":    m.ID,
		"question":     m.Question,
		"outcome":      m.Outcome,
		"yes_pool":     m.YesPool,
		"no_pool":      m.NoPool,
		"total_volume": m.TotalVolume,
		"resolved_at":  s.clock.Now(),
	})
	path := fmt.Sprintf("settlements/%s.json", m.ID)
	if err := s.blobs.Put(ctx, path, report, "application/json"); err != nil {
		s.logger.WarnContext(ctx, "market_service: settlement archive failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "market_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) publish(ctx context.Context, channel string, payload map[string]any) {
	evt, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, channel, evt); err != nil {
		s.logger.WarnContext(ctx, "market_service: publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

func lockKey(marketID string) string {
	return "market:" + marketID
}
