// Package pipeline contains the engine's background loops: the order expiry
// sweeper and the event notifier. Each loop runs until its context is
// cancelled; the Orchestrator ties them together under one errgroup.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/farsight-markets/farsight/internal/domain"
	"github.com/farsight-markets/farsight/internal/orderbook"
)

const sweepBatchSize = 100
const sweepLockTTL = 10 * time.Second

// OrderSweeper removes expired limit orders from their books. Expiry is
// advisory: an expired order still matches until the sweeper gets to it.
type OrderSweeper struct {
	orders domain.OrderStore
	books  domain.OrderbookStore
	clock  domain.Clock
	locks  domain.LockManager
	tx     domain.TxRunner
	logger *slog.Logger
}

// NewOrderSweeper creates a new OrderSweeper.
func NewOrderSweeper(
	orders domain.OrderStore,
	books domain.OrderbookStore,
	clock domain.Clock,
	locks domain.LockManager,
	tx domain.TxRunner,
	logger *slog.Logger,
) *OrderSweeper {
	return &OrderSweeper{
		orders: orders,
		books:  books,
		clock:  clock,
		locks:  locks,
		tx:     tx,
		logger: logger,
	}
}

// Run executes a single sweep. It pages through expired orders in batches
// and removes each from its book inside the market's lock. Markets whose
// lock is contended are skipped and picked up on the next pass.
func (s *OrderSweeper) Run(ctx context.Context) (int, error) {
	now := s.clock.Now()
	totalSwept := 0

	for {
		if err := ctx.Err(); err != nil {
			return totalSwept, fmt.Errorf("pipeline: sweep cancelled: %w", err)
		}

		expired, err := s.orders.ListExpired(ctx, now, sweepBatchSize)
		if err != nil {
			return totalSwept, fmt.Errorf("pipeline: list expired orders: %w", err)
		}
		if len(expired) == 0 {
			break
		}

		swept := 0
		for _, o := range expired {
			removed, err := s.sweepOne(ctx, o)
			if err != nil {
				return totalSwept, err
			}
			if removed {
				swept++
			}
		}
		totalSwept += swept

		// A pass that removed nothing means every remaining candidate
		// sits behind a held lock; retry on the next tick.
		if swept == 0 || len(expired) < sweepBatchSize {
			break
		}
	}

	if totalSwept > 0 {
		s.logger.InfoContext(ctx, "pipeline: sweep complete",
			slog.Int("swept", totalSwept),
		)
	}
	return totalSwept, nil
}

func (s *OrderSweeper) sweepOne(ctx context.Context, o domain.LimitOrder) (bool, error) {
	unlock, err := s.locks.Acquire(ctx, "market:"+o.Market, sweepLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return false, nil
		}
		return false, fmt.Errorf("pipeline: acquire lock for %q: %w", o.Market, err)
	}
	defer unlock()

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		// Re-read under the lock; the order may have filled or been
		// cancelled since the listing.
		current, err := s.orders.Get(ctx, o.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("pipeline: get order %q: %w", o.ID, err)
		}

		book, err := s.books.Get(ctx, current.Market)
		if err != nil {
			return fmt.Errorf("pipeline: get orderbook %q: %w", current.Market, err)
		}
		if err := orderbook.Remove(&book, &current); err != nil {
			return err
		}
		if err := s.orders.Delete(ctx, current.ID); err != nil {
			return fmt.Errorf("pipeline: delete order %q: %w", current.ID, err)
		}
		if err := s.books.Update(ctx, book); err != nil {
			return fmt.Errorf("pipeline: update orderbook: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	s.logger.InfoContext(ctx, "pipeline: expired order swept",
		slog.String("market_id", o.Market),
		slog.String("order_id", o.ID),
	)
	return true, nil
}

// RunLoop runs the sweeper on a repeating interval until the context is
// cancelled.
func (s *OrderSweeper) RunLoop(ctx context.Context, interval time.Duration) error {
	// Run immediately on start.
	if _, err := s.Run(ctx); err != nil {
		s.logger.ErrorContext(ctx, "pipeline: sweep failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "pipeline: sweeper loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil {
				s.logger.ErrorContext(ctx, "pipeline: sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}
