package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/farsight-markets/farsight/internal/domain"
	"github.com/farsight-markets/farsight/internal/orderbook"
)

// OrderService manages the limit-order lifecycle: book creation, placement
// with immediate matching, and cancellation.
type OrderService struct {
	markets      domain.MarketStore
	multiMarkets domain.MultiMarketStore
	orders       domain.OrderStore
	books        domain.OrderbookStore
	auth         domain.Authorizer
	clock        domain.Clock
	locks        domain.LockManager
	tx           domain.TxRunner
	bus          domain.SignalBus
	audit        domain.AuditStore
	logger       *slog.Logger
}

// NewOrderService creates an OrderService with all required dependencies.
func NewOrderService(
	markets domain.MarketStore,
	multiMarkets domain.MultiMarketStore,
	orders domain.OrderStore,
	books domain.OrderbookStore,
	auth domain.Authorizer,
	clock domain.Clock,
	locks domain.LockManager,
	tx domain.TxRunner,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		markets:      markets,
		multiMarkets: multiMarkets,
		orders:       orders,
		books:        books,
		auth:         auth,
		clock:        clock,
		locks:        locks,
		tx:           tx,
		bus:          bus,
		audit:        audit,
		logger:       logger,
	}
}

// CreateOrderbook initializes the empty book for a binary or multi-outcome
// market. Placement requires the book to exist; trades create it lazily.
func (s *OrderService) CreateOrderbook(ctx context.Context, marketID string) error {
	if _, err := s.markets.Get(ctx, marketID); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("order_service: get market %q: %w", marketID, err)
		}
		if _, err := s.multiMarkets.Get(ctx, marketID); err != nil {
			return fmt.Errorf("order_service: get market %q: %w", marketID, err)
		}
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.books.Create(ctx, domain.Orderbook{Market: marketID}); err != nil {
			return fmt.Errorf("order_service: create orderbook: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.auditLog(ctx, "orderbook_created", map[string]any{"market_id": marketID})
	s.logger.InfoContext(ctx, "order_service: orderbook created",
		slog.String("market_id", marketID),
	)
	return nil
}

// PlaceOrderParams carries the request for PlaceOrder and PlaceMultiOrder.
// ExpiresIn, when set, is added to the current time to form the advisory
// expiry swept by the background job.
type PlaceOrderParams struct {
	Market    string
	Owner     string
	Price     uint64
	Qty       uint64
	IsYes     bool
	IsBid     bool
	ExpiresIn *int64
}

// PlaceOrder places a limit order on a binary market. The order matches
// against compatible resting orders first; any remainder rests in the book.
// A fully-matched order is never persisted.
func (s *OrderService) PlaceOrder(ctx context.Context, p PlaceOrderParams) (domain.PlaceOrderResult, error) {
	if err := s.validatePlacement(p); err != nil {
		return domain.PlaceOrderResult{}, err
	}

	m, err := s.markets.Get(ctx, p.Market)
	if err != nil {
		return domain.PlaceOrderResult{}, fmt.Errorf("order_service: get market %q: %w", p.Market, err)
	}
	if m.Resolved {
		return domain.PlaceOrderResult{}, &domain.PreconditionError{Code: domain.CodeMarketResolved, Detail: p.Market}
	}

	return s.place(ctx, p, nil)
}

// PlaceMultiOrder places a limit order on one answer of a multi-outcome
// market.
func (s *OrderService) PlaceMultiOrder(ctx context.Context, p PlaceOrderParams, answerIndex uint8) (domain.PlaceOrderResult, error) {
	if err := s.validatePlacement(p); err != nil {
		return domain.PlaceOrderResult{}, err
	}

	m, err := s.multiMarkets.Get(ctx, p.Market)
	if err != nil {
		return domain.PlaceOrderResult{}, fmt.Errorf("order_service: get market %q: %w", p.Market, err)
	}
	if m.Resolved {
		return domain.PlaceOrderResult{}, &domain.PreconditionError{Code: domain.CodeMarketResolved, Detail: p.Market}
	}
	if answerIndex >= m.AnswerCount {
		return domain.PlaceOrderResult{}, &domain.ValidationError{Code: domain.CodeInvalidAnswerIndex, Field: "answer_index", Value: answerIndex}
	}

	return s.place(ctx, p, &answerIndex)
}

func (s *OrderService) validatePlacement(p PlaceOrderParams) error {
	if p.Qty == 0 {
		return &domain.ValidationError{Code: domain.CodeInvalidAmount, Field: "qty", Value: p.Qty}
	}
	if p.Price < domain.MinOrderPrice || p.Price > domain.MaxOrderPrice {
		return &domain.ValidationError{Code: domain.CodeInvalidPrice, Field: "price", Value: p.Price}
	}
	return nil
}

func (s *OrderService) place(ctx context.Context, p PlaceOrderParams, answerIndex *uint8) (domain.PlaceOrderResult, error) {
	unlock, err := s.locks.Acquire(ctx, lockKey(p.Market), lockTTL)
	if err != nil {
		return domain.PlaceOrderResult{}, fmt.Errorf("order_service: acquire lock: %w", err)
	}
	defer unlock()

	var result domain.PlaceOrderResult
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		book, err := s.books.Get(ctx, p.Market)
		if err != nil {
			return fmt.Errorf("order_service: get orderbook %q: %w", p.Market, err)
		}
		mr, err := matchAgainstBook(ctx, s.orders, &book, answerIndex, p.IsYes, p.IsBid, p.Price, p.Qty)
		if err != nil {
			return fmt.Errorf("order_service: %w", err)
		}

		now := s.clock.Now()
		order := domain.LimitOrder{
			ID:          uuid.NewString(),
			Owner:       p.Owner,
			Market:      p.Market,
			AnswerIndex: answerIndex,
			Price:       p.Price,
			Qty:         p.Qty,
			FilledQty:   mr.FilledAmount,
			IsYes:       p.IsYes,
			IsBid:       p.IsBid,
			CreatedAt:   now,
		}
		if p.ExpiresIn != nil {
			exp := now + *p.ExpiresIn
			order.ExpiresAt = &exp
		}

		result = domain.PlaceOrderResult{OrderID: order.ID, FilledQty: mr.FilledAmount}
		if order.FilledQty >= order.Qty {
			// Fully matched at placement; nothing rests and nothing persists.
			if err := s.books.Update(ctx, book); err != nil {
				return fmt.Errorf("order_service: update orderbook: %w", err)
			}
			return nil
		}

		if err := orderbook.Rest(&book, &order); err != nil {
			return err
		}
		if err := s.orders.Create(ctx, order); err != nil {
			return fmt.Errorf("order_service: create order: %w", err)
		}
		if err := s.books.Update(ctx, book); err != nil {
			return fmt.Errorf("order_service: update orderbook: %w", err)
		}
		result.Rested = true
		return nil
	})
	if err != nil {
		return domain.PlaceOrderResult{}, err
	}

	s.publishEvent(ctx, "orders", map[string]any{
		"event":     "order_placed",
		"market_id": p.Market,
		"order_id":  result.OrderID,
		"filled":    result.FilledQty,
		"rested":    result.Rested,
	})
	s.auditLog(ctx, "order_placed", map[string]any{
		"market_id": p.Market,
		"order_id":  result.OrderID,
		"filled":    result.FilledQty,
	})
	s.logger.InfoContext(ctx, "order_service: order placed",
		slog.String("market_id", p.Market),
		slog.String("order_id", result.OrderID),
		slog.Uint64("qty", p.Qty),
		slog.Uint64("filled", result.FilledQty),
		slog.Bool("rested", result.Rested),
	)
	return result, nil
}

// CancelOrder removes the owner's order from the book and destroys its
// record. Orders already destroyed by full fill or a prior cancel report
// order_not_found.
func (s *OrderService) CancelOrder(ctx context.Context, claim domain.CallerClaim, orderID string) error {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.PreconditionError{Code: domain.CodeOrderNotFound, Detail: orderID}
		}
		return fmt.Errorf("order_service: get order %q: %w", orderID, err)
	}
	if err := s.auth.Authorize(ctx, claim, order.Owner); err != nil {
		return err
	}

	unlock, err := s.locks.Acquire(ctx, lockKey(order.Market), lockTTL)
	if err != nil {
		return fmt.Errorf("order_service: acquire lock: %w", err)
	}
	defer unlock()

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		book, err := s.books.Get(ctx, order.Market)
		if err != nil {
			return fmt.Errorf("order_service: get orderbook %q: %w", order.Market, err)
		}
		if err := orderbook.Remove(&book, &order); err != nil {
			return err
		}
		if err := s.orders.Delete(ctx, orderID); err != nil {
			return fmt.Errorf("order_service: delete order: %w", err)
		}
		if err := s.books.Update(ctx, book); err != nil {
			return fmt.Errorf("order_service: update orderbook: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publishEvent(ctx, "orders", map[string]any{
		"event":     "order_cancelled",
		"market_id": order.Market,
		"order_id":  orderID,
	})
	s.auditLog(ctx, "order_cancelled", map[string]any{
		"market_id": order.Market,
		"order_id":  orderID,
	})
	s.logger.InfoContext(ctx, "order_service: order cancelled",
		slog.String("market_id", order.Market),
		slog.String("order_id", orderID),
	)
	return nil
}

func (s *OrderService) publishEvent(ctx context.Context, channel string, payload map[string]any) {
	evt, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, channel, evt); err != nil {
		s.logger.WarnContext(ctx, "order_service: publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

func (s *OrderService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "order_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
