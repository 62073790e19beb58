package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/farsight-markets/farsight/internal/domain"
	"github.com/farsight-markets/farsight/internal/orderbook"
)

// loadCandidates fetches every resting order referenced by the book, in
// bucket order (yes-buy, yes-sell, no-buy, no-sell) and insertion order
// within each bucket. That presentation order is the matching priority.
func loadCandidates(ctx context.Context, orders domain.OrderStore, book domain.Orderbook) ([]*domain.LimitOrder, error) {
	ids := make([]string, 0,
		len(book.YesBuyOrders)+len(book.YesSellOrders)+len(book.NoBuyOrders)+len(book.NoSellOrders))
	ids = append(ids, book.YesBuyOrders...)
	ids = append(ids, book.YesSellOrders...)
	ids = append(ids, book.NoBuyOrders...)
	ids = append(ids, book.NoSellOrders...)
	if len(ids) == 0 {
		return nil, nil
	}

	loaded, err := orders.GetBatch(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	out := make([]*domain.LimitOrder, len(loaded))
	for i := range loaded {
		out[i] = &loaded[i]
	}
	return out, nil
}

// settleMatched persists candidate orders the matching engine filled,
// destroying fully-filled ones: their record is deleted and their book entry
// removed, so a later cancel reports order_not_found.
func settleMatched(ctx context.Context, orders domain.OrderStore, book *domain.Orderbook, candidates []*domain.LimitOrder, preFill map[string]uint64) error {
	for _, o := range candidates {
		if o.FilledQty == preFill[o.ID] {
			continue
		}
		if o.FilledQty >= o.Qty {
			if err := orders.Delete(ctx, o.ID); err != nil {
				return fmt.Errorf("destroy filled order %s: %w", o.ID, err)
			}
			book.Remove(o.ID, o.IsYes, o.IsBid)
			continue
		}
		if err := orders.Update(ctx, *o); err != nil {
			return fmt.Errorf("update filled order %s: %w", o.ID, err)
		}
	}
	return nil
}

// getOrCreateBook loads the market's book, creating an empty record on first
// use. Markets trade pool-only until someone places a resting order, so a
// trade must not require a prior CreateOrderbook call.
func getOrCreateBook(ctx context.Context, books domain.OrderbookStore, marketID string) (domain.Orderbook, error) {
	book, err := books.Get(ctx, marketID)
	if errors.Is(err, domain.ErrNotFound) {
		book = domain.Orderbook{Market: marketID}
		if err := books.Create(ctx, book); err != nil {
			return domain.Orderbook{}, fmt.Errorf("create orderbook %q: %w", marketID, err)
		}
		return book, nil
	}
	if err != nil {
		return domain.Orderbook{}, fmt.Errorf("get orderbook %q: %w", marketID, err)
	}
	return book, nil
}

// matchAgainstBook runs one greedy matching pass and persists its effects on
// the resting side. The book is mutated in place when fills destroy orders.
func matchAgainstBook(ctx context.Context, orders domain.OrderStore, book *domain.Orderbook, answerIndex *uint8, isYes, isBuy bool, limitPrice, amount uint64) (orderbook.MatchResult, error) {
	candidates, err := loadCandidates(ctx, orders, *book)
	if err != nil {
		return orderbook.MatchResult{}, err
	}
	preFill := make(map[string]uint64, len(candidates))
	for _, o := range candidates {
		preFill[o.ID] = o.FilledQty
	}

	mr := orderbook.Match(book.Market, candidates, answerIndex, isYes, isBuy, limitPrice, amount)

	if err := settleMatched(ctx, orders, book, candidates, preFill); err != nil {
		return orderbook.MatchResult{}, err
	}
	return mr, nil
}
