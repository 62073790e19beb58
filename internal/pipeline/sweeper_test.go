package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/farsight-markets/farsight/internal/clockwork"
	"github.com/farsight-markets/farsight/internal/domain"
	"github.com/farsight-markets/farsight/internal/orderbook"
	"github.com/farsight-markets/farsight/internal/store/memory"
)

func newSweeper(t *testing.T, store *memory.Store, clock *clockwork.Fake, locks *memory.LockManager) *OrderSweeper {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewOrderSweeper(
		store.Orders(), store.Orderbooks(), clock, locks, memory.NewTxRunner(store), logger,
	)
}

func restOrder(t *testing.T, store *memory.Store, o domain.LimitOrder) {
	t.Helper()
	ctx := context.Background()
	book, err := store.Orderbooks().Get(ctx, o.Market)
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if err := orderbook.Rest(&book, &o); err != nil {
		t.Fatalf("rest: %v", err)
	}
	if err := store.Orders().Create(ctx, o); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := store.Orderbooks().Update(ctx, book); err != nil {
		t.Fatalf("update book: %v", err)
	}
}

func TestSweepRemovesOnlyExpiredOrders(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	clock := clockwork.NewFake(1000)
	locks := memory.NewLockManager()

	if err := store.Orderbooks().Create(ctx, domain.Orderbook{Market: "m1"}); err != nil {
		t.Fatalf("create book: %v", err)
	}
	expired := int64(900)
	live := int64(2000)
	restOrder(t, store, domain.LimitOrder{ID: "o1", Market: "m1", Owner: "0xA", Price: 4000, Qty: 10, IsYes: true, IsBid: true, ExpiresAt: &expired})
	restOrder(t, store, domain.LimitOrder{ID: "o2", Market: "m1", Owner: "0xA", Price: 4100, Qty: 10, IsYes: true, IsBid: true, ExpiresAt: &live})
	restOrder(t, store, domain.LimitOrder{ID: "o3", Market: "m1", Owner: "0xA", Price: 4200, Qty: 10, IsYes: true, IsBid: true})

	swept, err := newSweeper(t, store, clock, locks).Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if swept != 1 {
		t.Errorf("swept = %d, want 1", swept)
	}

	if _, err := store.Orders().Get(ctx, "o1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expired order survived: err=%v", err)
	}
	for _, id := range []string{"o2", "o3"} {
		if _, err := store.Orders().Get(ctx, id); err != nil {
			t.Errorf("order %s swept early: %v", id, err)
		}
	}
	book, _ := store.Orderbooks().Get(ctx, "m1")
	if len(book.YesBuyOrders) != 2 {
		t.Errorf("YesBuy bucket = %v, want two entries", book.YesBuyOrders)
	}
}

func TestSweepSkipsLockedMarkets(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	clock := clockwork.NewFake(1000)
	locks := memory.NewLockManager()

	if err := store.Orderbooks().Create(ctx, domain.Orderbook{Market: "m1"}); err != nil {
		t.Fatalf("create book: %v", err)
	}
	expired := int64(900)
	restOrder(t, store, domain.LimitOrder{ID: "o1", Market: "m1", Owner: "0xA", Price: 4000, Qty: 10, IsYes: true, IsBid: true, ExpiresAt: &expired})

	unlock, err := locks.Acquire(ctx, "market:m1", sweepLockTTL)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	sweeper := newSweeper(t, store, clock, locks)
	swept, err := sweeper.Run(ctx)
	if err != nil {
		t.Fatalf("run under contention: %v", err)
	}
	if swept != 0 {
		t.Errorf("swept = %d, want 0 while locked", swept)
	}
	if _, err := store.Orders().Get(ctx, "o1"); err != nil {
		t.Errorf("order removed despite lock: %v", err)
	}

	unlock()
	swept, err = sweeper.Run(ctx)
	if err != nil {
		t.Fatalf("run after unlock: %v", err)
	}
	if swept != 1 {
		t.Errorf("swept = %d, want 1 after unlock", swept)
	}
}

func TestSweepHandlesAlreadyDeletedOrder(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	clock := clockwork.NewFake(1000)
	locks := memory.NewLockManager()

	if err := store.Orderbooks().Create(ctx, domain.Orderbook{Market: "m1"}); err != nil {
		t.Fatalf("create book: %v", err)
	}

	expired := int64(900)
	sweeper := newSweeper(t, store, clock, locks)
	removed, err := sweeper.sweepOne(ctx, domain.LimitOrder{ID: "gone", Market: "m1", ExpiresAt: &expired})
	if err != nil {
		t.Fatalf("sweepOne: %v", err)
	}
	if !removed {
		t.Errorf("sweepOne reported failure for an already-deleted order")
	}
}
