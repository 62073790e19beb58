package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/farsight-markets/farsight/internal/auth"
	"github.com/farsight-markets/farsight/internal/clockwork"
	"github.com/farsight-markets/farsight/internal/domain"
	"github.com/farsight-markets/farsight/internal/ledger"
	"github.com/farsight-markets/farsight/internal/store/memory"
)

// env wires every service onto in-memory infrastructure. The fake clock
// starts at 1000 and markets created through it resolve at 5000.
type env struct {
	store     *memory.Store
	ledger    *ledger.Memory
	clock     *clockwork.Fake
	blobs     *memory.BlobStore
	markets   *MarketService
	trades    *TradeService
	multi     *MultiService
	orders    *OrderService
	positions *PositionService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	store := memory.NewStore()
	tx := memory.NewTxRunner(store)
	locks := memory.NewLockManager()
	quotes := memory.NewQuoteCache()
	bus := memory.NewSignalBus()
	blobs := memory.NewBlobStore()
	led := ledger.NewMemory()
	clock := clockwork.NewFake(1000)
	authz := auth.NewStatic()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &env{
		store:  store,
		ledger: led,
		clock:  clock,
		blobs:  blobs,
		markets: NewMarketService(
			store.Markets(), store.Positions(), led, authz, clock, locks, tx,
			quotes, bus, store.Audit(), blobs, logger,
		),
		trades: NewTradeService(
			store.Markets(), store.Positions(), store.Orders(), store.Orderbooks(),
			led, locks, tx, quotes, bus, store.Audit(), logger,
		),
		multi: NewMultiService(
			store.MultiMarkets(), store.Answers(), store.MultiPositions(),
			store.Orders(), store.Orderbooks(), led, authz, clock, locks, tx,
			quotes, bus, store.Audit(), blobs, logger,
		),
		orders: NewOrderService(
			store.Markets(), store.MultiMarkets(), store.Orders(), store.Orderbooks(),
			authz, clock, locks, tx, bus, store.Audit(), logger,
		),
		positions: NewPositionService(
			store.MultiMarkets(), store.Answers(), store.MultiPositions(),
			led, locks, tx, store.Audit(), logger,
		),
	}
}

func (e *env) createMarket(t *testing.T, liquidity uint64) domain.Market {
	t.Helper()
	m, err := e.markets.CreateMarket(context.Background(), CreateMarketParams{
		Creator:          "0xCREATOR",
		Question:         "Will it ship this year?",
		ResolutionTime:   5000,
		InitialLiquidity: liquidity,
	})
	if err != nil {
		t.Fatalf("create market: %v", err)
	}
	if err := e.orders.CreateOrderbook(context.Background(), m.ID); err != nil {
		t.Fatalf("create orderbook: %v", err)
	}
	return m
}

func (e *env) createMultiMarket(t *testing.T, answerCount uint8, oneWinner bool, feeBps uint16) domain.MultiMarket {
	t.Helper()
	ctx := context.Background()
	m, err := e.multi.CreateMultiMarket(ctx, CreateMultiMarketParams{
		Creator:          "0xCREATOR",
		AnswerCount:      answerCount,
		IsOneWinner:      oneWinner,
		InitialLiquidity: 10_000,
		FeeBps:           feeBps,
		ResolutionTime:   5000,
	})
	if err != nil {
		t.Fatalf("create multi market: %v", err)
	}
	for i := uint8(0); i < answerCount; i++ {
		if _, err := e.multi.AddAnswer(ctx, creatorClaim(), m.ID, i, [32]byte{i}, 10_000); err != nil {
			t.Fatalf("add answer %d: %v", i, err)
		}
	}
	if err := e.orders.CreateOrderbook(ctx, m.ID); err != nil {
		t.Fatalf("create orderbook: %v", err)
	}
	return m
}

func creatorClaim() domain.CallerClaim {
	return domain.CallerClaim{Actor: "0xCREATOR"}
}

func claimFor(actor string) domain.CallerClaim {
	return domain.CallerClaim{Actor: actor}
}
