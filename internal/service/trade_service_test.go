package service

import (
	"context"
	"errors"
	"testing"

	"github.com/farsight-markets/farsight/internal/domain"
	"github.com/farsight-markets/farsight/internal/fees"
)

func TestBuyValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.createMarket(t, 1000)

	_, err := e.trades.Buy(ctx, BuyParams{Market: m.ID, Buyer: "0xBUYER", IsYes: true, Amount: 0})
	if got := domain.ErrCode(err); got != domain.CodeInvalidAmount {
		t.Errorf("zero amount code = %q, want invalid_amount", got)
	}

	e.clock.Set(5000)
	if err := e.markets.ResolveMarket(ctx, creatorClaim(), m.ID, true); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	_, err = e.trades.Buy(ctx, BuyParams{Market: m.ID, Buyer: "0xBUYER", IsYes: true, Amount: 100})
	if got := domain.ErrCode(err); got != domain.CodeMarketResolved {
		t.Errorf("resolved market code = %q, want market_resolved", got)
	}
}

func TestBuyThroughPool(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.createMarket(t, 1000)
	e.ledger.Deposit("0xBUYER", 10_000)

	res, err := e.trades.Buy(ctx, BuyParams{Market: m.ID, Buyer: "0xBUYER", IsYes: true, Amount: 100})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if res.SharesOut != 190 || res.MatchedUnits != 0 || res.PooledUnits != 100 {
		t.Errorf("result = %+v, want 190 shares all pooled", res)
	}

	stored, _ := e.store.Markets().Get(ctx, m.ID)
	if stored.YesPool != 1000 || stored.NoPool != 1100 {
		t.Errorf("pools = %d/%d, want 1000/1100", stored.YesPool, stored.NoPool)
	}
	if stored.TotalVolume != 100 {
		t.Errorf("volume = %d, want 100", stored.TotalVolume)
	}
	if bal := e.ledger.UserBalance("0xBUYER"); bal != 9_900 {
		t.Errorf("buyer balance = %d, want 9900", bal)
	}
	if vault := e.ledger.VaultBalance(m.ID); vault != 100 {
		t.Errorf("vault balance = %d, want 100", vault)
	}

	pos, err := e.store.Positions().Get(ctx, m.ID, "0xBUYER")
	if err != nil || pos.YesShares != 190 || pos.NoShares != 0 {
		t.Errorf("position = %+v err=%v, want 190 YES", pos, err)
	}
}

func TestBuyFeeComesOffFirst(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.createMarket(t, 100_000)
	e.ledger.Deposit("0xBUYER", 50_000)
	if err := e.markets.SetFees(ctx, creatorClaim(), m.ID, fees.Schedule{FeeBps: 250}); err != nil {
		t.Fatalf("set fees: %v", err)
	}

	res, err := e.trades.Buy(ctx, BuyParams{Market: m.ID, Buyer: "0xBUYER", IsYes: true, Amount: 12_345})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if res.Fee != 308 {
		t.Errorf("fee = %d, want 308", res.Fee)
	}
	if res.PooledUnits != 12_345-308 {
		t.Errorf("pooled = %d, want net of fee %d", res.PooledUnits, 12_345-308)
	}

	stored, _ := e.store.Markets().Get(ctx, m.ID)
	if stored.CollectedFees != 308 {
		t.Errorf("collected fees = %d, want 308", stored.CollectedFees)
	}
}

func TestBuySlippage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.createMarket(t, 1000)
	e.ledger.Deposit("0xBUYER", 10_000)

	_, err := e.trades.Buy(ctx, BuyParams{Market: m.ID, Buyer: "0xBUYER", IsYes: true, Amount: 100, MinSharesOut: 191})
	var se *domain.SlippageError
	if !errors.As(err, &se) {
		t.Fatalf("expected slippage error, got %v", err)
	}
	if se.Min != 191 || se.Got != 190 {
		t.Errorf("slippage = min %d got %d, want 191/190", se.Min, se.Got)
	}

	// The aborted buy left nothing behind.
	stored, _ := e.store.Markets().Get(ctx, m.ID)
	if stored.YesPool != 1000 || stored.NoPool != 1000 || stored.TotalVolume != 0 {
		t.Errorf("market mutated by failed buy: %+v", stored)
	}
	if bal := e.ledger.UserBalance("0xBUYER"); bal != 10_000 {
		t.Errorf("buyer balance = %d, want untouched 10000", bal)
	}
}

func TestSellRequiresShares(t *testing.T) {
	e := newEnv(t)
	m := e.createMarket(t, 1000)

	_, err := e.trades.Sell(context.Background(), SellParams{Market: m.ID, Seller: "0xSELLER", IsYes: true, Shares: 10})
	if got := domain.ErrCode(err); got != domain.CodeInsufficientShares {
		t.Errorf("code = %q, want insufficient_shares", got)
	}
}

func TestBuyThenSellIsNotARoundtrip(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.createMarket(t, 1000)
	e.ledger.Deposit("0xTRADER", 10_000)
	e.ledger.Fund(m.ID, 1000)

	buy, err := e.trades.Buy(ctx, BuyParams{Market: m.ID, Buyer: "0xTRADER", IsYes: true, Amount: 100})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}

	sell, err := e.trades.Sell(ctx, SellParams{Market: m.ID, Seller: "0xTRADER", IsYes: true, Shares: buy.SharesOut})
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	// Buying 100 and selling the 190 shares straight back yields 175, not
	// 100. The buy and sell curves are intentionally not inverses.
	if sell.Payout == 100 {
		t.Fatalf("roundtrip returned the original amount; the curves should not be inverses")
	}
	if sell.Payout != 175 {
		t.Errorf("payout = %d, want 175", sell.Payout)
	}
}

func TestBuyMatchesRestingOrderThenPool(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.createMarket(t, 1000)
	e.ledger.Deposit("0xBUYER", 10_000)

	// A resting ask on the NO side is the counterparty for YES buys.
	placed, err := e.orders.PlaceOrder(ctx, PlaceOrderParams{
		Market: m.ID, Owner: "0xMAKER", Price: 4000, Qty: 50, IsYes: false, IsBid: false,
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if !placed.Rested || placed.FilledQty != 0 {
		t.Fatalf("order should rest untouched: %+v", placed)
	}

	res, err := e.trades.Buy(ctx, BuyParams{Market: m.ID, Buyer: "0xBUYER", IsYes: true, Amount: 30})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if res.MatchedUnits != 30 || res.PooledUnits != 0 {
		t.Errorf("matched/pooled = %d/%d, want 30/0", res.MatchedUnits, res.PooledUnits)
	}
	// Matched fills convert at the pre-trade spot of 5000 bps.
	if res.SharesOut != 60 {
		t.Errorf("shares out = %d, want 60", res.SharesOut)
	}

	order, err := e.store.Orders().Get(ctx, placed.OrderID)
	if err != nil || order.FilledQty != 30 {
		t.Errorf("resting order filled = %d err=%v, want 30", order.FilledQty, err)
	}
	stored, _ := e.store.Markets().Get(ctx, m.ID)
	if stored.YesPool != 1000 || stored.NoPool != 1000 {
		t.Errorf("fully matched buy moved the pools: %d/%d", stored.YesPool, stored.NoPool)
	}
}

func TestFullFillDestroysOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.createMarket(t, 1000)
	e.ledger.Deposit("0xBUYER", 10_000)

	placed, err := e.orders.PlaceOrder(ctx, PlaceOrderParams{
		Market: m.ID, Owner: "0xMAKER", Price: 4000, Qty: 50, IsYes: false, IsBid: false,
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	if _, err := e.trades.Buy(ctx, BuyParams{Market: m.ID, Buyer: "0xBUYER", IsYes: true, Amount: 50}); err != nil {
		t.Fatalf("buy: %v", err)
	}

	if _, err := e.store.Orders().Get(ctx, placed.OrderID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("fully filled order still exists: err=%v", err)
	}

	err = e.orders.CancelOrder(ctx, claimFor("0xMAKER"), placed.OrderID)
	if got := domain.ErrCode(err); got != domain.CodeOrderNotFound {
		t.Errorf("cancel after full fill = %q, want order_not_found", got)
	}
}

func TestTradeWithoutOrderbook(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// No CreateOrderbook call: trades must still go through, pool-only.
	m, err := e.markets.CreateMarket(ctx, CreateMarketParams{
		Creator:          "0xCREATOR",
		Question:         "Will it ship this year?",
		ResolutionTime:   5000,
		InitialLiquidity: 1000,
	})
	if err != nil {
		t.Fatalf("create market: %v", err)
	}
	e.ledger.Deposit("0xBUYER", 10_000)

	res, err := e.trades.Buy(ctx, BuyParams{Market: m.ID, Buyer: "0xBUYER", IsYes: true, Amount: 100})
	if err != nil {
		t.Fatalf("buy on bookless market: %v", err)
	}
	if res.SharesOut != 190 || res.MatchedUnits != 0 || res.PooledUnits != 100 {
		t.Errorf("result = %+v, want 190 shares all pooled", res)
	}

	// The first trade left an empty book behind.
	book, err := e.store.Orderbooks().Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("book after first trade: %v", err)
	}
	if len(book.YesBuyOrders)+len(book.YesSellOrders)+len(book.NoBuyOrders)+len(book.NoSellOrders) != 0 {
		t.Errorf("lazily created book is not empty: %+v", book)
	}

	if _, err := e.trades.Sell(ctx, SellParams{Market: m.ID, Seller: "0xBUYER", IsYes: true, Shares: 50}); err != nil {
		t.Errorf("sell after lazy book creation: %v", err)
	}
}
