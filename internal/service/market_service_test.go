package service

import (
	"context"
	"strings"
	"testing"

	"github.com/farsight-markets/farsight/internal/domain"
	"github.com/farsight-markets/farsight/internal/fees"
)

func TestCreateMarketValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		params   CreateMarketParams
		wantCode domain.Code
	}{
		{
			"question too long",
			CreateMarketParams{Question: strings.Repeat("x", 201), ResolutionTime: 5000, InitialLiquidity: 1000},
			domain.CodeQuestionTooLong,
		},
		{
			"resolution time in the past",
			CreateMarketParams{Question: "q", ResolutionTime: 500, InitialLiquidity: 1000},
			domain.CodeInvalidResolutionTime,
		},
		{
			"liquidity below minimum",
			CreateMarketParams{Question: "q", ResolutionTime: 5000, InitialLiquidity: 99},
			domain.CodeInsufficientLiquidity,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.markets.CreateMarket(ctx, tt.params)
			if got := domain.ErrCode(err); got != tt.wantCode {
				t.Errorf("code = %q, want %q (err: %v)", got, tt.wantCode, err)
			}
		})
	}
}

func TestCreateMarketSeedsPoolsEvenly(t *testing.T) {
	e := newEnv(t)
	m := e.createMarket(t, 1000)

	if m.YesPool != 1000 || m.NoPool != 1000 {
		t.Errorf("pools = %d/%d, want 1000/1000", m.YesPool, m.NoPool)
	}

	q, err := e.markets.Price(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if q.YesBps != 5000 || q.NoBps != 5000 {
		t.Errorf("initial quote = %d/%d, want 5000/5000", q.YesBps, q.NoBps)
	}
}

func TestSetFees(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.createMarket(t, 1000)

	err := e.markets.SetFees(ctx, creatorClaim(), m.ID, fees.Schedule{FeeBps: 800, CreatorFeeBps: 300})
	if got := domain.ErrCode(err); got != domain.CodeFeesTooHigh {
		t.Errorf("overweight schedule code = %q, want fees_too_high", got)
	}

	err = e.markets.SetFees(ctx, claimFor("0xINTRUDER"), m.ID, fees.Schedule{FeeBps: 100})
	if got := domain.ErrCode(err); got != domain.CodeUnauthorized {
		t.Errorf("intruder code = %q, want unauthorized", got)
	}

	if err := e.markets.SetFees(ctx, creatorClaim(), m.ID, fees.Schedule{FeeBps: 250}); err != nil {
		t.Fatalf("set fees: %v", err)
	}
	stored, err := e.store.Markets().Get(ctx, m.ID)
	if err != nil || stored.FeeBps != 250 {
		t.Errorf("stored fee = %d err=%v, want 250", stored.FeeBps, err)
	}
}

func TestResolveMarket(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.createMarket(t, 1000)

	err := e.markets.ResolveMarket(ctx, creatorClaim(), m.ID, true)
	if got := domain.ErrCode(err); got != domain.CodeTooEarlyToResolve {
		t.Errorf("early resolve code = %q, want too_early_to_resolve", got)
	}

	e.clock.Set(5000)

	err = e.markets.ResolveMarket(ctx, claimFor("0xINTRUDER"), m.ID, true)
	if got := domain.ErrCode(err); got != domain.CodeUnauthorized {
		t.Errorf("intruder code = %q, want unauthorized", got)
	}

	if err := e.markets.ResolveMarket(ctx, creatorClaim(), m.ID, true); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	err = e.markets.ResolveMarket(ctx, creatorClaim(), m.ID, false)
	if got := domain.ErrCode(err); got != domain.CodeMarketResolved {
		t.Errorf("double resolve code = %q, want market_resolved", got)
	}

	if _, ok := e.blobs.Object("settlements/" + m.ID + ".json"); !ok {
		t.Errorf("settlement report was not archived")
	}
}

func TestClaim(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.createMarket(t, 1000)
	e.ledger.Deposit("0xBUYER", 10_000)
	e.ledger.Fund(m.ID, 1000)

	if _, err := e.markets.Claim(ctx, m.ID, "0xBUYER"); domain.ErrCode(err) != domain.CodeMarketNotResolved {
		t.Errorf("claim before resolution = %v, want market_not_resolved", err)
	}

	res, err := e.trades.Buy(ctx, BuyParams{Market: m.ID, Buyer: "0xBUYER", IsYes: true, Amount: 1000})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if res.SharesOut != 1500 {
		t.Fatalf("shares out = %d, want 1500", res.SharesOut)
	}

	e.clock.Set(5000)
	if err := e.markets.ResolveMarket(ctx, creatorClaim(), m.ID, true); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	claim, err := e.markets.Claim(ctx, m.ID, "0xBUYER")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claim.Payout != 1500 {
		t.Errorf("payout = %d, want 1500", claim.Payout)
	}
	if bal := e.ledger.UserBalance("0xBUYER"); bal != 10_500 {
		t.Errorf("buyer balance = %d, want 10500", bal)
	}

	if _, err := e.markets.Claim(ctx, m.ID, "0xBUYER"); domain.ErrCode(err) != domain.CodeNoWinningShares {
		t.Errorf("second claim = %v, want no_winning_shares", err)
	}
	if _, err := e.markets.Claim(ctx, m.ID, "0xNOBODY"); domain.ErrCode(err) != domain.CodeNoWinningShares {
		t.Errorf("stranger claim = %v, want no_winning_shares", err)
	}
}
