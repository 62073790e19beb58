package service

import (
	"context"
	"errors"
	"testing"

	"github.com/farsight-markets/farsight/internal/domain"
)

func TestSplitAndMergeRoundtrip(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.createMultiMarket(t, 3, false, 0)
	e.ledger.Deposit("0xTRADER", 10_000)

	if err := e.positions.Split(ctx, m.ID, 1, "0xTRADER", 4000); err != nil {
		t.Fatalf("split: %v", err)
	}
	pos, err := e.store.MultiPositions().Get(ctx, m.ID, "0xTRADER")
	if err != nil || pos.YesShares[1] != 4000 || pos.NoShares[1] != 4000 {
		t.Errorf("position after split = %+v err=%v, want 4000/4000 on answer 1", pos, err)
	}
	if bal := e.ledger.UserBalance("0xTRADER"); bal != 6000 {
		t.Errorf("balance after split = %d, want 6000", bal)
	}

	// Splitting never touches the pools.
	a, _ := e.store.Answers().Get(ctx, m.ID, 1)
	if a.YesPool != 20_000 || a.NoPool != 10_000 {
		t.Errorf("pools = %d/%d, want untouched 20000/10000", a.YesPool, a.NoPool)
	}

	if err := e.positions.Merge(ctx, m.ID, 1, "0xTRADER", 4000); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if bal := e.ledger.UserBalance("0xTRADER"); bal != 10_000 {
		t.Errorf("balance after merge = %d, want 10000", bal)
	}
	pos, _ = e.store.MultiPositions().Get(ctx, m.ID, "0xTRADER")
	if pos.YesShares[1] != 0 || pos.NoShares[1] != 0 {
		t.Errorf("position after merge = %+v, want zeroed", pos)
	}
}

func TestSplitValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.createMultiMarket(t, 3, false, 0)

	err := e.positions.Split(ctx, m.ID, 0, "0xTRADER", 0)
	if got := domain.ErrCode(err); got != domain.CodeInvalidAmount {
		t.Errorf("zero amount = %q, want invalid_amount", got)
	}
	err = e.positions.Split(ctx, m.ID, 7, "0xTRADER", 100)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown answer = %v, want ErrNotFound", err)
	}
}

func TestMergeRequiresBothSides(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.createMultiMarket(t, 3, false, 0)
	e.ledger.Deposit("0xTRADER", 10_000)

	if err := e.positions.Split(ctx, m.ID, 0, "0xTRADER", 1000); err != nil {
		t.Fatalf("split: %v", err)
	}
	err := e.positions.Merge(ctx, m.ID, 0, "0xTRADER", 2000)
	if got := domain.ErrCode(err); got != domain.CodeInsufficientShares {
		t.Errorf("code = %q, want insufficient_shares", got)
	}
}

func TestConvertValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	plain := e.createMultiMarket(t, 3, false, 0)
	_, err := e.positions.Convert(ctx, plain.ID, "0xTRADER", 0b011, 100)
	if got := domain.ErrCode(err); got != domain.CodeNotOneWinnerMarket {
		t.Errorf("plain market = %q, want not_one_winner_market", got)
	}

	m := e.createMultiMarket(t, 3, true, 0)
	_, err = e.positions.Convert(ctx, m.ID, "0xTRADER", 0, 100)
	if got := domain.ErrCode(err); got != domain.CodeInvalidIndexSet {
		t.Errorf("empty index set = %q, want invalid_index_set", got)
	}
	_, err = e.positions.Convert(ctx, m.ID, "0xTRADER", 1<<3, 100)
	if got := domain.ErrCode(err); got != domain.CodeInvalidIndexSet {
		t.Errorf("out-of-range bit = %q, want invalid_index_set", got)
	}
	_, err = e.positions.Convert(ctx, m.ID, "0xTRADER", 0b011, 100)
	if got := domain.ErrCode(err); got != domain.CodeInsufficientShares {
		t.Errorf("no holdings = %q, want insufficient_shares", got)
	}
}

func TestConvertZeroAmountIsNoop(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.createMultiMarket(t, 3, true, 0)

	res, err := e.positions.Convert(ctx, m.ID, "0xTRADER", 0b011, 0)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if res != (domain.ConvertResult{}) {
		t.Errorf("result = %+v, want zero value", res)
	}
}

func TestConvertBurnsNoAndMintsYes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.createMultiMarket(t, 3, true, 0)
	e.ledger.Deposit("0xTRADER", 10_000)

	if err := e.positions.Split(ctx, m.ID, 0, "0xTRADER", 100); err != nil {
		t.Fatalf("split 0: %v", err)
	}
	if err := e.positions.Split(ctx, m.ID, 1, "0xTRADER", 100); err != nil {
		t.Fatalf("split 1: %v", err)
	}

	res, err := e.positions.Convert(ctx, m.ID, "0xTRADER", 0b011, 100)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if res.BurnedAnswers != 2 || res.MintedPerLeg != 100 || res.CollateralOut != 100 || res.FeeCollected != 0 {
		t.Errorf("result = %+v, want 2 burned, 100 minted, 100 out", res)
	}

	pos, _ := e.store.MultiPositions().Get(ctx, m.ID, "0xTRADER")
	if pos.NoShares[0] != 0 || pos.NoShares[1] != 0 {
		t.Errorf("NO shares not burned: %+v", pos)
	}
	if pos.YesShares[0] != 100 || pos.YesShares[1] != 100 || pos.YesShares[2] != 100 {
		t.Errorf("YES shares = %v, want 100 on every answer", pos.YesShares[:3])
	}
	if bal := e.ledger.UserBalance("0xTRADER"); bal != 9900 {
		t.Errorf("balance = %d, want 9900", bal)
	}
}

func TestConvertCollectsFeePerMintedLeg(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	m := e.createMultiMarket(t, 3, true, 250)
	e.ledger.Deposit("0xTRADER", 30_000)

	if err := e.positions.Split(ctx, m.ID, 0, "0xTRADER", 10_000); err != nil {
		t.Fatalf("split 0: %v", err)
	}
	if err := e.positions.Split(ctx, m.ID, 1, "0xTRADER", 10_000); err != nil {
		t.Fatalf("split 1: %v", err)
	}

	res, err := e.positions.Convert(ctx, m.ID, "0xTRADER", 0b011, 10_000)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if res.MintedPerLeg != 9750 || res.CollateralOut != 9750 || res.FeeCollected != 250 {
		t.Errorf("result = %+v, want 9750 minted/out, 250 fee", res)
	}
	if fees := e.ledger.FeeVaultBalance(m.ID); fees != 250 {
		t.Errorf("fee vault = %d, want 250", fees)
	}
	if bal := e.ledger.UserBalance("0xTRADER"); bal != 19_750 {
		t.Errorf("balance = %d, want 19750", bal)
	}
	if vault := e.ledger.VaultBalance(m.ID); vault != 10_000 {
		t.Errorf("market vault = %d, want 10000", vault)
	}
}
