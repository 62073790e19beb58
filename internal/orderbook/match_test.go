package orderbook

import (
	"errors"
	"fmt"
	"testing"

	"github.com/farsight-markets/farsight/internal/domain"
)

func u8(v uint8) *uint8 { return &v }

// restingSell is a NO-side ask, the only maker shape a YES buy crosses:
// candidates fill on the opposite side and opposite direction, never the same
// side.
func restingSell(id string, price, qty uint64) *domain.LimitOrder {
	return &domain.LimitOrder{
		ID:     id,
		Owner:  "maker",
		Market: "mkt",
		Price:  price,
		Qty:    qty,
		IsYes:  false,
		IsBid:  false,
	}
}

func TestMatchPartialFill(t *testing.T) {
	// A resting sell of 50 at 4000 bps against a buy of 30 at limit 4000:
	// exactly 30 fills, nothing remains.
	sell := restingSell("s1", 4000, 50)
	res := Match("mkt", []*domain.LimitOrder{sell}, nil, true, true, 4000, 30)

	if res.FilledAmount != 30 || res.RemainingAmount != 0 {
		t.Errorf("filled/remaining = %d/%d, want 30/0", res.FilledAmount, res.RemainingAmount)
	}
	if sell.FilledQty != 30 {
		t.Errorf("resting order FilledQty = %d, want 30", sell.FilledQty)
	}
}

func TestMatchConsumesAcrossCandidates(t *testing.T) {
	a := restingSell("a", 3000, 20)
	b := restingSell("b", 3500, 20)
	res := Match("mkt", []*domain.LimitOrder{a, b}, nil, true, true, 4000, 30)

	if res.FilledAmount != 30 || res.RemainingAmount != 0 {
		t.Fatalf("filled/remaining = %d/%d, want 30/0", res.FilledAmount, res.RemainingAmount)
	}
	if a.FilledQty != 20 || b.FilledQty != 10 {
		t.Errorf("fills = %d/%d, want 20/10", a.FilledQty, b.FilledQty)
	}
}

// Priority is the order candidates are presented in, not price. A cheaper
// order listed second is only reached after the first is exhausted — the
// engine never re-sorts. This pins inherited behavior.
func TestMatchHonorsCandidateOrderNotPrice(t *testing.T) {
	dear := restingSell("dear", 3900, 25)
	cheap := restingSell("cheap", 3000, 25)
	res := Match("mkt", []*domain.LimitOrder{dear, cheap}, nil, true, true, 4000, 30)

	if res.FilledAmount != 30 {
		t.Fatalf("filled = %d, want 30", res.FilledAmount)
	}
	if dear.FilledQty != 25 || cheap.FilledQty != 5 {
		t.Errorf("fills = %d/%d: expected the first-listed order consumed first", dear.FilledQty, cheap.FilledQty)
	}
}

func TestMatchSkipsIncompatible(t *testing.T) {
	tests := []struct {
		name  string
		order *domain.LimitOrder
	}{
		{"wrong market", &domain.LimitOrder{ID: "x", Market: "other", Price: 4000, Qty: 50, IsYes: false, IsBid: false}},
		{"same side", &domain.LimitOrder{ID: "x", Market: "mkt", Price: 4000, Qty: 50, IsYes: true, IsBid: false}},
		{"same direction", &domain.LimitOrder{ID: "x", Market: "mkt", Price: 4000, Qty: 50, IsYes: false, IsBid: true}},
		{"price above limit", &domain.LimitOrder{ID: "x", Market: "mkt", Price: 4001, Qty: 50, IsYes: false, IsBid: false}},
		{"already full", &domain.LimitOrder{ID: "x", Market: "mkt", Price: 4000, Qty: 50, FilledQty: 50, IsYes: false, IsBid: false}},
		{"multi order against binary request", &domain.LimitOrder{ID: "x", Market: "mkt", AnswerIndex: u8(2), Price: 4000, Qty: 50, IsYes: false, IsBid: false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Match("mkt", []*domain.LimitOrder{tt.order}, nil, true, true, 4000, 30)
			if res.FilledAmount != 0 || res.RemainingAmount != 30 {
				t.Errorf("filled/remaining = %d/%d, want 0/30", res.FilledAmount, res.RemainingAmount)
			}
		})
	}
}

func TestMatchAnswerIndexMustAgree(t *testing.T) {
	o := &domain.LimitOrder{ID: "x", Market: "mkt", AnswerIndex: u8(2), Price: 4000, Qty: 50, IsYes: false, IsBid: false}

	res := Match("mkt", []*domain.LimitOrder{o}, u8(2), true, true, 4000, 30)
	if res.FilledAmount != 30 {
		t.Errorf("same answer index should fill, got %d", res.FilledAmount)
	}

	o2 := &domain.LimitOrder{ID: "y", Market: "mkt", AnswerIndex: u8(3), Price: 4000, Qty: 50, IsYes: false, IsBid: false}
	res = Match("mkt", []*domain.LimitOrder{o2}, u8(2), true, true, 4000, 30)
	if res.FilledAmount != 0 {
		t.Errorf("different answer index must not fill, got %d", res.FilledAmount)
	}
}

func TestMatchSellDirection(t *testing.T) {
	// Selling at limit 3000 matches resting bids priced at or above 3000.
	bid := &domain.LimitOrder{ID: "b", Market: "mkt", Price: 3500, Qty: 40, IsYes: false, IsBid: true}
	low := &domain.LimitOrder{ID: "l", Market: "mkt", Price: 2900, Qty: 40, IsYes: false, IsBid: true}

	res := Match("mkt", []*domain.LimitOrder{low, bid}, nil, true, false, 3000, 25)
	if res.FilledAmount != 25 {
		t.Fatalf("filled = %d, want 25", res.FilledAmount)
	}
	if low.FilledQty != 0 || bid.FilledQty != 25 {
		t.Errorf("fills = %d/%d, want 0/25", low.FilledQty, bid.FilledQty)
	}
}

func TestMatchedSharesAndPayout(t *testing.T) {
	shares, err := MatchedShares(100, 2500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shares != 400 {
		t.Errorf("shares = %d, want 400", shares)
	}

	// Zero spot price floors the divisor at 1.
	shares, err = MatchedShares(3, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shares != 30000 {
		t.Errorf("shares = %d, want 30000", shares)
	}

	payout, err := MatchedPayout(400, 2500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payout != 100 {
		t.Errorf("payout = %d, want 100", payout)
	}
}

func TestRestCapacity(t *testing.T) {
	book := &domain.Orderbook{Market: "mkt"}
	for i := 0; i < domain.BookSideCapacity; i++ {
		o := &domain.LimitOrder{ID: fmt.Sprintf("o%d", i), Market: "mkt", IsYes: true, IsBid: true}
		if err := Rest(book, o); err != nil {
			t.Fatalf("rest %d: %v", i, err)
		}
	}

	err := Rest(book, &domain.LimitOrder{ID: "overflow", Market: "mkt", IsYes: true, IsBid: true})
	var le *domain.ResourceLimitError
	if !errors.As(err, &le) || le.Code != domain.CodeOrderbookFull {
		t.Fatalf("expected orderbook_full, got %v", err)
	}

	// The sibling buckets are unaffected.
	if err := Rest(book, &domain.LimitOrder{ID: "ys", Market: "mkt", IsYes: true, IsBid: false}); err != nil {
		t.Errorf("other bucket should accept: %v", err)
	}
}

func TestRemoveByIdentity(t *testing.T) {
	book := &domain.Orderbook{Market: "mkt"}
	o := &domain.LimitOrder{ID: "o1", Market: "mkt", IsYes: false, IsBid: true}
	if err := Rest(book, o); err != nil {
		t.Fatalf("rest: %v", err)
	}

	if err := Remove(book, o); err != nil {
		t.Fatalf("remove: %v", err)
	}

	// Second removal: already gone.
	err := Remove(book, o)
	var pe *domain.PreconditionError
	if !errors.As(err, &pe) || pe.Code != domain.CodeOrderNotFound {
		t.Fatalf("expected order_not_found, got %v", err)
	}
}
