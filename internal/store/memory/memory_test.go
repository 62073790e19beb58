package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/farsight-markets/farsight/internal/domain"
)

func TestTxRollback(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	tx := NewTxRunner(s)

	if err := s.Markets().Create(ctx, domain.Market{ID: "m1", YesPool: 100, NoPool: 100}); err != nil {
		t.Fatalf("create: %v", err)
	}

	boom := errors.New("boom")
	err := tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.Markets().Update(ctx, domain.Market{ID: "m1", YesPool: 1, NoPool: 1}); err != nil {
			return err
		}
		if err := s.Markets().Create(ctx, domain.Market{ID: "m2"}); err != nil {
			return err
		}
		// Writes are visible inside the transaction.
		if m, err := s.Markets().Get(ctx, "m1"); err != nil || m.YesPool != 1 {
			t.Errorf("read-your-writes: market=%+v err=%v", m, err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithinTx err = %v, want boom", err)
	}

	m, err := s.Markets().Get(ctx, "m1")
	if err != nil || m.YesPool != 100 {
		t.Errorf("m1 after rollback = %+v err=%v, want pools restored", m, err)
	}
	if _, err := s.Markets().Get(ctx, "m2"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("m2 survived rollback: err=%v", err)
	}
}

func TestOrderbookCloneIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	if err := s.Orderbooks().Create(ctx, domain.Orderbook{Market: "m1", YesBuyOrders: []string{"a"}}); err != nil {
		t.Fatalf("create: %v", err)
	}

	b, err := s.Orderbooks().Get(ctx, "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b.YesBuyOrders = append(b.YesBuyOrders, "b")

	again, err := s.Orderbooks().Get(ctx, "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(again.YesBuyOrders) != 1 {
		t.Errorf("stored book mutated through returned copy: %v", again.YesBuyOrders)
	}
}

func TestListExpired(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	expiry := func(ts int64) *int64 { return &ts }

	orders := []domain.LimitOrder{
		{ID: "o1", Market: "m1", ExpiresAt: expiry(50)},
		{ID: "o2", Market: "m1", ExpiresAt: expiry(150)},
		{ID: "o3", Market: "m1"}, // no expiry
		{ID: "o4", Market: "m1", ExpiresAt: expiry(100)},
	}
	for _, o := range orders {
		if err := s.Orders().Create(ctx, o); err != nil {
			t.Fatalf("create %s: %v", o.ID, err)
		}
	}

	got, err := s.Orders().ListExpired(ctx, 100, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "o1" || got[1].ID != "o4" {
		t.Errorf("expired = %v, want [o1 o4]", got)
	}

	got, err = s.Orders().ListExpired(ctx, 100, 1)
	if err != nil || len(got) != 1 {
		t.Errorf("limited list = %v err=%v, want one entry", got, err)
	}
}

func TestAnswerListOrderedByIndex(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	for _, idx := range []uint8{2, 0, 1} {
		if err := s.Answers().Create(ctx, domain.Answer{Market: "m1", Index: idx}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := s.Answers().Create(ctx, domain.Answer{Market: "other", Index: 0}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Answers().ListByMarket(ctx, "m1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("listed %d answers, want 3", len(got))
	}
	for i, a := range got {
		if a.Index != uint8(i) {
			t.Errorf("answers out of order: %v", got)
		}
	}
}

func TestLockManagerContention(t *testing.T) {
	ctx := context.Background()
	lm := NewLockManager()

	unlock, err := lm.Acquire(ctx, "market:m1", time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := lm.Acquire(ctx, "market:m1", time.Second); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("second acquire err = %v, want ErrLockHeld", err)
	}
	if _, err := lm.Acquire(ctx, "market:m2", time.Second); err != nil {
		t.Errorf("unrelated key blocked: %v", err)
	}

	unlock()
	unlock2, err := lm.Acquire(ctx, "market:m1", time.Second)
	if err != nil {
		t.Fatalf("reacquire after unlock: %v", err)
	}
	unlock2()
}
