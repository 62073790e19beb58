package memory

import (
	"context"
	"sync"

	"github.com/farsight-markets/farsight/internal/domain"
)

// TxRunner serializes transactions on one Store and rolls the Store back to
// its pre-transaction snapshot when fn fails.
type TxRunner struct {
	txMu  sync.Mutex
	store *Store
}

// NewTxRunner returns a TxRunner bound to store.
func NewTxRunner(store *Store) *TxRunner {
	return &TxRunner{store: store}
}

type snapshot struct {
	markets        map[string]domain.Market
	multiMarkets   map[string]domain.MultiMarket
	answers        map[string]domain.Answer
	positions      map[string]domain.Position
	multiPositions map[string]domain.MultiPosition
	orders         map[string]domain.LimitOrder
	books          map[string]domain.Orderbook
	auditLen       int
}

func (r *TxRunner) snapshot() snapshot {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := snapshot{
		markets:        make(map[string]domain.Market, len(s.markets)),
		multiMarkets:   make(map[string]domain.MultiMarket, len(s.multiMarkets)),
		answers:        make(map[string]domain.Answer, len(s.answers)),
		positions:      make(map[string]domain.Position, len(s.positions)),
		multiPositions: make(map[string]domain.MultiPosition, len(s.multiPositions)),
		orders:         make(map[string]domain.LimitOrder, len(s.orders)),
		books:          make(map[string]domain.Orderbook, len(s.books)),
		auditLen:       len(s.audit),
	}
	for k, v := range s.markets {
		snap.markets[k] = v
	}
	for k, v := range s.multiMarkets {
		snap.multiMarkets[k] = v
	}
	for k, v := range s.answers {
		snap.answers[k] = v
	}
	for k, v := range s.positions {
		snap.positions[k] = v
	}
	for k, v := range s.multiPositions {
		snap.multiPositions[k] = v
	}
	for k, v := range s.orders {
		snap.orders[k] = v
	}
	for k, v := range s.books {
		snap.books[k] = cloneBook(v)
	}
	return snap
}

func (r *TxRunner) restore(snap snapshot) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets = snap.markets
	s.multiMarkets = snap.multiMarkets
	s.answers = snap.answers
	s.positions = snap.positions
	s.multiPositions = snap.multiPositions
	s.orders = snap.orders
	s.books = snap.books
	s.audit = s.audit[:snap.auditLen]
}

// WithinTx runs fn with exclusive access to the Store. On error the Store is
// restored to the state it had when fn started.
func (r *TxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	snap := r.snapshot()
	if err := fn(ctx); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}
