// Package memory provides map-backed implementations of every storage
// interface, plus in-process counterparts of the cache-layer collaborators.
// It backs unit tests and single-node development runs; the postgres and
// redis packages are the production pair.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/farsight-markets/farsight/internal/domain"
)

// AuditEntry is one recorded audit event.
type AuditEntry struct {
	Event  string
	Detail map[string]any
}

// Store holds all persisted state behind one mutex. Individual operations
// are atomic; multi-step atomicity comes from the TxRunner in this package.
type Store struct {
	mu             sync.RWMutex
	markets        map[string]domain.Market
	multiMarkets   map[string]domain.MultiMarket
	answers        map[string]domain.Answer // market + "/" + index
	positions      map[string]domain.Position
	multiPositions map[string]domain.MultiPosition
	orders         map[string]domain.LimitOrder
	books          map[string]domain.Orderbook
	audit          []AuditEntry
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		markets:        make(map[string]domain.Market),
		multiMarkets:   make(map[string]domain.MultiMarket),
		answers:        make(map[string]domain.Answer),
		positions:      make(map[string]domain.Position),
		multiPositions: make(map[string]domain.MultiPosition),
		orders:         make(map[string]domain.LimitOrder),
		books:          make(map[string]domain.Orderbook),
	}
}

func answerKey(marketID string, index uint8) string {
	return marketID + "/" + strconv.Itoa(int(index))
}

func positionKey(marketID, owner string) string {
	return marketID + "/" + owner
}

// Markets returns the binary-market view of the store.
func (s *Store) Markets() domain.MarketStore { return marketStore{s} }

// MultiMarkets returns the multi-outcome-market view of the store.
func (s *Store) MultiMarkets() domain.MultiMarketStore { return multiMarketStore{s} }

// Answers returns the answer view of the store.
func (s *Store) Answers() domain.AnswerStore { return answerStore{s} }

// Positions returns the binary-position view of the store.
func (s *Store) Positions() domain.PositionStore { return positionStore{s} }

// MultiPositions returns the multi-outcome-position view of the store.
func (s *Store) MultiPositions() domain.MultiPositionStore { return multiPositionStore{s} }

// Orders returns the limit-order view of the store.
func (s *Store) Orders() domain.OrderStore { return orderStore{s} }

// Orderbooks returns the per-market book view of the store.
func (s *Store) Orderbooks() domain.OrderbookStore { return orderbookStore{s} }

// Audit returns the audit-log view of the store.
func (s *Store) Audit() domain.AuditStore { return auditStore{s} }

// AuditEvents returns a copy of the recorded audit log, oldest first.
func (s *Store) AuditEvents() []AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}

type marketStore struct{ s *Store }

func (v marketStore) Create(_ context.Context, m domain.Market) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.markets[m.ID]; ok {
		return domain.ErrAlreadyExists
	}
	v.s.markets[m.ID] = m
	return nil
}

func (v marketStore) Get(_ context.Context, id string) (domain.Market, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	m, ok := v.s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (v marketStore) Update(_ context.Context, m domain.Market) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.markets[m.ID]; !ok {
		return domain.ErrNotFound
	}
	v.s.markets[m.ID] = m
	return nil
}

type multiMarketStore struct{ s *Store }

func (v multiMarketStore) Create(_ context.Context, m domain.MultiMarket) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.multiMarkets[m.ID]; ok {
		return domain.ErrAlreadyExists
	}
	v.s.multiMarkets[m.ID] = m
	return nil
}

func (v multiMarketStore) Get(_ context.Context, id string) (domain.MultiMarket, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	m, ok := v.s.multiMarkets[id]
	if !ok {
		return domain.MultiMarket{}, domain.ErrNotFound
	}
	return m, nil
}

func (v multiMarketStore) Update(_ context.Context, m domain.MultiMarket) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.multiMarkets[m.ID]; !ok {
		return domain.ErrNotFound
	}
	v.s.multiMarkets[m.ID] = m
	return nil
}

type answerStore struct{ s *Store }

func (v answerStore) Create(_ context.Context, a domain.Answer) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	k := answerKey(a.Market, a.Index)
	if _, ok := v.s.answers[k]; ok {
		return domain.ErrAlreadyExists
	}
	v.s.answers[k] = a
	return nil
}

func (v answerStore) Get(_ context.Context, marketID string, index uint8) (domain.Answer, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	a, ok := v.s.answers[answerKey(marketID, index)]
	if !ok {
		return domain.Answer{}, domain.ErrNotFound
	}
	return a, nil
}

func (v answerStore) ListByMarket(_ context.Context, marketID string) ([]domain.Answer, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	var out []domain.Answer
	for _, a := range v.s.answers {
		if a.Market == marketID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (v answerStore) Update(_ context.Context, a domain.Answer) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	k := answerKey(a.Market, a.Index)
	if _, ok := v.s.answers[k]; !ok {
		return domain.ErrNotFound
	}
	v.s.answers[k] = a
	return nil
}

type positionStore struct{ s *Store }

func (v positionStore) Get(_ context.Context, marketID, owner string) (domain.Position, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	p, ok := v.s.positions[positionKey(marketID, owner)]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (v positionStore) Upsert(_ context.Context, p domain.Position) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.positions[positionKey(p.Market, p.Owner)] = p
	return nil
}

type multiPositionStore struct{ s *Store }

func (v multiPositionStore) Get(_ context.Context, marketID, owner string) (domain.MultiPosition, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	p, ok := v.s.multiPositions[positionKey(marketID, owner)]
	if !ok {
		return domain.MultiPosition{}, domain.ErrNotFound
	}
	return p, nil
}

func (v multiPositionStore) Upsert(_ context.Context, p domain.MultiPosition) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.multiPositions[positionKey(p.Market, p.Owner)] = p
	return nil
}

type orderStore struct{ s *Store }

func (v orderStore) Create(_ context.Context, o domain.LimitOrder) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.orders[o.ID]; ok {
		return domain.ErrAlreadyExists
	}
	v.s.orders[o.ID] = o
	return nil
}

func (v orderStore) Get(_ context.Context, id string) (domain.LimitOrder, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	o, ok := v.s.orders[id]
	if !ok {
		return domain.LimitOrder{}, domain.ErrNotFound
	}
	return o, nil
}

// GetBatch returns the orders that exist, in the order the IDs were given.
// Missing IDs are skipped so the book index may briefly lead the order table.
func (v orderStore) GetBatch(_ context.Context, ids []string) ([]domain.LimitOrder, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	out := make([]domain.LimitOrder, 0, len(ids))
	for _, id := range ids {
		if o, ok := v.s.orders[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

func (v orderStore) Update(_ context.Context, o domain.LimitOrder) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.orders[o.ID]; !ok {
		return domain.ErrNotFound
	}
	v.s.orders[o.ID] = o
	return nil
}

func (v orderStore) Delete(_ context.Context, id string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.orders[id]; !ok {
		return domain.ErrNotFound
	}
	delete(v.s.orders, id)
	return nil
}

func (v orderStore) ListExpired(_ context.Context, now int64, limit int) ([]domain.LimitOrder, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	var out []domain.LimitOrder
	for _, o := range v.s.orders {
		if o.ExpiresAt != nil && *o.ExpiresAt <= now {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type orderbookStore struct{ s *Store }

func cloneBook(b domain.Orderbook) domain.Orderbook {
	b.YesBuyOrders = append([]string(nil), b.YesBuyOrders...)
	b.YesSellOrders = append([]string(nil), b.YesSellOrders...)
	b.NoBuyOrders = append([]string(nil), b.NoBuyOrders...)
	b.NoSellOrders = append([]string(nil), b.NoSellOrders...)
	return b
}

func (v orderbookStore) Create(_ context.Context, b domain.Orderbook) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.books[b.Market]; ok {
		return domain.ErrAlreadyExists
	}
	v.s.books[b.Market] = cloneBook(b)
	return nil
}

func (v orderbookStore) Get(_ context.Context, marketID string) (domain.Orderbook, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	b, ok := v.s.books[marketID]
	if !ok {
		return domain.Orderbook{}, domain.ErrNotFound
	}
	return cloneBook(b), nil
}

func (v orderbookStore) Update(_ context.Context, b domain.Orderbook) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if _, ok := v.s.books[b.Market]; !ok {
		return domain.ErrNotFound
	}
	v.s.books[b.Market] = cloneBook(b)
	return nil
}

type auditStore struct{ s *Store }

func (v auditStore) Log(_ context.Context, event string, detail map[string]any) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	d := make(map[string]any, len(detail))
	for k, val := range detail {
		d[k] = val
	}
	v.s.audit = append(v.s.audit, AuditEntry{Event: event, Detail: d})
	return nil
}
