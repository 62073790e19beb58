package domain

import "context"

// TxRunner executes fn inside one atomic storage transaction. Reads inside fn
// observe writes made earlier in the same fn (read-your-writes); either every
// write commits or none do. Implementations: pgx transaction, in-memory lock.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// MarketStore persists binary markets, addressed by market ID.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	Get(ctx context.Context, id string) (Market, error)
	Update(ctx context.Context, m Market) error
}

// MultiMarketStore persists multi-outcome markets, addressed by market ID.
type MultiMarketStore interface {
	Create(ctx context.Context, m MultiMarket) error
	Get(ctx context.Context, id string) (MultiMarket, error)
	Update(ctx context.Context, m MultiMarket) error
}

// AnswerStore persists answers, addressed by (market, index).
type AnswerStore interface {
	Create(ctx context.Context, a Answer) error
	Get(ctx context.Context, marketID string, index uint8) (Answer, error)
	// ListByMarket returns all answers of the market ordered by index.
	ListByMarket(ctx context.Context, marketID string) ([]Answer, error)
	Update(ctx context.Context, a Answer) error
}

// PositionStore persists binary positions, addressed by (market, owner).
// Get returns ErrNotFound for owners who never traded; Upsert creates the
// slot on first write.
type PositionStore interface {
	Get(ctx context.Context, marketID, owner string) (Position, error)
	Upsert(ctx context.Context, p Position) error
}

// MultiPositionStore persists multi-outcome positions, addressed by
// (market, owner).
type MultiPositionStore interface {
	Get(ctx context.Context, marketID, owner string) (MultiPosition, error)
	Upsert(ctx context.Context, p MultiPosition) error
}

// OrderStore persists limit orders by ID. Delete destroys the record; it is
// called on cancel and on full fill.
type OrderStore interface {
	Create(ctx context.Context, o LimitOrder) error
	Get(ctx context.Context, id string) (LimitOrder, error)
	GetBatch(ctx context.Context, ids []string) ([]LimitOrder, error)
	Update(ctx context.Context, o LimitOrder) error
	Delete(ctx context.Context, id string) error
	// ListExpired returns up to limit orders whose ExpiresAt is set and at or
	// before now. Used by the expiry sweeper only.
	ListExpired(ctx context.Context, now int64, limit int) ([]LimitOrder, error)
}

// OrderbookStore persists the per-market book index, addressed by market ID.
type OrderbookStore interface {
	Create(ctx context.Context, b Orderbook) error
	Get(ctx context.Context, marketID string) (Orderbook, error)
	Update(ctx context.Context, b Orderbook) error
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}
