package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/farsight-markets/farsight/internal/domain"
)

// OrderbookStore implements domain.OrderbookStore using PostgreSQL. Each book
// row holds the four resting-order queues as TEXT[] columns in insertion
// order.
type OrderbookStore struct {
	pool *pgxpool.Pool
}

// NewOrderbookStore creates a new OrderbookStore backed by the given
// connection pool.
func NewOrderbookStore(pool *pgxpool.Pool) *OrderbookStore {
	return &OrderbookStore{pool: pool}
}

// Create inserts an empty book for the market.
func (s *OrderbookStore) Create(ctx context.Context, b domain.Orderbook) error {
	const query = `
		INSERT INTO orderbooks (market_id, yes_buy, yes_sell, no_buy, no_sell)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := db(ctx, s.pool).Exec(ctx, query,
		b.Market, b.YesBuyOrders, b.YesSellOrders, b.NoBuyOrders, b.NoSellOrders)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create orderbook %s: %w", b.Market, err)
	}
	return nil
}

// Get retrieves the market's book.
func (s *OrderbookStore) Get(ctx context.Context, marketID string) (domain.Orderbook, error) {
	row := db(ctx, s.pool).QueryRow(ctx,
		`SELECT market_id, yes_buy, yes_sell, no_buy, no_sell
		 FROM orderbooks WHERE market_id = $1`, marketID)

	var b domain.Orderbook
	err := row.Scan(&b.Market, &b.YesBuyOrders, &b.YesSellOrders, &b.NoBuyOrders, &b.NoSellOrders)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Orderbook{}, domain.ErrNotFound
		}
		return domain.Orderbook{}, fmt.Errorf("postgres: get orderbook %s: %w", marketID, err)
	}
	return b, nil
}

// Update rewrites all four queues.
func (s *OrderbookStore) Update(ctx context.Context, b domain.Orderbook) error {
	const query = `
		UPDATE orderbooks SET
			yes_buy = $2, yes_sell = $3, no_buy = $4, no_sell = $5
		WHERE market_id = $1`

	tag, err := db(ctx, s.pool).Exec(ctx, query,
		b.Market, b.YesBuyOrders, b.YesSellOrders, b.NoBuyOrders, b.NoSellOrders)
	if err != nil {
		return fmt.Errorf("postgres: update orderbook %s: %w", b.Market, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
