package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/farsight-markets/farsight/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderCols = `id, owner, market_id, answer_idx, price, qty, filled_qty,
	is_yes, is_bid, created_at, expires_at`

// Create inserts a new order.
func (s *OrderStore) Create(ctx context.Context, o domain.LimitOrder) error {
	const query = `
		INSERT INTO orders (` + orderCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	var answerIdx *int16
	if o.AnswerIndex != nil {
		v := int16(*o.AnswerIndex)
		answerIdx = &v
	}

	_, err := db(ctx, s.pool).Exec(ctx, query,
		o.ID, o.Owner, o.Market, answerIdx,
		int64(o.Price), int64(o.Qty), int64(o.FilledQty),
		o.IsYes, o.IsBid, o.CreatedAt, o.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// Get retrieves an order by ID.
func (s *OrderStore) Get(ctx context.Context, id string) (domain.LimitOrder, error) {
	row := db(ctx, s.pool).QueryRow(ctx,
		`SELECT `+orderCols+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LimitOrder{}, domain.ErrNotFound
		}
		return domain.LimitOrder{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// GetBatch retrieves the orders whose IDs exist, preserving the order of the
// input IDs. Missing IDs are silently skipped.
func (s *OrderStore) GetBatch(ctx context.Context, ids []string) ([]domain.LimitOrder, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := db(ctx, s.pool).Query(ctx,
		`SELECT `+orderCols+` FROM orders WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: get order batch: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]domain.LimitOrder, len(ids))
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		byID[o.ID] = o
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: get order batch: %w", err)
	}

	out := make([]domain.LimitOrder, 0, len(byID))
	for _, id := range ids {
		if o, ok := byID[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

// Update rewrites the order's fill progress.
func (s *OrderStore) Update(ctx context.Context, o domain.LimitOrder) error {
	tag, err := db(ctx, s.pool).Exec(ctx,
		`UPDATE orders SET filled_qty = $2 WHERE id = $1`,
		o.ID, int64(o.FilledQty))
	if err != nil {
		return fmt.Errorf("postgres: update order %s: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete destroys the order record.
func (s *OrderStore) Delete(ctx context.Context, id string) error {
	tag, err := db(ctx, s.pool).Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListExpired returns up to limit orders whose expiry is set and at or before
// now, ordered by ID for a stable sweep.
func (s *OrderStore) ListExpired(ctx context.Context, now int64, limit int) ([]domain.LimitOrder, error) {
	rows, err := db(ctx, s.pool).Query(ctx,
		`SELECT `+orderCols+` FROM orders
		 WHERE expires_at IS NOT NULL AND expires_at <= $1
		 ORDER BY id LIMIT $2`,
		now, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list expired orders: %w", err)
	}
	defer rows.Close()

	var out []domain.LimitOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list expired orders: %w", err)
	}
	return out, nil
}

func scanOrder(row pgx.Row) (domain.LimitOrder, error) {
	var o domain.LimitOrder
	var answerIdx *int16
	var price, qty, filled int64
	err := row.Scan(
		&o.ID, &o.Owner, &o.Market, &answerIdx,
		&price, &qty, &filled,
		&o.IsYes, &o.IsBid, &o.CreatedAt, &o.ExpiresAt,
	)
	if err != nil {
		return domain.LimitOrder{}, err
	}
	if answerIdx != nil {
		v := uint8(*answerIdx)
		o.AnswerIndex = &v
	}
	o.Price = uint64(price)
	o.Qty = uint64(qty)
	o.FilledQty = uint64(filled)
	return o, nil
}
