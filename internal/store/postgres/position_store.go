package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/farsight-markets/farsight/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection
// pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Get retrieves one owner's position. Owners without a row report
// ErrNotFound.
func (s *PositionStore) Get(ctx context.Context, marketID, owner string) (domain.Position, error) {
	row := db(ctx, s.pool).QueryRow(ctx,
		`SELECT market_id, owner, yes_shares, no_shares
		 FROM positions WHERE market_id = $1 AND owner = $2`,
		marketID, owner)

	var p domain.Position
	var yes, no int64
	if err := row.Scan(&p.Market, &p.Owner, &yes, &no); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s/%s: %w", marketID, owner, err)
	}
	p.YesShares = uint64(yes)
	p.NoShares = uint64(no)
	return p, nil
}

// Upsert creates or replaces the owner's position row.
func (s *PositionStore) Upsert(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (market_id, owner, yes_shares, no_shares)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (market_id, owner) DO UPDATE SET
			yes_shares = EXCLUDED.yes_shares,
			no_shares  = EXCLUDED.no_shares`

	_, err := db(ctx, s.pool).Exec(ctx, query,
		p.Market, p.Owner, int64(p.YesShares), int64(p.NoShares))
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s/%s: %w", p.Market, p.Owner, err)
	}
	return nil
}

// MultiPositionStore implements domain.MultiPositionStore using PostgreSQL.
// The per-answer share arrays are stored as BIGINT[] columns.
type MultiPositionStore struct {
	pool *pgxpool.Pool
}

// NewMultiPositionStore creates a new MultiPositionStore backed by the given
// connection pool.
func NewMultiPositionStore(pool *pgxpool.Pool) *MultiPositionStore {
	return &MultiPositionStore{pool: pool}
}

// Get retrieves one owner's multi-outcome position.
func (s *MultiPositionStore) Get(ctx context.Context, marketID, owner string) (domain.MultiPosition, error) {
	row := db(ctx, s.pool).QueryRow(ctx,
		`SELECT market_id, owner, yes_shares, no_shares
		 FROM multi_positions WHERE market_id = $1 AND owner = $2`,
		marketID, owner)

	var p domain.MultiPosition
	var yes, no []int64
	if err := row.Scan(&p.Market, &p.Owner, &yes, &no); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MultiPosition{}, domain.ErrNotFound
		}
		return domain.MultiPosition{}, fmt.Errorf("postgres: get multi position %s/%s: %w", marketID, owner, err)
	}
	for i := 0; i < domain.MaxAnswerCount && i < len(yes); i++ {
		p.YesShares[i] = uint64(yes[i])
	}
	for i := 0; i < domain.MaxAnswerCount && i < len(no); i++ {
		p.NoShares[i] = uint64(no[i])
	}
	return p, nil
}

// Upsert creates or replaces the owner's position row.
func (s *MultiPositionStore) Upsert(ctx context.Context, p domain.MultiPosition) error {
	yes := make([]int64, domain.MaxAnswerCount)
	no := make([]int64, domain.MaxAnswerCount)
	for i := 0; i < domain.MaxAnswerCount; i++ {
		yes[i] = int64(p.YesShares[i])
		no[i] = int64(p.NoShares[i])
	}

	const query = `
		INSERT INTO multi_positions (market_id, owner, yes_shares, no_shares)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (market_id, owner) DO UPDATE SET
			yes_shares = EXCLUDED.yes_shares,
			no_shares  = EXCLUDED.no_shares`

	_, err := db(ctx, s.pool).Exec(ctx, query, p.Market, p.Owner, yes, no)
	if err != nil {
		return fmt.Errorf("postgres: upsert multi position %s/%s: %w", p.Market, p.Owner, err)
	}
	return nil
}
