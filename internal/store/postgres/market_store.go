package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/farsight-markets/farsight/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, creator, question, resolution_time, yes_pool, no_pool,
	total_volume, resolved, outcome, group_id, answer_label,
	fee_bps, creator_fee_bps, platform_fee_bps, liquidity_fee_bps,
	collected_fees, created_at`

// Create inserts a new market. A duplicate ID reports ErrAlreadyExists.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (` + marketCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := db(ctx, s.pool).Exec(ctx, query,
		m.ID, m.Creator, m.Question, m.ResolutionTime,
		int64(m.YesPool), int64(m.NoPool), int64(m.TotalVolume),
		m.Resolved, m.Outcome, m.GroupID, m.AnswerLabel,
		int32(m.FeeBps), int32(m.CreatorFeeBps), int32(m.PlatformFeeBps), int32(m.LiquidityFeeBps),
		int64(m.CollectedFees), m.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	return nil
}

// Get retrieves a market by ID.
func (s *MarketStore) Get(ctx context.Context, id string) (domain.Market, error) {
	row := db(ctx, s.pool).QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// Update rewrites every mutable column of the market.
func (s *MarketStore) Update(ctx context.Context, m domain.Market) error {
	const query = `
		UPDATE markets SET
			yes_pool = $2, no_pool = $3, total_volume = $4,
			resolved = $5, outcome = $6,
			fee_bps = $7, creator_fee_bps = $8, platform_fee_bps = $9,
			liquidity_fee_bps = $10, collected_fees = $11
		WHERE id = $1`

	tag, err := db(ctx, s.pool).Exec(ctx, query,
		m.ID, int64(m.YesPool), int64(m.NoPool), int64(m.TotalVolume),
		m.Resolved, m.Outcome,
		int32(m.FeeBps), int32(m.CreatorFeeBps), int32(m.PlatformFeeBps),
		int32(m.LiquidityFeeBps), int64(m.CollectedFees),
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var yesPool, noPool, volume, collected int64
	var feeBps, creatorFee, platformFee, liquidityFee int32
	err := row.Scan(
		&m.ID, &m.Creator, &m.Question, &m.ResolutionTime,
		&yesPool, &noPool, &volume,
		&m.Resolved, &m.Outcome, &m.GroupID, &m.AnswerLabel,
		&feeBps, &creatorFee, &platformFee, &liquidityFee,
		&collected, &m.CreatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.YesPool = uint64(yesPool)
	m.NoPool = uint64(noPool)
	m.TotalVolume = uint64(volume)
	m.CollectedFees = uint64(collected)
	m.FeeBps = uint16(feeBps)
	m.CreatorFeeBps = uint16(creatorFee)
	m.PlatformFeeBps = uint16(platformFee)
	m.LiquidityFeeBps = uint16(liquidityFee)
	return m, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
