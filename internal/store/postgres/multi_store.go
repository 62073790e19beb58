package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/farsight-markets/farsight/internal/domain"
)

// MultiMarketStore implements domain.MultiMarketStore using PostgreSQL.
type MultiMarketStore struct {
	pool *pgxpool.Pool
}

// NewMultiMarketStore creates a new MultiMarketStore backed by the given
// connection pool.
func NewMultiMarketStore(pool *pgxpool.Pool) *MultiMarketStore {
	return &MultiMarketStore{pool: pool}
}

const multiMarketCols = `id, creator, question_hash, answer_count, is_one_winner,
	volume, fee_bps, resolution_time, resolved, answers_resolved, created_at`

// Create inserts a new multi-outcome market.
func (s *MultiMarketStore) Create(ctx context.Context, m domain.MultiMarket) error {
	const query = `
		INSERT INTO multi_markets (` + multiMarketCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := db(ctx, s.pool).Exec(ctx, query,
		m.ID, m.Creator, m.QuestionHash[:], int16(m.AnswerCount), m.IsOneWinner,
		int64(m.Volume), int32(m.FeeBps), m.ResolutionTime,
		m.Resolved, int16(m.AnswersResolved), m.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create multi market %s: %w", m.ID, err)
	}
	return nil
}

// Get retrieves a multi-outcome market by ID.
func (s *MultiMarketStore) Get(ctx context.Context, id string) (domain.MultiMarket, error) {
	row := db(ctx, s.pool).QueryRow(ctx,
		`SELECT `+multiMarketCols+` FROM multi_markets WHERE id = $1`, id)

	var m domain.MultiMarket
	var hash []byte
	var answerCount, answersResolved int16
	var volume int64
	var feeBps int32
	err := row.Scan(
		&m.ID, &m.Creator, &hash, &answerCount, &m.IsOneWinner,
		&volume, &feeBps, &m.ResolutionTime,
		&m.Resolved, &answersResolved, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MultiMarket{}, domain.ErrNotFound
		}
		return domain.MultiMarket{}, fmt.Errorf("postgres: get multi market %s: %w", id, err)
	}
	copy(m.QuestionHash[:], hash)
	m.AnswerCount = uint8(answerCount)
	m.AnswersResolved = uint8(answersResolved)
	m.Volume = uint64(volume)
	m.FeeBps = uint16(feeBps)
	return m, nil
}

// Update rewrites every mutable column of the market.
func (s *MultiMarketStore) Update(ctx context.Context, m domain.MultiMarket) error {
	const query = `
		UPDATE multi_markets SET
			is_one_winner = $2, volume = $3, fee_bps = $4, resolution_time = $5,
			resolved = $6, answers_resolved = $7
		WHERE id = $1`

	tag, err := db(ctx, s.pool).Exec(ctx, query,
		m.ID, m.IsOneWinner, int64(m.Volume), int32(m.FeeBps), m.ResolutionTime,
		m.Resolved, int16(m.AnswersResolved),
	)
	if err != nil {
		return fmt.Errorf("postgres: update multi market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AnswerStore implements domain.AnswerStore using PostgreSQL.
type AnswerStore struct {
	pool *pgxpool.Pool
}

// NewAnswerStore creates a new AnswerStore backed by the given connection
// pool.
func NewAnswerStore(pool *pgxpool.Pool) *AnswerStore {
	return &AnswerStore{pool: pool}
}

const answerCols = `market_id, idx, label_hash, yes_pool, no_pool, volume, resolved, outcome`

// Create inserts a new answer.
func (s *AnswerStore) Create(ctx context.Context, a domain.Answer) error {
	const query = `
		INSERT INTO answers (` + answerCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := db(ctx, s.pool).Exec(ctx, query,
		a.Market, int16(a.Index), a.LabelHash[:],
		int64(a.YesPool), int64(a.NoPool), int64(a.Volume),
		a.Resolved, a.Outcome,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create answer %s/%d: %w", a.Market, a.Index, err)
	}
	return nil
}

// Get retrieves one answer by (market, index).
func (s *AnswerStore) Get(ctx context.Context, marketID string, index uint8) (domain.Answer, error) {
	row := db(ctx, s.pool).QueryRow(ctx,
		`SELECT `+answerCols+` FROM answers WHERE market_id = $1 AND idx = $2`,
		marketID, int16(index))
	a, err := scanAnswer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Answer{}, domain.ErrNotFound
		}
		return domain.Answer{}, fmt.Errorf("postgres: get answer %s/%d: %w", marketID, index, err)
	}
	return a, nil
}

// ListByMarket returns all answers of the market ordered by index.
func (s *AnswerStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Answer, error) {
	rows, err := db(ctx, s.pool).Query(ctx,
		`SELECT `+answerCols+` FROM answers WHERE market_id = $1 ORDER BY idx`,
		marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list answers for %s: %w", marketID, err)
	}
	defer rows.Close()

	var answers []domain.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan answer: %w", err)
		}
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list answers for %s: %w", marketID, err)
	}
	return answers, nil
}

// Update rewrites every mutable column of the answer.
func (s *AnswerStore) Update(ctx context.Context, a domain.Answer) error {
	const query = `
		UPDATE answers SET
			yes_pool = $3, no_pool = $4, volume = $5, resolved = $6, outcome = $7
		WHERE market_id = $1 AND idx = $2`

	tag, err := db(ctx, s.pool).Exec(ctx, query,
		a.Market, int16(a.Index),
		int64(a.YesPool), int64(a.NoPool), int64(a.Volume),
		a.Resolved, a.Outcome,
	)
	if err != nil {
		return fmt.Errorf("postgres: update answer %s/%d: %w", a.Market, a.Index, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanAnswer(row pgx.Row) (domain.Answer, error) {
	var a domain.Answer
	var idx int16
	var hash []byte
	var yesPool, noPool, volume int64
	err := row.Scan(
		&a.Market, &idx, &hash,
		&yesPool, &noPool, &volume,
		&a.Resolved, &a.Outcome,
	)
	if err != nil {
		return domain.Answer{}, err
	}
	a.Index = uint8(idx)
	copy(a.LabelHash[:], hash)
	a.YesPool = uint64(yesPool)
	a.NoPool = uint64(noPool)
	a.Volume = uint64(volume)
	return a, nil
}
