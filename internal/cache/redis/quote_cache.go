package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/farsight-markets/farsight/internal/domain"
	"github.com/redis/go-redis/v9"
)

// QuoteCache implements domain.QuoteCache using Redis hashes. Each market's
// latest implied-probability pair lives at "quote:{marketID}" with fields
// "yes" and "no", both in basis points.
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.rdb}
}

func quoteKey(marketID string) string {
	return "quote:" + marketID
}

// SetQuote stores the latest quote for a market.
func (qc *QuoteCache) SetQuote(ctx context.Context, marketID string, q domain.PriceQuote) error {
	fields := map[string]interface{}{
		"yes": strconv.FormatUint(q.YesBps, 10),
		"no":  strconv.FormatUint(q.NoBps, 10),
	}
	if err := qc.rdb.HSet(ctx, quoteKey(marketID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", marketID, err)
	}
	return nil
}

// GetQuote retrieves the latest quote for a market. It returns
// domain.ErrNotFound when no quote has been published.
func (qc *QuoteCache) GetQuote(ctx context.Context, marketID string) (domain.PriceQuote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(marketID)).Result()
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: get quote %s: %w", marketID, err)
	}
	if len(vals) == 0 {
		return domain.PriceQuote{}, domain.ErrNotFound
	}

	yes, err := strconv.ParseUint(vals["yes"], 10, 64)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: parse quote %s: %w", marketID, err)
	}
	no, err := strconv.ParseUint(vals["no"], 10, 64)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: parse quote %s: %w", marketID, err)
	}

	return domain.PriceQuote{YesBps: yes, NoBps: no}, nil
}

var _ domain.QuoteCache = (*QuoteCache)(nil)
