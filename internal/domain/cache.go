package domain

import (
	"context"
	"time"
)

// QuoteCache provides fast access to the latest implied-probability quotes.
type QuoteCache interface {
	SetQuote(ctx context.Context, marketID string, q PriceQuote) error
	GetQuote(ctx context.Context, marketID string) (PriceQuote, error)
}

// LockManager serializes conflicting operations on the same market. The core
// engines carry no concurrency control of their own; every operation runs
// under the market's lock plus one storage transaction.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus publishes engine events (trades, fills, resolutions) for
// downstream consumers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// BlobWriter stores opaque objects, used for settlement report archival.
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}
