package memory

import (
	"context"
	"sync"

	"github.com/farsight-markets/farsight/internal/domain"
)

// QuoteCache is an in-process domain.QuoteCache.
type QuoteCache struct {
	mu     sync.RWMutex
	quotes map[string]domain.PriceQuote
}

// NewQuoteCache returns an empty QuoteCache.
func NewQuoteCache() *QuoteCache {
	return &QuoteCache{quotes: make(map[string]domain.PriceQuote)}
}

func (c *QuoteCache) SetQuote(_ context.Context, marketID string, q domain.PriceQuote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[marketID] = q
	return nil
}

func (c *QuoteCache) GetQuote(_ context.Context, marketID string) (domain.PriceQuote, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[marketID]
	if !ok {
		return domain.PriceQuote{}, domain.ErrNotFound
	}
	return q, nil
}

// SignalBus is an in-process domain.SignalBus. Publish drops the payload
// when a subscriber's buffer is full rather than blocking the publisher.
type SignalBus struct {
	mu   sync.RWMutex
	subs map[string][]chan []byte
}

// NewSignalBus returns an empty SignalBus.
func NewSignalBus() *SignalBus {
	return &SignalBus{subs: make(map[string][]chan []byte)}
}

func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

func (b *SignalBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 64)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[channel] = append(b.subs[channel], ch)
	return ch, nil
}

// BlobStore is an in-process domain.BlobWriter that keeps objects for
// inspection.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewBlobStore returns an empty BlobStore.
func NewBlobStore() *BlobStore {
	return &BlobStore{objects: make(map[string][]byte)}
}

func (b *BlobStore) Put(_ context.Context, path string, data []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[path] = append([]byte(nil), data...)
	return nil
}

// Object returns the stored bytes at path, if any.
func (b *BlobStore) Object(path string) ([]byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.objects[path]
	return data, ok
}
