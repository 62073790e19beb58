package orderbook

import "github.com/farsight-markets/farsight/internal/domain"

// Rest appends the order to its book bucket, rejecting once the bucket holds
// BookSideCapacity entries.
func Rest(b *domain.Orderbook, o *domain.LimitOrder) error {
	bucket := b.Bucket(o.IsYes, o.IsBid)
	if len(*bucket) >= domain.BookSideCapacity {
		return &domain.ResourceLimitError{
			Code:   domain.CodeOrderbookFull,
			Limit:  domain.BookSideCapacity,
			Actual: uint64(len(*bucket)),
		}
	}
	*bucket = append(*bucket, o.ID)
	return nil
}

// Remove deletes the order from its bucket by identity. Orders already
// destroyed by cancel or full fill are gone from the index, so a second
// removal reports order_not_found.
func Remove(b *domain.Orderbook, o *domain.LimitOrder) error {
	if !b.Remove(o.ID, o.IsYes, o.IsBid) {
		return &domain.PreconditionError{Code: domain.CodeOrderNotFound, Detail: o.ID}
	}
	return nil
}
