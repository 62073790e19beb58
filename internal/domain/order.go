package domain

// Price bounds for limit orders, in bps. A price of 0 or 10000 would be a
// degenerate certainty claim, so both ends are exclusive.
const (
	MinOrderPrice = 1
	MaxOrderPrice = 9999
)

// BookSideCapacity caps each of the four resting-order queues.
const BookSideCapacity = 100

// LimitOrder is a resting limit order. It is mutated only by matching until
// FilledQty == Qty and destroyed on cancel or full fill.
type LimitOrder struct {
	ID          string
	Owner       string
	Market      string
	AnswerIndex *uint8 // nil for binary markets
	Price       uint64 // bps, [MinOrderPrice, MaxOrderPrice]
	Qty         uint64
	FilledQty   uint64 // invariant: FilledQty <= Qty
	IsYes       bool
	IsBid       bool
	CreatedAt   int64
	ExpiresAt   *int64 // advisory; enforced by the expiry sweeper, not the core
}

// Remaining returns the unfilled quantity.
func (o LimitOrder) Remaining() uint64 {
	return o.Qty - o.FilledQty
}

// Orderbook indexes resting orders for one market by side and direction.
// Insertion order is the only ordering the book stores; matching priority is
// whatever order candidates are presented in.
type Orderbook struct {
	Market        string
	YesBuyOrders  []string
	YesSellOrders []string
	NoBuyOrders   []string
	NoSellOrders  []string
}

// Bucket returns a pointer to the queue for the given side/direction pair.
func (b *Orderbook) Bucket(isYes, isBid bool) *[]string {
	switch {
	case isYes && isBid:
		return &b.YesBuyOrders
	case isYes && !isBid:
		return &b.YesSellOrders
	case !isYes && isBid:
		return &b.NoBuyOrders
	default:
		return &b.NoSellOrders
	}
}

// Remove deletes the order ID from its queue, preserving the order of the
// remaining entries. It reports whether the ID was present.
func (b *Orderbook) Remove(orderID string, isYes, isBid bool) bool {
	q := b.Bucket(isYes, isBid)
	for i, id := range *q {
		if id == orderID {
			*q = append((*q)[:i], (*q)[i+1:]...)
			return true
		}
	}
	return false
}
