// README: Persistence contract for orders and bids; all order mutations run inside WithinOrder.
package ledger

import (
	"context"
	"time"

	"medbid/internal/modules/order"
	"medbid/internal/types"
)

type Store interface {
	CreateOrder(ctx context.Context, o *order.Order) error
	GetOrder(ctx context.Context, id types.ID) (*order.Order, error)
	ListOrders(ctx context.Context, statuses ...order.Status) ([]*order.Order, error)
	GetBid(ctx context.Context, id types.ID) (*Bid, error)
	ListBids(ctx context.Context, orderID types.ID) ([]*Bid, error)
	// ExpireSubmitted moves every submitted bid whose deadline is at or before now to expired
	// and returns the bids it changed.
	ExpireSubmitted(ctx context.Context, now time.Time) ([]*Bid, error)
	// WithinOrder runs fn in the order's critical section. Writes made through the Tx
	// are committed only if fn returns nil.
	WithinOrder(ctx context.Context, orderID types.ID, fn func(tx Tx) error) error
}

type Tx interface {
	// Order returns the order as loaded at the start of the critical section.
	Order() *order.Order
	Bids() []*Bid
	// SaveOrder persists o if its StatusVersion still matches, then increments it.
	SaveOrder(ctx context.Context, o *order.Order) error
	InsertBid(ctx context.Context, b *Bid) error
	// SetBidStatus moves a bid from one status to another; false means the bid was not in from.
	SetBidStatus(ctx context.Context, id types.ID, from, to BidStatus, note string, at time.Time) (bool, error)
}
