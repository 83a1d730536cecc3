// README: In-memory Store: keyed per-order mutex plus staged copies committed on success.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"medbid/internal/modules/order"
	"medbid/internal/types"
)

type MemoryStore struct {
	mu      sync.RWMutex
	orders  map[types.ID]*order.Order
	bids    map[types.ID]*Bid
	byOrder map[types.ID][]types.ID
	locks   map[types.ID]*sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:  make(map[types.ID]*order.Order),
		bids:    make(map[types.ID]*Bid),
		byOrder: make(map[types.ID][]types.ID),
		locks:   make(map[types.ID]*sync.Mutex),
	}
}

func (s *MemoryStore) lockFor(id types.ID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *MemoryStore) CreateOrder(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("%w: order %s already exists", order.ErrConflict, o.ID)
	}
	s.orders[o.ID] = o.Clone()
	return nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id types.ID) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o.Clone(), nil
}

func (s *MemoryStore) ListOrders(_ context.Context, statuses ...order.Status) ([]*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[order.Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	out := make([]*order.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if len(want) > 0 && !want[o.Status] {
			continue
		}
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) GetBid(_ context.Context, id types.ID) (*Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bids[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b.Clone(), nil
}

func (s *MemoryStore) ListBids(_ context.Context, orderID types.ID) ([]*Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bidsOf(orderID), nil
}

// bidsOf returns copies in submission order; callers hold s.mu.
func (s *MemoryStore) bidsOf(orderID types.ID) []*Bid {
	ids := s.byOrder[orderID]
	out := make([]*Bid, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.bids[id].Clone())
	}
	return out
}

func (s *MemoryStore) ExpireSubmitted(_ context.Context, now time.Time) ([]*Bid, error) {
	s.mu.RLock()
	var candidates []types.ID
	for orderID, ids := range s.byOrder {
		for _, id := range ids {
			b := s.bids[id]
			if b.Status == BidSubmitted && b.pastDeadline(now) {
				candidates = append(candidates, orderID)
				break
			}
		}
	}
	s.mu.RUnlock()
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

	var expired []*Bid
	for _, orderID := range candidates {
		l := s.lockFor(orderID)
		l.Lock()
		s.mu.Lock()
		for _, id := range s.byOrder[orderID] {
			b := s.bids[id]
			if b.Status != BidSubmitted || !b.pastDeadline(now) {
				continue
			}
			b.Status = BidExpired
			at := now
			b.RespondedAt = &at
			expired = append(expired, b.Clone())
		}
		s.mu.Unlock()
		l.Unlock()
	}
	return expired, nil
}

func (s *MemoryStore) WithinOrder(ctx context.Context, orderID types.ID, fn func(tx Tx) error) error {
	l := s.lockFor(orderID)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	o, ok := s.orders[orderID]
	if !ok {
		s.mu.RUnlock()
		return order.ErrNotFound
	}
	tx := &memTx{
		order:   o.Clone(),
		version: o.StatusVersion,
		bids:    s.bidsOf(orderID),
		touched: make(map[types.ID]bool),
	}
	s.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.saved != nil {
		s.orders[orderID] = tx.saved
	}
	for _, b := range tx.bids {
		if !tx.touched[b.ID] {
			continue
		}
		if _, exists := s.bids[b.ID]; !exists {
			s.byOrder[orderID] = append(s.byOrder[orderID], b.ID)
		}
		s.bids[b.ID] = b.Clone()
	}
	return nil
}

type memTx struct {
	order   *order.Order
	version int
	saved   *order.Order
	bids    []*Bid
	touched map[types.ID]bool
}

func (t *memTx) Order() *order.Order { return t.order }

func (t *memTx) Bids() []*Bid { return t.bids }

func (t *memTx) SaveOrder(_ context.Context, o *order.Order) error {
	if o.StatusVersion != t.version {
		return fmt.Errorf("%w: order %s version %d, have %d", order.ErrConflict, o.ID, o.StatusVersion, t.version)
	}
	o.StatusVersion++
	t.version = o.StatusVersion
	t.saved = o.Clone()
	return nil
}

func (t *memTx) InsertBid(_ context.Context, b *Bid) error {
	for _, existing := range t.bids {
		if existing.ProviderID == b.ProviderID {
			return fmt.Errorf("%w: provider %s on order %s", ErrDuplicateBid, b.ProviderID, b.OrderID)
		}
	}
	c := b.Clone()
	t.bids = append(t.bids, c)
	t.touched[c.ID] = true
	return nil
}

func (t *memTx) SetBidStatus(_ context.Context, id types.ID, from, to BidStatus, note string, at time.Time) (bool, error) {
	for _, b := range t.bids {
		if b.ID != id {
			continue
		}
		if b.Status != from {
			return false, nil
		}
		b.Status = to
		b.ResponseNote = note
		ts := at
		b.RespondedAt = &ts
		t.touched[id] = true
		return true, nil
	}
	return false, ErrNotFound
}
