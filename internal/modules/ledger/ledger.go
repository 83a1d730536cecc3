// README: Bid ledger: submit, respond, award, cancel and expiry, each serialized per order.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"medbid/internal/events"
	"medbid/internal/modules/order"
	"medbid/internal/modules/provider"
	"medbid/internal/types"
)

var (
	ErrNotFound              = errors.New("bid not found")
	ErrInvalidBid            = errors.New("invalid bid")
	ErrOrderNotAcceptingBids = errors.New("order is not accepting bids")
	ErrProviderUnavailable   = errors.New("provider unavailable")
	ErrDuplicateBid          = errors.New("provider already bid on this order")
	ErrBidNotPending         = errors.New("bid is not pending")
	ErrBidExpired            = errors.New("bid expired")
	ErrStaleBid              = errors.New("stale bid")
	ErrOrderAlreadyAssigned  = errors.New("order already assigned")
	ErrLiveBidsRemain        = errors.New("order still has live bids")
)

// ProviderSource is the read side of the provider directory.
type ProviderSource interface {
	Get(ctx context.Context, id types.ID) (*provider.Provider, error)
}

type Ledger struct {
	store     Store
	providers ProviderSource
	emitter   events.Emitter
	logger    *zap.Logger
	now       func() time.Time
}

func New(store Store, providers ProviderSource, emitter events.Emitter, logger *zap.Logger) *Ledger {
	if emitter == nil {
		emitter = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		store:     store,
		providers: providers,
		emitter:   emitter,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source; used by tests and the sweeper.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func (l *Ledger) Now() time.Time { return l.now() }

type SubmitCommand struct {
	OrderID    types.ID
	ProviderID types.ID
	Amount     types.Money
	Estimate   Estimate
	Note       string
	ValidUntil *time.Time
}

type RespondCommand struct {
	BidID  types.ID
	Accept bool
	Actor  string
	Note   string
}

type AwardCommand struct {
	OrderID types.ID
	BidID   types.ID
	Actor   string
	Note    string
}

type CancelCommand struct {
	OrderID types.ID
	Actor   string
	Reason  string
}

type AdvanceCommand struct {
	OrderID types.ID
	To      order.Status
	Actor   string
	Note    string
}

func (l *Ledger) CreateOrder(ctx context.Context, o *order.Order) error {
	if err := l.store.CreateOrder(ctx, o); err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	l.emitter.Emit(events.Event{
		Type:    events.TypeOrderCreated,
		OrderID: o.ID,
		Actor:   string(o.Requester.PatientID),
		From:    string(order.StatusNone),
		To:      string(o.Status),
		At:      o.CreatedAt,
	})
	return nil
}

func (l *Ledger) GetOrder(ctx context.Context, id types.ID) (*order.Order, error) {
	return l.store.GetOrder(ctx, id)
}

func (l *Ledger) ListOrders(ctx context.Context, statuses ...order.Status) ([]*order.Order, error) {
	return l.store.ListOrders(ctx, statuses...)
}

func (l *Ledger) GetBid(ctx context.Context, id types.ID) (*Bid, error) {
	return l.store.GetBid(ctx, id)
}

func (l *Ledger) ListBids(ctx context.Context, orderID types.ID) ([]*Bid, error) {
	return l.store.ListBids(ctx, orderID)
}

// Submit records a provider's bid. The first bid moves the order to bids_received,
// walking through awaiting_bids when the order was never broadcast.
func (l *Ledger) Submit(ctx context.Context, cmd SubmitCommand) (*Bid, error) {
	now := l.now()
	if !cmd.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidBid)
	}
	if !cmd.Amount.Cents() {
		return nil, fmt.Errorf("%w: amount %s has more than two decimal places", ErrInvalidBid, cmd.Amount.Amount)
	}
	if cmd.ValidUntil != nil && !cmd.ValidUntil.After(now) {
		return nil, fmt.Errorf("%w: valid_until is in the past", ErrInvalidBid)
	}

	o, err := l.store.GetOrder(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if err := cmd.Estimate.ValidFor(o.Category); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBid, err)
	}
	p, err := l.providers.Get(ctx, cmd.ProviderID)
	if errors.Is(err, provider.ErrNotFound) {
		return nil, fmt.Errorf("%w: provider %s not found", ErrProviderUnavailable, cmd.ProviderID)
	}
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}
	if !p.Active || !p.AcceptingOrders || p.Category != o.Category {
		return nil, fmt.Errorf("%w: provider %s", ErrProviderUnavailable, p.ID)
	}
	q := p.Snapshot()

	bid := &Bid{
		ID:          types.NewID(),
		OrderID:     cmd.OrderID,
		ProviderID:  cmd.ProviderID,
		Amount:      cmd.Amount,
		Estimate:    cmd.Estimate,
		Note:        cmd.Note,
		ValidUntil:  cmd.ValidUntil,
		Status:      BidSubmitted,
		Quality:     &q,
		SubmittedAt: now,
	}

	var emitted []events.Event
	err = l.store.WithinOrder(ctx, cmd.OrderID, func(tx Tx) error {
		emitted = emitted[:0]
		o := tx.Order()
		if !o.Status.AcceptsBids() {
			return fmt.Errorf("%w: order %s is %s", ErrOrderNotAcceptingBids, o.ID, o.Status)
		}
		for _, b := range tx.Bids() {
			if b.ProviderID == cmd.ProviderID {
				return fmt.Errorf("%w: provider %s on order %s", ErrDuplicateBid, cmd.ProviderID, o.ID)
			}
		}
		// The first bid fixes the order's currency.
		if prior := tx.Bids(); len(prior) > 0 && prior[0].Amount.Currency != bid.Amount.Currency {
			return fmt.Errorf("%w: order %s is quoted in %s, not %s",
				ErrInvalidBid, o.ID, prior[0].Amount.Currency, bid.Amount.Currency)
		}
		if err := tx.InsertBid(ctx, bid); err != nil {
			return err
		}
		emitted = append(emitted, events.Event{
			Type:    events.TypeBidSubmitted,
			OrderID: o.ID,
			BidID:   bid.ID,
			Actor:   string(cmd.ProviderID),
			To:      string(BidSubmitted),
			Note:    cmd.Note,
			At:      now,
		})

		if o.Status == order.StatusBidsReceived {
			return nil
		}
		if o.Status == order.StatusPendingBroadcast {
			if err := l.transition(o, order.StatusAwaitingBids, "system", "bid received before broadcast", now, &emitted); err != nil {
				return err
			}
		}
		if err := l.transition(o, order.StatusBidsReceived, string(cmd.ProviderID), "first bid received", now, &emitted); err != nil {
			return err
		}
		return tx.SaveOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	l.emitter.Emit(emitted...)
	l.logger.Info("bid submitted",
		zap.String("order_id", string(bid.OrderID)),
		zap.String("bid_id", string(bid.ID)),
		zap.String("provider_id", string(bid.ProviderID)),
		zap.String("amount", bid.Amount.String()),
	)
	return bid.Clone(), nil
}

// Respond accepts or rejects a submitted bid. Accepting awards the order, so a bid
// that lost a concurrent award reports ErrOrderAlreadyAssigned.
func (l *Ledger) Respond(ctx context.Context, cmd RespondCommand) error {
	b, err := l.store.GetBid(ctx, cmd.BidID)
	if err != nil {
		return err
	}
	if cmd.Accept {
		return l.Award(ctx, AwardCommand{OrderID: b.OrderID, BidID: b.ID, Actor: cmd.Actor, Note: cmd.Note})
	}
	now := l.now()
	if b.Status != BidSubmitted {
		return fmt.Errorf("%w: bid %s is %s", ErrBidNotPending, b.ID, b.Status)
	}
	if b.pastDeadline(now) {
		return fmt.Errorf("%w: bid %s", ErrBidExpired, b.ID)
	}

	var emitted []events.Event
	err = l.store.WithinOrder(ctx, b.OrderID, func(tx Tx) error {
		emitted = emitted[:0]
		cur := findBid(tx.Bids(), b.ID)
		if cur == nil {
			return ErrNotFound
		}
		if cur.Status != BidSubmitted {
			return fmt.Errorf("%w: bid %s is %s", ErrBidNotPending, cur.ID, cur.Status)
		}
		if cur.pastDeadline(now) {
			return fmt.Errorf("%w: bid %s", ErrBidExpired, cur.ID)
		}
		ok, err := tx.SetBidStatus(ctx, cur.ID, BidSubmitted, BidRejected, cmd.Note, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: bid %s", ErrBidNotPending, cur.ID)
		}
		emitted = append(emitted, bidEvent(cur, BidSubmitted, BidRejected, cmd.Actor, cmd.Note, now))
		return nil
	})
	if err != nil {
		return err
	}
	l.emitter.Emit(emitted...)
	return nil
}

// Award accepts the winning bid, rejects every other submitted bid and assigns the order
// in one atomic unit. Revalidation failures are reported as ErrStaleBid.
func (l *Ledger) Award(ctx context.Context, cmd AwardCommand) error {
	b, err := l.store.GetBid(ctx, cmd.BidID)
	if err != nil {
		return err
	}
	if b.OrderID != cmd.OrderID {
		return fmt.Errorf("%w: bid %s belongs to order %s", ErrNotFound, b.ID, b.OrderID)
	}
	o, err := l.store.GetOrder(ctx, cmd.OrderID)
	if err != nil {
		return err
	}
	if o.Status.HoldsAssignment() {
		return fmt.Errorf("%w: order %s is %s", ErrOrderAlreadyAssigned, o.ID, o.Status)
	}
	if err := l.checkProvider(ctx, b.ProviderID, o.Category); err != nil {
		return fmt.Errorf("%w: %w", ErrStaleBid, err)
	}

	actor := cmd.Actor
	if actor == "" {
		actor = "system"
	}
	now := l.now()
	var emitted []events.Event
	err = l.store.WithinOrder(ctx, cmd.OrderID, func(tx Tx) error {
		emitted = emitted[:0]
		o := tx.Order()
		switch {
		case o.Status.HoldsAssignment():
			return fmt.Errorf("%w: order %s is %s", ErrOrderAlreadyAssigned, o.ID, o.Status)
		case o.Status != order.StatusBidsReceived:
			return fmt.Errorf("%w: award from %s", order.ErrInvalidTransition, o.Status)
		}

		win := findBid(tx.Bids(), cmd.BidID)
		if win == nil {
			return ErrNotFound
		}
		if win.Status != BidSubmitted {
			return fmt.Errorf("%w: %w: bid %s is %s", ErrStaleBid, ErrBidNotPending, win.ID, win.Status)
		}
		if win.pastDeadline(now) {
			return fmt.Errorf("%w: %w: bid %s", ErrStaleBid, ErrBidExpired, win.ID)
		}

		ok, err := tx.SetBidStatus(ctx, win.ID, BidSubmitted, BidAccepted, cmd.Note, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %w: bid %s", ErrStaleBid, ErrBidNotPending, win.ID)
		}
		emitted = append(emitted, bidEvent(win, BidSubmitted, BidAccepted, actor, cmd.Note, now))

		for _, other := range tx.Bids() {
			if other.ID == win.ID || other.Status != BidSubmitted {
				continue
			}
			ok, err := tx.SetBidStatus(ctx, other.ID, BidSubmitted, BidRejected, "another bid was awarded", now)
			if err != nil {
				return err
			}
			if ok {
				emitted = append(emitted, bidEvent(other, BidSubmitted, BidRejected, "system", "another bid was awarded", now))
			}
		}

		pid := win.ProviderID
		total := win.Amount
		o.AssignedProviderID = &pid
		o.Total = &total
		text := fmt.Sprintf("awarded bid %s to provider %s for %s", win.ID, pid, total.String())
		if cmd.Note != "" {
			text += ": " + cmd.Note
		}
		if err := l.transition(o, order.StatusAssigned, actor, text, now, &emitted); err != nil {
			return err
		}
		return tx.SaveOrder(ctx, o)
	})
	if err != nil {
		return err
	}
	l.emitter.Emit(emitted...)
	l.logger.Info("order awarded",
		zap.String("order_id", string(cmd.OrderID)),
		zap.String("bid_id", string(cmd.BidID)),
		zap.String("provider_id", string(b.ProviderID)),
	)
	return nil
}

func (l *Ledger) checkProvider(ctx context.Context, id types.ID, category types.Category) error {
	p, err := l.providers.Get(ctx, id)
	if errors.Is(err, provider.ErrNotFound) {
		return fmt.Errorf("%w: provider %s not found", ErrProviderUnavailable, id)
	}
	if err != nil {
		return fmt.Errorf("load provider: %w", err)
	}
	if p.Category != category || !p.IsAvailable() {
		return fmt.Errorf("%w: provider %s", ErrProviderUnavailable, id)
	}
	return nil
}

// Broadcast moves a freshly created order to awaiting_bids.
func (l *Ledger) Broadcast(ctx context.Context, orderID types.ID, actor, note string) (*order.Order, error) {
	now := l.now()
	return l.mutateOrder(ctx, orderID, func(tx Tx, o *order.Order, emitted *[]events.Event) error {
		return l.transition(o, order.StatusAwaitingBids, actor, note, now, emitted)
	})
}

// Reopen takes a bids_received order whose bids have all gone terminal back to awaiting_bids.
func (l *Ledger) Reopen(ctx context.Context, orderID types.ID, actor, note string) (*order.Order, error) {
	now := l.now()
	return l.mutateOrder(ctx, orderID, func(tx Tx, o *order.Order, emitted *[]events.Event) error {
		for _, b := range tx.Bids() {
			if IsLive(b, now) {
				return fmt.Errorf("%w: bid %s", ErrLiveBidsRemain, b.ID)
			}
		}
		from := o.Status
		if err := order.Resubmit(o, actor, note, now); err != nil {
			return err
		}
		*emitted = append(*emitted, transitionEvent(o, from, actor, note, now))
		return nil
	})
}

// Advance drives the fulfilment transitions after assignment.
func (l *Ledger) Advance(ctx context.Context, cmd AdvanceCommand) (*order.Order, error) {
	switch cmd.To {
	case order.StatusInProgress, order.StatusOutForDelivery, order.StatusReadyForPickup, order.StatusCompleted:
	default:
		return nil, fmt.Errorf("%w: cannot advance to %s", order.ErrInvalidTransition, cmd.To)
	}
	now := l.now()
	return l.mutateOrder(ctx, cmd.OrderID, func(_ Tx, o *order.Order, emitted *[]events.Event) error {
		return l.transition(o, cmd.To, cmd.Actor, cmd.Note, now, emitted)
	})
}

// Cancel cancels the order, releases any assigned provider and retires every submitted bid.
func (l *Ledger) Cancel(ctx context.Context, cmd CancelCommand) (*order.Order, error) {
	now := l.now()
	return l.mutateOrder(ctx, cmd.OrderID, func(tx Tx, o *order.Order, emitted *[]events.Event) error {
		text := cmd.Reason
		if o.AssignedProviderID != nil {
			text = fmt.Sprintf("%s (released provider %s)", cmd.Reason, *o.AssignedProviderID)
		}
		if err := l.transition(o, order.StatusCancelled, cmd.Actor, text, now, emitted); err != nil {
			return err
		}
		for _, b := range tx.Bids() {
			if b.Status != BidSubmitted {
				continue
			}
			to := BidRejected
			if b.pastDeadline(now) {
				to = BidExpired
			}
			ok, err := tx.SetBidStatus(ctx, b.ID, BidSubmitted, to, "order cancelled", now)
			if err != nil {
				return err
			}
			if ok {
				*emitted = append(*emitted, bidEvent(b, BidSubmitted, to, "system", "order cancelled", now))
			}
		}
		return nil
	})
}

// ExpireStale marks every submitted bid past its deadline expired. Safe to call repeatedly.
func (l *Ledger) ExpireStale(ctx context.Context) ([]*Bid, error) {
	now := l.now()
	expired, err := l.store.ExpireSubmitted(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("expire stale bids: %w", err)
	}
	if len(expired) == 0 {
		return nil, nil
	}
	evs := make([]events.Event, len(expired))
	for i, b := range expired {
		evs[i] = bidEvent(b, BidSubmitted, BidExpired, "system", "deadline passed", now)
	}
	l.emitter.Emit(evs...)
	l.logger.Info("expired stale bids", zap.Int("count", len(expired)))
	return expired, nil
}

func (l *Ledger) mutateOrder(ctx context.Context, orderID types.ID, fn func(tx Tx, o *order.Order, emitted *[]events.Event) error) (*order.Order, error) {
	var (
		emitted []events.Event
		out     *order.Order
	)
	err := l.store.WithinOrder(ctx, orderID, func(tx Tx) error {
		emitted = emitted[:0]
		o := tx.Order()
		if err := fn(tx, o, &emitted); err != nil {
			return err
		}
		if err := tx.SaveOrder(ctx, o); err != nil {
			return err
		}
		out = o.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.emitter.Emit(emitted...)
	return out, nil
}

func (l *Ledger) transition(o *order.Order, to order.Status, actor, text string, at time.Time, emitted *[]events.Event) error {
	from := o.Status
	if err := order.Transition(o, to, actor, text, at); err != nil {
		return err
	}
	*emitted = append(*emitted, transitionEvent(o, from, actor, text, at))
	l.logger.Debug("order transition",
		zap.String("order_id", string(o.ID)),
		zap.String("from", string(from)),
		zap.String("status", string(to)),
	)
	return nil
}

func transitionEvent(o *order.Order, from order.Status, actor, text string, at time.Time) events.Event {
	return events.Event{
		Type:    events.TypeOrderTransition,
		OrderID: o.ID,
		Actor:   actor,
		From:    string(from),
		To:      string(o.Status),
		Note:    text,
		At:      at,
	}
}

func bidEvent(b *Bid, from, to BidStatus, actor, note string, at time.Time) events.Event {
	return events.Event{
		Type:    events.TypeBidStatus,
		OrderID: b.OrderID,
		BidID:   b.ID,
		Actor:   actor,
		From:    string(from),
		To:      string(to),
		Note:    note,
		At:      at,
	}
}

func findBid(bids []*Bid, id types.ID) *Bid {
	for _, b := range bids {
		if b.ID == id {
			return b
		}
	}
	return nil
}
