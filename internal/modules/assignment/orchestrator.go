// README: Assignment orchestrator: broadcast, evaluate, award, fulfilment and the expiry sweeper.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"medbid/internal/events"
	"medbid/internal/modules/ledger"
	"medbid/internal/modules/order"
	"medbid/internal/modules/ranking"
	"medbid/internal/modules/scoring"
	"medbid/internal/types"
)

type Ranker interface {
	Rank(ctx context.Context, c ranking.Criteria) ([]ranking.Ranked, error)
}

type Options struct {
	// BroadcastLimit caps how many providers are notified per broadcast; 0 = all eligible.
	BroadcastLimit int
	// MaxDistanceKm is the broadcast radius; 0 = no distance filter.
	MaxDistanceKm float64
	// AwardAttempts bounds how many winners AutoAward tries when awards go stale.
	AwardAttempts int
}

type Orchestrator struct {
	ledger     *ledger.Ledger
	ranker     Ranker
	registry   scoring.Registry
	evals      scoring.EvaluationLog
	locker     Locker
	broadcasts BroadcastLog
	emitter    events.Emitter
	logger     *zap.Logger
	opts       Options
}

func NewOrchestrator(
	l *ledger.Ledger,
	ranker Ranker,
	registry scoring.Registry,
	evals scoring.EvaluationLog,
	locker Locker,
	broadcasts BroadcastLog,
	emitter events.Emitter,
	logger *zap.Logger,
	opts Options,
) *Orchestrator {
	if evals == nil {
		evals = scoring.NewMemoryEvaluationLog()
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	if broadcasts == nil {
		broadcasts = NewMemoryBroadcastLog()
	}
	if emitter == nil {
		emitter = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.AwardAttempts <= 0 {
		opts.AwardAttempts = 3
	}
	return &Orchestrator{
		ledger:     l,
		ranker:     ranker,
		registry:   registry,
		evals:      evals,
		locker:     locker,
		broadcasts: broadcasts,
		emitter:    emitter,
		logger:     logger,
		opts:       opts,
	}
}

// Broadcast is the result of opening an order to providers.
type Broadcast struct {
	Order     *order.Order     `json:"order"`
	Providers []ranking.Ranked `json:"providers"`
}

func (s *Orchestrator) CreateOrder(ctx context.Context, cmd order.CreateCommand) (*order.Order, error) {
	o, err := order.New(cmd, s.ledger.Now())
	if err != nil {
		return nil, err
	}
	if err := s.ledger.CreateOrder(ctx, o); err != nil {
		return nil, err
	}
	s.logger.Info("order created",
		zap.String("order_id", string(o.ID)),
		zap.String("category", string(o.Category)),
		zap.String("urgency", string(o.Urgency)),
	)
	return o, nil
}

func (s *Orchestrator) GetOrder(ctx context.Context, id types.ID) (*order.Order, error) {
	return s.ledger.GetOrder(ctx, id)
}

func (s *Orchestrator) ListBids(ctx context.Context, orderID types.ID) ([]*ledger.Bid, error) {
	if _, err := s.ledger.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.ledger.ListBids(ctx, orderID)
}

// BroadcastOrder ranks providers for the order and opens it for bids. No scoring happens here.
func (s *Orchestrator) BroadcastOrder(ctx context.Context, orderID types.ID) (*Broadcast, error) {
	o, err := s.ledger.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != order.StatusPendingBroadcast {
		return nil, fmt.Errorf("%w: broadcast from %s", order.ErrInvalidTransition, o.Status)
	}
	ranked, err := s.ranker.Rank(ctx, s.criteria(o))
	if err != nil {
		return nil, err
	}
	updated, err := s.ledger.Broadcast(ctx, orderID, "system", fmt.Sprintf("broadcast to %d providers", len(ranked)))
	if err != nil {
		return nil, err
	}
	s.record(ctx, updated, ranked)
	return &Broadcast{Order: updated, Providers: ranked}, nil
}

// Rebroadcast reopens a bids_received order whose bids are all gone and notifies
// providers that have not bid yet.
func (s *Orchestrator) Rebroadcast(ctx context.Context, orderID types.ID) (*Broadcast, error) {
	o, err := s.ledger.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	bids, err := s.ledger.ListBids(ctx, orderID)
	if err != nil {
		return nil, err
	}
	ranked, err := s.ranker.Rank(ctx, s.criteria(o))
	if err != nil {
		return nil, err
	}
	bidders := make(map[types.ID]bool, len(bids))
	for _, b := range bids {
		bidders[b.ProviderID] = true
	}
	fresh := ranked[:0:0]
	for _, r := range ranked {
		if !bidders[r.Provider.ID] {
			fresh = append(fresh, r)
		}
	}
	updated, err := s.ledger.Reopen(ctx, orderID, "system", fmt.Sprintf("rebroadcast to %d providers", len(fresh)))
	if err != nil {
		return nil, err
	}
	s.record(ctx, updated, fresh)
	return &Broadcast{Order: updated, Providers: fresh}, nil
}

// Notified lists every provider an order has been broadcast to.
func (s *Orchestrator) Notified(ctx context.Context, orderID types.ID) ([]types.ID, error) {
	if _, err := s.ledger.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.broadcasts.Notified(ctx, orderID)
}

func (s *Orchestrator) criteria(o *order.Order) ranking.Criteria {
	return ranking.Criteria{
		Category:      o.Category,
		Region:        o.Region,
		Location:      o.Location,
		Capabilities:  o.Payload.Capabilities(),
		Urgency:       o.Urgency,
		MaxDistanceKm: s.opts.MaxDistanceKm,
		Limit:         s.opts.BroadcastLimit,
	}
}

// record is best effort: the order is already open, a lost log entry only affects rebroadcast targeting.
func (s *Orchestrator) record(ctx context.Context, o *order.Order, ranked []ranking.Ranked) {
	ids := make([]types.ID, len(ranked))
	for i, r := range ranked {
		ids[i] = r.Provider.ID
	}
	if err := s.broadcasts.Record(ctx, o.ID, ids); err != nil {
		s.logger.Warn("record broadcast failed", zap.String("order_id", string(o.ID)), zap.Error(err))
	}
	s.emitter.Emit(events.Event{
		Type:    events.TypeOrderBroadcast,
		OrderID: o.ID,
		Actor:   "system",
		To:      string(o.Status),
		Note:    fmt.Sprintf("%d providers notified", len(ids)),
		At:      o.StatusChangedAt,
	})
	s.logger.Info("order broadcast", zap.String("order_id", string(o.ID)), zap.Int("providers", len(ids)))
}

func (s *Orchestrator) SubmitBid(ctx context.Context, cmd ledger.SubmitCommand) (*ledger.Bid, error) {
	return s.ledger.Submit(ctx, cmd)
}

// RespondBid accepts or rejects a bid; accepting goes through the per-order lock like any award.
func (s *Orchestrator) RespondBid(ctx context.Context, cmd ledger.RespondCommand) error {
	if !cmd.Accept {
		return s.ledger.Respond(ctx, cmd)
	}
	b, err := s.ledger.GetBid(ctx, cmd.BidID)
	if err != nil {
		return err
	}
	unlock, err := s.locker.Lock(ctx, b.OrderID)
	if err != nil {
		return err
	}
	defer unlock()
	return s.ledger.Respond(ctx, cmd)
}

// Evaluate scores the order's live bids with the active config and records the result.
func (s *Orchestrator) Evaluate(ctx context.Context, orderID types.ID) (*scoring.Evaluation, error) {
	o, err := s.ledger.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.registry.Active(ctx, o.Category)
	if err != nil {
		return nil, fmt.Errorf("load scoring config: %w", err)
	}
	bids, err := s.ledger.ListBids(ctx, orderID)
	if err != nil {
		return nil, err
	}
	ev, err := scoring.Evaluate(o, bids, cfg, s.ledger.Now())
	if err != nil {
		return nil, err
	}
	if err := s.evals.Save(ctx, ev); err != nil {
		s.logger.Warn("save evaluation failed", zap.String("order_id", string(orderID)), zap.Error(err))
	}
	return ev, nil
}

func (s *Orchestrator) LatestEvaluation(ctx context.Context, orderID types.ID) (*scoring.Evaluation, error) {
	return s.evals.Latest(ctx, orderID)
}

// AwardOrder awards a specific bid under the order lock.
func (s *Orchestrator) AwardOrder(ctx context.Context, orderID, bidID types.ID, actor string) error {
	unlock, err := s.locker.Lock(ctx, orderID)
	if err != nil {
		return err
	}
	defer unlock()
	return s.ledger.Award(ctx, ledger.AwardCommand{OrderID: orderID, BidID: bidID, Actor: actor})
}

// AutoAward evaluates and awards the top bid. A stale winner triggers a fresh evaluation,
// never a silent swap inside one award.
func (s *Orchestrator) AutoAward(ctx context.Context, orderID types.ID) (*scoring.Evaluation, error) {
	unlock, err := s.locker.Lock(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var lastErr error
	for attempt := 1; attempt <= s.opts.AwardAttempts; attempt++ {
		ev, err := s.Evaluate(ctx, orderID)
		if err != nil {
			return nil, err
		}
		win := ev.Winner()
		err = s.ledger.Award(ctx, ledger.AwardCommand{
			OrderID: orderID,
			BidID:   win.BidID,
			Actor:   "system",
			Note:    fmt.Sprintf("auto-award score %.2f (%s v%d)", win.Score, ev.ConfigName, ev.ConfigVersion),
		})
		if err == nil {
			return ev, nil
		}
		if !errors.Is(err, ledger.ErrStaleBid) {
			return nil, err
		}
		lastErr = err
		s.logger.Warn("auto-award winner stale, re-evaluating",
			zap.String("order_id", string(orderID)),
			zap.String("bid_id", string(win.BidID)),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if errors.Is(err, ledger.ErrProviderUnavailable) {
			// The bid itself is still submitted; retire it so the next evaluation skips it.
			if rerr := s.ledger.Respond(ctx, ledger.RespondCommand{BidID: win.BidID, Actor: "system", Note: "provider unavailable at award"}); rerr != nil {
				s.logger.Warn("retire stale bid failed", zap.String("bid_id", string(win.BidID)), zap.Error(rerr))
			}
		}
	}
	return nil, lastErr
}

func (s *Orchestrator) Cancel(ctx context.Context, cmd ledger.CancelCommand) (*order.Order, error) {
	unlock, err := s.locker.Lock(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.ledger.Cancel(ctx, cmd)
}

func (s *Orchestrator) Advance(ctx context.Context, cmd ledger.AdvanceCommand) (*order.Order, error) {
	return s.ledger.Advance(ctx, cmd)
}

func (s *Orchestrator) ExpireStale(ctx context.Context) (int, error) {
	expired, err := s.ledger.ExpireStale(ctx)
	return len(expired), err
}

// RunSweeper expires stale bids and forces evaluation of orders past their max wait.
func (s *Orchestrator) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one sweeper pass; errors are logged per order so one bad order does not stall the rest.
func (s *Orchestrator) Sweep(ctx context.Context) {
	if _, err := s.ExpireStale(ctx); err != nil {
		s.logger.Error("expire stale bids failed", zap.Error(err))
	}
	orders, err := s.ledger.ListOrders(ctx, order.StatusBidsReceived)
	if err != nil {
		s.logger.Error("list orders for sweep failed", zap.Error(err))
		return
	}
	now := s.ledger.Now()
	for _, o := range orders {
		cfg, err := s.registry.Active(ctx, o.Category)
		if err != nil {
			s.logger.Error("load scoring config failed", zap.String("order_id", string(o.ID)), zap.Error(err))
			continue
		}
		if cfg.MaxWait <= 0 || o.BroadcastAt == nil || now.Before(o.BroadcastAt.Add(cfg.MaxWait)) {
			continue
		}
		_, err = s.AutoAward(ctx, o.ID)
		switch {
		case err == nil:
		case errors.Is(err, scoring.ErrInsufficientBids):
			s.reopenIfDrained(ctx, o.ID)
		case errors.Is(err, ledger.ErrOrderAlreadyAssigned), errors.Is(err, order.ErrInvalidTransition):
		default:
			s.logger.Error("forced evaluation failed", zap.String("order_id", string(o.ID)), zap.Error(err))
		}
	}
}

func (s *Orchestrator) reopenIfDrained(ctx context.Context, orderID types.ID) {
	_, err := s.Rebroadcast(ctx, orderID)
	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrLiveBidsRemain):
		// Some bids are live but fewer than the config requires; keep waiting.
	default:
		s.logger.Warn("rebroadcast failed", zap.String("order_id", string(orderID)), zap.Error(err))
	}
}
