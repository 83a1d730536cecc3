package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"medbid/internal/events"
	"medbid/internal/modules/order"
	"medbid/internal/modules/provider"
	"medbid/internal/types"
)

type fixture struct {
	ledger *Ledger
	store  *MemoryStore
	dir    *provider.MemoryDirectory
	rec    *events.Recorder
	clock  *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	f := &fixture{
		store: NewMemoryStore(),
		dir: provider.NewMemoryDirectory(
			openProvider("pharm-a", types.CategoryPharmacy),
			openProvider("pharm-b", types.CategoryPharmacy),
			openProvider("pharm-c", types.CategoryPharmacy),
			openProvider("lab-a", types.CategoryLab),
		),
		rec:   &events.Recorder{},
		clock: &now,
	}
	f.ledger = New(f.store, f.dir, f.rec, nil).WithClock(func() time.Time { return *f.clock })
	return f
}

func (f *fixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func openProvider(id types.ID, c types.Category) *provider.Provider {
	return &provider.Provider{
		ID: id, Category: c, Active: true, AcceptingOrders: true, CapacityMax: 10,
		Rating: 4.2, RatingCount: 120, SLACompliance: 93, QualityGrade: "A-",
	}
}

func (f *fixture) newOrder(t *testing.T) *order.Order {
	t.Helper()
	o, err := order.New(order.CreateCommand{
		Category:  types.CategoryPharmacy,
		Requester: order.Requester{PatientID: "patient-1"},
		Payload:   order.Payload{Prescriptions: []order.PrescriptionLine{{Drug: "metformin", Quantity: 60}}},
		Region:    "north",
	}, *f.clock)
	if err != nil {
		t.Fatalf("new order: %v", err)
	}
	if err := f.ledger.CreateOrder(context.Background(), o); err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

func (f *fixture) submit(t *testing.T, orderID, providerID types.ID, amount string, validFor time.Duration) *Bid {
	t.Helper()
	cmd := SubmitCommand{
		OrderID:    orderID,
		ProviderID: providerID,
		Amount:     types.MustMoney(amount),
		Estimate:   Estimate{Window: WindowSameDay},
	}
	if validFor > 0 {
		until := f.clock.Add(validFor)
		cmd.ValidUntil = &until
	}
	b, err := f.ledger.Submit(context.Background(), cmd)
	if err != nil {
		t.Fatalf("submit %s: %v", providerID, err)
	}
	return b
}

func (f *fixture) order(t *testing.T, id types.ID) *order.Order {
	t.Helper()
	o, err := f.store.GetOrder(context.Background(), id)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	return o
}

func (f *fixture) bid(t *testing.T, id types.ID) *Bid {
	t.Helper()
	b, err := f.store.GetBid(context.Background(), id)
	if err != nil {
		t.Fatalf("get bid: %v", err)
	}
	return b
}

func TestSubmitFirstBidWalksToBidsReceived(t *testing.T) {
	f := newFixture(t)
	o := f.newOrder(t)

	b := f.submit(t, o.ID, "pharm-a", "40.00", 0)
	if b.Status != BidSubmitted || b.Quality == nil || b.Quality.Grade != "A-" {
		t.Fatalf("unexpected bid: %+v", b)
	}

	got := f.order(t, o.ID)
	if got.Status != order.StatusBidsReceived {
		t.Fatalf("status = %s, want bids_received", got.Status)
	}
	if len(got.Notes) != 2 || got.Notes[0].To != order.StatusAwaitingBids || got.Notes[1].To != order.StatusBidsReceived {
		t.Fatalf("unexpected audit trail: %+v", got.Notes)
	}
	if got.BroadcastAt == nil {
		t.Fatal("broadcast_at not stamped on walk through awaiting_bids")
	}
	if err := order.CheckInvariants(got); err != nil {
		t.Fatalf("invariants: %v", err)
	}

	f.submit(t, o.ID, "pharm-b", "35.00", 0)
	if got := f.order(t, o.ID); len(got.Notes) != 2 || got.StatusVersion != 1 {
		t.Fatalf("second bid changed order: notes=%d version=%d", len(got.Notes), got.StatusVersion)
	}
}

func TestSubmitFreezesQualitySnapshot(t *testing.T) {
	f := newFixture(t)
	o := f.newOrder(t)
	b := f.submit(t, o.ID, "pharm-a", "40.00", 0)

	_ = f.dir.Update(context.Background(), "pharm-a", func(p *provider.Provider) { p.Rating = 1.0; p.QualityGrade = "F" })
	stored := f.bid(t, b.ID)
	if stored.Quality.Rating != 4.2 || stored.Quality.Grade != "A-" {
		t.Fatalf("snapshot changed with provider profile: %+v", stored.Quality)
	}
}

func TestSubmitRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t)
	f.submit(t, o.ID, "pharm-a", "40.00", 0)

	past := f.clock.Add(-time.Minute)
	est := Estimate{Window: WindowSameDay}
	eur, _ := types.NewMoney("30", "EUR")
	cases := []struct {
		name string
		cmd  SubmitCommand
		want error
	}{
		{"duplicate provider", SubmitCommand{OrderID: o.ID, ProviderID: "pharm-a", Amount: types.MustMoney("30"), Estimate: est}, ErrDuplicateBid},
		{"category mismatch", SubmitCommand{OrderID: o.ID, ProviderID: "lab-a", Amount: types.MustMoney("30"), Estimate: est}, ErrProviderUnavailable},
		{"unknown provider", SubmitCommand{OrderID: o.ID, ProviderID: "ghost", Amount: types.MustMoney("30"), Estimate: est}, ErrProviderUnavailable},
		{"zero amount", SubmitCommand{OrderID: o.ID, ProviderID: "pharm-b", Amount: types.MustMoney("0"), Estimate: est}, ErrInvalidBid},
		{"sub-cent amount", SubmitCommand{OrderID: o.ID, ProviderID: "pharm-b", Amount: types.MustMoney("30.005"), Estimate: est}, ErrInvalidBid},
		{"other currency", SubmitCommand{OrderID: o.ID, ProviderID: "pharm-b", Amount: eur, Estimate: est}, ErrInvalidBid},
		{"deadline in past", SubmitCommand{OrderID: o.ID, ProviderID: "pharm-b", Amount: types.MustMoney("30"), Estimate: est, ValidUntil: &past}, ErrInvalidBid},
		{"unknown window", SubmitCommand{OrderID: o.ID, ProviderID: "pharm-b", Amount: types.MustMoney("30"), Estimate: Estimate{Window: "someday"}}, ErrInvalidBid},
		{"missing estimate", SubmitCommand{OrderID: o.ID, ProviderID: "pharm-b", Amount: types.MustMoney("30")}, ErrInvalidBid},
		{"turnaround on pharmacy order", SubmitCommand{OrderID: o.ID, ProviderID: "pharm-b", Amount: types.MustMoney("30"), Estimate: Estimate{TurnaroundHours: 4}}, ErrInvalidBid},
		{"window and turnaround", SubmitCommand{OrderID: o.ID, ProviderID: "pharm-b", Amount: types.MustMoney("30"), Estimate: Estimate{Window: WindowExpress, TurnaroundHours: 4}}, ErrInvalidBid},
		{"missing order", SubmitCommand{OrderID: "nope", ProviderID: "pharm-b", Amount: types.MustMoney("30"), Estimate: est}, order.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.ledger.Submit(ctx, tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	_ = f.dir.Update(ctx, "pharm-c", func(p *provider.Provider) { p.AcceptingOrders = false })
	if _, err := f.ledger.Submit(ctx, SubmitCommand{OrderID: o.ID, ProviderID: "pharm-c", Amount: types.MustMoney("30"), Estimate: est}); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("paused provider: expected ErrProviderUnavailable, got %v", err)
	}
	if bids, _ := f.store.ListBids(ctx, o.ID); len(bids) != 1 {
		t.Fatalf("rejected submissions left %d bids, want 1", len(bids))
	}
}

func TestSubmitLabBidsQuoteTurnaround(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := order.New(order.CreateCommand{
		Category:  types.CategoryLab,
		Requester: order.Requester{PatientID: "patient-2"},
		Payload:   order.Payload{Tests: []order.LabTest{{Code: "CBC", Name: "Complete blood count"}}},
		Region:    "north",
	}, *f.clock)
	if err != nil {
		t.Fatalf("new order: %v", err)
	}
	if err := f.ledger.CreateOrder(ctx, o); err != nil {
		t.Fatalf("create order: %v", err)
	}

	for name, est := range map[string]Estimate{
		"pharmacy window":     {Window: WindowExpress},
		"missing estimate":    {},
		"negative turnaround": {TurnaroundHours: -2},
	} {
		if _, err := f.ledger.Submit(ctx, SubmitCommand{OrderID: o.ID, ProviderID: "lab-a", Amount: types.MustMoney("80"), Estimate: est}); !errors.Is(err, ErrInvalidBid) {
			t.Fatalf("%s: expected ErrInvalidBid, got %v", name, err)
		}
	}
	b, err := f.ledger.Submit(ctx, SubmitCommand{OrderID: o.ID, ProviderID: "lab-a", Amount: types.MustMoney("80"), Estimate: Estimate{TurnaroundHours: 6}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if h, ok := b.Estimate.Hours(); !ok || h != 6 {
		t.Fatalf("estimate hours = %v, %v", h, ok)
	}
}

func TestSubmitAfterAssignmentRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t)
	b := f.submit(t, o.ID, "pharm-a", "40.00", 0)
	if err := f.ledger.Award(ctx, AwardCommand{OrderID: o.ID, BidID: b.ID}); err != nil {
		t.Fatalf("award: %v", err)
	}
	_, err := f.ledger.Submit(ctx, SubmitCommand{OrderID: o.ID, ProviderID: "pharm-b", Amount: types.MustMoney("30"), Estimate: Estimate{Window: WindowSameDay}})
	if !errors.Is(err, ErrOrderNotAcceptingBids) {
		t.Fatalf("expected ErrOrderNotAcceptingBids, got %v", err)
	}
}

func TestAwardAcceptsWinnerAndRejectsSiblings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t)
	a := f.submit(t, o.ID, "pharm-a", "40.00", 0)
	b := f.submit(t, o.ID, "pharm-b", "30.00", 0)
	c := f.submit(t, o.ID, "pharm-c", "35.00", 0)
	if err := f.ledger.Respond(ctx, RespondCommand{BidID: c.ID, Accept: false, Actor: "pharmacist"}); err != nil {
		t.Fatalf("reject: %v", err)
	}

	f.advance(time.Minute)
	if err := f.ledger.Award(ctx, AwardCommand{OrderID: o.ID, BidID: b.ID, Actor: "system"}); err != nil {
		t.Fatalf("award: %v", err)
	}

	if got := f.bid(t, b.ID); got.Status != BidAccepted || got.RespondedAt == nil || !got.RespondedAt.Equal(*f.clock) {
		t.Fatalf("winner not accepted: %+v", got)
	}
	if got := f.bid(t, a.ID); got.Status != BidRejected {
		t.Fatalf("sibling status = %s, want rejected", got.Status)
	}
	if got := f.bid(t, c.ID); got.Status != BidRejected || got.ResponseNote != "" {
		t.Fatalf("previously rejected bid changed: %+v", got)
	}

	got := f.order(t, o.ID)
	if got.Status != order.StatusAssigned || got.AssignedProviderID == nil || *got.AssignedProviderID != "pharm-b" {
		t.Fatalf("order not assigned to pharm-b: %+v", got)
	}
	if got.Total == nil || got.Total.String() != "30.00 USD" {
		t.Fatalf("total = %v, want 30.00 USD", got.Total)
	}
	if err := order.CheckInvariants(got); err != nil {
		t.Fatalf("invariants: %v", err)
	}

	if err := f.ledger.Award(ctx, AwardCommand{OrderID: o.ID, BidID: a.ID}); !errors.Is(err, ErrOrderAlreadyAssigned) {
		t.Fatalf("second award: expected ErrOrderAlreadyAssigned, got %v", err)
	}
}

func TestAwardProviderWithdrewIsStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t)
	b := f.submit(t, o.ID, "pharm-a", "40.00", 0)

	_ = f.dir.Update(ctx, "pharm-a", func(p *provider.Provider) { p.AcceptingOrders = false })

	err := f.ledger.Award(ctx, AwardCommand{OrderID: o.ID, BidID: b.ID})
	if !errors.Is(err, ErrStaleBid) || !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrStaleBid wrapping ErrProviderUnavailable, got %v", err)
	}
	if got := f.order(t, o.ID); got.Status != order.StatusBidsReceived || got.AssignedProviderID != nil {
		t.Fatalf("order changed after failed award: %s", got.Status)
	}
	if got := f.bid(t, b.ID); got.Status != BidSubmitted {
		t.Fatalf("bid changed after failed award: %s", got.Status)
	}
}

func TestAwardExpiredBidIsStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t)
	b := f.submit(t, o.ID, "pharm-a", "40.00", time.Hour)
	f.advance(2 * time.Hour)

	err := f.ledger.Award(ctx, AwardCommand{OrderID: o.ID, BidID: b.ID})
	if !errors.Is(err, ErrStaleBid) || !errors.Is(err, ErrBidExpired) {
		t.Fatalf("expected ErrStaleBid wrapping ErrBidExpired, got %v", err)
	}
}

func TestAwardCapacityFullIsStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t)
	b := f.submit(t, o.ID, "pharm-a", "40.00", 0)
	_ = f.dir.Update(ctx, "pharm-a", func(p *provider.Provider) { p.CapacityCurrent = p.CapacityMax })

	if err := f.ledger.Award(ctx, AwardCommand{OrderID: o.ID, BidID: b.ID}); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestRespondGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t)
	a := f.submit(t, o.ID, "pharm-a", "40.00", time.Hour)
	b := f.submit(t, o.ID, "pharm-b", "30.00", 0)

	if err := f.ledger.Respond(ctx, RespondCommand{BidID: b.ID, Accept: false}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if err := f.ledger.Respond(ctx, RespondCommand{BidID: b.ID, Accept: true}); !errors.Is(err, ErrBidNotPending) {
		t.Fatalf("respond twice: expected ErrBidNotPending, got %v", err)
	}
	if got := f.order(t, o.ID); got.Status != order.StatusBidsReceived {
		t.Fatalf("reject changed order status to %s", got.Status)
	}

	f.advance(time.Hour)
	if err := f.ledger.Respond(ctx, RespondCommand{BidID: a.ID, Accept: true}); !errors.Is(err, ErrBidExpired) {
		t.Fatalf("respond past deadline: expected ErrBidExpired, got %v", err)
	}
	if err := f.ledger.Respond(ctx, RespondCommand{BidID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRespondAcceptAwards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t)
	b := f.submit(t, o.ID, "pharm-a", "40.00", 0)
	if err := f.ledger.Respond(ctx, RespondCommand{BidID: b.ID, Accept: true, Actor: "clinician", Note: "preferred pharmacy"}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	got := f.order(t, o.ID)
	if got.Status != order.StatusAssigned {
		t.Fatalf("status = %s, want assigned", got.Status)
	}
	if last := got.Notes[len(got.Notes)-1]; last.Actor != "clinician" {
		t.Fatalf("award note actor = %q", last.Actor)
	}
}

func TestRespondAcceptLosingToSiblingAward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t)
	a := f.submit(t, o.ID, "pharm-a", "40.00", 0)
	b := f.submit(t, o.ID, "pharm-b", "30.00", 0)
	if err := f.ledger.Award(ctx, AwardCommand{OrderID: o.ID, BidID: b.ID}); err != nil {
		t.Fatalf("award: %v", err)
	}

	err := f.ledger.Respond(ctx, RespondCommand{BidID: a.ID, Accept: true, Actor: "clinician"})
	if !errors.Is(err, ErrOrderAlreadyAssigned) {
		t.Fatalf("expected ErrOrderAlreadyAssigned, got %v", err)
	}
	if err := f.ledger.Respond(ctx, RespondCommand{BidID: a.ID, Accept: false}); !errors.Is(err, ErrBidNotPending) {
		t.Fatalf("reject after award: expected ErrBidNotPending, got %v", err)
	}
}

func TestExpireStaleIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t)
	short := f.submit(t, o.ID, "pharm-a", "40.00", time.Minute)
	forever := f.submit(t, o.ID, "pharm-b", "30.00", 0)
	long := f.submit(t, o.ID, "pharm-c", "35.00", 24*time.Hour)

	f.advance(time.Minute)
	expired, err := f.ledger.ExpireStale(ctx)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != short.ID {
		t.Fatalf("expected only %s expired, got %v", short.ID, expired)
	}
	again, err := f.ledger.ExpireStale(ctx)
	if err != nil || len(again) != 0 {
		t.Fatalf("second run: %v, %d bids", err, len(again))
	}
	if f.bid(t, forever.ID).Status != BidSubmitted || f.bid(t, long.ID).Status != BidSubmitted {
		t.Fatal("live bids expired")
	}
}

func TestCancelRetiresBidsAndReleasesProvider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t)
	a := f.submit(t, o.ID, "pharm-a", "40.00", time.Minute)
	b := f.submit(t, o.ID, "pharm-b", "30.00", 0)
	f.advance(2 * time.Minute)

	got, err := f.ledger.Cancel(ctx, CancelCommand{OrderID: o.ID, Actor: "patient", Reason: "no longer needed"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != order.StatusCancelled {
		t.Fatalf("status = %s", got.Status)
	}
	if f.bid(t, a.ID).Status != BidExpired {
		t.Fatalf("past-deadline bid should expire on cancel")
	}
	if f.bid(t, b.ID).Status != BidRejected {
		t.Fatalf("live bid should be rejected on cancel")
	}
	if _, err := f.ledger.Cancel(ctx, CancelCommand{OrderID: o.ID, Actor: "patient"}); !errors.Is(err, order.ErrInvalidTransition) {
		t.Fatalf("cancel twice: expected ErrInvalidTransition, got %v", err)
	}
}

func TestCancelAssignedRecordsRelease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t)
	b := f.submit(t, o.ID, "pharm-a", "40.00", 0)
	if err := f.ledger.Award(ctx, AwardCommand{OrderID: o.ID, BidID: b.ID}); err != nil {
		t.Fatalf("award: %v", err)
	}
	got, err := f.ledger.Cancel(ctx, CancelCommand{OrderID: o.ID, Actor: "clinician", Reason: "duplicate"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.AssignedProviderID != nil {
		t.Fatal("provider not released")
	}
	if last := got.Notes[len(got.Notes)-1]; last.Text != "duplicate (released provider pharm-a)" {
		t.Fatalf("release not recorded: %q", last.Text)
	}
	if f.bid(t, b.ID).Status != BidAccepted {
		t.Fatal("accepted bid must stay on record")
	}
}

func TestAdvanceFulfilment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t)
	b := f.submit(t, o.ID, "pharm-a", "40.00", 0)

	if _, err := f.ledger.Advance(ctx, AdvanceCommand{OrderID: o.ID, To: order.StatusInProgress}); !errors.Is(err, order.ErrInvalidTransition) {
		t.Fatalf("advance before award: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := f.ledger.Advance(ctx, AdvanceCommand{OrderID: o.ID, To: order.StatusAssigned}); !errors.Is(err, order.ErrInvalidTransition) {
		t.Fatalf("advance to assigned: expected ErrInvalidTransition, got %v", err)
	}
	if err := f.ledger.Award(ctx, AwardCommand{OrderID: o.ID, BidID: b.ID}); err != nil {
		t.Fatalf("award: %v", err)
	}
	for _, to := range []order.Status{order.StatusInProgress, order.StatusReadyForPickup, order.StatusCompleted} {
		if _, err := f.ledger.Advance(ctx, AdvanceCommand{OrderID: o.ID, To: to, Actor: "pharm-a"}); err != nil {
			t.Fatalf("advance to %s: %v", to, err)
		}
	}
	got := f.order(t, o.ID)
	if got.CompletedAt == nil || got.AssignedProviderID == nil {
		t.Fatalf("completed order missing stamps: %+v", got)
	}
	if err := order.CheckInvariants(got); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestReopenRequiresNoLiveBids(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t)
	f.submit(t, o.ID, "pharm-a", "40.00", time.Minute)

	if _, err := f.ledger.Reopen(ctx, o.ID, "system", "retry"); !errors.Is(err, ErrLiveBidsRemain) {
		t.Fatalf("expected ErrLiveBidsRemain, got %v", err)
	}
	f.advance(time.Minute)
	got, err := f.ledger.Reopen(ctx, o.ID, "system", "all bids expired")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got.Status != order.StatusAwaitingBids {
		t.Fatalf("status = %s, want awaiting_bids", got.Status)
	}
	if err := order.CheckInvariants(got); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestEventsEmittedAfterCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t)
	b := f.submit(t, o.ID, "pharm-a", "40.00", 0)
	if err := f.ledger.Award(ctx, AwardCommand{OrderID: o.ID, BidID: b.ID}); err != nil {
		t.Fatalf("award: %v", err)
	}

	var kinds []string
	for _, ev := range f.rec.Events() {
		kinds = append(kinds, string(ev.Type)+":"+ev.To)
	}
	want := []string{
		"order.created:pending_broadcast",
		"bid.submitted:submitted",
		"order.transition:awaiting_bids",
		"order.transition:bids_received",
		"bid.status:accepted",
		"order.transition:assigned",
	}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("events = %v, want %v", kinds, want)
		}
	}

	before := len(f.rec.Events())
	_ = f.ledger.Award(ctx, AwardCommand{OrderID: o.ID, BidID: b.ID})
	if len(f.rec.Events()) != before {
		t.Fatal("failed award emitted events")
	}
}
