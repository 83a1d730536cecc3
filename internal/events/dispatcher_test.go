package events

import (
	"context"
	"errors"
	"testing"
)

type failingSink struct{ calls int }

func (f *failingSink) Name() string { return "failing" }

func (f *failingSink) Write(context.Context, []Event) error {
	f.calls++
	return errors.New("boom")
}

func TestDispatcherDeliversToAllSinks(t *testing.T) {
	mem := &MemorySink{}
	bad := &failingSink{}
	d := NewDispatcher(16, nil, bad, mem)
	go d.Run(context.Background())

	d.Emit(
		Event{Type: TypeOrderTransition, OrderID: "o1", From: "pending_broadcast", To: "awaiting_bids"},
		Event{Type: TypeBidStatus, OrderID: "o1", BidID: "b1", From: "submitted", To: "accepted"},
	)
	d.Close()

	got := mem.Events()
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	for _, ev := range got {
		if ev.ID == "" || ev.At.IsZero() {
			t.Fatalf("event missing id or timestamp: %+v", ev)
		}
	}
	if bad.calls == 0 {
		t.Fatal("failing sink was never called")
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	mem := &MemorySink{}
	d := NewDispatcher(1, nil, mem)

	// Run is not started, so only one event fits.
	d.Emit(Event{Type: TypeOrderCreated, OrderID: "o1"}, Event{Type: TypeOrderCreated, OrderID: "o2"})
	if d.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", d.Dropped())
	}

	go d.Run(context.Background())
	d.Close()
	if len(mem.Events()) != 1 {
		t.Fatalf("expected buffered event delivered on close, got %d", len(mem.Events()))
	}
}

func TestEmitAfterCloseIsIgnored(t *testing.T) {
	d := NewDispatcher(4, nil)
	go d.Run(context.Background())
	d.Close()
	d.Emit(Event{Type: TypeOrderCreated})
	d.Close()
}
