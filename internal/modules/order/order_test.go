// README: Order state machine tests (transition table, guards, audit trail).
package order

import (
	"errors"
	"testing"
	"time"

	"medbid/internal/types"
)

// TestCanTransition verifies the state machine transition table without a database.
func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		// happy-path forward transitions
		{StatusPendingBroadcast, StatusAwaitingBids, true},
		{StatusAwaitingBids, StatusBidsReceived, true},
		{StatusBidsReceived, StatusAssigned, true},
		{StatusAssigned, StatusInProgress, true},
		{StatusInProgress, StatusOutForDelivery, true},
		{StatusInProgress, StatusReadyForPickup, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusOutForDelivery, StatusCompleted, true},
		{StatusReadyForPickup, StatusCompleted, true},
		// cancels from every non-terminal state
		{StatusPendingBroadcast, StatusCancelled, true},
		{StatusAwaitingBids, StatusCancelled, true},
		{StatusBidsReceived, StatusCancelled, true},
		{StatusAssigned, StatusCancelled, true},
		{StatusInProgress, StatusCancelled, true},
		{StatusOutForDelivery, StatusCancelled, true},
		{StatusReadyForPickup, StatusCancelled, true},
		// invalid: terminal states have no outgoing transitions
		{StatusCompleted, StatusInProgress, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusAwaitingBids, false},
		// invalid: skipping states
		{StatusPendingBroadcast, StatusBidsReceived, false},
		{StatusAwaitingBids, StatusAssigned, false},
		{StatusBidsReceived, StatusCompleted, false},
		{StatusAssigned, StatusCompleted, false},
		{StatusOutForDelivery, StatusReadyForPickup, false},
		// invalid: backward edges, including the resubmission edge
		{StatusBidsReceived, StatusAwaitingBids, false},
		{StatusAssigned, StatusBidsReceived, false},
	}
	for _, tc := range cases {
		got := CanTransition(tc.from, tc.to)
		if got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTransitionAppendsNote(t *testing.T) {
	o := mustNewOrder(t)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := Transition(o, StatusAwaitingBids, "system", "broadcast to 3 providers", at); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if o.Status != StatusAwaitingBids {
		t.Fatalf("status = %s, want %s", o.Status, StatusAwaitingBids)
	}
	if !o.StatusChangedAt.Equal(at) {
		t.Errorf("StatusChangedAt = %v, want %v", o.StatusChangedAt, at)
	}
	if o.BroadcastAt == nil || !o.BroadcastAt.Equal(at) {
		t.Errorf("BroadcastAt = %v, want %v", o.BroadcastAt, at)
	}
	if len(o.Notes) != 1 {
		t.Fatalf("notes = %d, want 1", len(o.Notes))
	}
	n := o.Notes[0]
	if n.From != StatusPendingBroadcast || n.To != StatusAwaitingBids || n.Actor != "system" || n.Text != "broadcast to 3 providers" {
		t.Errorf("unexpected note: %+v", n)
	}
}

func TestTransitionRejectsIllegalEdge(t *testing.T) {
	o := mustNewOrder(t)
	err := Transition(o, StatusCompleted, "system", "", time.Now())
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if o.Status != StatusPendingBroadcast || len(o.Notes) != 0 {
		t.Fatalf("failed transition mutated order: %s, %d notes", o.Status, len(o.Notes))
	}
}

func TestTransitionAssignedRequiresProvider(t *testing.T) {
	o := mustNewOrder(t)
	now := time.Now()
	mustTransition(t, o, StatusAwaitingBids, now)
	mustTransition(t, o, StatusBidsReceived, now)

	if err := Transition(o, StatusAssigned, "system", "", now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("assign without provider: expected ErrInvalidTransition, got %v", err)
	}

	pid := types.ID("prov-1")
	o.AssignedProviderID = &pid
	mustTransition(t, o, StatusAssigned, now)
	if err := CheckInvariants(o); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestTransitionCompletedStampsTime(t *testing.T) {
	o := assignedOrder(t)
	done := time.Date(2026, 3, 2, 18, 30, 0, 0, time.UTC)
	mustTransition(t, o, StatusInProgress, done.Add(-time.Hour))
	mustTransition(t, o, StatusOutForDelivery, done.Add(-30*time.Minute))
	mustTransition(t, o, StatusCompleted, done)

	if o.CompletedAt == nil || !o.CompletedAt.Equal(done) {
		t.Fatalf("CompletedAt = %v, want %v", o.CompletedAt, done)
	}
	if err := CheckInvariants(o); err != nil {
		t.Fatalf("invariants: %v", err)
	}
	if err := Transition(o, StatusCancelled, "patient", "", done); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancel after complete: expected ErrInvalidTransition, got %v", err)
	}
}

func TestCancelReleasesAssignment(t *testing.T) {
	o := assignedOrder(t)
	mustTransition(t, o, StatusCancelled, time.Now())
	if o.AssignedProviderID != nil {
		t.Fatalf("expected provider released on cancel")
	}
	if err := CheckInvariants(o); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestResubmitOnlyFromBidsReceived(t *testing.T) {
	o := mustNewOrder(t)
	now := time.Now()
	if err := Resubmit(o, "system", "", now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("resubmit from pending: expected ErrInvalidTransition, got %v", err)
	}
	mustTransition(t, o, StatusAwaitingBids, now)
	mustTransition(t, o, StatusBidsReceived, now)
	if err := Resubmit(o, "system", "all bids expired", now); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if o.Status != StatusAwaitingBids {
		t.Fatalf("status = %s, want %s", o.Status, StatusAwaitingBids)
	}
	if err := CheckInvariants(o); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestCheckInvariantsDetectsMissingProvider(t *testing.T) {
	o := assignedOrder(t)
	o.AssignedProviderID = nil
	if err := CheckInvariants(o); err == nil {
		t.Fatal("expected invariant violation")
	}
}

func TestNewValidatesPayload(t *testing.T) {
	cases := []struct {
		name string
		cmd  CreateCommand
	}{
		{"unknown category", CreateCommand{Category: "dental", Requester: Requester{PatientID: "p1"}}},
		{"missing patient", CreateCommand{Category: types.CategoryLab, Payload: Payload{Tests: []LabTest{{Code: "CBC"}}}}},
		{"pharmacy without lines", CreateCommand{Category: types.CategoryPharmacy, Requester: Requester{PatientID: "p1"}}},
		{"lab with prescriptions", CreateCommand{
			Category:  types.CategoryLab,
			Requester: Requester{PatientID: "p1"},
			Payload:   Payload{Tests: []LabTest{{Code: "CBC"}}, Prescriptions: []PrescriptionLine{{Drug: "x", Quantity: 1}}},
		}},
		{"zero quantity", CreateCommand{
			Category:  types.CategoryPharmacy,
			Requester: Requester{PatientID: "p1"},
			Payload:   Payload{Prescriptions: []PrescriptionLine{{Drug: "amoxicillin", Quantity: 0}}},
		}},
		{"bad urgency", CreateCommand{
			Category:  types.CategoryLab,
			Requester: Requester{PatientID: "p1"},
			Payload:   Payload{Tests: []LabTest{{Code: "CBC"}}},
			Urgency:   "whenever",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.cmd, time.Now()); !errors.Is(err, ErrBadRequest) {
				t.Fatalf("expected ErrBadRequest, got %v", err)
			}
		})
	}
}

func TestNewDefaultsUrgency(t *testing.T) {
	o := mustNewOrder(t)
	if o.Urgency != types.UrgencyNormal {
		t.Fatalf("urgency = %s, want normal", o.Urgency)
	}
	if o.Status != StatusPendingBroadcast {
		t.Fatalf("status = %s, want pending_broadcast", o.Status)
	}
	if got := o.Payload.Capabilities(); len(got) != 1 || got[0] != "amoxicillin" {
		t.Fatalf("capabilities = %v", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	o := assignedOrder(t)
	c := o.Clone()
	*c.AssignedProviderID = "other"
	c.Notes[0].Text = "edited"
	c.Payload.Prescriptions[0].Drug = "edited"
	if *o.AssignedProviderID == "other" || o.Notes[0].Text == "edited" || o.Payload.Prescriptions[0].Drug == "edited" {
		t.Fatal("clone shares memory with original")
	}
}

func mustNewOrder(t *testing.T) *Order {
	t.Helper()
	o, err := New(CreateCommand{
		Category:  types.CategoryPharmacy,
		Requester: Requester{PatientID: "patient-1", PatientName: "Ada", ClinicianID: "dr-1"},
		Payload:   Payload{Prescriptions: []PrescriptionLine{{Drug: "amoxicillin", Strength: "500mg", Quantity: 30}}},
		Region:    "north",
	}, time.Now())
	if err != nil {
		t.Fatalf("new order: %v", err)
	}
	return o
}

func mustTransition(t *testing.T, o *Order, to Status, at time.Time) {
	t.Helper()
	if err := Transition(o, to, "test", "", at); err != nil {
		t.Fatalf("transition %s -> %s: %v", o.Status, to, err)
	}
}

func assignedOrder(t *testing.T) *Order {
	t.Helper()
	o := mustNewOrder(t)
	now := time.Now()
	mustTransition(t, o, StatusAwaitingBids, now)
	mustTransition(t, o, StatusBidsReceived, now)
	pid := types.ID("prov-1")
	o.AssignedProviderID = &pid
	mustTransition(t, o, StatusAssigned, now)
	return o
}
