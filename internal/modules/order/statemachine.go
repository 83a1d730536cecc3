// README: Order state machine: transition table, guards and audit notes.
package order

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrNotFound          = errors.New("order not found")
	ErrConflict          = errors.New("order state conflict")
	ErrBadRequest        = errors.New("bad request")
)

// AllowedTransitions represents the order state flow (diagram) as code.
var AllowedTransitions = map[Status][]Status{
	StatusPendingBroadcast: {StatusAwaitingBids, StatusCancelled},
	StatusAwaitingBids:     {StatusBidsReceived, StatusCancelled},
	StatusBidsReceived:     {StatusAssigned, StatusCancelled},
	StatusAssigned:         {StatusInProgress, StatusCancelled},
	StatusInProgress:       {StatusOutForDelivery, StatusReadyForPickup, StatusCompleted, StatusCancelled},
	StatusOutForDelivery:   {StatusCompleted, StatusCancelled},
	StatusReadyForPickup:   {StatusCompleted, StatusCancelled},
}

// resubmissionTransitions are the only backward edges. They are not part of
// AllowedTransitions and are reachable through Resubmit alone.
var resubmissionTransitions = map[Status][]Status{
	StatusBidsReceived: {StatusAwaitingBids},
}

func CanTransition(from, to Status) bool {
	return contains(AllowedTransitions[from], to)
}

func canResubmit(from, to Status) bool {
	return contains(resubmissionTransitions[from], to)
}

func contains(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// HoldsAssignment reports whether an order in this status must carry an assigned provider.
func (s Status) HoldsAssignment() bool {
	switch s {
	case StatusAssigned, StatusInProgress, StatusOutForDelivery, StatusReadyForPickup, StatusCompleted:
		return true
	}
	return false
}

// AcceptsBids reports whether providers may still submit bids.
func (s Status) AcceptsBids() bool {
	switch s {
	case StatusPendingBroadcast, StatusAwaitingBids, StatusBidsReceived:
		return true
	}
	return false
}

// Transition moves o to the given status, appending the audit note.
// Reaching assigned requires AssignedProviderID to be set by the caller first.
func Transition(o *Order, to Status, actor, text string, at time.Time) error {
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	if to == StatusAssigned && o.AssignedProviderID == nil {
		return fmt.Errorf("%w: %s -> %s without assigned provider", ErrInvalidTransition, o.Status, to)
	}
	apply(o, to, actor, text, at)
	return nil
}

// Resubmit reopens bidding on an order whose bids all went terminal.
func Resubmit(o *Order, actor, text string, at time.Time) error {
	if !canResubmit(o.Status, StatusAwaitingBids) {
		return fmt.Errorf("%w: resubmit from %s", ErrInvalidTransition, o.Status)
	}
	apply(o, StatusAwaitingBids, actor, text, at)
	return nil
}

func apply(o *Order, to Status, actor, text string, at time.Time) {
	from := o.Status
	o.Status = to
	o.StatusChangedAt = at
	o.Notes = append(o.Notes, Note{At: at, From: from, To: to, Actor: actor, Text: text})

	switch to {
	case StatusAwaitingBids:
		t := at
		o.BroadcastAt = &t
	case StatusCompleted:
		t := at
		o.CompletedAt = &t
	case StatusCancelled:
		// Releasing keeps the assignment invariant; the accepted bid stays on record.
		o.AssignedProviderID = nil
	}
}

// CheckInvariants validates the assignment invariant and the audit trail.
func CheckInvariants(o *Order) error {
	if o.Status.HoldsAssignment() != (o.AssignedProviderID != nil) {
		return fmt.Errorf("order %s: status %s with assigned provider set=%v", o.ID, o.Status, o.AssignedProviderID != nil)
	}
	prev := StatusPendingBroadcast
	assigned := false
	for i, n := range o.Notes {
		if n.From != prev {
			return fmt.Errorf("order %s: note %d starts at %s, want %s", o.ID, i, n.From, prev)
		}
		if !CanTransition(n.From, n.To) && !canResubmit(n.From, n.To) {
			return fmt.Errorf("order %s: note %d records illegal edge %s -> %s", o.ID, i, n.From, n.To)
		}
		if n.To == StatusAssigned {
			assigned = true
		}
		if n.To == StatusCompleted && !assigned {
			return fmt.Errorf("order %s: completed without passing assigned", o.ID)
		}
		prev = n.To
	}
	if len(o.Notes) > 0 && prev != o.Status {
		return fmt.Errorf("order %s: audit trail ends at %s but status is %s", o.ID, prev, o.Status)
	}
	return nil
}
