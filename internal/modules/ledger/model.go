// README: Bid model, estimate buckets and liveness.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"medbid/internal/modules/provider"
	"medbid/internal/types"
)

type BidStatus string

const (
	BidSubmitted BidStatus = "submitted"
	BidAccepted  BidStatus = "accepted"
	BidRejected  BidStatus = "rejected"
	BidExpired   BidStatus = "expired"
)

// Pharmacy delivery windows.
const (
	WindowExpress  = "express"
	WindowSameDay  = "same_day"
	WindowNextDay  = "next_day"
	WindowTwoDay   = "two_day"
	WindowStandard = "standard"
)

var windowHours = map[string]float64{
	WindowExpress:  2,
	WindowSameDay:  12,
	WindowNextDay:  24,
	WindowTwoDay:   48,
	WindowStandard: 72,
}

// Estimate is a delivery window bucket for pharmacy bids or turnaround hours for lab bids.
type Estimate struct {
	Window          string  `json:"window,omitempty"`
	TurnaroundHours float64 `json:"turnaround_hours,omitempty"`
}

// Hours converts the estimate to hours; ok is false when nothing usable was given.
func (e Estimate) Hours() (float64, bool) {
	if e.Window != "" {
		h, ok := windowHours[e.Window]
		return h, ok
	}
	if e.TurnaroundHours > 0 {
		return e.TurnaroundHours, true
	}
	return 0, false
}

func KnownWindow(w string) bool {
	_, ok := windowHours[w]
	return ok
}

// ValidFor checks the estimate is in the form category c quotes in: a known window
// for pharmacy, positive turnaround hours for lab.
func (e Estimate) ValidFor(c types.Category) error {
	switch c {
	case types.CategoryPharmacy:
		if e.TurnaroundHours != 0 {
			return errors.New("pharmacy bids quote a delivery window, not turnaround hours")
		}
		if e.Window == "" {
			return errors.New("delivery window is required")
		}
		if !KnownWindow(e.Window) {
			return fmt.Errorf("unknown delivery window %q", e.Window)
		}
	case types.CategoryLab:
		if e.Window != "" {
			return errors.New("lab bids quote turnaround hours, not a delivery window")
		}
		if e.TurnaroundHours <= 0 {
			return errors.New("turnaround hours must be positive")
		}
	default:
		return fmt.Errorf("unknown category %q", c)
	}
	return nil
}

type Bid struct {
	ID           types.ID          `json:"id"`
	OrderID      types.ID          `json:"order_id"`
	ProviderID   types.ID          `json:"provider_id"`
	Amount       types.Money       `json:"amount"`
	Estimate     Estimate          `json:"estimate"`
	Note         string            `json:"note,omitempty"`
	ResponseNote string            `json:"response_note,omitempty"`
	ValidUntil   *time.Time        `json:"valid_until,omitempty"`
	Status       BidStatus         `json:"status"`
	Quality      *provider.Quality `json:"quality,omitempty"`
	SubmittedAt  time.Time         `json:"submitted_at"`
	RespondedAt  *time.Time        `json:"responded_at,omitempty"`
}

// IsLive reports whether b can still be scored or accepted at now.
func IsLive(b *Bid, now time.Time) bool {
	return b.Status == BidSubmitted && !b.pastDeadline(now)
}

func (b *Bid) pastDeadline(now time.Time) bool {
	return b.ValidUntil != nil && !now.Before(*b.ValidUntil)
}

func (b *Bid) Clone() *Bid {
	c := *b
	if b.ValidUntil != nil {
		v := *b.ValidUntil
		c.ValidUntil = &v
	}
	if b.Quality != nil {
		v := *b.Quality
		c.Quality = &v
	}
	if b.RespondedAt != nil {
		v := *b.RespondedAt
		c.RespondedAt = &v
	}
	return &c
}
