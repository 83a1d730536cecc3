// README: Order aggregate and status definitions.
package order

import (
	"time"

	"medbid/internal/types"
)

type Status string

const (
	StatusNone             Status = "none"
	StatusPendingBroadcast Status = "pending_broadcast"
	StatusAwaitingBids     Status = "awaiting_bids"
	StatusBidsReceived     Status = "bids_received"
	StatusAssigned         Status = "assigned"
	StatusInProgress       Status = "in_progress"
	StatusOutForDelivery   Status = "out_for_delivery"
	StatusReadyForPickup   Status = "ready_for_pickup"
	StatusCompleted        Status = "completed"
	StatusCancelled        Status = "cancelled"
)

// Requester is captured once at intake and never re-fetched.
type Requester struct {
	PatientID     types.ID `json:"patient_id"`
	PatientName   string   `json:"patient_name"`
	ClinicianID   types.ID `json:"clinician_id,omitempty"`
	ClinicianName string   `json:"clinician_name,omitempty"`
}

type PrescriptionLine struct {
	Drug     string `json:"drug"`
	Strength string `json:"strength,omitempty"`
	Quantity int    `json:"quantity"`
}

type LabTest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Payload holds the category-specific request body; exactly one side is set.
type Payload struct {
	Prescriptions []PrescriptionLine `json:"prescriptions,omitempty"`
	Tests         []LabTest          `json:"tests,omitempty"`
}

// Capabilities lists what a provider must offer to serve this payload.
func (p Payload) Capabilities() []string {
	out := make([]string, 0, len(p.Prescriptions)+len(p.Tests))
	for _, l := range p.Prescriptions {
		out = append(out, l.Drug)
	}
	for _, t := range p.Tests {
		out = append(out, t.Code)
	}
	return out
}

// Note is one immutable entry of the order's audit trail.
type Note struct {
	At    time.Time `json:"at"`
	From  Status    `json:"from"`
	To    Status    `json:"to"`
	Actor string    `json:"actor"`
	Text  string    `json:"text,omitempty"`
}

type Order struct {
	ID                 types.ID       `json:"id"`
	Category           types.Category `json:"category"`
	Status             Status         `json:"status"`
	StatusVersion      int            `json:"status_version"`
	Requester          Requester      `json:"requester"`
	Payload            Payload        `json:"payload"`
	Region             string         `json:"region,omitempty"`
	Location           types.Point    `json:"location"`
	Urgency            types.Urgency  `json:"urgency"`
	AssignedProviderID *types.ID      `json:"assigned_provider_id,omitempty"`
	Total              *types.Money   `json:"total,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	StatusChangedAt    time.Time      `json:"status_changed_at"`
	BroadcastAt        *time.Time     `json:"broadcast_at,omitempty"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
	Notes              []Note         `json:"notes"`
}

// Clone returns a deep copy so staged edits never leak into shared state.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	if o.AssignedProviderID != nil {
		v := *o.AssignedProviderID
		c.AssignedProviderID = &v
	}
	if o.Total != nil {
		v := *o.Total
		c.Total = &v
	}
	if o.BroadcastAt != nil {
		v := *o.BroadcastAt
		c.BroadcastAt = &v
	}
	if o.CompletedAt != nil {
		v := *o.CompletedAt
		c.CompletedAt = &v
	}
	c.Payload.Prescriptions = append([]PrescriptionLine(nil), o.Payload.Prescriptions...)
	c.Payload.Tests = append([]LabTest(nil), o.Payload.Tests...)
	c.Notes = append([]Note(nil), o.Notes...)
	return &c
}
