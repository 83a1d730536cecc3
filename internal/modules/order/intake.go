// README: Order intake validation; builds new orders in pending_broadcast.
package order

import (
	"fmt"
	"time"

	"medbid/internal/types"
)

type CreateCommand struct {
	Category  types.Category
	Requester Requester
	Payload   Payload
	Region    string
	Location  types.Point
	Urgency   types.Urgency
}

func New(cmd CreateCommand, now time.Time) (*Order, error) {
	if !cmd.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrBadRequest, cmd.Category)
	}
	if cmd.Requester.PatientID == "" {
		return nil, fmt.Errorf("%w: patient id is required", ErrBadRequest)
	}
	switch cmd.Category {
	case types.CategoryPharmacy:
		if len(cmd.Payload.Prescriptions) == 0 || len(cmd.Payload.Tests) > 0 {
			return nil, fmt.Errorf("%w: pharmacy orders carry prescription lines only", ErrBadRequest)
		}
		for _, l := range cmd.Payload.Prescriptions {
			if l.Drug == "" || l.Quantity <= 0 {
				return nil, fmt.Errorf("%w: prescription line needs drug and positive quantity", ErrBadRequest)
			}
		}
	case types.CategoryLab:
		if len(cmd.Payload.Tests) == 0 || len(cmd.Payload.Prescriptions) > 0 {
			return nil, fmt.Errorf("%w: lab orders carry tests only", ErrBadRequest)
		}
		for _, t := range cmd.Payload.Tests {
			if t.Code == "" {
				return nil, fmt.Errorf("%w: lab test code is required", ErrBadRequest)
			}
		}
	}
	urgency := cmd.Urgency
	if urgency == "" {
		urgency = types.UrgencyNormal
	}
	if !urgency.Valid() {
		return nil, fmt.Errorf("%w: unknown urgency %q", ErrBadRequest, cmd.Urgency)
	}

	o := &Order{
		ID:              types.NewID(),
		Category:        cmd.Category,
		Status:          StatusPendingBroadcast,
		StatusVersion:   0,
		Requester:       cmd.Requester,
		Payload:         cmd.Payload,
		Region:          cmd.Region,
		Location:        cmd.Location,
		Urgency:         urgency,
		CreatedAt:       now,
		StatusChangedAt: now,
	}
	return o.Clone(), nil
}
