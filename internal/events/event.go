// README: Audit/notification events emitted after every order transition and bid status change.
package events

import (
	"time"

	"medbid/internal/types"
)

type Type string

const (
	TypeOrderCreated    Type = "order.created"
	TypeOrderTransition Type = "order.transition"
	TypeOrderBroadcast  Type = "order.broadcast"
	TypeBidSubmitted    Type = "bid.submitted"
	TypeBidStatus       Type = "bid.status"
)

type Event struct {
	ID      types.ID  `json:"id" bson:"_id"`
	Type    Type      `json:"type" bson:"type"`
	OrderID types.ID  `json:"order_id" bson:"order_id"`
	BidID   types.ID  `json:"bid_id,omitempty" bson:"bid_id,omitempty"`
	Actor   string    `json:"actor" bson:"actor"`
	From    string    `json:"from,omitempty" bson:"from,omitempty"`
	To      string    `json:"to,omitempty" bson:"to,omitempty"`
	Note    string    `json:"note,omitempty" bson:"note,omitempty"`
	At      time.Time `json:"at" bson:"at"`
}

// Emitter accepts events without blocking the caller.
type Emitter interface {
	Emit(evs ...Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(...Event) {}
