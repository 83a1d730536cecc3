// README: Bid handlers for submit, list and respond.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"medbid/internal/http/middleware"
	"medbid/internal/modules/assignment"
	"medbid/internal/modules/ledger"
	"medbid/internal/types"
)

type BidHandler struct {
	orders *assignment.Orchestrator
}

func NewBidHandler(orch *assignment.Orchestrator) *BidHandler {
	return &BidHandler{orders: orch}
}

type submitBidReq struct {
	ProviderID      string     `json:"provider_id"`
	Amount          string     `json:"amount"`
	Currency        string     `json:"currency"`
	Window          string     `json:"window"`
	TurnaroundHours float64    `json:"turnaround_hours"`
	Note            string     `json:"note"`
	ValidUntil      *time.Time `json:"valid_until"`
}

func (h *BidHandler) Submit(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req submitBidReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if !isValidID(req.ProviderID) {
		writeError(c, http.StatusBadRequest, "provider_id is required")
		return
	}
	amount, err := types.NewMoney(req.Amount, req.Currency)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid amount")
		return
	}
	b, err := h.orders.SubmitBid(c.Request.Context(), ledger.SubmitCommand{
		OrderID:    types.ID(orderID),
		ProviderID: types.ID(req.ProviderID),
		Amount:     amount,
		Estimate:   ledger.Estimate{Window: req.Window, TurnaroundHours: req.TurnaroundHours},
		Note:       req.Note,
		ValidUntil: req.ValidUntil,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, b)
}

func (h *BidHandler) List(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}
	bids, err := h.orders.ListBids(c.Request.Context(), types.ID(orderID))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"bids": bids})
}

type respondReq struct {
	Accept *bool  `json:"accept"`
	Note   string `json:"note"`
}

func (h *BidHandler) Respond(c *gin.Context) {
	bidID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req respondReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Accept == nil {
		writeError(c, http.StatusBadRequest, "accept is required")
		return
	}
	err := h.orders.RespondBid(c.Request.Context(), ledger.RespondCommand{
		BidID:  types.ID(bidID),
		Accept: *req.Accept,
		Actor:  middleware.CallerID(c),
		Note:   req.Note,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	status := ledger.BidRejected
	if *req.Accept {
		status = ledger.BidAccepted
	}
	writeJSON(c, http.StatusOK, gin.H{"bid_id": bidID, "status": status})
}
