// README: Order handlers: intake, broadcast, evaluation, award, fulfilment and cancel.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"medbid/internal/http/middleware"
	"medbid/internal/modules/assignment"
	"medbid/internal/modules/ledger"
	"medbid/internal/modules/order"
	"medbid/internal/types"
)

type OrderHandler struct {
	orders *assignment.Orchestrator
}

func NewOrderHandler(orch *assignment.Orchestrator) *OrderHandler {
	return &OrderHandler{orders: orch}
}

type createOrderReq struct {
	Category  string          `json:"category"`
	Requester order.Requester `json:"requester"`
	Payload   order.Payload   `json:"payload"`
	Region    string          `json:"region"`
	Location  *types.Point    `json:"location"`
	Urgency   string          `json:"urgency"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	cmd := order.CreateCommand{
		Category:  types.Category(req.Category),
		Requester: req.Requester,
		Payload:   req.Payload,
		Region:    req.Region,
		Urgency:   types.Urgency(req.Urgency),
	}
	if req.Location != nil {
		cmd.Location = *req.Location
	}
	o, err := h.orders.CreateOrder(c.Request.Context(), cmd)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, o)
}

func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	o, err := h.orders.GetOrder(c.Request.Context(), types.ID(id))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

func (h *OrderHandler) Broadcast(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	bc, err := h.orders.BroadcastOrder(c.Request.Context(), types.ID(id))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, bc)
}

func (h *OrderHandler) Rebroadcast(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	bc, err := h.orders.Rebroadcast(c.Request.Context(), types.ID(id))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, bc)
}

func (h *OrderHandler) Notified(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ids, err := h.orders.Notified(c.Request.Context(), types.ID(id))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"order_id": id, "providers": ids})
}

// Evaluation returns the last recorded evaluation, or scores the live bids now with ?fresh=true.
func (h *OrderHandler) Evaluation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if c.Query("fresh") != "true" {
		ev, err := h.orders.LatestEvaluation(ctx, types.ID(id))
		if err != nil {
			writeDomainError(c, err)
			return
		}
		if ev != nil {
			writeJSON(c, http.StatusOK, ev)
			return
		}
	}
	ev, err := h.orders.Evaluate(ctx, types.ID(id))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, ev)
}

type awardReq struct {
	BidID string `json:"bid_id"`
}

func (h *OrderHandler) Award(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req awardReq
	if err := c.ShouldBindJSON(&req); err != nil || !isValidID(req.BidID) {
		writeError(c, http.StatusBadRequest, "bid_id is required")
		return
	}
	ctx := c.Request.Context()
	if err := h.orders.AwardOrder(ctx, types.ID(id), types.ID(req.BidID), middleware.CallerID(c)); err != nil {
		writeDomainError(c, err)
		return
	}
	o, err := h.orders.GetOrder(ctx, types.ID(id))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

func (h *OrderHandler) AutoAward(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ev, err := h.orders.AutoAward(c.Request.Context(), types.ID(id))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, ev)
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req cancelReq
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "cancelled by requester"
	}
	o, err := h.orders.Cancel(c.Request.Context(), ledger.CancelCommand{
		OrderID: types.ID(id),
		Actor:   middleware.CallerID(c),
		Reason:  req.Reason,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type statusReq struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

func (h *OrderHandler) Advance(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req statusReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		writeError(c, http.StatusBadRequest, "status is required")
		return
	}
	o, err := h.orders.Advance(c.Request.Context(), ledger.AdvanceCommand{
		OrderID: types.ID(id),
		To:      order.Status(req.Status),
		Actor:   middleware.CallerID(c),
		Note:    req.Note,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}
