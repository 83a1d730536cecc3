// README: Scoring config handlers: create, new version, activate, read.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"medbid/internal/modules/scoring"
	"medbid/internal/types"
)

type ScoringHandler struct {
	registry scoring.Registry
}

func NewScoringHandler(registry scoring.Registry) *ScoringHandler {
	return &ScoringHandler{registry: registry}
}

type configReq struct {
	Name              string          `json:"name"`
	Weights           scoring.Weights `json:"weights"`
	AppliesTo         string          `json:"applies_to"`
	MinBidsRequired   int             `json:"min_bids_required"`
	MaxBidsConsidered int             `json:"max_bids_considered"`
	MaxWaitSeconds    int             `json:"max_wait_seconds"`
}

func (r configReq) config() scoring.Config {
	return scoring.Config{
		Name:              r.Name,
		Weights:           r.Weights,
		AppliesTo:         scoring.Applicability(r.AppliesTo),
		MinBidsRequired:   r.MinBidsRequired,
		MaxBidsConsidered: r.MaxBidsConsidered,
		MaxWait:           time.Duration(r.MaxWaitSeconds) * time.Second,
	}
}

func (h *ScoringHandler) Create(c *gin.Context) {
	var req configReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	cfg, err := h.registry.Create(c.Request.Context(), req.config())
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, cfg)
}

func (h *ScoringHandler) Update(c *gin.Context) {
	name := c.Param("name")
	var req configReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	req.Name = name
	cfg, err := h.registry.Update(c.Request.Context(), name, req.config())
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, cfg)
}

func (h *ScoringHandler) Versions(c *gin.Context) {
	cfgs, err := h.registry.Versions(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"versions": cfgs})
}

func (h *ScoringHandler) Activate(c *gin.Context) {
	name := c.Param("name")
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version < 1 {
		writeError(c, http.StatusBadRequest, "invalid version")
		return
	}
	ctx := c.Request.Context()
	if err := h.registry.Activate(ctx, name, version); err != nil {
		writeDomainError(c, err)
		return
	}
	cfg, err := h.registry.Get(ctx, name, version)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, cfg)
}

func (h *ScoringHandler) Active(c *gin.Context) {
	category := types.Category(c.Param("category"))
	if !category.Valid() {
		writeError(c, http.StatusBadRequest, "unknown category")
		return
	}
	cfg, err := h.registry.Active(c.Request.Context(), category)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, cfg)
}
