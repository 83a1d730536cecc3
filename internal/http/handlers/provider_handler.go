// README: Provider handlers for registration, lookup and ranking.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"medbid/internal/modules/provider"
	"medbid/internal/modules/ranking"
	"medbid/internal/types"
)

type ProviderHandler struct {
	catalog *provider.Catalog
	ranking *ranking.Service
}

func NewProviderHandler(catalog *provider.Catalog, rank *ranking.Service) *ProviderHandler {
	return &ProviderHandler{catalog: catalog, ranking: rank}
}

func (h *ProviderHandler) Upsert(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var p provider.Provider
	if err := c.ShouldBindJSON(&p); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	p.ID = types.ID(id)
	if err := h.catalog.Register(c.Request.Context(), &p); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, &p)
}

func (h *ProviderHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	p, err := h.catalog.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

func (h *ProviderHandler) Rank(c *gin.Context) {
	var crit ranking.Criteria
	if err := c.ShouldBindJSON(&crit); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if !crit.Category.Valid() {
		writeError(c, http.StatusBadRequest, "unknown category")
		return
	}
	ranked, err := h.ranking.Rank(c.Request.Context(), crit)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"providers": ranked})
}
