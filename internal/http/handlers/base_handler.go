// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"medbid/internal/modules/assignment"
	"medbid/internal/modules/ledger"
	"medbid/internal/modules/order"
	"medbid/internal/modules/provider"
	"medbid/internal/modules/scoring"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID accepts generated UUIDs and operator-chosen slugs.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, scoring.ErrInvalidWeights),
		errors.Is(err, scoring.ErrInsufficientBids),
		errors.Is(err, scoring.ErrMixedCurrency):
		return http.StatusUnprocessableEntity
	case errors.Is(err, order.ErrBadRequest),
		errors.Is(err, ledger.ErrInvalidBid),
		errors.Is(err, scoring.ErrInvalidConfig),
		errors.Is(err, provider.ErrInvalidProvider):
		return http.StatusBadRequest
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, provider.ErrNotFound),
		errors.Is(err, scoring.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrConflict),
		errors.Is(err, ledger.ErrOrderNotAcceptingBids),
		errors.Is(err, ledger.ErrProviderUnavailable),
		errors.Is(err, ledger.ErrDuplicateBid),
		errors.Is(err, ledger.ErrBidNotPending),
		errors.Is(err, ledger.ErrBidExpired),
		errors.Is(err, ledger.ErrStaleBid),
		errors.Is(err, ledger.ErrOrderAlreadyAssigned),
		errors.Is(err, ledger.ErrLiveBidsRemain),
		errors.Is(err, scoring.ErrConfigExists),
		errors.Is(err, assignment.ErrLockTimeout):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError maps sentinel errors to status codes; unknown errors are logged and hidden.
func writeDomainError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		writeError(c, status, "internal error")
		return
	}
	writeError(c, status, err.Error())
}

func pathID(c *gin.Context, name string) (string, bool) {
	id := c.Param(name)
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid "+name)
		return "", false
	}
	return id, true
}
