package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"fundflow/account"
	"fundflow/auth"
	"fundflow/contingency"
	"fundflow/pkg/validate"
	"fundflow/timeline"
	"fundflow/wallet"
)

// respondError maps domain sentinel errors onto HTTP statuses. Unknown
// errors become opaque 500s; the underlying cause is logged, not leaked.
func respondError(c *gin.Context, err error) {
	var fieldErr *validate.Error
	if errors.As(err, &fieldErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fieldErr.Reason, "field": fieldErr.Field})
		return
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case errors.Is(err, auth.ErrWeakPassword):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, auth.ErrDuplicateEmail):
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
	case errors.Is(err, timeline.ErrForbidden), errors.Is(err, contingency.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
	case errors.Is(err, timeline.ErrNotFound),
		errors.Is(err, contingency.ErrNotFound),
		errors.Is(err, contingency.ErrStageNotFound),
		errors.Is(err, account.ErrNotFound),
		errors.Is(err, wallet.ErrWalletNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, timeline.ErrAlreadyDecided),
		errors.Is(err, contingency.ErrAlreadyDecided),
		errors.Is(err, timeline.ErrTimelineExists),
		errors.Is(err, timeline.ErrVersionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, timeline.ErrInvalidState),
		errors.Is(err, contingency.ErrNotEligible),
		errors.Is(err, wallet.ErrInsufficientFunds):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
