package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"relove/market/internal/logger"
	"relove/market/internal/models"
)

// respondError maps service errors to HTTP statuses in one place. Anything
// unrecognized is a 500 with the detail kept out of the response body.
func respondError(c *gin.Context, err error) {
	var vErr *models.ValidationError
	if errors.As(err, &vErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error(), "field": vErr.Field})
		return
	}

	var qErr *models.QuotaError
	if errors.As(err, &qErr) {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":     qErr.Error(),
			"quota":     qErr.Quota,
			"remaining": qErr.Remaining,
		})
		return
	}

	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, models.ErrParentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Parent category not found"})
	case errors.Is(err, models.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	case errors.Is(err, models.ErrCycleDetected),
		errors.Is(err, models.ErrHasChildren),
		errors.Is(err, models.ErrHasListings),
		errors.Is(err, models.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrTransient):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Temporarily unavailable, retry shortly"})
	default:
		logger.L().Error("unhandled error in handler",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
