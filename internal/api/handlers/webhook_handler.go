package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"relove/market/internal/logger"
	"relove/market/internal/services"
	"relove/market/internal/utils"
)

// WebhookHandler accepts payment events from the (already verified) payment
// provider gateway. Delivery is at-least-once; the ledger makes redeliveries
// no-ops.
type WebhookHandler struct {
	subscriptionService services.ISubscriptionService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(subscriptionService services.ISubscriptionService) *WebhookHandler {
	return &WebhookHandler{subscriptionService: subscriptionService}
}

type paymentEvent struct {
	Event   string `json:"event"`
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
	PlanID  string `json:"plan_id"`
}

// PaymentSucceeded handles POST /v1/webhook/payment.
func (h *WebhookHandler) PaymentSucceeded(c *gin.Context) {
	var event paymentEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if event.Event != "payment.succeeded" {
		// Unknown event types are acknowledged so the gateway stops
		// redelivering them.
		logger.L().Info("ignoring payment event", zap.String("event", event.Event))
		c.JSON(http.StatusOK, gin.H{"handled": false})
		return
	}

	userID, err := utils.ParseSixID(event.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}
	planID, err := utils.ParseSixID(event.PlanID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid plan id"})
		return
	}

	subscription, err := h.subscriptionService.HandlePaymentSucceeded(c.Request.Context(), event.OrderID, userID, planID)
	if err != nil {
		respondError(c, err)
		return
	}

	logger.L().Info("payment event applied",
		zap.String("order_id", event.OrderID),
		zap.String("user_id", event.UserID))
	c.JSON(http.StatusOK, gin.H{"handled": true, "data": subscription})
}
