package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"relove/market/internal/api/middleware"
	"relove/market/internal/services"
	"relove/market/internal/utils"
)

// SubscriptionHandler handles REST requests for the subscription ledger.
type SubscriptionHandler struct {
	subscriptionService services.ISubscriptionService
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(subscriptionService services.ISubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptionService: subscriptionService}
}

// GetCurrent handles GET /v1/subscription.
func (h *SubscriptionHandler) GetCurrent(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	subscription, err := h.subscriptionService.Current(c.Request.Context(), principal.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": subscription})
}

// GetHistory handles GET /v1/subscription/history.
func (h *SubscriptionHandler) GetHistory(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	history, err := h.subscriptionService.History(c.Request.Context(), principal.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": history})
}

// Cancel handles DELETE /v1/subscription.
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	if err := h.subscriptionService.Cancel(c.Request.Context(), principal.UserID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type assignRequest struct {
	UserID string `json:"user_id"`
	PlanID string `json:"plan_id"`
}

func (r assignRequest) ids() (userID, planID utils.SixID, err error) {
	userID, err = utils.ParseSixID(r.UserID)
	if err != nil {
		return
	}
	planID, err = utils.ParseSixID(r.PlanID)
	return
}

// AdminAssign handles POST /v1/admin/subscription/assign.
func (h *SubscriptionHandler) AdminAssign(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	userID, planID, err := req.ids()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user or plan id"})
		return
	}

	subscription, err := h.subscriptionService.Assign(c.Request.Context(), userID, planID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": subscription})
}

// AdminChangePlan handles POST /v1/admin/subscription/change-plan.
func (h *SubscriptionHandler) AdminChangePlan(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	userID, planID, err := req.ids()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user or plan id"})
		return
	}

	subscription, err := h.subscriptionService.ChangePlan(c.Request.Context(), userID, planID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": subscription})
}

// AdminExtend handles POST /v1/admin/subscription/extend.
func (h *SubscriptionHandler) AdminExtend(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id"`
		Days   int    `json:"days"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	userID, err := utils.ParseSixID(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}

	subscription, err := h.subscriptionService.Extend(c.Request.Context(), userID, req.Days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": subscription})
}
