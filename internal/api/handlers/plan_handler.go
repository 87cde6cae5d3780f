package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"relove/market/internal/services"
	"relove/market/internal/utils"
)

// PlanHandler handles REST requests for subscription plans.
type PlanHandler struct {
	planService services.IPlanService
}

// NewPlanHandler creates a new PlanHandler.
func NewPlanHandler(planService services.IPlanService) *PlanHandler {
	return &PlanHandler{planService: planService}
}

// List handles GET /v1/plans, the public price list (active plans only).
func (h *PlanHandler) List(c *gin.Context) {
	plans, err := h.planService.List(c.Request.Context(), false)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": plans})
}

// AdminList handles GET /v1/admin/plans including inactive plans.
func (h *PlanHandler) AdminList(c *gin.Context) {
	plans, err := h.planService.List(c.Request.Context(), true)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": plans})
}

// Create handles POST /v1/admin/plan.
func (h *PlanHandler) Create(c *gin.Context) {
	var input services.PlanInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	plan, err := h.planService.Create(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": plan})
}

// Update handles PUT /v1/admin/plan/:id.
func (h *PlanHandler) Update(c *gin.Context) {
	id, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid plan id"})
		return
	}

	var input services.PlanInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	plan, err := h.planService.Update(c.Request.Context(), id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": plan})
}

// Delete handles DELETE /v1/admin/plan/:id.
func (h *PlanHandler) Delete(c *gin.Context) {
	id, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid plan id"})
		return
	}

	if err := h.planService.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
