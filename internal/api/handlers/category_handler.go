package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"relove/market/internal/api/middleware"
	"relove/market/internal/config"
	"relove/market/internal/services"
	"relove/market/internal/utils"
)

// CategoryHandler handles REST requests for the category tree.
type CategoryHandler struct {
	categoryService services.ICategoryService
	cfg             *config.Config
}

// NewCategoryHandler creates a new CategoryHandler.
func NewCategoryHandler(categoryService services.ICategoryService, cfg *config.Config) *CategoryHandler {
	return &CategoryHandler{categoryService: categoryService, cfg: cfg}
}

// GetTree handles GET /v1/category/tree?root=<id>&depth=<n>
func (h *CategoryHandler) GetTree(c *gin.Context) {
	var rootID *utils.SixID
	if rootStr := c.Query("root"); rootStr != "" {
		id, err := utils.ParseSixID(rootStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid root id"})
			return
		}
		rootID = &id
	}

	depth := h.cfg.MaxTreeDepth
	if depthStr := c.Query("depth"); depthStr != "" {
		parsed, err := strconv.Atoi(depthStr)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid depth"})
			return
		}
		if parsed < depth {
			depth = parsed
		}
	}

	tree, err := h.categoryService.Tree(c.Request.Context(), rootID, depth)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tree})
}

// GetBySlug handles GET /v1/category/:slug
func (h *CategoryHandler) GetBySlug(c *gin.Context) {
	category, err := h.categoryService.FindBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}

	crumbs, err := h.categoryService.Breadcrumbs(c.Request.Context(), category.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": category, "breadcrumbs": crumbs})
}

// Create handles POST /v1/admin/category
func (h *CategoryHandler) Create(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var input services.CreateCategoryInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	category, err := h.categoryService.Create(c.Request.Context(), principal, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": category})
}

// Update handles PATCH /v1/admin/category/:id
func (h *CategoryHandler) Update(c *gin.Context) {
	id, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category id"})
		return
	}

	var patch services.UpdateCategoryInput
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	category, err := h.categoryService.Update(c.Request.Context(), id, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": category})
}

// Delete handles DELETE /v1/admin/category/:id?force=true
func (h *CategoryHandler) Delete(c *gin.Context) {
	id, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid category id"})
		return
	}

	force := c.Query("force") == "true"
	if err := h.categoryService.Remove(c.Request.Context(), id, force); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
