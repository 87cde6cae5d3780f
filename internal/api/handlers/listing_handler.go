package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"relove/market/internal/api/middleware"
	"relove/market/internal/cache"
	"relove/market/internal/config"
	"relove/market/internal/logger"
	"relove/market/internal/models"
	"relove/market/internal/services"
	"relove/market/internal/utils"
)

// ListingHandler handles REST requests for the listing catalog.
type ListingHandler struct {
	listingService services.IListingService
	viewCounter    *cache.ViewCounter
	cfg            *config.Config
}

// NewListingHandler creates a new ListingHandler. viewCounter may be nil when
// Redis is not available; view counting then just never happens.
func NewListingHandler(listingService services.IListingService, viewCounter *cache.ViewCounter, cfg *config.Config) *ListingHandler {
	return &ListingHandler{listingService: listingService, viewCounter: viewCounter, cfg: cfg}
}

// parseFilter extracts the shared filter vocabulary from query parameters.
func parseFilter(c *gin.Context) (services.ListingFilter, error) {
	filter := services.ListingFilter{
		Query:       c.Query("q"),
		CountryCode: c.Query("country"),
		State:       c.Query("state"),
		City:        c.Query("city"),
		Area:        c.Query("area"),
	}

	if categoryStr := c.Query("category"); categoryStr != "" {
		id, err := utils.ParseSixID(categoryStr)
		if err != nil {
			return filter, models.NewValidationError("category", "malformed id")
		}
		filter.CategoryID = &id
	}
	if conditions := c.Query("condition"); conditions != "" {
		for _, part := range strings.Split(conditions, ",") {
			filter.Conditions = append(filter.Conditions, models.ListingCondition(strings.TrimSpace(part)))
		}
	}
	if currencyStr := c.Query("currency"); currencyStr != "" {
		currency := models.Currency(strings.ToUpper(currencyStr))
		filter.Currency = &currency
	}
	if minStr := c.Query("price_min"); minStr != "" {
		min, err := strconv.ParseFloat(minStr, 64)
		if err != nil {
			return filter, models.NewValidationError("price_min", "not a number")
		}
		filter.PriceMin = &min
	}
	if maxStr := c.Query("price_max"); maxStr != "" {
		max, err := strconv.ParseFloat(maxStr, 64)
		if err != nil {
			return filter, models.NewValidationError("price_max", "not a number")
		}
		filter.PriceMax = &max
	}
	if featuredStr := c.Query("featured"); featuredStr != "" {
		featured := featuredStr == "true"
		filter.Featured = &featured
	}
	return filter, nil
}

// Search handles GET /v1/listing/search, the public cursor-paginated view.
func (h *ListingHandler) Search(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	result, err := h.listingService.ListPublic(
		c.Request.Context(),
		filter,
		c.DefaultQuery("sort", "newest"),
		c.Query("cursor"),
		limit,
	)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result.Items, "next_cursor": result.NextCursor})
}

// Get handles GET /v1/listing/:id. Slugs are accepted in place of ids; a view
// is buffered in Redis on every public read.
func (h *ListingHandler) Get(c *gin.Context) {
	param := c.Param("id")

	var listing *models.Listing
	var err error
	if id, parseErr := utils.ParseSixID(param); parseErr == nil {
		listing, err = h.listingService.FindByID(c.Request.Context(), id)
	} else {
		listing, err = h.listingService.FindBySlug(c.Request.Context(), param)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	if h.viewCounter != nil && listing.Status == models.ListingStatusActive {
		if err := h.viewCounter.Bump(c.Request.Context(), listing.ID.String()); err != nil {
			// Views are best-effort; the read still succeeds.
			logger.L().Warn("failed to buffer view count",
				zap.String("listing_id", listing.ID.String()),
				zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": listing})
}

// ListMine handles GET /v1/my/listings, the authenticated offset view over
// the caller's own listings, any status.
func (h *ListingHandler) ListMine(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	filter, err := parseFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	filter.UserID = &principal.UserID
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, models.ListingStatus(strings.TrimSpace(part)))
		}
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "0"))

	result, err := h.listingService.List(c.Request.Context(), filter, c.Query("sort"), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result.Items, "pagination": result.Pagination})
}

// AdminList handles GET /v1/admin/listings with unrestricted filters and sorts.
func (h *ListingHandler) AdminList(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if userStr := c.Query("user"); userStr != "" {
		id, parseErr := utils.ParseSixID(userStr)
		if parseErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
			return
		}
		filter.UserID = &id
	}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, models.ListingStatus(strings.TrimSpace(part)))
		}
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "0"))

	result, err := h.listingService.List(c.Request.Context(), filter, c.Query("sort"), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result.Items, "pagination": result.Pagination})
}

// Create handles POST /v1/listing.
func (h *ListingHandler) Create(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var input services.CreateListingInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	listing, err := h.listingService.Create(c.Request.Context(), principal, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": listing})
}

// Update handles PATCH /v1/listing/:id.
func (h *ListingHandler) Update(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	id, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing id"})
		return
	}

	var input services.UpdateListingInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	listing, err := h.listingService.Update(c.Request.Context(), principal, id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": listing})
}

// Delete handles DELETE /v1/listing/:id?force=true. Force (hard delete) is
// admin-only.
func (h *ListingHandler) Delete(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	id, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing id"})
		return
	}

	force := c.Query("force") == "true"
	if force && !principal.IsAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "Hard delete requires admin"})
		return
	}

	if err := h.listingService.Remove(c.Request.Context(), principal, id, force); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Publish handles POST /v1/listing/:id/publish.
func (h *ListingHandler) Publish(c *gin.Context) {
	h.ownerAction(c, h.listingService.Publish)
}

// Bump handles POST /v1/listing/:id/bump.
func (h *ListingHandler) Bump(c *gin.Context) {
	h.ownerAction(c, h.listingService.Bump)
}

// Feature handles POST /v1/listing/:id/feature with body {"days": n}.
func (h *ListingHandler) Feature(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	id, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing id"})
		return
	}

	var body struct {
		Days int `json:"days"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	listing, err := h.listingService.Feature(c.Request.Context(), principal, id, body.Days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": listing})
}

// AddFavorite handles PUT /v1/listing/:id/favorite.
func (h *ListingHandler) AddFavorite(c *gin.Context) {
	h.favoriteAction(c, h.listingService.AddFavorite)
}

// RemoveFavorite handles DELETE /v1/listing/:id/favorite.
func (h *ListingHandler) RemoveFavorite(c *gin.Context) {
	h.favoriteAction(c, h.listingService.RemoveFavorite)
}

func (h *ListingHandler) ownerAction(c *gin.Context, action func(ctx context.Context, actor models.Principal, id utils.SixID) (*models.Listing, error)) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	id, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing id"})
		return
	}

	listing, err := action(c.Request.Context(), principal, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": listing})
}

func (h *ListingHandler) favoriteAction(c *gin.Context, action func(ctx context.Context, actor models.Principal, id utils.SixID) error) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	id, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing id"})
		return
	}

	if err := action(c.Request.Context(), principal, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
