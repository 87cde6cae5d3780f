package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"relove/market/internal/api/handlers"
	"relove/market/internal/api/middleware"
	"relove/market/internal/cache"
	"relove/market/internal/config"
	"relove/market/internal/logger"
	"relove/market/internal/services"
)

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, db *mongo.Database, rdb *redis.Client) *gin.Engine {
	// Initialize services needed by API handlers
	categoryService := services.NewCategoryService(db)
	planService := services.NewPlanService(db)
	subscriptionService := services.NewSubscriptionService(db, planService)
	listingService := services.NewListingService(db, cfg, subscriptionService)

	var viewCounter *cache.ViewCounter
	if rdb != nil {
		viewCounter = cache.NewViewCounter(rdb)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(logger.Middleware(), gin.Recovery())

	// Initialize middleware
	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)
	r.Use(middleware.CORSMiddleware())
	r.Use(rateLimiter.Limit())

	// Initialize handlers
	categoryHandler := handlers.NewCategoryHandler(categoryService, cfg)
	listingHandler := handlers.NewListingHandler(listingService, viewCounter, cfg)
	planHandler := handlers.NewPlanHandler(planService)
	subscriptionHandler := handlers.NewSubscriptionHandler(subscriptionService)
	webhookHandler := handlers.NewWebhookHandler(subscriptionService)

	v1 := r.Group("/v1")
	{
		// Public routes
		v1.GET("/category/tree", categoryHandler.GetTree)
		v1.GET("/category/:slug", categoryHandler.GetBySlug)

		v1.GET("/listing/search", listingHandler.Search)
		v1.GET("/listing/:id", listingHandler.Get)

		v1.GET("/plans", planHandler.List)

		// Payment gateway callback. Signature verification happens at the
		// gateway edge, not here.
		v1.POST("/webhook/payment", webhookHandler.PaymentSucceeded)

		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// Authenticated routes
		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.GET("/my/listings", listingHandler.ListMine)
			authRequired.POST("/listing", listingHandler.Create)
			authRequired.PATCH("/listing/:id", listingHandler.Update)
			authRequired.DELETE("/listing/:id", listingHandler.Delete)
			authRequired.POST("/listing/:id/publish", listingHandler.Publish)
			authRequired.POST("/listing/:id/bump", listingHandler.Bump)
			authRequired.POST("/listing/:id/feature", listingHandler.Feature)
			authRequired.PUT("/listing/:id/favorite", listingHandler.AddFavorite)
			authRequired.DELETE("/listing/:id/favorite", listingHandler.RemoveFavorite)

			authRequired.GET("/subscription", subscriptionHandler.GetCurrent)
			authRequired.GET("/subscription/history", subscriptionHandler.GetHistory)
			authRequired.DELETE("/subscription", subscriptionHandler.Cancel)
		}

		// Admin routes
		adminRequired := v1.Group("/admin")
		adminRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret), middleware.AdminMiddleware())
		{
			adminRequired.POST("/category", categoryHandler.Create)
			adminRequired.PATCH("/category/:id", categoryHandler.Update)
			adminRequired.DELETE("/category/:id", categoryHandler.Delete)

			adminRequired.GET("/listings", listingHandler.AdminList)

			adminRequired.GET("/plans", planHandler.AdminList)
			adminRequired.POST("/plan", planHandler.Create)
			adminRequired.PUT("/plan/:id", planHandler.Update)
			adminRequired.DELETE("/plan/:id", planHandler.Delete)

			adminRequired.POST("/subscription/assign", subscriptionHandler.AdminAssign)
			adminRequired.POST("/subscription/change-plan", subscriptionHandler.AdminChangePlan)
			adminRequired.POST("/subscription/extend", subscriptionHandler.AdminExtend)
		}
	}

	return r
}
