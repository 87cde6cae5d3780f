package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"relove/market/internal/api"
	"relove/market/internal/cache"
	"relove/market/internal/config"
	"relove/market/internal/db"
	"relove/market/internal/logger"
	"relove/market/internal/services"
	"relove/market/internal/tasks"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks), 'all' (default)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		ServiceName: cfg.AppName,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	mongoClient, mongoDb, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName)
	if err != nil {
		logger.L().Fatal("failed to connect to MongoDB", zap.Error(err))
	}
	defer func() {
		if err := db.DisconnectDB(mongoClient); err != nil {
			logger.L().Error("error disconnecting from MongoDB", zap.Error(err))
		}
	}()

	{
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.EnsureIndexes(ctx, mongoDb); err != nil {
			cancel()
			logger.L().Fatal("failed to ensure indexes", zap.Error(err))
		}
		cancel()
	}

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.L().Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient); err != nil {
			logger.L().Error("error disconnecting from Redis", zap.Error(err))
		}
	}()

	var wg sync.WaitGroup

	var apiSrv *http.Server
	var taskSrv *asynq.Server
	var scheduler *asynq.Scheduler

	logger.L().Info("starting", zap.String("mode", cfg.RunMode))

	apiMode := func() {
		router := api.SetupRouter(cfg, mongoDb, redisClient)
		apiSrv = &http.Server{
			Addr:    ":" + cfg.ApiPort,
			Handler: router,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.L().Info("API listening", zap.String("port", cfg.ApiPort))
			if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.L().Fatal("API server error", zap.Error(err))
			}
		}()
	}

	bgMode := func() {
		// The worker builds its own service instances; they share nothing
		// with the API beyond Mongo and Redis.
		planService := services.NewPlanService(mongoDb)
		subscriptionService := services.NewSubscriptionService(mongoDb, planService)
		listingService := services.NewListingService(mongoDb, cfg, subscriptionService)
		viewCounter := cache.NewViewCounter(redisClient)

		processor := tasks.NewTaskProcessor(cfg, listingService, subscriptionService, viewCounter)

		var mux *asynq.ServeMux
		taskSrv, mux = tasks.SetupServer(redisClient, processor)
		logger.L().Info("background worker starting")
		if err := taskSrv.Start(mux); err != nil {
			logger.L().Fatal("failed to start task server", zap.Error(err))
		}

		var err error
		scheduler, err = tasks.SetupScheduler(redisClient, cfg)
		if err != nil {
			logger.L().Fatal("failed to set up scheduler", zap.Error(err))
		}
		if err := scheduler.Start(); err != nil {
			logger.L().Fatal("failed to start scheduler", zap.Error(err))
		}
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "bg":
		bgMode()
	case "all":
		apiMode()
		bgMode()
	default:
		logger.L().Fatal("invalid run mode", zap.String("mode", cfg.RunMode))
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.L().Info("shutting down", zap.String("signal", sig.String()))

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if apiSrv != nil {
		if err := apiSrv.Shutdown(ctxShutdown); err != nil {
			logger.L().Error("API server shutdown error", zap.Error(err))
		}
	}
	if scheduler != nil {
		scheduler.Shutdown()
	}
	if taskSrv != nil {
		taskSrv.Shutdown()
	}

	wg.Wait()
	logger.L().Info("stopped")
}
