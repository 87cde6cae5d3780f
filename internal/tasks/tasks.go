package tasks

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"relove/market/internal/config"
	"relove/market/internal/logger"
)

// Task types handled by the background worker.
const (
	TypeSubscriptionExpire = "subscription:expire"
	TypeFeaturedExpire     = "listing:featured:expire"
	TypeViewFlush          = "listing:views:flush"
)

// ViewDrainer yields buffered view counts and resets the buffer.
// Satisfied by cache.ViewCounter.
type ViewDrainer interface {
	Drain(ctx context.Context) (map[string]int64, error)
}

// SubscriptionSweeper is the slice of the subscription service the expiry
// task needs. Satisfied by services.ISubscriptionService.
type SubscriptionSweeper interface {
	ExpireLapsed(ctx context.Context) (int64, error)
}

// ListingSweeper is the slice of the listing service the maintenance tasks
// need. Satisfied by services.IListingService.
type ListingSweeper interface {
	ExpireFeatured(ctx context.Context) (int64, error)
	ApplyViewCounts(ctx context.Context, counts map[string]int64) error
}

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	clientOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}
	return asynq.NewClient(clientOpt)
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg                 *config.Config
	listingService      ListingSweeper
	subscriptionService SubscriptionSweeper
	views               ViewDrainer
}

func NewTaskProcessor(
	cfg *config.Config,
	listingService ListingSweeper,
	subscriptionService SubscriptionSweeper,
	views ViewDrainer,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:                 cfg,
		listingService:      listingService,
		subscriptionService: subscriptionService,
		views:               views,
	}
}

// SetupServer configures an Asynq server with the task handlers registered.
// The caller runs and shuts it down.
func SetupServer(rdb *redis.Client, processor *TaskProcessor) (*asynq.Server, *asynq.ServeMux) {
	serverOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}

	srv := asynq.NewServer(
		serverOpt,
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.L().Error("task failed",
					zap.String("type", task.Type()),
					zap.ByteString("payload", task.Payload()),
					zap.Error(err))
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSubscriptionExpire, processor.HandleSubscriptionExpireTask)
	mux.HandleFunc(TypeFeaturedExpire, processor.HandleFeaturedExpireTask)
	mux.HandleFunc(TypeViewFlush, processor.HandleViewFlushTask)

	return srv, mux
}

// SetupScheduler registers the periodic maintenance tasks on an Asynq
// scheduler. Cron specs come from config so deployments can tune sweep
// frequency without a rebuild.
func SetupScheduler(rdb *redis.Client, cfg *config.Config) (*asynq.Scheduler, error) {
	schedulerOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}

	scheduler := asynq.NewScheduler(schedulerOpt, &asynq.SchedulerOpts{
		EnqueueErrorHandler: func(task *asynq.Task, opts []asynq.Option, err error) {
			logger.L().Error("failed to enqueue scheduled task",
				zap.String("type", task.Type()),
				zap.Error(err))
		},
	})

	entries := []struct {
		spec string
		task *asynq.Task
	}{
		{cfg.ExpireSweepSpec, asynq.NewTask(TypeSubscriptionExpire, nil)},
		{cfg.ExpireSweepSpec, asynq.NewTask(TypeFeaturedExpire, nil)},
		{cfg.ViewFlushSpec, asynq.NewTask(TypeViewFlush, nil)},
	}
	for _, e := range entries {
		if _, err := scheduler.Register(e.spec, e.task); err != nil {
			return nil, fmt.Errorf("failed to register %s (%q): %w", e.task.Type(), e.spec, err)
		}
	}
	return scheduler, nil
}

// --- Task Handlers ---

// HandleSubscriptionExpireTask sweeps active subscriptions whose paid period
// has ended. Reads already treat lapsed rows as expired, so the sweep only
// keeps the stored status in line with what callers observe.
func (p *TaskProcessor) HandleSubscriptionExpireTask(ctx context.Context, t *asynq.Task) error {
	n, err := p.subscriptionService.ExpireLapsed(ctx)
	if err != nil {
		return fmt.Errorf("subscription expiry sweep failed: %w", err)
	}
	if n > 0 {
		logger.L().Info("expired lapsed subscriptions", zap.Int64("count", n))
	}
	return nil
}

// HandleFeaturedExpireTask clears the featured flag on listings whose paid
// featured window has passed.
func (p *TaskProcessor) HandleFeaturedExpireTask(ctx context.Context, t *asynq.Task) error {
	n, err := p.listingService.ExpireFeatured(ctx)
	if err != nil {
		return fmt.Errorf("featured expiry sweep failed: %w", err)
	}
	if n > 0 {
		logger.L().Info("unfeatured expired listings", zap.Int64("count", n))
	}
	return nil
}

// HandleViewFlushTask drains buffered view counters from Redis and folds
// them into the listing rows.
func (p *TaskProcessor) HandleViewFlushTask(ctx context.Context, t *asynq.Task) error {
	if p.views == nil {
		return nil
	}

	counts, drainErr := p.views.Drain(ctx)
	if drainErr != nil {
		// Counts already collected still get applied; the rest stay
		// buffered for the next flush.
		logger.L().Warn("partial view counter drain", zap.Error(drainErr))
	}
	if len(counts) == 0 {
		if drainErr != nil {
			return fmt.Errorf("view counter drain failed: %w", drainErr)
		}
		return nil
	}

	if err := p.listingService.ApplyViewCounts(ctx, counts); err != nil {
		return fmt.Errorf("failed to apply %d view counters: %w", len(counts), err)
	}
	logger.L().Info("flushed view counters", zap.Int("listings", len(counts)))
	return drainErr
}
