package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"relove/market/internal/db"
	"relove/market/internal/models"
	"relove/market/internal/utils"
)

// ISubscriptionService is the subscription quota ledger. It tracks each
// user's active plan and remaining allotments and meters seller actions.
type ISubscriptionService interface {
	Assign(ctx context.Context, userID, planID utils.SixID) (*models.Subscription, error)
	Extend(ctx context.Context, userID utils.SixID, days int) (*models.Subscription, error)
	ChangePlan(ctx context.Context, userID, planID utils.SixID) (*models.Subscription, error)
	Cancel(ctx context.Context, userID utils.SixID) error
	Current(ctx context.Context, userID utils.SixID) (*models.Subscription, error)
	History(ctx context.Context, userID utils.SixID) ([]models.Subscription, error)

	ConsumeListing(ctx context.Context, userID utils.SixID) (*models.Subscription, error)
	ConsumeBump(ctx context.Context, userID utils.SixID) (*models.Subscription, error)
	ConsumeFeaturedDays(ctx context.Context, userID utils.SixID, days int) (*models.Subscription, error)
	RefundListing(ctx context.Context, subscriptionID utils.SixID) error
	RefundBump(ctx context.Context, subscriptionID utils.SixID) error
	RefundFeaturedDays(ctx context.Context, subscriptionID utils.SixID, days int) error

	HandlePaymentSucceeded(ctx context.Context, orderID string, userID, planID utils.SixID) (*models.Subscription, error)
	ExpireLapsed(ctx context.Context) (int64, error)
}

const (
	subscriptionsCollection = "subscriptions"
	paymentOrdersCollection = "payment_orders"
)

// subscriptionService implements ISubscriptionService.
type subscriptionService struct {
	db    *mongo.Database
	plans IPlanService
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(database *mongo.Database, plans IPlanService) ISubscriptionService {
	return &subscriptionService{db: database, plans: plans}
}

// Assign provisions a new ACTIVE subscription from the plan's quotas,
// cancelling any prior ACTIVE subscription of the user first. The pair runs
// under db.Try against the partial unique (user_id, status=ACTIVE) index:
// two concurrent assignments cannot both insert an ACTIVE row: the loser
// collides, re-cancels and retries.
func (s *subscriptionService) Assign(ctx context.Context, userID, planID utils.SixID) (*models.Subscription, error) {
	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, models.NewValidationError("plan_id", "plan is not active")
	}

	collection := s.db.Collection(subscriptionsCollection)

	var subscription *models.Subscription
	operation := func() error {
		now := time.Now().UTC()
		_, err := collection.UpdateMany(ctx,
			bson.M{"user_id": userID, "status": models.SubscriptionActive},
			bson.M{"$set": bson.M{
				"status":      models.SubscriptionCanceled,
				"canceled_at": now,
				"updated_at":  now,
			}},
		)
		if err != nil {
			return fmt.Errorf("failed to cancel prior subscription for user %s: %w", userID.String(), err)
		}

		subscription = models.ProvisionSubscription(userID, plan, now)
		_, err = collection.InsertOne(ctx, subscription)
		return err
	}
	if err := db.Try(operation); err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: concurrent subscription assignment for user %s", models.ErrConflict, userID.String())
		}
		return nil, fmt.Errorf("failed to assign plan %s to user %s: %w", planID.String(), userID.String(), err)
	}
	return subscription, nil
}

// Extend pushes the active subscription's end forward without touching the
// remaining allotments.
func (s *subscriptionService) Extend(ctx context.Context, userID utils.SixID, days int) (*models.Subscription, error) {
	if days <= 0 {
		return nil, models.NewValidationError("days", "must be positive")
	}

	current, err := s.Current(ctx, userID)
	if err != nil {
		return nil, err
	}

	newEnd := current.EndAt.AddDate(0, 0, days)
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Subscription
	err = s.db.Collection(subscriptionsCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": current.ID, "status": models.SubscriptionActive},
		bson.M{"$set": bson.M{"end_at": newEnd, "updated_at": time.Now().UTC()}},
		opts,
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound // cancelled between read and write
		}
		return nil, fmt.Errorf("failed to extend subscription %s: %w", current.ID.String(), err)
	}
	return &updated, nil
}

// ChangePlan re-provisions the remaining allotments from the new plan's
// quotas. Unused quota from the old plan is discarded, not merged.
func (s *subscriptionService) ChangePlan(ctx context.Context, userID, planID utils.SixID) (*models.Subscription, error) {
	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		return nil, err
	}

	current, err := s.Current(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Subscription
	err = s.db.Collection(subscriptionsCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": current.ID, "status": models.SubscriptionActive},
		bson.M{"$set": bson.M{
			"plan_id":                 plan.ID,
			"end_at":                  now.AddDate(0, 0, plan.DurationDays),
			"remaining_listings":      plan.QuotaListings,
			"remaining_bumps":         plan.QuotaBumps,
			"remaining_featured_days": plan.QuotaFeaturedDays,
			"photos_per_listing":      plan.QuotaPhotosPerListing,
			"updated_at":              now,
		}},
		opts,
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to change plan for subscription %s: %w", current.ID.String(), err)
	}
	return &updated, nil
}

// Cancel marks the user's active subscription CANCELED, keeping the row as
// history.
func (s *subscriptionService) Cancel(ctx context.Context, userID utils.SixID) error {
	now := time.Now().UTC()
	result, err := s.db.Collection(subscriptionsCollection).UpdateOne(ctx,
		bson.M{"user_id": userID, "status": models.SubscriptionActive},
		bson.M{"$set": bson.M{
			"status":      models.SubscriptionCanceled,
			"canceled_at": now,
			"updated_at":  now,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to cancel subscription for user %s: %w", userID.String(), err)
	}
	if result.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Current returns the user's active subscription. Expiration is lazily
// observed: a row past end_at is treated as expired here even if the sweep
// has not flipped its status yet.
func (s *subscriptionService) Current(ctx context.Context, userID utils.SixID) (*models.Subscription, error) {
	var subscription models.Subscription
	err := s.db.Collection(subscriptionsCollection).FindOne(ctx, bson.M{
		"user_id": userID,
		"status":  models.SubscriptionActive,
		"end_at":  bson.M{"$gte": time.Now().UTC()},
	}).Decode(&subscription)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find active subscription for user %s: %w", userID.String(), err)
	}
	return &subscription, nil
}

// History returns all subscription rows of a user, newest first.
func (s *subscriptionService) History(ctx context.Context, userID utils.SixID) ([]models.Subscription, error) {
	cursor, err := s.db.Collection(subscriptionsCollection).Find(ctx,
		bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "start_at", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions for user %s: %w", userID.String(), err)
	}
	defer cursor.Close(ctx)

	var subscriptions []models.Subscription
	if err := cursor.All(ctx, &subscriptions); err != nil {
		return nil, fmt.Errorf("failed to decode subscriptions: %w", err)
	}
	return subscriptions, nil
}

// consume atomically decrements one remaining-counter field, guarded so the
// counter can never go negative: the filter requires at least amount left,
// and a concurrent consumer that empties the counter first makes this
// update match nothing.
func (s *subscriptionService) consume(ctx context.Context, userID utils.SixID, field, quota string, amount int) (*models.Subscription, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Subscription
	err := s.db.Collection(subscriptionsCollection).FindOneAndUpdate(ctx,
		bson.M{
			"user_id": userID,
			"status":  models.SubscriptionActive,
			"end_at":  bson.M{"$gte": time.Now().UTC()},
			field:     bson.M{"$gte": amount},
		},
		bson.M{"$inc": bson.M{field: -amount}, "$set": bson.M{"updated_at": time.Now().UTC()}},
		opts,
	).Decode(&updated)
	if err == nil {
		return &updated, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to consume %s for user %s: %w", quota, userID.String(), err)
	}

	// Distinguish "no quota left" from "no active subscription" for the error
	// detail; both surface as quota exhaustion.
	remaining := 0
	if current, cerr := s.Current(ctx, userID); cerr == nil {
		switch field {
		case "remaining_listings":
			remaining = current.RemainingListings
		case "remaining_bumps":
			remaining = current.RemainingBumps
		case "remaining_featured_days":
			remaining = current.RemainingFeaturedDays
		}
	}
	return nil, &models.QuotaError{Quota: quota, Remaining: remaining}
}

// refund compensates a consume whose follow-up write failed.
func (s *subscriptionService) refund(ctx context.Context, subscriptionID utils.SixID, field string, amount int) error {
	_, err := s.db.Collection(subscriptionsCollection).UpdateOne(ctx,
		bson.M{"_id": subscriptionID},
		bson.M{"$inc": bson.M{field: amount}, "$set": bson.M{"updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("failed to refund %s on subscription %s: %w", field, subscriptionID.String(), err)
	}
	return nil
}

func (s *subscriptionService) ConsumeListing(ctx context.Context, userID utils.SixID) (*models.Subscription, error) {
	return s.consume(ctx, userID, "remaining_listings", "listings", 1)
}

func (s *subscriptionService) ConsumeBump(ctx context.Context, userID utils.SixID) (*models.Subscription, error) {
	return s.consume(ctx, userID, "remaining_bumps", "bumps", 1)
}

func (s *subscriptionService) ConsumeFeaturedDays(ctx context.Context, userID utils.SixID, days int) (*models.Subscription, error) {
	if days <= 0 {
		return nil, models.NewValidationError("days", "must be positive")
	}
	return s.consume(ctx, userID, "remaining_featured_days", "featured_days", days)
}

func (s *subscriptionService) RefundListing(ctx context.Context, subscriptionID utils.SixID) error {
	return s.refund(ctx, subscriptionID, "remaining_listings", 1)
}

func (s *subscriptionService) RefundBump(ctx context.Context, subscriptionID utils.SixID) error {
	return s.refund(ctx, subscriptionID, "remaining_bumps", 1)
}

func (s *subscriptionService) RefundFeaturedDays(ctx context.Context, subscriptionID utils.SixID, days int) error {
	return s.refund(ctx, subscriptionID, "remaining_featured_days", days)
}

// HandlePaymentSucceeded applies a verified payment event. Delivery is
// at-least-once: the order row is claimed PENDING->PAID exactly once, so a
// redelivered event finds the order already PAID and becomes a no-op.
func (s *subscriptionService) HandlePaymentSucceeded(ctx context.Context, orderID string, userID, planID utils.SixID) (*models.Subscription, error) {
	if orderID == "" {
		return nil, models.NewValidationError("order_id", "must not be empty")
	}

	orders := s.db.Collection(paymentOrdersCollection)
	now := time.Now().UTC()

	// Ensure the order row exists (first delivery creates it PENDING).
	_, err := orders.UpdateOne(ctx,
		bson.M{"order_id": orderID},
		bson.M{"$setOnInsert": models.PaymentOrder{
			Base:      models.NewBase(),
			OrderID:   orderID,
			UserID:    userID,
			PlanID:    planID,
			Status:    models.PaymentOrderPending,
			CreatedAt: now,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil && !db.IsMongoDuplicateKeyError(err) {
		return nil, fmt.Errorf("failed to record payment order %s: %w", orderID, err)
	}

	// Claim it. Only one delivery wins this update.
	claim, err := orders.UpdateOne(ctx,
		bson.M{"order_id": orderID, "status": models.PaymentOrderPending},
		bson.M{"$set": bson.M{"status": models.PaymentOrderPaid, "paid_at": now}},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim payment order %s: %w", orderID, err)
	}
	if claim.ModifiedCount == 0 {
		// Duplicate delivery: the order is already PAID. Return the
		// subscription that was provisioned for it, whatever its status
		// by now, so the gateway gets a success and stops redelivering.
		var order models.PaymentOrder
		if err := orders.FindOne(ctx, bson.M{"order_id": orderID}).Decode(&order); err != nil {
			return nil, fmt.Errorf("failed to load payment order %s: %w", orderID, err)
		}
		if order.SubscriptionID.IsZero() {
			return nil, nil
		}
		var subscription models.Subscription
		err := s.db.Collection(subscriptionsCollection).
			FindOne(ctx, bson.M{"_id": order.SubscriptionID}).Decode(&subscription)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load subscription for order %s: %w", orderID, err)
		}
		return &subscription, nil
	}

	subscription, err := s.Assign(ctx, userID, planID)
	if err != nil {
		return nil, err
	}

	// Link the order to its subscription for duplicate deliveries. Best
	// effort: a failed link only degrades the duplicate response to null.
	_, _ = orders.UpdateOne(ctx,
		bson.M{"order_id": orderID},
		bson.M{"$set": bson.M{"subscription_id": subscription.ID}},
	)
	return subscription, nil
}

// ExpireLapsed is the eager sweep: it flips ACTIVE rows whose end has passed
// to EXPIRED. Read paths filter on end_at regardless, so the sweep is for
// observability, not correctness.
func (s *subscriptionService) ExpireLapsed(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	result, err := s.db.Collection(subscriptionsCollection).UpdateMany(ctx,
		bson.M{"status": models.SubscriptionActive, "end_at": bson.M{"$lt": now}},
		bson.M{"$set": bson.M{"status": models.SubscriptionExpired, "updated_at": now}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire lapsed subscriptions: %w", err)
	}
	return result.ModifiedCount, nil
}
