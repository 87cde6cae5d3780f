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

// IPlanService defines the interface for subscription plan administration.
type IPlanService interface {
	Create(ctx context.Context, input PlanInput) (*models.Plan, error)
	Update(ctx context.Context, id utils.SixID, input PlanInput) (*models.Plan, error)
	Delete(ctx context.Context, id utils.SixID) error
	FindByID(ctx context.Context, id utils.SixID) (*models.Plan, error)
	List(ctx context.Context, includeInactive bool) ([]models.Plan, error)
}

const plansCollection = "plans"

// PlanInput carries the admin-editable plan fields. Edits never touch
// already-provisioned subscriptions.
type PlanInput struct {
	Name                  string          `json:"name"`
	Price                 float64         `json:"price"`
	Currency              models.Currency `json:"currency"`
	DurationDays          int             `json:"duration_days"`
	MaxActiveListings     int             `json:"max_active_listings"`
	QuotaListings         int             `json:"quota_listings"`
	QuotaPhotosPerListing int             `json:"quota_photos_per_listing"`
	QuotaVideosPerListing int             `json:"quota_videos_per_listing"`
	QuotaBumps            int             `json:"quota_bumps"`
	QuotaFeaturedDays     int             `json:"quota_featured_days"`
	MaxCategories         int             `json:"max_categories"`
	IsSticky              bool            `json:"is_sticky"`
	IsFeatured            bool            `json:"is_featured"`
	IsActive              bool            `json:"is_active"`
}

func (in PlanInput) validate() error {
	if in.Name == "" {
		return models.NewValidationError("name", "must not be empty")
	}
	if in.Price < 0 {
		return models.NewValidationError("price", "must not be negative")
	}
	if !models.ValidCurrency(in.Currency) {
		return models.NewValidationError("currency", "unknown currency")
	}
	if in.DurationDays <= 0 {
		return models.NewValidationError("duration_days", "must be positive")
	}
	if in.QuotaListings < 0 || in.QuotaBumps < 0 || in.QuotaFeaturedDays < 0 {
		return models.NewValidationError("quotas", "must not be negative")
	}
	return nil
}

// planService implements IPlanService.
type planService struct {
	db *mongo.Database
}

// NewPlanService creates a new PlanService.
func NewPlanService(database *mongo.Database) IPlanService {
	return &planService{db: database}
}

func (s *planService) Create(ctx context.Context, input PlanInput) (*models.Plan, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	collection := s.db.Collection(plansCollection)
	now := time.Now().UTC()
	plan := &models.Plan{
		Base:                  models.NewBase(),
		Name:                  input.Name,
		Price:                 input.Price,
		Currency:              input.Currency,
		DurationDays:          input.DurationDays,
		MaxActiveListings:     input.MaxActiveListings,
		QuotaListings:         input.QuotaListings,
		QuotaPhotosPerListing: input.QuotaPhotosPerListing,
		QuotaVideosPerListing: input.QuotaVideosPerListing,
		QuotaBumps:            input.QuotaBumps,
		QuotaFeaturedDays:     input.QuotaFeaturedDays,
		MaxCategories:         input.MaxCategories,
		IsSticky:              input.IsSticky,
		IsFeatured:            input.IsFeatured,
		IsActive:              input.IsActive,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	operation := func() error {
		slug, err := ensureUniqueSlug(ctx, collection, input.Name, utils.SixID{})
		if err != nil {
			return err
		}
		plan.Slug = slug
		_, err = collection.InsertOne(ctx, plan)
		return err
	}
	if err := db.Try(operation); err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: plan slug collision persisted", models.ErrConflict)
		}
		return nil, fmt.Errorf("failed to insert plan %q: %w", input.Name, err)
	}
	return plan, nil
}

func (s *planService) Update(ctx context.Context, id utils.SixID, input PlanInput) (*models.Plan, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	collection := s.db.Collection(plansCollection)

	existing, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	set := bson.M{
		"name":                     input.Name,
		"price":                    input.Price,
		"currency":                 input.Currency,
		"duration_days":            input.DurationDays,
		"max_active_listings":      input.MaxActiveListings,
		"quota_listings":           input.QuotaListings,
		"quota_photos_per_listing": input.QuotaPhotosPerListing,
		"quota_videos_per_listing": input.QuotaVideosPerListing,
		"quota_bumps":              input.QuotaBumps,
		"quota_featured_days":      input.QuotaFeaturedDays,
		"max_categories":           input.MaxCategories,
		"is_sticky":                input.IsSticky,
		"is_featured":              input.IsFeatured,
		"is_active":                input.IsActive,
		"updated_at":               time.Now().UTC(),
	}

	var updated models.Plan
	operation := func() error {
		if input.Name != existing.Name {
			slug, err := ensureUniqueSlug(ctx, collection, input.Name, id)
			if err != nil {
				return err
			}
			set["slug"] = slug
		}
		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		return collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&updated)
	}
	if err := db.Try(operation); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		if db.IsMongoDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: plan slug collision persisted", models.ErrConflict)
		}
		return nil, fmt.Errorf("failed to update plan %s: %w", id.String(), err)
	}
	return &updated, nil
}

// Delete removes a plan. It is rejected while any subscription, live or
// historical, still references the plan.
func (s *planService) Delete(ctx context.Context, id utils.SixID) error {
	refs, err := s.db.Collection(subscriptionsCollection).CountDocuments(ctx, bson.M{"plan_id": id})
	if err != nil {
		return fmt.Errorf("failed to count subscriptions for plan %s: %w", id.String(), err)
	}
	if refs > 0 {
		return fmt.Errorf("%w: plan is referenced by %d subscriptions", models.ErrConflict, refs)
	}

	result, err := s.db.Collection(plansCollection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete plan %s: %w", id.String(), err)
	}
	if result.DeletedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *planService) FindByID(ctx context.Context, id utils.SixID) (*models.Plan, error) {
	var plan models.Plan
	err := s.db.Collection(plansCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&plan)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find plan %s: %w", id.String(), err)
	}
	return &plan, nil
}

func (s *planService) List(ctx context.Context, includeInactive bool) ([]models.Plan, error) {
	filter := bson.M{}
	if !includeInactive {
		filter["is_active"] = true
	}

	cursor, err := s.db.Collection(plansCollection).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "price", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer cursor.Close(ctx)

	var plans []models.Plan
	if err := cursor.All(ctx, &plans); err != nil {
		return nil, fmt.Errorf("failed to decode plans: %w", err)
	}
	return plans, nil
}
