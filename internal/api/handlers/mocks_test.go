package handlers_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"relove/market/internal/models"
	"relove/market/internal/services"
	"relove/market/internal/utils"
)

// --- Mocks ---

// MockCategoryService
type MockCategoryService struct {
	mock.Mock
}

func (m *MockCategoryService) Create(ctx context.Context, actor models.Principal, input services.CreateCategoryInput) (*models.Category, error) {
	args := m.Called(ctx, actor, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Category), args.Error(1)
}
func (m *MockCategoryService) Update(ctx context.Context, id utils.SixID, patch services.UpdateCategoryInput) (*models.Category, error) {
	args := m.Called(ctx, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Category), args.Error(1)
}
func (m *MockCategoryService) Remove(ctx context.Context, id utils.SixID, force bool) error {
	args := m.Called(ctx, id, force)
	return args.Error(0)
}
func (m *MockCategoryService) FindByID(ctx context.Context, id utils.SixID) (*models.Category, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Category), args.Error(1)
}
func (m *MockCategoryService) FindBySlug(ctx context.Context, slug string) (*models.Category, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Category), args.Error(1)
}
func (m *MockCategoryService) Tree(ctx context.Context, rootID *utils.SixID, maxDepth int) ([]*models.CategoryNode, error) {
	args := m.Called(ctx, rootID, maxDepth)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.CategoryNode), args.Error(1)
}
func (m *MockCategoryService) Breadcrumbs(ctx context.Context, id utils.SixID) ([]models.Category, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Category), args.Error(1)
}

// MockListingService
type MockListingService struct {
	mock.Mock
}

func (m *MockListingService) Create(ctx context.Context, actor models.Principal, input services.CreateListingInput) (*models.Listing, error) {
	args := m.Called(ctx, actor, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}
func (m *MockListingService) Update(ctx context.Context, actor models.Principal, listingID utils.SixID, input services.UpdateListingInput) (*models.Listing, error) {
	args := m.Called(ctx, actor, listingID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}
func (m *MockListingService) Remove(ctx context.Context, actor models.Principal, listingID utils.SixID, force bool) error {
	args := m.Called(ctx, actor, listingID, force)
	return args.Error(0)
}
func (m *MockListingService) FindByID(ctx context.Context, listingID utils.SixID) (*models.Listing, error) {
	args := m.Called(ctx, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}
func (m *MockListingService) FindBySlug(ctx context.Context, slug string) (*models.Listing, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}
func (m *MockListingService) List(ctx context.Context, filter services.ListingFilter, sort string, page, pageSize int) (*services.ListResult, error) {
	args := m.Called(ctx, filter, sort, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ListResult), args.Error(1)
}
func (m *MockListingService) ListPublic(ctx context.Context, filter services.ListingFilter, sortName, cursor string, limit int) (*services.PublicResult, error) {
	args := m.Called(ctx, filter, sortName, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.PublicResult), args.Error(1)
}
func (m *MockListingService) Publish(ctx context.Context, actor models.Principal, listingID utils.SixID) (*models.Listing, error) {
	args := m.Called(ctx, actor, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}
func (m *MockListingService) Bump(ctx context.Context, actor models.Principal, listingID utils.SixID) (*models.Listing, error) {
	args := m.Called(ctx, actor, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}
func (m *MockListingService) Feature(ctx context.Context, actor models.Principal, listingID utils.SixID, days int) (*models.Listing, error) {
	args := m.Called(ctx, actor, listingID, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}
func (m *MockListingService) AddFavorite(ctx context.Context, actor models.Principal, listingID utils.SixID) error {
	args := m.Called(ctx, actor, listingID)
	return args.Error(0)
}
func (m *MockListingService) RemoveFavorite(ctx context.Context, actor models.Principal, listingID utils.SixID) error {
	args := m.Called(ctx, actor, listingID)
	return args.Error(0)
}
func (m *MockListingService) ApplyViewCounts(ctx context.Context, counts map[string]int64) error {
	args := m.Called(ctx, counts)
	return args.Error(0)
}
func (m *MockListingService) ExpireFeatured(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockPlanService
type MockPlanService struct {
	mock.Mock
}

func (m *MockPlanService) Create(ctx context.Context, input services.PlanInput) (*models.Plan, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Plan), args.Error(1)
}
func (m *MockPlanService) Update(ctx context.Context, id utils.SixID, input services.PlanInput) (*models.Plan, error) {
	args := m.Called(ctx, id, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Plan), args.Error(1)
}
func (m *MockPlanService) Delete(ctx context.Context, id utils.SixID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *MockPlanService) FindByID(ctx context.Context, id utils.SixID) (*models.Plan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Plan), args.Error(1)
}
func (m *MockPlanService) List(ctx context.Context, includeInactive bool) ([]models.Plan, error) {
	args := m.Called(ctx, includeInactive)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Plan), args.Error(1)
}

// MockSubscriptionService
type MockSubscriptionService struct {
	mock.Mock
}

func (m *MockSubscriptionService) Assign(ctx context.Context, userID, planID utils.SixID) (*models.Subscription, error) {
	args := m.Called(ctx, userID, planID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}
func (m *MockSubscriptionService) Extend(ctx context.Context, userID utils.SixID, days int) (*models.Subscription, error) {
	args := m.Called(ctx, userID, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}
func (m *MockSubscriptionService) ChangePlan(ctx context.Context, userID, planID utils.SixID) (*models.Subscription, error) {
	args := m.Called(ctx, userID, planID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}
func (m *MockSubscriptionService) Cancel(ctx context.Context, userID utils.SixID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}
func (m *MockSubscriptionService) Current(ctx context.Context, userID utils.SixID) (*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}
func (m *MockSubscriptionService) History(ctx context.Context, userID utils.SixID) ([]models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Subscription), args.Error(1)
}
func (m *MockSubscriptionService) ConsumeListing(ctx context.Context, userID utils.SixID) (*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}
func (m *MockSubscriptionService) ConsumeBump(ctx context.Context, userID utils.SixID) (*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}
func (m *MockSubscriptionService) ConsumeFeaturedDays(ctx context.Context, userID utils.SixID, days int) (*models.Subscription, error) {
	args := m.Called(ctx, userID, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}
func (m *MockSubscriptionService) RefundListing(ctx context.Context, subscriptionID utils.SixID) error {
	args := m.Called(ctx, subscriptionID)
	return args.Error(0)
}
func (m *MockSubscriptionService) RefundBump(ctx context.Context, subscriptionID utils.SixID) error {
	args := m.Called(ctx, subscriptionID)
	return args.Error(0)
}
func (m *MockSubscriptionService) RefundFeaturedDays(ctx context.Context, subscriptionID utils.SixID, days int) error {
	args := m.Called(ctx, subscriptionID, days)
	return args.Error(0)
}
func (m *MockSubscriptionService) HandlePaymentSucceeded(ctx context.Context, orderID string, userID, planID utils.SixID) (*models.Subscription, error) {
	args := m.Called(ctx, orderID, userID, planID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}
func (m *MockSubscriptionService) ExpireLapsed(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}
