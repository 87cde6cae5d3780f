package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"

	"relove/market/internal/models"
	"relove/market/internal/utils"
)

func setupTestDBPlan(t *testing.T, dbName string) *mongo.Database {
	return utils.SetupTestDB(t, dbName, "plans", "subscriptions")
}

func basicPlanInput() PlanInput {
	return PlanInput{
		Name:              "Basic",
		Price:             9.99,
		Currency:          models.CurrencyUSD,
		DurationDays:      30,
		MaxActiveListings: 10,
		QuotaListings:     10,
		QuotaBumps:        3,
		QuotaFeaturedDays: 0,
		IsActive:          true,
	}
}

func TestPlanService_CRUD(t *testing.T) {
	db := setupTestDBPlan(t, "testdb_plan_service_crud")
	svc := NewPlanService(db)
	ctx := context.Background()

	plan, err := svc.Create(ctx, basicPlanInput())
	assert.NoError(t, err)
	assert.NotNil(t, plan)
	assert.Equal(t, "basic", plan.Slug)
	assert.Equal(t, 10, plan.QuotaListings)

	found, err := svc.FindByID(ctx, plan.ID)
	assert.NoError(t, err)
	assert.Equal(t, plan.ID, found.ID)

	input := basicPlanInput()
	input.Price = 14.99
	input.QuotaBumps = 5
	updated, err := svc.Update(ctx, plan.ID, input)
	assert.NoError(t, err)
	assert.Equal(t, 14.99, updated.Price)
	assert.Equal(t, 5, updated.QuotaBumps)

	err = svc.Delete(ctx, plan.ID)
	assert.NoError(t, err)
	_, err = svc.FindByID(ctx, plan.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPlanService_ListSortedByPrice(t *testing.T) {
	db := setupTestDBPlan(t, "testdb_plan_service_list")
	svc := NewPlanService(db)
	ctx := context.Background()

	premium := basicPlanInput()
	premium.Name = "Premium"
	premium.Price = 29.99
	_, err := svc.Create(ctx, premium)
	assert.NoError(t, err)

	free := basicPlanInput()
	free.Name = "Free"
	free.Price = 0
	_, err = svc.Create(ctx, free)
	assert.NoError(t, err)

	hidden := basicPlanInput()
	hidden.Name = "Legacy"
	hidden.Price = 4.99
	hidden.IsActive = false
	_, err = svc.Create(ctx, hidden)
	assert.NoError(t, err)

	plans, err := svc.List(ctx, false)
	assert.NoError(t, err)
	assert.Len(t, plans, 2)
	assert.Equal(t, "Free", plans[0].Name)
	assert.Equal(t, "Premium", plans[1].Name)

	all, err := svc.List(ctx, true)
	assert.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestPlanService_DeleteInUse(t *testing.T) {
	db := setupTestDBPlan(t, "testdb_plan_service_delete_in_use")
	svc := NewPlanService(db)
	ctx := context.Background()

	plan, err := svc.Create(ctx, basicPlanInput())
	assert.NoError(t, err)

	subscription := models.ProvisionSubscription(utils.NewSixID(), plan, time.Now().UTC())
	_, err = db.Collection("subscriptions").InsertOne(ctx, subscription)
	assert.NoError(t, err)

	err = svc.Delete(ctx, plan.ID)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestPlanService_Validation(t *testing.T) {
	db := setupTestDBPlan(t, "testdb_plan_service_validation")
	svc := NewPlanService(db)
	ctx := context.Background()

	input := basicPlanInput()
	input.Name = ""
	_, err := svc.Create(ctx, input)
	assert.Error(t, err)

	input = basicPlanInput()
	input.Price = -1
	_, err = svc.Create(ctx, input)
	assert.Error(t, err)

	input = basicPlanInput()
	input.DurationDays = 0
	_, err = svc.Create(ctx, input)
	assert.Error(t, err)

	input = basicPlanInput()
	input.QuotaListings = -1
	_, err = svc.Create(ctx, input)
	assert.Error(t, err)
}
