package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"

	"relove/market/internal/models"
	"relove/market/internal/utils"
)

func setupTestDBCategory(t *testing.T, dbName string) *mongo.Database {
	return utils.SetupTestDB(t, dbName, "categories", "listings")
}

func TestCategoryService_CRUD(t *testing.T) {
	db := setupTestDBCategory(t, "testdb_category_service_crud")
	svc := NewCategoryService(db)
	ctx := context.Background()
	actor := models.Principal{UserID: utils.NewSixID(), IsAdmin: true}

	// Create a root category
	category, err := svc.Create(ctx, actor, CreateCategoryInput{Name: "Vintage Dresses"})
	assert.NoError(t, err)
	assert.NotNil(t, category)
	assert.Equal(t, "vintage-dresses", category.Slug)
	assert.True(t, category.IsActive)

	// Find by id and by slug
	found, err := svc.FindByID(ctx, category.ID)
	assert.NoError(t, err)
	assert.Equal(t, category.ID, found.ID)

	bySlug, err := svc.FindBySlug(ctx, "vintage-dresses")
	assert.NoError(t, err)
	assert.Equal(t, category.ID, bySlug.ID)

	// Same name gets a suffixed slug, counting from 1
	sibling, err := svc.Create(ctx, actor, CreateCategoryInput{Name: "Vintage Dresses"})
	assert.NoError(t, err)
	assert.Equal(t, "vintage-dresses-1", sibling.Slug)

	// And the next collision counts on
	third, err := svc.Create(ctx, actor, CreateCategoryInput{Name: "Vintage Dresses"})
	assert.NoError(t, err)
	assert.Equal(t, "vintage-dresses-2", third.Slug)

	// Rename regenerates the slug
	newName := "Retro Dresses"
	updated, err := svc.Update(ctx, category.ID, UpdateCategoryInput{Name: &newName})
	assert.NoError(t, err)
	assert.Equal(t, "Retro Dresses", updated.Name)
	assert.Equal(t, "retro-dresses", updated.Slug)

	// Update without a name change keeps the slug
	inactive := false
	updated, err = svc.Update(ctx, category.ID, UpdateCategoryInput{IsActive: &inactive})
	assert.NoError(t, err)
	assert.Equal(t, "retro-dresses", updated.Slug)
	assert.False(t, updated.IsActive)

	// Missing category
	_, err = svc.FindByID(ctx, utils.NewSixID())
	assert.ErrorIs(t, err, models.ErrNotFound)

	// Remove
	err = svc.Remove(ctx, sibling.ID, false)
	assert.NoError(t, err)
	_, err = svc.FindByID(ctx, sibling.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCategoryService_ParentValidation(t *testing.T) {
	db := setupTestDBCategory(t, "testdb_category_service_parent")
	svc := NewCategoryService(db)
	ctx := context.Background()
	actor := models.Principal{UserID: utils.NewSixID(), IsAdmin: true}

	// Unknown parent is rejected
	missing := utils.NewSixID()
	_, err := svc.Create(ctx, actor, CreateCategoryInput{Name: "Orphan", ParentID: &missing})
	assert.ErrorIs(t, err, models.ErrParentNotFound)

	root, err := svc.Create(ctx, actor, CreateCategoryInput{Name: "Clothing"})
	assert.NoError(t, err)
	child, err := svc.Create(ctx, actor, CreateCategoryInput{Name: "Shoes", ParentID: &root.ID})
	assert.NoError(t, err)
	grandchild, err := svc.Create(ctx, actor, CreateCategoryInput{Name: "Sneakers", ParentID: &child.ID})
	assert.NoError(t, err)

	// Self-parenting and descendant-parenting both fail
	_, err = svc.Update(ctx, root.ID, UpdateCategoryInput{ParentID: &root.ID})
	assert.ErrorIs(t, err, models.ErrCycleDetected)
	_, err = svc.Update(ctx, root.ID, UpdateCategoryInput{ParentID: &grandchild.ID})
	assert.ErrorIs(t, err, models.ErrCycleDetected)

	// Moving to the root level works
	updated, err := svc.Update(ctx, grandchild.ID, UpdateCategoryInput{ClearParent: true})
	assert.NoError(t, err)
	assert.Nil(t, updated.ParentID)
}

func TestCategoryService_RemoveGuards(t *testing.T) {
	db := setupTestDBCategory(t, "testdb_category_service_remove")
	svc := NewCategoryService(db)
	ctx := context.Background()
	actor := models.Principal{UserID: utils.NewSixID(), IsAdmin: true}

	root, err := svc.Create(ctx, actor, CreateCategoryInput{Name: "Furniture"})
	assert.NoError(t, err)
	child, err := svc.Create(ctx, actor, CreateCategoryInput{Name: "Chairs", ParentID: &root.ID})
	assert.NoError(t, err)

	// A parent with children cannot be removed without force
	err = svc.Remove(ctx, root.ID, false)
	assert.ErrorIs(t, err, models.ErrHasChildren)

	// A category with a live listing cannot be removed either
	listing := models.Listing{
		Base:       models.NewBase(),
		UserID:     actor.UserID,
		CategoryID: child.ID,
		Title:      "Old chair",
		Slug:       "old-chair",
		Status:     models.ListingStatusActive,
	}
	_, err = db.Collection("listings").InsertOne(ctx, listing)
	assert.NoError(t, err)
	err = svc.Remove(ctx, child.ID, false)
	assert.ErrorIs(t, err, models.ErrHasListings)

	// Force overrides both guards
	err = svc.Remove(ctx, root.ID, true)
	assert.NoError(t, err)
	err = svc.Remove(ctx, child.ID, true)
	assert.NoError(t, err)

	err = svc.Remove(ctx, child.ID, true)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCategoryService_TreeAndBreadcrumbs(t *testing.T) {
	db := setupTestDBCategory(t, "testdb_category_service_tree")
	svc := NewCategoryService(db)
	ctx := context.Background()
	actor := models.Principal{UserID: utils.NewSixID(), IsAdmin: true}

	root, _ := svc.Create(ctx, actor, CreateCategoryInput{Name: "Electronics"})
	phones, _ := svc.Create(ctx, actor, CreateCategoryInput{Name: "Phones", ParentID: &root.ID})
	_, _ = svc.Create(ctx, actor, CreateCategoryInput{Name: "Laptops", ParentID: &root.ID})
	android, _ := svc.Create(ctx, actor, CreateCategoryInput{Name: "Android", ParentID: &phones.ID})

	tree, err := svc.Tree(ctx, nil, 6)
	assert.NoError(t, err)
	assert.Len(t, tree, 1)
	assert.Equal(t, root.ID, tree[0].ID)
	assert.Len(t, tree[0].Children, 2)

	// Subtree rooted at phones
	subtree, err := svc.Tree(ctx, &phones.ID, 6)
	assert.NoError(t, err)
	assert.Len(t, subtree, 1)
	assert.Len(t, subtree[0].Children, 1)
	assert.Equal(t, android.ID, subtree[0].Children[0].ID)

	// Unknown root
	missing := utils.NewSixID()
	_, err = svc.Tree(ctx, &missing, 6)
	assert.ErrorIs(t, err, models.ErrNotFound)

	crumbs, err := svc.Breadcrumbs(ctx, android.ID)
	assert.NoError(t, err)
	assert.Len(t, crumbs, 3)
	assert.Equal(t, root.ID, crumbs[0].ID)
	assert.Equal(t, phones.ID, crumbs[1].ID)
	assert.Equal(t, android.ID, crumbs[2].ID)
}

func TestBuildCategoryTree_DepthCap(t *testing.T) {
	// A five-level chain truncated at depth 2.
	ids := make([]utils.SixID, 5)
	categories := make([]models.Category, 5)
	for i := range ids {
		ids[i] = utils.NewSixID()
		categories[i] = models.Category{Base: models.Base{ID: ids[i]}, Name: "L"}
		if i > 0 {
			categories[i].ParentID = &ids[i-1]
		}
	}

	tree := BuildCategoryTree(categories, nil, 2)
	assert.Len(t, tree, 1)
	level1 := tree[0].Children
	assert.Len(t, level1, 1)
	level2 := level1[0].Children
	assert.Len(t, level2, 1)
	assert.Empty(t, level2[0].Children)
}

func TestBuildCategoryTree_CyclicDataDoesNotRecurse(t *testing.T) {
	// Two categories pointing at each other: neither is a root, so the
	// depth-bounded build returns nothing instead of spinning.
	a := utils.NewSixID()
	b := utils.NewSixID()
	categories := []models.Category{
		{Base: models.Base{ID: a}, Name: "A", ParentID: &b},
		{Base: models.Base{ID: b}, Name: "B", ParentID: &a},
	}

	tree := BuildCategoryTree(categories, nil, 6)
	assert.Empty(t, tree)

	// Rooting the build inside the cycle still terminates at the depth cap.
	subtree := BuildCategoryTree(categories, &a, 6)
	assert.Len(t, subtree, 1)
}

func TestCategoryService_BreadcrumbsDanglingParent(t *testing.T) {
	db := setupTestDBCategory(t, "testdb_category_service_dangling")
	svc := NewCategoryService(db)
	ctx := context.Background()

	missing := utils.NewSixID()
	orphan := models.Category{
		Base:     models.Base{ID: utils.NewSixID()},
		Name:     "Orphan",
		Slug:     "orphan",
		ParentID: &missing,
	}
	_, err := db.Collection("categories").InsertOne(ctx, orphan)
	assert.NoError(t, err)

	crumbs, err := svc.Breadcrumbs(ctx, orphan.ID)
	assert.NoError(t, err)
	assert.Len(t, crumbs, 1)
	assert.Equal(t, orphan.ID, crumbs[0].ID)
}

func TestCategoryService_ValidationErrors(t *testing.T) {
	db := setupTestDBCategory(t, "testdb_category_service_validation")
	svc := NewCategoryService(db)
	ctx := context.Background()
	actor := models.Principal{UserID: utils.NewSixID(), IsAdmin: true}

	_, err := svc.Create(ctx, actor, CreateCategoryInput{Name: ""})
	var vErr *models.ValidationError
	assert.True(t, errors.As(err, &vErr))
	assert.Equal(t, "name", vErr.Field)
}
