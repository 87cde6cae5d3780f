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

// ICategoryService defines the interface for category tree operations.
type ICategoryService interface {
	Create(ctx context.Context, actor models.Principal, input CreateCategoryInput) (*models.Category, error)
	Update(ctx context.Context, id utils.SixID, patch UpdateCategoryInput) (*models.Category, error)
	Remove(ctx context.Context, id utils.SixID, force bool) error
	FindByID(ctx context.Context, id utils.SixID) (*models.Category, error)
	FindBySlug(ctx context.Context, slug string) (*models.Category, error)
	Tree(ctx context.Context, rootID *utils.SixID, maxDepth int) ([]*models.CategoryNode, error)
	Breadcrumbs(ctx context.Context, id utils.SixID) ([]models.Category, error)
}

const categoriesCollection = "categories"

// maxAncestorWalk bounds every parent-chain traversal. A chain longer than
// this means corrupted data; the walk fails instead of spinning.
const maxAncestorWalk = 64

// CreateCategoryInput carries the fields accepted on category creation.
type CreateCategoryInput struct {
	Name            string       `json:"name"`
	ParentID        *utils.SixID `json:"parent_id,omitempty"`
	IsActive        *bool        `json:"is_active,omitempty"`
	Image           string       `json:"image,omitempty"`
	AttributeSchema bson.M       `json:"attribute_schema,omitempty"`
}

// UpdateCategoryInput carries the patch accepted on category update. Nil
// pointers leave the field untouched; ClearParent moves the category to the
// root level.
type UpdateCategoryInput struct {
	Name            *string      `json:"name,omitempty"`
	Slug            *string      `json:"slug,omitempty"`
	ParentID        *utils.SixID `json:"parent_id,omitempty"`
	ClearParent     bool         `json:"clear_parent,omitempty"`
	IsActive        *bool        `json:"is_active,omitempty"`
	Image           *string      `json:"image,omitempty"`
	AttributeSchema bson.M       `json:"attribute_schema,omitempty"`
}

// categoryService implements ICategoryService.
type categoryService struct {
	db *mongo.Database
}

// NewCategoryService creates a new CategoryService.
func NewCategoryService(database *mongo.Database) ICategoryService {
	return &categoryService{db: database}
}

// Create validates the parent (if given), computes a unique slug and inserts
// the category.
func (s *categoryService) Create(ctx context.Context, actor models.Principal, input CreateCategoryInput) (*models.Category, error) {
	if input.Name == "" {
		return nil, models.NewValidationError("name", "must not be empty")
	}

	collection := s.db.Collection(categoriesCollection)

	if input.ParentID != nil {
		if err := s.requireExists(ctx, *input.ParentID); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	isActive := true
	if input.IsActive != nil {
		isActive = *input.IsActive
	}

	category := &models.Category{
		Base:            models.NewBase(),
		Name:            input.Name,
		ParentID:        input.ParentID,
		IsActive:        isActive,
		Image:           input.Image,
		AttributeSchema: input.AttributeSchema,
		CreatedByID:     actor.UserID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	operation := func() error {
		slug, err := ensureUniqueSlug(ctx, collection, input.Name, utils.SixID{})
		if err != nil {
			return err
		}
		category.Slug = slug
		_, err = collection.InsertOne(ctx, category)
		return err
	}
	if err := db.Try(operation); err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: category slug collision persisted", models.ErrConflict)
		}
		return nil, fmt.Errorf("failed to insert category %q: %w", input.Name, err)
	}

	return category, nil
}

// Update applies a patch. A parent change revalidates acyclicity by walking
// the new parent's ancestor chain toward the root before anything is
// written; the write itself is never relied on to catch a cycle.
func (s *categoryService) Update(ctx context.Context, id utils.SixID, patch UpdateCategoryInput) (*models.Category, error) {
	collection := s.db.Collection(categoriesCollection)

	existing, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	unset := bson.M{}

	switch {
	case patch.ClearParent:
		unset["parent_id"] = ""
	case patch.ParentID != nil:
		newParent := *patch.ParentID
		if newParent == id {
			return nil, fmt.Errorf("%w: category cannot be its own parent", models.ErrCycleDetected)
		}
		if err := s.requireExists(ctx, newParent); err != nil {
			return nil, err
		}
		if err := s.checkAncestorChain(ctx, newParent, id); err != nil {
			return nil, err
		}
		set["parent_id"] = newParent
	}

	if patch.Name != nil {
		if *patch.Name == "" {
			return nil, models.NewValidationError("name", "must not be empty")
		}
		set["name"] = *patch.Name
	}
	if patch.IsActive != nil {
		set["is_active"] = *patch.IsActive
	}
	if patch.Image != nil {
		set["image"] = *patch.Image
	}
	if patch.AttributeSchema != nil {
		set["attribute_schema"] = patch.AttributeSchema
	}

	// Re-slug only on explicit name or slug change.
	slugSource := ""
	if patch.Slug != nil && *patch.Slug != existing.Slug {
		slugSource = *patch.Slug
	} else if patch.Name != nil && *patch.Name != existing.Name {
		slugSource = *patch.Name
	}

	var updated models.Category
	operation := func() error {
		if slugSource != "" {
			slug, err := ensureUniqueSlug(ctx, collection, slugSource, id)
			if err != nil {
				return err
			}
			set["slug"] = slug
		}
		update := bson.M{"$set": set}
		if len(unset) > 0 {
			update["$unset"] = unset
		}
		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		return collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&updated)
	}
	if err := db.Try(operation); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		if db.IsMongoDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: category slug collision persisted", models.ErrConflict)
		}
		return nil, fmt.Errorf("failed to update category %s: %w", id.String(), err)
	}

	return &updated, nil
}

// Remove deletes a category. Without force the delete is rejected while the
// category still has direct children or listings; with force the caller owns
// the consequences (descendants are not reassigned here).
func (s *categoryService) Remove(ctx context.Context, id utils.SixID, force bool) error {
	collection := s.db.Collection(categoriesCollection)

	if !force {
		children, err := collection.CountDocuments(ctx, bson.M{"parent_id": id})
		if err != nil {
			return fmt.Errorf("failed to count children of category %s: %w", id.String(), err)
		}
		if children > 0 {
			return fmt.Errorf("%w: %d direct children", models.ErrHasChildren, children)
		}

		listings, err := s.db.Collection(listingsCollection).CountDocuments(ctx, bson.M{
			"category_id": id,
			"deleted_at":  nil,
		})
		if err != nil {
			return fmt.Errorf("failed to count listings of category %s: %w", id.String(), err)
		}
		if listings > 0 {
			return fmt.Errorf("%w: %d listings", models.ErrHasListings, listings)
		}
	}

	result, err := collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete category %s: %w", id.String(), err)
	}
	if result.DeletedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

// FindByID returns a category by id.
func (s *categoryService) FindByID(ctx context.Context, id utils.SixID) (*models.Category, error) {
	var category models.Category
	err := s.db.Collection(categoriesCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&category)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find category %s: %w", id.String(), err)
	}
	return &category, nil
}

// FindBySlug returns a category by slug.
func (s *categoryService) FindBySlug(ctx context.Context, slug string) (*models.Category, error) {
	var category models.Category
	err := s.db.Collection(categoriesCollection).FindOne(ctx, bson.M{"slug": slug}).Decode(&category)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find category by slug %q: %w", slug, err)
	}
	return &category, nil
}

// Tree loads all categories once and materializes the nested structure,
// truncating at maxDepth so a corrupted tree cannot recurse without bound.
func (s *categoryService) Tree(ctx context.Context, rootID *utils.SixID, maxDepth int) ([]*models.CategoryNode, error) {
	cursor, err := s.db.Collection(categoriesCollection).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to load categories for tree: %w", err)
	}
	defer cursor.Close(ctx)

	var categories []models.Category
	if err := cursor.All(ctx, &categories); err != nil {
		return nil, fmt.Errorf("failed to decode categories for tree: %w", err)
	}

	nodes := BuildCategoryTree(categories, rootID, maxDepth)
	if rootID != nil && len(nodes) == 0 {
		return nil, models.ErrNotFound
	}
	return nodes, nil
}

// BuildCategoryTree buckets categories by parent id and materializes the
// nested structure. With a rootID the result is that single subtree;
// otherwise all root-level categories. maxDepth counts child levels below
// the returned roots; 0 or negative means roots only.
func BuildCategoryTree(categories []models.Category, rootID *utils.SixID, maxDepth int) []*models.CategoryNode {
	byParent := make(map[utils.SixID][]models.Category)
	var roots []models.Category
	for _, c := range categories {
		if c.ParentID == nil {
			roots = append(roots, c)
			continue
		}
		byParent[*c.ParentID] = append(byParent[*c.ParentID], c)
	}

	var attach func(c models.Category, depth int) *models.CategoryNode
	attach = func(c models.Category, depth int) *models.CategoryNode {
		node := &models.CategoryNode{Category: c, Children: []*models.CategoryNode{}}
		if depth <= 0 {
			return node
		}
		for _, child := range byParent[c.ID] {
			node.Children = append(node.Children, attach(child, depth-1))
		}
		return node
	}

	if rootID != nil {
		for _, c := range categories {
			if c.ID == *rootID {
				return []*models.CategoryNode{attach(c, maxDepth)}
			}
		}
		return nil
	}

	result := make([]*models.CategoryNode, 0, len(roots))
	for _, c := range roots {
		result = append(result, attach(c, maxDepth))
	}
	return result
}

// Breadcrumbs walks parent pointers upward from id to the root, prepending
// at each step.
func (s *categoryService) Breadcrumbs(ctx context.Context, id utils.SixID) ([]models.Category, error) {
	current, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	crumbs := []models.Category{*current}
	for steps := 0; current.ParentID != nil; steps++ {
		if steps >= maxAncestorWalk {
			return nil, fmt.Errorf("%w: ancestor chain of %s exceeds %d levels", models.ErrCycleDetected, id.String(), maxAncestorWalk)
		}
		parent, err := s.FindByID(ctx, *current.ParentID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				// Dangling parent pointer: stop at the last known ancestor.
				break
			}
			return nil, err
		}
		crumbs = append([]models.Category{*parent}, crumbs...)
		current = parent
	}
	return crumbs, nil
}

// checkAncestorChain walks from startID toward the root and fails with
// CycleDetected if forbiddenID appears anywhere in the chain.
func (s *categoryService) checkAncestorChain(ctx context.Context, startID, forbiddenID utils.SixID) error {
	currentID := startID
	seen := map[utils.SixID]bool{}

	for steps := 0; ; steps++ {
		if steps >= maxAncestorWalk || seen[currentID] {
			return fmt.Errorf("%w: ancestor chain of %s does not terminate", models.ErrCycleDetected, startID.String())
		}
		seen[currentID] = true

		if currentID == forbiddenID {
			return fmt.Errorf("%w: %s is an ancestor-or-self of the target", models.ErrCycleDetected, forbiddenID.String())
		}

		node, err := s.FindByID(ctx, currentID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil // chain terminated at a dangling pointer
			}
			return err
		}
		if node.ParentID == nil {
			return nil
		}
		currentID = *node.ParentID
	}
}

// requireExists maps a missing category to ErrParentNotFound.
func (s *categoryService) requireExists(ctx context.Context, id utils.SixID) error {
	err := s.db.Collection(categoriesCollection).FindOne(ctx, bson.M{"_id": id}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%w: %s", models.ErrParentNotFound, id.String())
	}
	if err != nil {
		return fmt.Errorf("failed to check category %s: %w", id.String(), err)
	}
	return nil
}
