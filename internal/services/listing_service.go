package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"relove/market/internal/config"
	"relove/market/internal/db"
	"relove/market/internal/models"
	"relove/market/internal/utils"
)

// IListingService defines the interface for the listing catalog: CRUD, the
// offset- and cursor-paginated query engine, and the quota-gated write path.
type IListingService interface {
	Create(ctx context.Context, actor models.Principal, input CreateListingInput) (*models.Listing, error)
	Update(ctx context.Context, actor models.Principal, listingID utils.SixID, input UpdateListingInput) (*models.Listing, error)
	Remove(ctx context.Context, actor models.Principal, listingID utils.SixID, force bool) error
	FindByID(ctx context.Context, listingID utils.SixID) (*models.Listing, error)
	FindBySlug(ctx context.Context, slug string) (*models.Listing, error)

	List(ctx context.Context, filter ListingFilter, sort string, page, pageSize int) (*ListResult, error)
	ListPublic(ctx context.Context, filter ListingFilter, sortName, cursor string, limit int) (*PublicResult, error)

	Publish(ctx context.Context, actor models.Principal, listingID utils.SixID) (*models.Listing, error)
	Bump(ctx context.Context, actor models.Principal, listingID utils.SixID) (*models.Listing, error)
	Feature(ctx context.Context, actor models.Principal, listingID utils.SixID, days int) (*models.Listing, error)

	AddFavorite(ctx context.Context, actor models.Principal, listingID utils.SixID) error
	RemoveFavorite(ctx context.Context, actor models.Principal, listingID utils.SixID) error

	ApplyViewCounts(ctx context.Context, counts map[string]int64) error
	ExpireFeatured(ctx context.Context) (int64, error)
}

const (
	listingsCollection  = "listings"
	favoritesCollection = "favorites"
)

// listingService implements IListingService.
type listingService struct {
	db            *mongo.Database
	cfg           *config.Config
	subscriptions ISubscriptionService
}

// NewListingService creates a new ListingService. The subscription ledger is
// consulted (and decremented) on every quota-gated write.
func NewListingService(database *mongo.Database, cfg *config.Config, subscriptions ISubscriptionService) IListingService {
	return &listingService{db: database, cfg: cfg, subscriptions: subscriptions}
}

// --- Inputs and results ---

// CreateListingInput carries the fields accepted on listing creation.
// OwnerID, SkipQuota and Status are honored for admin callers only.
type CreateListingInput struct {
	CategoryID     utils.SixID             `json:"category_id"`
	Title          string                  `json:"title"`
	Description    string                  `json:"description"`
	Price          float64                 `json:"price"`
	Currency       models.Currency         `json:"currency"`
	Condition      models.ListingCondition `json:"condition"`
	Negotiable     bool                    `json:"negotiable"`
	IsPhoneVisible bool                    `json:"is_phone_visible"`
	Images         []models.ListingImage   `json:"images"`
	Location       *models.ListingLocation `json:"location,omitempty"`
	Publish        bool                    `json:"publish"`
	OwnerID        *utils.SixID            `json:"owner_id,omitempty"`
	SkipQuota      bool                    `json:"skip_quota,omitempty"`
	Status         models.ListingStatus    `json:"status,omitempty"`
}

// UpdateListingInput carries the patch accepted on listing update. Nil
// pointers leave the field untouched.
type UpdateListingInput struct {
	Title          *string                  `json:"title,omitempty"`
	Description    *string                  `json:"description,omitempty"`
	Price          *float64                 `json:"price,omitempty"`
	Currency       *models.Currency         `json:"currency,omitempty"`
	Condition      *models.ListingCondition `json:"condition,omitempty"`
	Negotiable     *bool                    `json:"negotiable,omitempty"`
	IsPhoneVisible *bool                    `json:"is_phone_visible,omitempty"`
	Images         *[]models.ListingImage   `json:"images,omitempty"`
	Location       *models.ListingLocation  `json:"location,omitempty"`
	CategoryID     *utils.SixID             `json:"category_id,omitempty"`
	Status         *models.ListingStatus    `json:"status,omitempty"`
}

// ListingFilter is the conjunctive filter vocabulary of the query engine.
// Zero values mean "no constraint".
type ListingFilter struct {
	Query       string
	CategoryID  *utils.SixID
	UserID      *utils.SixID
	Statuses    []models.ListingStatus
	Conditions  []models.ListingCondition
	Currency    *models.Currency
	PriceMin    *float64
	PriceMax    *float64
	CountryCode string
	State       string
	City        string
	Area        string
	Featured    *bool
}

// Pagination is the offset-pagination envelope.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// ListResult is the authenticated/admin view result.
type ListResult struct {
	Items      []models.Listing `json:"items"`
	Pagination Pagination       `json:"pagination"`
}

// PublicListing is the flattened public record: plain fields plus category
// and location summaries, ready for serialization.
type PublicListing struct {
	ID              utils.SixID             `json:"id"`
	Title           string                  `json:"title"`
	Slug            string                  `json:"slug"`
	Description     string                  `json:"description"`
	Price           float64                 `json:"price"`
	Currency        models.Currency         `json:"currency"`
	Condition       models.ListingCondition `json:"condition"`
	Status          models.ListingStatus    `json:"status"`
	Negotiable      bool                    `json:"negotiable"`
	IsFeatured      bool                    `json:"is_featured"`
	ViewsCount      int64                   `json:"views_count"`
	FavoritesCount  int64                   `json:"favorites_count"`
	PrimaryImageURL string                  `json:"primary_image_url,omitempty"`
	Category        *models.CategorySummary `json:"category,omitempty"`
	Location        *models.ListingLocation `json:"location,omitempty"`
	PublishedAt     *time.Time              `json:"published_at,omitempty"`
}

// PublicResult is the cursor-paginated public view result. NextCursor is nil
// at end of stream.
type PublicResult struct {
	Items      []PublicListing `json:"items"`
	NextCursor *string         `json:"next_cursor"`
}

// --- Sorting ---

// listSortFields is the allow-list for the authenticated view's
// field:direction sort parameter, mapped to stored field names.
var listSortFields = map[string]string{
	"id":             "_id",
	"title":          "title",
	"slug":           "slug",
	"price":          "price",
	"createdAt":      "created_at",
	"updatedAt":      "updated_at",
	"publishedAt":    "published_at",
	"viewsCount":     "views_count",
	"favoritesCount": "favorites_count",
	"status":         "status",
}

// ParseListSort parses a comma-separated "field:direction" list against the
// allow-list. Unknown fields are silently dropped; if nothing valid
// survives, the default createdAt:desc applies. A trailing _id tie-break is
// always appended so offset pages are stable too.
func ParseListSort(sort string) bson.D {
	var result bson.D
	seen := map[string]bool{}

	for _, part := range strings.Split(sort, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field := part
		direction := 1
		if idx := strings.IndexByte(part, ':'); idx >= 0 {
			field = part[:idx]
			if strings.EqualFold(part[idx+1:], "desc") {
				direction = -1
			}
		}
		stored, ok := listSortFields[field]
		if !ok || seen[stored] {
			continue // permissive degrade: drop unknown fields, no error
		}
		seen[stored] = true
		result = append(result, bson.E{Key: stored, Value: direction})
	}

	if len(result) == 0 {
		result = bson.D{{Key: "created_at", Value: -1}}
		seen["created_at"] = true
	}
	if !seen["_id"] {
		result = append(result, bson.E{Key: "_id", Value: -1})
	}
	return result
}

// sortKey is one component of a fixed public ordering.
type sortKey struct {
	field string
	desc  bool
}

// publicSortKeys maps the public sort names to their tie-broken orderings.
// The trailing _id key is mandatory: it makes the order total, which is what
// keeps cursor pages stable when the primary key has duplicates.
func publicSortKeys(name string) []sortKey {
	var keys []sortKey
	switch name {
	case "popular":
		keys = []sortKey{{"views_count", true}}
	case "featured":
		keys = []sortKey{{"is_featured", true}, {"featured_until", true}}
	case "price_asc":
		keys = []sortKey{{"price", false}}
	case "price_desc":
		keys = []sortKey{{"price", true}}
	default: // newest
		keys = []sortKey{{"published_at", true}}
	}
	return append(keys, sortKey{"_id", true})
}

func sortKeysToBson(keys []sortKey) bson.D {
	d := make(bson.D, 0, len(keys))
	for _, k := range keys {
		direction := 1
		if k.desc {
			direction = -1
		}
		d = append(d, bson.E{Key: k.field, Value: direction})
	}
	return d
}

// cursorPositionFilter constrains the query to rows at or after the cursor
// row's position in the total order defined by keys. The position itself is
// included: the cursor identifies the first row of the next page.
func cursorPositionFilter(keys []sortKey, values []interface{}) bson.M {
	clauses := make(bson.A, 0, len(keys))
	for i, key := range keys {
		clause := bson.M{}
		for j := 0; j < i; j++ {
			clause[keys[j].field] = values[j]
		}
		op := "$lt"
		if !key.desc {
			op = "$gt"
		}
		if i == len(keys)-1 {
			// The final key is _id, which is unique: inclusive comparison
			// here admits exactly the cursor row and everything after it.
			op = "$lte"
			if !key.desc {
				op = "$gte"
			}
		}
		clause[key.field] = bson.M{op: values[i]}
		clauses = append(clauses, clause)
	}
	return bson.M{"$or": clauses}
}

// sortKeyValue extracts a listing's value for one sort key field.
func sortKeyValue(l *models.Listing, field string) interface{} {
	switch field {
	case "published_at":
		return l.PublishedAt
	case "views_count":
		return l.ViewsCount
	case "is_featured":
		return l.IsFeatured
	case "featured_until":
		return l.FeaturedUntil
	case "price":
		return l.Price
	case "_id":
		return l.ID
	default:
		return nil
	}
}

// --- Filtering ---

// buildListingFilter translates the filter vocabulary into a Mongo filter.
// Soft-deleted rows are excluded unconditionally: {"deleted_at": nil}
// matches both a missing field and an explicit null.
func buildListingFilter(f ListingFilter) bson.M {
	filter := bson.M{"deleted_at": nil}

	if f.Query != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(f.Query), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"title": re},
			bson.M{"description": re},
		}
	}
	if f.CategoryID != nil {
		filter["category_id"] = *f.CategoryID
	}
	if f.UserID != nil {
		filter["user_id"] = *f.UserID
	}
	if len(f.Statuses) == 1 {
		filter["status"] = f.Statuses[0]
	} else if len(f.Statuses) > 1 {
		filter["status"] = bson.M{"$in": f.Statuses}
	}
	if len(f.Conditions) == 1 {
		filter["condition"] = f.Conditions[0]
	} else if len(f.Conditions) > 1 {
		filter["condition"] = bson.M{"$in": f.Conditions}
	}
	if f.Currency != nil {
		filter["currency"] = *f.Currency
	}
	if f.PriceMin != nil || f.PriceMax != nil {
		price := bson.M{}
		if f.PriceMin != nil {
			price["$gte"] = *f.PriceMin
		}
		if f.PriceMax != nil {
			price["$lte"] = *f.PriceMax
		}
		filter["price"] = price
	}
	if f.CountryCode != "" {
		filter["location.country_code"] = strings.ToUpper(f.CountryCode)
	}
	if f.State != "" {
		filter["location.state"] = f.State
	}
	if f.City != "" {
		filter["location.city"] = f.City
	}
	if f.Area != "" {
		filter["location.area"] = f.Area
	}
	if f.Featured != nil {
		filter["is_featured"] = *f.Featured
	}
	return filter
}

// --- Query engine ---

// List is the authenticated/internal view: conjunctive filters, allow-listed
// multi-field sort, offset pagination with a clamped page size.
func (s *listingService) List(ctx context.Context, filter ListingFilter, sort string, page, pageSize int) (*ListResult, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = s.cfg.DefaultPageSize
	}
	if pageSize > s.cfg.MaxPageSize {
		pageSize = s.cfg.MaxPageSize
	}

	collection := s.db.Collection(listingsCollection)
	mongoFilter := buildListingFilter(filter)

	total, err := collection.CountDocuments(ctx, mongoFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to count listings: %w", err)
	}

	opts := options.Find().
		SetSort(ParseListSort(sort)).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))

	cursor, err := collection.Find(ctx, mongoFilter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer cursor.Close(ctx)

	items := []models.Listing{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode listings: %w", err)
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return &ListResult{
		Items: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
		},
	}, nil
}

// ListPublic is the public view: the same filter vocabulary restricted to
// safe fields, status forced to ACTIVE, a fixed tie-broken ordering and
// cursor pagination. The cursor is the id of the first row of the next
// page; iteration is forward-only and restartable from any retained cursor.
func (s *listingService) ListPublic(ctx context.Context, filter ListingFilter, sortName, cursor string, limit int) (*PublicResult, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = s.cfg.DefaultPageSize
	}
	if limit > s.cfg.PublicSearchMaxLimit {
		limit = s.cfg.PublicSearchMaxLimit
	}

	// Public view never exposes drafts, moderation states or other users'
	// archived rows.
	filter.Statuses = []models.ListingStatus{models.ListingStatusActive}
	filter.UserID = nil

	collection := s.db.Collection(listingsCollection)
	mongoFilter := buildListingFilter(filter)
	keys := publicSortKeys(sortName)

	if cursor != "" {
		cursorID, err := utils.ParseSixID(cursor)
		if err != nil {
			return nil, models.NewValidationError("cursor", "malformed cursor")
		}
		var row models.Listing
		if err := collection.FindOne(ctx, bson.M{"_id": cursorID}).Decode(&row); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, models.NewValidationError("cursor", "unknown cursor")
			}
			return nil, fmt.Errorf("failed to resolve cursor %s: %w", cursor, err)
		}
		values := make([]interface{}, len(keys))
		for i, k := range keys {
			values[i] = sortKeyValue(&row, k.field)
		}
		mongoFilter["$and"] = bson.A{cursorPositionFilter(keys, values)}
	}

	opts := options.Find().
		SetSort(sortKeysToBson(keys)).
		SetLimit(int64(limit + 1))

	listCursor, err := collection.Find(ctx, mongoFilter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query public listings: %w", err)
	}
	defer listCursor.Close(ctx)

	var rows []models.Listing
	if err := listCursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode public listings: %w", err)
	}

	var nextCursor *string
	if len(rows) > limit {
		next := rows[limit].ID.String()
		nextCursor = &next
		rows = rows[:limit]
	}

	items, err := s.toPublicListings(ctx, rows)
	if err != nil {
		return nil, err
	}
	return &PublicResult{Items: items, NextCursor: nextCursor}, nil
}

// toPublicListings flattens rows and resolves category summaries in one
// batched lookup.
func (s *listingService) toPublicListings(ctx context.Context, rows []models.Listing) ([]PublicListing, error) {
	items := make([]PublicListing, 0, len(rows))
	if len(rows) == 0 {
		return items, nil
	}

	categoryIDs := make([]utils.SixID, 0, len(rows))
	seen := map[utils.SixID]bool{}
	for _, row := range rows {
		if !seen[row.CategoryID] {
			seen[row.CategoryID] = true
			categoryIDs = append(categoryIDs, row.CategoryID)
		}
	}

	cursor, err := s.db.Collection(categoriesCollection).Find(ctx, bson.M{"_id": bson.M{"$in": categoryIDs}})
	if err != nil {
		return nil, fmt.Errorf("failed to load category summaries: %w", err)
	}
	defer cursor.Close(ctx)

	var categories []models.Category
	if err := cursor.All(ctx, &categories); err != nil {
		return nil, fmt.Errorf("failed to decode category summaries: %w", err)
	}
	summaries := make(map[utils.SixID]*models.CategorySummary, len(categories))
	for _, c := range categories {
		summaries[c.ID] = &models.CategorySummary{ID: c.ID, Name: c.Name, Slug: c.Slug}
	}

	for _, row := range rows {
		items = append(items, PublicListing{
			ID:              row.ID,
			Title:           row.Title,
			Slug:            row.Slug,
			Description:     row.Description,
			Price:           row.Price,
			Currency:        row.Currency,
			Condition:       row.Condition,
			Status:          row.Status,
			Negotiable:      row.Negotiable,
			IsFeatured:      row.IsFeatured,
			ViewsCount:      row.ViewsCount,
			FavoritesCount:  row.FavoritesCount,
			PrimaryImageURL: row.PrimaryImageURL(),
			Category:        summaries[row.CategoryID],
			Location:        row.Location,
			PublishedAt:     row.PublishedAt,
		})
	}
	return items, nil
}

// --- Reads ---

// FindByID finds a non-deleted listing by id.
func (s *listingService) FindByID(ctx context.Context, listingID utils.SixID) (*models.Listing, error) {
	var listing models.Listing
	err := s.db.Collection(listingsCollection).FindOne(ctx, bson.M{
		"_id":        listingID,
		"deleted_at": nil,
	}).Decode(&listing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find listing %s: %w", listingID.String(), err)
	}
	return &listing, nil
}

// FindBySlug finds a non-deleted listing by slug.
func (s *listingService) FindBySlug(ctx context.Context, slug string) (*models.Listing, error) {
	var listing models.Listing
	err := s.db.Collection(listingsCollection).FindOne(ctx, bson.M{
		"slug":       slug,
		"deleted_at": nil,
	}).Decode(&listing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find listing by slug %q: %w", slug, err)
	}
	return &listing, nil
}

// --- Writes ---

// Create is the quota-gated write path: validate, consume one listing
// allotment from the ledger, then insert. The consume is a guarded atomic
// decrement, so two concurrent creations cannot both pass on the last unit;
// if the insert fails afterwards the allotment is refunded.
func (s *listingService) Create(ctx context.Context, actor models.Principal, input CreateListingInput) (*models.Listing, error) {
	if err := validateListingInput(input); err != nil {
		return nil, err
	}

	ownerID := actor.UserID
	if input.OwnerID != nil {
		if !actor.IsAdmin {
			return nil, fmt.Errorf("%w: only admins may create listings for other users", models.ErrForbidden)
		}
		ownerID = *input.OwnerID
	}

	if err := s.checkImageCap(ctx, ownerID, input.Images); err != nil {
		return nil, err
	}

	category, err := s.findCategory(ctx, input.CategoryID)
	if err != nil {
		return nil, err
	}
	if !category.IsActive {
		return nil, models.NewValidationError("category_id", "category is not active")
	}

	now := time.Now().UTC()
	status := models.ListingStatusDraft
	var publishedAt *time.Time
	switch {
	case actor.IsAdmin && input.Status != "":
		if !models.ValidListingStatus(input.Status) {
			return nil, models.NewValidationError("status", "unknown status")
		}
		status = input.Status
	case input.Publish:
		status = models.ListingStatusActive
	}
	if status == models.ListingStatusActive {
		publishedAt = &now
	}

	var subscription *models.Subscription
	if !(actor.IsAdmin && input.SkipQuota) {
		subscription, err = s.subscriptions.ConsumeListing(ctx, ownerID)
		if err != nil {
			return nil, err
		}
	}

	listing := &models.Listing{
		Base:           models.NewBase(),
		UserID:         ownerID,
		CategoryID:     input.CategoryID,
		Title:          input.Title,
		Description:    input.Description,
		Price:          input.Price,
		Currency:       input.Currency,
		Condition:      input.Condition,
		Status:         status,
		Negotiable:     input.Negotiable,
		IsPhoneVisible: input.IsPhoneVisible,
		Images:         normalizeImages(input.Images),
		Location:       input.Location,
		CreatedAt:      now,
		UpdatedAt:      now,
		PublishedAt:    publishedAt,
	}

	collection := s.db.Collection(listingsCollection)
	operation := func() error {
		slug, err := ensureUniqueSlug(ctx, collection, input.Title, utils.SixID{})
		if err != nil {
			return err
		}
		listing.Slug = slug
		_, err = collection.InsertOne(ctx, listing)
		return err
	}
	if err := db.Try(operation); err != nil {
		if subscription != nil {
			if refundErr := s.subscriptions.RefundListing(ctx, subscription.ID); refundErr != nil {
				err = fmt.Errorf("%w (quota refund also failed: %v)", err, refundErr)
			}
		}
		if db.IsMongoDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: listing slug collision persisted", models.ErrConflict)
		}
		return nil, fmt.Errorf("failed to insert listing for user %s: %w", ownerID.String(), err)
	}

	return listing, nil
}

// ownerStatusTargets are the transitions a non-admin owner may request.
var ownerStatusTargets = map[models.ListingStatus]bool{
	models.ListingStatusActive:   true,
	models.ListingStatusPaused:   true,
	models.ListingStatusSold:     true,
	models.ListingStatusArchived: true,
	models.ListingStatusDraft:    true,
}

// Update applies a patch under the owner-or-admin policy. The slug is
// regenerated only when the title actually changes; the uniqueness probe
// excludes the row's own id and the write runs under db.Try, so a rename
// race cannot leave two live rows with the same slug.
func (s *listingService) Update(ctx context.Context, actor models.Principal, listingID utils.SixID, input UpdateListingInput) (*models.Listing, error) {
	existing, err := s.FindByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !actor.CanMutate(existing.UserID) {
		return nil, fmt.Errorf("%w: listing %s is not owned by the caller", models.ErrForbidden, listingID.String())
	}

	now := time.Now().UTC()
	set := bson.M{"updated_at": now}

	if input.Title != nil {
		if *input.Title == "" {
			return nil, models.NewValidationError("title", "must not be empty")
		}
		set["title"] = *input.Title
	}
	if input.Description != nil {
		set["description"] = *input.Description
	}
	if input.Price != nil {
		if *input.Price < 0 {
			return nil, models.NewValidationError("price", "must not be negative")
		}
		set["price"] = *input.Price
	}
	if input.Currency != nil {
		if !models.ValidCurrency(*input.Currency) {
			return nil, models.NewValidationError("currency", "unknown currency")
		}
		set["currency"] = *input.Currency
	}
	if input.Condition != nil {
		if !models.ValidListingCondition(*input.Condition) {
			return nil, models.NewValidationError("condition", "unknown condition")
		}
		set["condition"] = *input.Condition
	}
	if input.Negotiable != nil {
		set["negotiable"] = *input.Negotiable
	}
	if input.IsPhoneVisible != nil {
		set["is_phone_visible"] = *input.IsPhoneVisible
	}
	if input.Images != nil {
		if err := validateImages(*input.Images); err != nil {
			return nil, err
		}
		if err := s.checkImageCap(ctx, existing.UserID, *input.Images); err != nil {
			return nil, err
		}
		set["images"] = normalizeImages(*input.Images)
	}
	if input.Location != nil {
		set["location"] = input.Location
	}
	if input.CategoryID != nil {
		category, err := s.findCategory(ctx, *input.CategoryID)
		if err != nil {
			return nil, err
		}
		if !category.IsActive {
			return nil, models.NewValidationError("category_id", "category is not active")
		}
		set["category_id"] = *input.CategoryID
	}
	if input.Status != nil {
		target := *input.Status
		if !models.ValidListingStatus(target) {
			return nil, models.NewValidationError("status", "unknown status")
		}
		if !actor.IsAdmin && !ownerStatusTargets[target] {
			return nil, fmt.Errorf("%w: status %s requires admin", models.ErrForbidden, target)
		}
		set["status"] = target
		if target == models.ListingStatusActive && existing.PublishedAt == nil {
			set["published_at"] = now
		}
	}

	titleChanged := input.Title != nil && *input.Title != existing.Title

	collection := s.db.Collection(listingsCollection)
	var updated models.Listing
	operation := func() error {
		if titleChanged {
			slug, err := ensureUniqueSlug(ctx, collection, *input.Title, listingID)
			if err != nil {
				return err
			}
			set["slug"] = slug
		}
		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		return collection.FindOneAndUpdate(ctx,
			bson.M{"_id": listingID, "deleted_at": nil},
			bson.M{"$set": set},
			opts,
		).Decode(&updated)
	}
	if err := db.Try(operation); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		if db.IsMongoDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: listing slug collision persisted", models.ErrConflict)
		}
		return nil, fmt.Errorf("failed to update listing %s: %w", listingID.String(), err)
	}
	return &updated, nil
}

// Remove soft-deletes by default; force performs an irreversible hard
// delete, taking the listing's favorites with it.
func (s *listingService) Remove(ctx context.Context, actor models.Principal, listingID utils.SixID, force bool) error {
	existing, err := s.FindByID(ctx, listingID)
	if err != nil {
		return err
	}
	if !actor.CanMutate(existing.UserID) {
		return fmt.Errorf("%w: listing %s is not owned by the caller", models.ErrForbidden, listingID.String())
	}

	collection := s.db.Collection(listingsCollection)

	if force {
		if _, err := collection.DeleteOne(ctx, bson.M{"_id": listingID}); err != nil {
			return fmt.Errorf("failed to hard-delete listing %s: %w", listingID.String(), err)
		}
		if _, err := s.db.Collection(favoritesCollection).DeleteMany(ctx, bson.M{"listing_id": listingID}); err != nil {
			return fmt.Errorf("failed to delete favorites of listing %s: %w", listingID.String(), err)
		}
		return nil
	}

	now := time.Now().UTC()
	result, err := collection.UpdateOne(ctx,
		bson.M{"_id": listingID, "deleted_at": nil},
		bson.M{"$set": bson.M{"deleted_at": now, "updated_at": now}},
	)
	if err != nil {
		return fmt.Errorf("failed to soft-delete listing %s: %w", listingID.String(), err)
	}
	if result.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Publish transitions a draft to ACTIVE, stamping published_at.
func (s *listingService) Publish(ctx context.Context, actor models.Principal, listingID utils.SixID) (*models.Listing, error) {
	existing, err := s.FindByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !actor.CanMutate(existing.UserID) {
		return nil, fmt.Errorf("%w: listing %s is not owned by the caller", models.ErrForbidden, listingID.String())
	}

	now := time.Now().UTC()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Listing
	err = s.db.Collection(listingsCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": listingID, "deleted_at": nil, "status": models.ListingStatusDraft},
		bson.M{"$set": bson.M{
			"status":       models.ListingStatusActive,
			"published_at": now,
			"updated_at":   now,
		}},
		opts,
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: listing %s is not a draft", models.ErrConflict, listingID.String())
		}
		return nil, fmt.Errorf("failed to publish listing %s: %w", listingID.String(), err)
	}
	return &updated, nil
}

// Bump consumes one bump allotment and refreshes published_at, moving the
// listing to the top of the newest ordering.
func (s *listingService) Bump(ctx context.Context, actor models.Principal, listingID utils.SixID) (*models.Listing, error) {
	existing, err := s.FindByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !actor.CanMutate(existing.UserID) {
		return nil, fmt.Errorf("%w: listing %s is not owned by the caller", models.ErrForbidden, listingID.String())
	}
	if existing.Status != models.ListingStatusActive {
		return nil, fmt.Errorf("%w: only active listings can be bumped", models.ErrConflict)
	}

	subscription, err := s.subscriptions.ConsumeBump(ctx, existing.UserID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Listing
	err = s.db.Collection(listingsCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": listingID, "deleted_at": nil, "status": models.ListingStatusActive},
		bson.M{"$set": bson.M{"published_at": now, "updated_at": now}},
		opts,
	).Decode(&updated)
	if err != nil {
		if refundErr := s.subscriptions.RefundBump(ctx, subscription.ID); refundErr != nil {
			err = fmt.Errorf("%w (bump refund also failed: %v)", err, refundErr)
		}
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to bump listing %s: %w", listingID.String(), err)
	}
	return &updated, nil
}

// Feature consumes featured-day allotments and marks the listing featured
// until now+days.
func (s *listingService) Feature(ctx context.Context, actor models.Principal, listingID utils.SixID, days int) (*models.Listing, error) {
	if days <= 0 {
		return nil, models.NewValidationError("days", "must be positive")
	}

	existing, err := s.FindByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !actor.CanMutate(existing.UserID) {
		return nil, fmt.Errorf("%w: listing %s is not owned by the caller", models.ErrForbidden, listingID.String())
	}
	if existing.Status != models.ListingStatusActive {
		return nil, fmt.Errorf("%w: only active listings can be featured", models.ErrConflict)
	}

	subscription, err := s.subscriptions.ConsumeFeaturedDays(ctx, existing.UserID, days)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	until := now.AddDate(0, 0, days)
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.Listing
	err = s.db.Collection(listingsCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": listingID, "deleted_at": nil, "status": models.ListingStatusActive},
		bson.M{"$set": bson.M{
			"is_featured":    true,
			"featured_until": until,
			"updated_at":     now,
		}},
		opts,
	).Decode(&updated)
	if err != nil {
		if refundErr := s.subscriptions.RefundFeaturedDays(ctx, subscription.ID, days); refundErr != nil {
			err = fmt.Errorf("%w (featured-days refund also failed: %v)", err, refundErr)
		}
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to feature listing %s: %w", listingID.String(), err)
	}
	return &updated, nil
}

// AddFavorite saves a listing for the caller and increments the listing's
// counter. The unique (user, listing) index makes the pair insert-once:
// a duplicate attempt is a no-op and the counter is not incremented twice.
func (s *listingService) AddFavorite(ctx context.Context, actor models.Principal, listingID utils.SixID) error {
	if _, err := s.FindByID(ctx, listingID); err != nil {
		return err
	}

	favorite := models.Favorite{
		Base:      models.NewBase(),
		UserID:    actor.UserID,
		ListingID: listingID,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.Collection(favoritesCollection).InsertOne(ctx, favorite)
	if err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return nil // already a favorite
		}
		return fmt.Errorf("failed to insert favorite: %w", err)
	}

	_, err = s.db.Collection(listingsCollection).UpdateOne(ctx,
		bson.M{"_id": listingID},
		bson.M{"$inc": bson.M{"favorites_count": 1}},
	)
	if err != nil {
		return fmt.Errorf("failed to increment favorites count for %s: %w", listingID.String(), err)
	}
	return nil
}

// RemoveFavorite is the inverse pair: the counter moves only when a row was
// actually deleted.
func (s *listingService) RemoveFavorite(ctx context.Context, actor models.Principal, listingID utils.SixID) error {
	result, err := s.db.Collection(favoritesCollection).DeleteOne(ctx, bson.M{
		"user_id":    actor.UserID,
		"listing_id": listingID,
	})
	if err != nil {
		return fmt.Errorf("failed to delete favorite: %w", err)
	}
	if result.DeletedCount == 0 {
		return nil
	}

	_, err = s.db.Collection(listingsCollection).UpdateOne(ctx,
		bson.M{"_id": listingID, "favorites_count": bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{"favorites_count": -1}},
	)
	if err != nil {
		return fmt.Errorf("failed to decrement favorites count for %s: %w", listingID.String(), err)
	}
	return nil
}

// ApplyViewCounts folds buffered view counters into the listing rows.
func (s *listingService) ApplyViewCounts(ctx context.Context, counts map[string]int64) error {
	collection := s.db.Collection(listingsCollection)
	for idStr, n := range counts {
		id, err := utils.ParseSixID(idStr)
		if err != nil || n <= 0 {
			continue // stale or malformed buffer key
		}
		if _, err := collection.UpdateOne(ctx,
			bson.M{"_id": id},
			bson.M{"$inc": bson.M{"views_count": n}},
		); err != nil {
			return fmt.Errorf("failed to apply %d views to listing %s: %w", n, idStr, err)
		}
	}
	return nil
}

// ExpireFeatured clears the featured flag on listings whose featured window
// has passed.
func (s *listingService) ExpireFeatured(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	result, err := s.db.Collection(listingsCollection).UpdateMany(ctx,
		bson.M{"is_featured": true, "featured_until": bson.M{"$lt": now}},
		bson.M{
			"$set":   bson.M{"is_featured": false, "updated_at": now},
			"$unset": bson.M{"featured_until": ""},
		},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire featured listings: %w", err)
	}
	return result.ModifiedCount, nil
}

// --- Validation helpers ---

func validateListingInput(input CreateListingInput) error {
	if input.Title == "" {
		return models.NewValidationError("title", "must not be empty")
	}
	if input.CategoryID.IsZero() {
		return models.NewValidationError("category_id", "must be set")
	}
	if input.Price < 0 {
		return models.NewValidationError("price", "must not be negative")
	}
	if !models.ValidCurrency(input.Currency) {
		return models.NewValidationError("currency", "unknown currency")
	}
	if !models.ValidListingCondition(input.Condition) {
		return models.NewValidationError("condition", "unknown condition")
	}
	return validateImages(input.Images)
}

// validateImages enforces the primary-image invariant: a non-empty list has
// exactly one primary image.
func validateImages(images []models.ListingImage) error {
	if len(images) == 0 {
		return nil
	}
	primaries := 0
	for _, img := range images {
		if img.URL == "" {
			return models.NewValidationError("images", "image url must not be empty")
		}
		if img.IsPrimary {
			primaries++
		}
	}
	if primaries != 1 {
		return models.NewValidationError("images", "exactly one image must be primary")
	}
	return nil
}

// maxImagesFor resolves the per-listing photo cap for writes on behalf of
// ownerID. The plan's photo quota is snapshotted on the subscription at
// provisioning; without an active subscription, or when the plan leaves the
// quota unset, the global fallback cap applies.
func (s *listingService) maxImagesFor(ctx context.Context, ownerID utils.SixID) (int, error) {
	subscription, err := s.subscriptions.Current(ctx, ownerID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return s.cfg.MaxImagesFallback, nil
		}
		return 0, err
	}
	if subscription.PhotosPerListing <= 0 {
		return s.cfg.MaxImagesFallback, nil
	}
	return subscription.PhotosPerListing, nil
}

// checkImageCap rejects image lists longer than the owner's photo cap.
func (s *listingService) checkImageCap(ctx context.Context, ownerID utils.SixID, images []models.ListingImage) error {
	if len(images) == 0 {
		return nil
	}
	limit, err := s.maxImagesFor(ctx, ownerID)
	if err != nil {
		return err
	}
	if len(images) > limit {
		return models.NewValidationError("images", fmt.Sprintf("at most %d images allowed", limit))
	}
	return nil
}

// normalizeImages rewrites positions to the list order.
func normalizeImages(images []models.ListingImage) []models.ListingImage {
	if images == nil {
		return []models.ListingImage{}
	}
	normalized := make([]models.ListingImage, len(images))
	copy(normalized, images)
	for i := range normalized {
		normalized[i].Position = i
	}
	return normalized
}

func validateFilter(f ListingFilter) error {
	if f.PriceMin != nil && *f.PriceMin < 0 {
		return models.NewValidationError("price_min", "must not be negative")
	}
	if f.PriceMin != nil && f.PriceMax != nil && *f.PriceMax < *f.PriceMin {
		return models.NewValidationError("price_max", "must not be below price_min")
	}
	for _, st := range f.Statuses {
		if !models.ValidListingStatus(st) {
			return models.NewValidationError("status", fmt.Sprintf("unknown status %q", st))
		}
	}
	for _, c := range f.Conditions {
		if !models.ValidListingCondition(c) {
			return models.NewValidationError("condition", fmt.Sprintf("unknown condition %q", c))
		}
	}
	if f.Currency != nil && !models.ValidCurrency(*f.Currency) {
		return models.NewValidationError("currency", "unknown currency")
	}
	return nil
}

func (s *listingService) findCategory(ctx context.Context, id utils.SixID) (*models.Category, error) {
	var category models.Category
	err := s.db.Collection(categoriesCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&category)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: category %s", models.ErrNotFound, id.String())
		}
		return nil, fmt.Errorf("failed to load category %s: %w", id.String(), err)
	}
	return &category, nil
}
