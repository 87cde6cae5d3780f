package models

import (
	"time"

	"relove/market/internal/utils"
)

// ListingStatus is the lifecycle state of a listing.
type ListingStatus string

const (
	ListingStatusDraft    ListingStatus = "DRAFT"
	ListingStatusPending  ListingStatus = "PENDING"
	ListingStatusActive   ListingStatus = "ACTIVE"
	ListingStatusPaused   ListingStatus = "PAUSED"
	ListingStatusSold     ListingStatus = "SOLD"
	ListingStatusExpired  ListingStatus = "EXPIRED"
	ListingStatusRejected ListingStatus = "REJECTED"
	ListingStatusArchived ListingStatus = "ARCHIVED"
)

// ValidListingStatus reports whether s is a known lifecycle state.
func ValidListingStatus(s ListingStatus) bool {
	switch s {
	case ListingStatusDraft, ListingStatusPending, ListingStatusActive,
		ListingStatusPaused, ListingStatusSold, ListingStatusExpired,
		ListingStatusRejected, ListingStatusArchived:
		return true
	}
	return false
}

// ListingCondition describes the wear state of a preloved item.
type ListingCondition string

const (
	ConditionNew      ListingCondition = "NEW"
	ConditionLikeNew  ListingCondition = "LIKE_NEW"
	ConditionGood     ListingCondition = "GOOD"
	ConditionFair     ListingCondition = "FAIR"
	ConditionForParts ListingCondition = "FOR_PARTS"
)

// ValidListingCondition reports whether c is a known condition.
func ValidListingCondition(c ListingCondition) bool {
	switch c {
	case ConditionNew, ConditionLikeNew, ConditionGood, ConditionFair, ConditionForParts:
		return true
	}
	return false
}

// Currency is an ISO 4217 currency code accepted by the catalog.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

// ValidCurrency reports whether c is an accepted currency.
func ValidCurrency(c Currency) bool {
	switch c {
	case CurrencyUSD, CurrencyEUR, CurrencyGBP:
		return true
	}
	return false
}

// ListingImage is a pre-validated image URL attached to a listing. When the
// list is non-empty exactly one entry has IsPrimary set.
type ListingImage struct {
	URL       string `bson:"url" json:"url"`
	IsPrimary bool   `bson:"is_primary" json:"is_primary"`
	Position  int    `bson:"position" json:"position"`
}

// ListingLocation is the inline location detail persisted with a listing.
// Geographic validity is the location writer's problem; this core only
// stores and filters on it.
type ListingLocation struct {
	CountryCode string   `bson:"country_code" json:"country_code"`
	State       string   `bson:"state,omitempty" json:"state,omitempty"`
	City        string   `bson:"city,omitempty" json:"city,omitempty"`
	Area        string   `bson:"area,omitempty" json:"area,omitempty"`
	Lat         *float64 `bson:"lat,omitempty" json:"lat,omitempty"`
	Lng         *float64 `bson:"lng,omitempty" json:"lng,omitempty"`
}

// Listing is a catalog entry owned by exactly one user.
type Listing struct {
	Base           `bson:",inline"`
	UserID         utils.SixID      `bson:"user_id" json:"user_id"`
	CategoryID     utils.SixID      `bson:"category_id" json:"category_id"`
	Title          string           `bson:"title" json:"title"`
	Slug           string           `bson:"slug" json:"slug"`
	Description    string           `bson:"description" json:"description"`
	Price          float64          `bson:"price" json:"price"`
	Currency       Currency         `bson:"currency" json:"currency"`
	Condition      ListingCondition `bson:"condition" json:"condition"`
	Status         ListingStatus    `bson:"status" json:"status"`
	Negotiable     bool             `bson:"negotiable" json:"negotiable"`
	IsPhoneVisible bool             `bson:"is_phone_visible" json:"is_phone_visible"`
	IsFeatured     bool             `bson:"is_featured" json:"is_featured"`
	IsSpotlight    bool             `bson:"is_spotlight" json:"is_spotlight"`
	FeaturedUntil  *time.Time       `bson:"featured_until,omitempty" json:"featured_until,omitempty"`
	ViewsCount     int64            `bson:"views_count" json:"views_count"`
	FavoritesCount int64            `bson:"favorites_count" json:"favorites_count"`
	Images         []ListingImage   `bson:"images" json:"images"`
	Location       *ListingLocation `bson:"location,omitempty" json:"location,omitempty"`
	DeletedAt      *time.Time       `bson:"deleted_at,omitempty" json:"-"`
	CreatedAt      time.Time        `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `bson:"updated_at" json:"updated_at"`
	PublishedAt    *time.Time       `bson:"published_at,omitempty" json:"published_at,omitempty"`
}

// PrimaryImageURL returns the URL of the primary image, or "" when the
// listing has no images.
func (l *Listing) PrimaryImageURL() string {
	for _, img := range l.Images {
		if img.IsPrimary {
			return img.URL
		}
	}
	return ""
}

// Favorite links a user to a listing they saved. The (user, listing) pair is
// unique; the listing's favorites counter moves in step with rows here.
type Favorite struct {
	Base      `bson:",inline"`
	UserID    utils.SixID `bson:"user_id" json:"user_id"`
	ListingID utils.SixID `bson:"listing_id" json:"listing_id"`
	CreatedAt time.Time   `bson:"created_at" json:"created_at"`
}

// Principal is the authenticated actor resolved by the auth collaborator.
type Principal struct {
	UserID  utils.SixID
	IsAdmin bool
}

// CanMutate reports whether the principal may mutate a resource owned by
// ownerID (owner-or-admin policy).
func (p Principal) CanMutate(ownerID utils.SixID) bool {
	return p.IsAdmin || p.UserID == ownerID
}
