package models

import "time"

// Plan is a paid subscription tier. Editing a plan never retroactively
// changes already-provisioned subscriptions; they keep the quotas copied at
// assignment time.
type Plan struct {
	Base                 `bson:",inline"`
	Name                 string    `bson:"name" json:"name"`
	Slug                 string    `bson:"slug" json:"slug"`
	Price                float64   `bson:"price" json:"price"`
	Currency             Currency  `bson:"currency" json:"currency"`
	DurationDays         int       `bson:"duration_days" json:"duration_days"`
	MaxActiveListings    int       `bson:"max_active_listings" json:"max_active_listings"`
	QuotaListings        int       `bson:"quota_listings" json:"quota_listings"`
	QuotaPhotosPerListing int      `bson:"quota_photos_per_listing" json:"quota_photos_per_listing"`
	QuotaVideosPerListing int      `bson:"quota_videos_per_listing" json:"quota_videos_per_listing"`
	QuotaBumps           int       `bson:"quota_bumps" json:"quota_bumps"`
	QuotaFeaturedDays    int       `bson:"quota_featured_days" json:"quota_featured_days"`
	MaxCategories        int       `bson:"max_categories" json:"max_categories"`
	IsSticky             bool      `bson:"is_sticky" json:"is_sticky"`
	IsFeatured           bool      `bson:"is_featured" json:"is_featured"`
	IsActive             bool      `bson:"is_active" json:"is_active"`
	CreatedAt            time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt            time.Time `bson:"updated_at" json:"updated_at"`
}
