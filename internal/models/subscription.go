package models

import (
	"time"

	"relove/market/internal/utils"
)

// SubscriptionStatus is the ledger state of a subscription row.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "ACTIVE"
	SubscriptionCanceled SubscriptionStatus = "CANCELED"
	SubscriptionExpired  SubscriptionStatus = "EXPIRED"
	SubscriptionPastDue  SubscriptionStatus = "PAST_DUE"
)

// Subscription is one provisioning of a plan for a user. Remaining counters
// are copied from the plan at assignment time and only move downward until
// the next provisioning; the partial unique index on (user_id, status=ACTIVE)
// guarantees at most one ACTIVE row per user.
//
// A row whose EndAt has passed may still read ACTIVE in storage: every
// "current subscription" query additionally filters end_at >= now, and a
// background sweep flips lapsed rows to EXPIRED.
type Subscription struct {
	Base                  `bson:",inline"`
	UserID                utils.SixID        `bson:"user_id" json:"user_id"`
	PlanID                utils.SixID        `bson:"plan_id" json:"plan_id"`
	Status                SubscriptionStatus `bson:"status" json:"status"`
	StartAt               time.Time          `bson:"start_at" json:"start_at"`
	EndAt                 time.Time          `bson:"end_at" json:"end_at"`
	CanceledAt            *time.Time         `bson:"canceled_at,omitempty" json:"canceled_at,omitempty"`
	RemainingListings     int                `bson:"remaining_listings" json:"remaining_listings"`
	RemainingBumps        int                `bson:"remaining_bumps" json:"remaining_bumps"`
	RemainingFeaturedDays int                `bson:"remaining_featured_days" json:"remaining_featured_days"`
	PhotosPerListing      int                `bson:"photos_per_listing" json:"photos_per_listing"`
	CreatedAt             time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt             time.Time          `bson:"updated_at" json:"updated_at"`
}

// ProvisionSubscription builds a fresh ACTIVE subscription from a plan's
// quotas, starting now.
func ProvisionSubscription(userID utils.SixID, plan *Plan, now time.Time) *Subscription {
	return &Subscription{
		Base:                  NewBase(),
		UserID:                userID,
		PlanID:                plan.ID,
		Status:                SubscriptionActive,
		StartAt:               now,
		EndAt:                 now.AddDate(0, 0, plan.DurationDays),
		RemainingListings:     plan.QuotaListings,
		RemainingBumps:        plan.QuotaBumps,
		RemainingFeaturedDays: plan.QuotaFeaturedDays,
		PhotosPerListing:      plan.QuotaPhotosPerListing,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}
