package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"relove/market/internal/utils"
)

// Category is a node in the self-referencing category tree. The parent is
// referenced by id only, never by pointer, so the stored graph cannot form
// ownership cycles; acyclicity of the parent chain is enforced by the
// service's ancestor walk before every write.
type Category struct {
	Base            `bson:",inline"`
	Name            string       `bson:"name" json:"name"`
	Slug            string       `bson:"slug" json:"slug"`
	ParentID        *utils.SixID `bson:"parent_id,omitempty" json:"parent_id,omitempty"`
	IsActive        bool         `bson:"is_active" json:"is_active"`
	Image           string       `bson:"image,omitempty" json:"image,omitempty"`
	AttributeSchema bson.M       `bson:"attribute_schema,omitempty" json:"attribute_schema,omitempty"`
	CreatedByID     utils.SixID  `bson:"created_by_id" json:"created_by_id"`
	CreatedAt       time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `bson:"updated_at" json:"updated_at"`
}

// CategoryNode is a materialized tree node returned by the tree endpoint.
type CategoryNode struct {
	Category
	Children []*CategoryNode `json:"children"`
}

// CategorySummary is the denormalized category shape embedded in listing
// query results.
type CategorySummary struct {
	ID   utils.SixID `json:"id"`
	Name string      `json:"name"`
	Slug string      `json:"slug"`
}
