package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"relove/market/internal/models"
	"relove/market/internal/utils"
)

// maxSlugAttempts bounds disambiguation: the base candidate, a few numeric
// suffixes, then one random suffix. After that the operation fails with
// Conflict instead of looping.
const maxSlugAttempts = 6

// ensureUniqueSlug resolves text to a slug that no other document in coll
// currently holds. excludeID skips the entity's own row during updates, so
// renaming back to the same slug is a no-op rather than a collision.
//
// The probe is advisory: the caller still inserts under db.Try against the
// collection's unique slug index, which closes the probe/write race.
func ensureUniqueSlug(ctx context.Context, coll *mongo.Collection, text string, excludeID utils.SixID) (string, error) {
	base := utils.Slugify(text)

	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		candidate := base
		switch {
		case attempt == 0:
			// base candidate as-is
		case attempt < maxSlugAttempts-1:
			candidate = fmt.Sprintf("%s-%d", base, attempt)
		default:
			// Last resort: random fragment instead of counting further.
			candidate = fmt.Sprintf("%s-%s", base, strings.Split(uuid.NewString(), "-")[0])
		}

		filter := bson.M{"slug": candidate}
		if !excludeID.IsZero() {
			filter["_id"] = bson.M{"$ne": excludeID}
		}

		err := coll.FindOne(ctx, filter).Err()
		if errors.Is(err, mongo.ErrNoDocuments) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("%w: slug probe for %q failed: %v", models.ErrTransient, candidate, err)
		}
		// Taken, try the next candidate.
	}

	return "", fmt.Errorf("%w: could not find a free slug for %q", models.ErrConflict, base)
}
