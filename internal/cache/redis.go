package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis initializes and returns a Redis client instance.
func ConnectRedis(addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// DisconnectRedis closes the Redis client connection.
func DisconnectRedis(client *redis.Client) error {
	if client == nil {
		return nil
	}
	if err := client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis connection: %w", err)
	}
	return nil
}

const viewKeyPrefix = "views:"

// ViewCounter buffers listing view counts in Redis so public reads do not
// write to MongoDB on every hit. A background task drains the buffer into
// the listings collection.
type ViewCounter struct {
	rdb *redis.Client
}

// NewViewCounter creates a ViewCounter on top of an existing Redis client.
func NewViewCounter(rdb *redis.Client) *ViewCounter {
	return &ViewCounter{rdb: rdb}
}

// Bump increments the buffered view count for a listing.
func (v *ViewCounter) Bump(ctx context.Context, listingID string) error {
	if err := v.rdb.Incr(ctx, viewKeyPrefix+listingID).Err(); err != nil {
		return fmt.Errorf("failed to bump view count for %s: %w", listingID, err)
	}
	return nil
}

// Drain atomically collects and resets all buffered view counts, returning
// listing id -> accumulated views. Counts bumped while draining land in the
// next drain.
func (v *ViewCounter) Drain(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)

	iter := v.rdb.Scan(ctx, 0, viewKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := v.rdb.GetDel(ctx, key).Result()
		if err == redis.Nil {
			continue // drained by a concurrent worker
		}
		if err != nil {
			return counts, fmt.Errorf("failed to drain view key %s: %w", key, err)
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			continue
		}
		counts[strings.TrimPrefix(key, viewKeyPrefix)] = n
	}
	if err := iter.Err(); err != nil {
		return counts, fmt.Errorf("failed to scan view keys: %w", err)
	}
	return counts, nil
}
