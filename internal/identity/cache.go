package identity

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	lastKnownUserKey = "identity:last_known_user"
	lastKnownUserTTL = 24 * time.Hour
)

// Cache stores the most recently seen valid user identifier in Redis.
// It is a liveness convenience for permissive mode, not a correctness
// or security boundary; every read may legitimately miss.
type Cache struct {
	client *redis.Client
}

// NewCache creates an identity cache over a Redis client.
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// RememberUser stores a known-valid user identifier.
func (c *Cache) RememberUser(ctx context.Context, userID string) error {
	return c.client.Set(ctx, lastKnownUserKey, userID, lastKnownUserTTL).Err()
}

// LastKnownUser returns the most recently stored identifier, or empty
// when none is cached.
func (c *Cache) LastKnownUser(ctx context.Context) (string, error) {
	id, err := c.client.Get(ctx, lastKnownUserKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}
