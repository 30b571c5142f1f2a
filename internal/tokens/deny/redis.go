package deny

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "deny:"

// Redis is a Policy shared across processes. Redis expires the keys
// itself, so there is nothing to sweep.
type Redis struct {
	client *redis.Client
}

var _ Policy = (*Redis)(nil)

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Denied(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, keyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("deny: lookup %s: %w", tokenID, err)
	}
	return n > 0, nil
}

func (r *Redis) Deny(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.client.SetEx(ctx, keyPrefix+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("deny: record %s: %w", tokenID, err)
	}
	return nil
}
