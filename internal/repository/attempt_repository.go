package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const claimAttemptKeyPrefix = "identity:claim_failures:"

// AttemptRepository keeps per-user failed claim counters in Redis.
type AttemptRepository struct {
	client *redis.Client
}

// NewAttemptRepository constructs the repository. A nil client disables counting.
func NewAttemptRepository(client *redis.Client) *AttemptRepository {
	return &AttemptRepository{client: client}
}

func claimAttemptKey(userID string) string {
	return claimAttemptKeyPrefix + userID
}

// Count returns the failures recorded for the user in the current window.
func (r *AttemptRepository) Count(ctx context.Context, userID string) (int64, error) {
	if r.client == nil {
		return 0, nil
	}
	n, err := r.client.Get(ctx, claimAttemptKey(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get attempts: %w", err)
	}
	return n, nil
}

// Increment bumps the failure counter. The window starts at the first failure.
func (r *AttemptRepository) Increment(ctx context.Context, userID string, window time.Duration) (int64, error) {
	if r.client == nil {
		return 0, nil
	}
	key := claimAttemptKey(userID)
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis incr attempts: %w", err)
	}
	return incr.Val(), nil
}

// Reset clears the failure counter.
func (r *AttemptRepository) Reset(ctx context.Context, userID string) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, claimAttemptKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis del attempts: %w", err)
	}
	return nil
}
