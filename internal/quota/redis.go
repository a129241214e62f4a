package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/receipt-vision/constants"
	"github.com/redis/go-redis/v9"
)

// counterClient is the subset of *redis.Client the counter needs.
type counterClient interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Decr(ctx context.Context, key string) *redis.IntCmd
}

// RedisCounter keeps one INCR counter per user and month. The first use of a
// month key seeds it from the audit store so restarts and backend switches keep counting.
type RedisCounter struct {
	client counterClient
	store  Store
	limit  int
	loc    *time.Location
	logger *slog.Logger
}

func NewRedisCounter(client *redis.Client, store Store, limit int, loc *time.Location, logger *slog.Logger) *RedisCounter {
	return newRedisCounter(client, store, limit, loc, logger)
}

func newRedisCounter(client counterClient, store Store, limit int, loc *time.Location, logger *slog.Logger) *RedisCounter {
	return &RedisCounter{client: client, store: store, limit: limit, loc: loc, logger: logger}
}

// Key returns the counter key for userID in the month starting at monthStart.
func Key(userID string, monthStart time.Time) string {
	return fmt.Sprintf("quota:%s:%s:%s", constants.ActionUploadReceipt, userID, monthStart.Format("2006-01"))
}

func (c *RedisCounter) Acquire(ctx context.Context, userID string, now time.Time) (Release, error) {
	from, to := MonthWindow(now, c.loc)
	key := Key(userID, from)

	// Keep the key a day past the month end so late releases still find it.
	ttl := to.Sub(now) + 24*time.Hour
	seeded, err := c.seed(ctx, userID, key, from, to, ttl)
	if err != nil {
		return nil, err
	}

	n, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis incr %s: %w", key, err)
	}
	if n > int64(c.limit) {
		if err := c.client.Decr(ctx, key).Err(); err != nil {
			c.logger.Warn("quota.rollback_failed", "key", key, "error", err)
		}
		c.logger.Info("quota.rejected", "user_id", userID, "count", n-1, "limit", c.limit, "backend", "redis")
		return nil, exceeded(c.limit)
	}
	c.logger.Debug("quota.acquired", "user_id", userID, "count", n, "seeded", seeded)

	return func(ctx context.Context) {
		if err := c.client.Decr(ctx, key).Err(); err != nil {
			c.logger.Warn("quota.release_failed", "key", key, "error", err)
		}
	}, nil
}

func (c *RedisCounter) seed(ctx context.Context, userID, key string, from, to time.Time, ttl time.Duration) (bool, error) {
	exists, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}
	if exists > 0 {
		return false, nil
	}
	if c.store == nil {
		return c.client.SetNX(ctx, key, 0, ttl).Result()
	}
	count, err := c.store.CountInWindow(ctx, userID, constants.ActionUploadReceipt, from, to)
	if err != nil {
		return false, err
	}
	ok, err := c.client.SetNX(ctx, key, count, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}
