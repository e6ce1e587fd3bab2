package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	activityKeyPrefix = "presence:last_active:"
	activityIndexKey  = "presence:last_active"
)

// RedisActivityRepository stores last activity as unix milliseconds, one key
// per user plus a sorted set indexed by the same value for window queries.
type RedisActivityRepository struct {
	client *redis.Client
}

// NewRedisActivityRepository creates a redis-backed activity repository
func NewRedisActivityRepository(client *redis.Client) *RedisActivityRepository {
	return &RedisActivityRepository{client: client}
}

func activityKey(userID string) string {
	return activityKeyPrefix + userID
}

// SaveLastActive writes all entries in one pipeline
func (r *RedisActivityRepository) SaveLastActive(ctx context.Context, entries map[string]time.Time) error {
	if len(entries) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	members := make([]redis.Z, 0, len(entries))
	for userID, ts := range entries {
		ms := ts.UnixMilli()
		pipe.Set(ctx, activityKey(userID), ms, 0)
		members = append(members, redis.Z{Score: float64(ms), Member: userID})
	}
	pipe.ZAdd(ctx, activityIndexKey, members...)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save last activity for %d users: %w", len(entries), err)
	}
	return nil
}

// ListActiveSince reads the index from since onwards
func (r *RedisActivityRepository) ListActiveSince(ctx context.Context, since time.Time) (map[string]time.Time, error) {
	members, err := r.client.ZRangeByScoreWithScores(ctx, activityIndexKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list recent activity: %w", err)
	}

	result := make(map[string]time.Time, len(members))
	for _, z := range members {
		userID, ok := z.Member.(string)
		if !ok {
			continue
		}
		result[userID] = time.UnixMilli(int64(z.Score)).UTC()
	}
	return result, nil
}

// GetLastActive reads a single user's key
func (r *RedisActivityRepository) GetLastActive(ctx context.Context, userID string) (*time.Time, error) {
	ms, err := r.client.Get(ctx, activityKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last activity: %w", err)
	}
	ts := time.UnixMilli(ms).UTC()
	return &ts, nil
}

// Ping checks the redis connection
func (r *RedisActivityRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the redis client
func (r *RedisActivityRepository) Close() error {
	return r.client.Close()
}
