package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// cacheTTL expires idle session windows so abandoned sessions reclaim
// themselves without a janitor.
const cacheTTL = 24 * time.Hour

// RedisCache keeps each session's recent turns in a Redis list, newest at
// the head.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(ctx context.Context, redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

func cacheKey(sessionID string) string {
	return "turns:" + sessionID
}

func (c *RedisCache) Push(ctx context.Context, turn Turn) (int64, error) {
	data, err := json.Marshal(turn)
	if err != nil {
		return 0, fmt.Errorf("encode turn: %w", err)
	}
	key := cacheKey(turn.SessionID)
	n, err := c.client.LPush(ctx, key, data).Result()
	if err != nil {
		return 0, fmt.Errorf("push turn: %w", err)
	}
	c.client.Expire(ctx, key, cacheTTL)
	return n, nil
}

func (c *RedisCache) ReadWindow(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	vals, err := c.client.LRange(ctx, cacheKey(sessionID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read window: %w", err)
	}

	// Entries are stored newest-first; decode backwards so the result is
	// ascending by sequence.
	turns := make([]Turn, 0, len(vals))
	for i := len(vals) - 1; i >= 0; i-- {
		var t Turn
		if err := json.Unmarshal([]byte(vals[i]), &t); err != nil {
			return nil, fmt.Errorf("decode cached turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (c *RedisCache) EvictOldest(ctx context.Context, sessionID string) error {
	err := c.client.RPop(ctx, cacheKey(sessionID)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("evict oldest: %w", err)
	}
	return nil
}

func (c *RedisCache) DropNewest(ctx context.Context, sessionID string) error {
	err := c.client.LPop(ctx, cacheKey(sessionID)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("drop newest: %w", err)
	}
	return nil
}

func (c *RedisCache) Clear(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, cacheKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear session cache: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
