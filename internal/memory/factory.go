package memory

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// NewDurableStore builds the durable tier from configuration. An empty URL
// or a failed connection returns nil: the tier stays degraded for the
// process lifetime and the manager keeps serving from the hot cache.
func NewDurableStore(ctx context.Context, databaseURL string, logger zerolog.Logger) DurableStore {
	if strings.TrimSpace(databaseURL) == "" {
		logger.Warn().Msg("no DATABASE_URL configured, durable store disabled")
		return nil
	}
	store, err := NewPostgresStore(ctx, databaseURL)
	if err != nil {
		logger.Error().Err(err).Msg("durable store unreachable, running degraded")
		return nil
	}
	logger.Info().Msg("durable store connected")
	return store
}

// NewHotCache builds the hot tier from configuration, with the same
// degrade-on-failure policy as the durable tier.
func NewHotCache(ctx context.Context, redisURL string, logger zerolog.Logger) HotCache {
	if strings.TrimSpace(redisURL) == "" {
		logger.Warn().Msg("no REDIS_URL configured, hot cache disabled")
		return nil
	}
	cache, err := NewRedisCache(ctx, redisURL)
	if err != nil {
		logger.Error().Err(err).Msg("hot cache unreachable, running degraded")
		return nil
	}
	logger.Info().Msg("hot cache connected")
	return cache
}
