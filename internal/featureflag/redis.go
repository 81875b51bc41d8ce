package featureflag

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisLookupTimeout = 200 * time.Millisecond

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisClient reads flag values stored as "true"/"false" strings. The
// context-specific key <prefix><flag>:<kind>:<key> wins over <prefix><flag>.
type RedisClient struct {
	client stringGetter
	prefix string
	logger *slog.Logger
}

func NewRedisClient(client redis.UniversalClient, prefix string, logger *slog.Logger) *RedisClient {
	return &RedisClient{client: client, prefix: prefix, logger: logger}
}

func (c *RedisClient) BoolVariation(ctx context.Context, flag Flag, fctx Context) bool {
	ctx, cancel := context.WithTimeout(ctx, redisLookupTimeout)
	defer cancel()

	keys := []string{c.prefix + flag.Key}
	if fctx.Kind != "" && fctx.Key != "" {
		keys = []string{c.prefix + flag.Key + ":" + fctx.Kind + ":" + fctx.Key, c.prefix + flag.Key}
	}
	for _, key := range keys {
		raw, err := c.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			c.logger.Warn("feature flag lookup failed; serving default", "flag", flag.Key, "key", key, "error", err)
			return flag.Default
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.logger.Warn("feature flag value is not a boolean; serving default", "flag", flag.Key, "key", key, "value", raw)
			return flag.Default
		}
		return v
	}
	return flag.Default
}
