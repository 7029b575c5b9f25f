package ratelimit

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// RedisLimiter adapts a ulule/limiter Redis store to the Limiter interface.
// One store serves any number of window/max combinations.
type RedisLimiter struct {
	Store limiter.Store
}

// NewRedisLimiter builds a limiter store on the shared Redis client.
func NewRedisLimiter(client *redis.Client, prefix string) (RedisLimiter, error) {
	store, err := limiterredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: prefix})
	if err != nil {
		return RedisLimiter{}, err
	}
	return RedisLimiter{Store: store}, nil
}

// Allow registers one hit for the key and reports whether it stayed within max
// per window.
func (l RedisLimiter) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	rate := limiter.Rate{Period: window, Limit: int64(max)}
	limiterCtx, err := limiter.New(l.Store, rate).Get(ctx, key)
	if err != nil {
		return false, 0, time.Now().Add(window), err
	}
	reset := time.Unix(limiterCtx.Reset, 0)
	return !limiterCtx.Reached, int(limiterCtx.Remaining), reset, nil
}
