package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sania-talib/api-gateway-project/errors"
)

const redisKeyPrefix = "ratelimit:"

// Redis is a sliding-log limiter backed by a sorted set per client, scored
// by admission time in milliseconds. Use it when several gateway instances
// must share one budget.
type Redis struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRedis builds a redis limiter admitting up to limit requests per
// sliding window. Non-positive arguments fall back to the defaults.
func NewRedis(client *redis.Client, limit int, window time.Duration) *Redis {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Redis{client: client, limit: limit, window: window}
}

// Admit prunes and counts the client's sorted set in one pipeline, then
// records the admission in a second pipeline only when under the limit.
// A denied request writes nothing. Backend errors come back transient.
//
// The two pipelines are not atomic with respect to concurrent admits for
// the same client, so a burst racing the count can land slightly over the
// limit. The budget is flow control, not an exact quota.
func (r *Redis) Admit(ctx context.Context, clientKey string, now time.Time) (bool, error) {
	key := redisKeyPrefix + clientKey
	cutoff := strconv.FormatInt(now.Add(-r.window).UnixMilli(), 10)

	p := r.client.Pipeline()
	p.ZRemRangeByScore(ctx, key, "0", cutoff)
	count := p.ZCard(ctx, key)
	if _, err := p.Exec(ctx); err != nil {
		return false, errors.WrapTransient(err, "ratelimit.Redis", "Admit", "prune window")
	}

	n, err := count.Result()
	if err != nil {
		return false, errors.WrapTransient(err, "ratelimit.Redis", "Admit", "count window")
	}
	if n >= int64(r.limit) {
		return false, nil
	}

	rec := r.client.Pipeline()
	rec.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: uuid.NewString(),
	})
	rec.PExpire(ctx, key, r.window)
	if _, err := rec.Exec(ctx); err != nil {
		return false, errors.WrapTransient(err, "ratelimit.Redis", "Admit", "record admission")
	}
	return true, nil
}
