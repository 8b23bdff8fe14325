package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window request counter shared by all instances.
type RateLimiter struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter allows limit hits per window for each key.
func NewRateLimiter(client *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		prefix: "ratelimit:",
		limit:  int64(limit),
		window: window,
		now:    time.Now,
	}
}

// Allow counts a hit for key and reports whether it is within the limit.
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	bucket := l.now().UnixNano() / int64(l.window)
	fullKey := l.prefix + key + ":" + strconv.FormatInt(bucket, 10)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, fullKey)
		pipe.Expire(ctx, fullKey, l.window)
		return nil
	})
	if err != nil {
		return false, err
	}

	return incr.Val() <= l.limit, nil
}
