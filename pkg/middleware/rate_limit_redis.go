package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window counter shared by every gateway replica.
// A window admits floor(rps*window)+burst requests per key.
type RedisLimiter struct {
	client  *redis.Client
	window  time.Duration
	allowed int64
	now     func() time.Time
}

func NewRedisLimiter(client *redis.Client, rps float64, burst int, window time.Duration) *RedisLimiter {
	if window < time.Second {
		window = time.Second
	}
	return &RedisLimiter{
		client:  client,
		window:  window,
		allowed: int64(rps*window.Seconds()) + int64(burst),
		now:     time.Now,
	}
}

func (r *RedisLimiter) Name() string { return "redis" }

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	secs := int64(r.window / time.Second)
	bucket := fmt.Sprintf("rl:%s:%d", key, r.now().Unix()/secs)

	cnt, err := r.client.Incr(ctx, bucket).Result()
	if err != nil {
		return false, 0, err
	}
	if cnt == 1 {
		_ = r.client.Expire(ctx, bucket, r.window+time.Second).Err()
	}
	if cnt > r.allowed {
		return false, r.window, nil
	}
	return true, 0, nil
}
