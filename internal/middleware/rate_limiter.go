package middleware

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a sliding-window limiter backed by a redis sorted set per key.
type RateLimiter struct {
	redis  *redis.Client
	prefix string
	limit  int
	window time.Duration
}

func NewRateLimiter(rdb *redis.Client, prefix string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{redis: rdb, prefix: prefix, limit: limit, window: window}
}

// Allow records a hit for key and reports whether it stays within the limit.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (allowed bool, remaining int, resetAt time.Time, err error) {
	redisKey := fmt.Sprintf("rate_limit:%s:%s", rl.prefix, key)
	now := time.Now()
	windowStart := now.Add(-rl.window)

	if err = rl.redis.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(windowStart.UnixMicro(), 10)).Err(); err != nil {
		return false, 0, time.Time{}, err
	}

	count, err := rl.redis.ZCard(ctx, redisKey).Result()
	if err != nil {
		return false, 0, time.Time{}, err
	}

	resetAt = now.Add(rl.window)
	oldest, err := rl.redis.ZRangeWithScores(ctx, redisKey, 0, 0).Result()
	if err != nil {
		return false, 0, time.Time{}, err
	}
	if len(oldest) > 0 {
		resetAt = time.UnixMicro(int64(oldest[0].Score)).Add(rl.window)
	}

	if int(count) >= rl.limit {
		return false, 0, resetAt, nil
	}

	if err = rl.redis.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.UnixMicro()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	}).Err(); err != nil {
		return false, 0, time.Time{}, err
	}
	if err = rl.redis.Expire(ctx, redisKey, rl.window*2).Err(); err != nil {
		return false, 0, time.Time{}, err
	}

	return true, rl.limit - int(count) - 1, resetAt, nil
}

// Handler limits requests per client IP. Redis failures let the request through.
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rl == nil || rl.redis == nil || rl.limit <= 0 {
			return c.Next()
		}

		allowed, remaining, resetAt, err := rl.Allow(c.UserContext(), c.IP())
		if err != nil {
			log.Printf("[RateLimit] %s check failed: %v", rl.prefix, err)
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			return fiber.NewError(fiber.StatusTooManyRequests, "Too many attempts, please try again later")
		}
		return c.Next()
	}
}
