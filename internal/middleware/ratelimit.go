package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/voiceflow/api/pkg/response"
)

type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// Limit creates a rate limiting middleware
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Authenticated routes count per user; routes without user auth
		// (the function endpoint) count per caller address.
		subject := GetUserID(c)
		if subject == "" {
			subject = c.IP()
		}

		key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, subject)
		ctx := context.Background()

		// Increment counter
		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			// If Redis fails, allow the request but log the error
			return c.Next()
		}

		// Set expiration on first request
		if count == 1 {
			rl.redis.Expire(ctx, key, window)
		}

		if count > int64(maxRequests) {
			// Get TTL for retry-after header
			ttl, _ := rl.redis.TTL(ctx, key).Result()
			c.Set("Retry-After", fmt.Sprintf("%d", int(ttl.Seconds())))
			return response.RateLimited(c)
		}

		// Add rate limit headers
		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", maxRequests))
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", maxRequests-int(count)))

		return c.Next()
	}
}

// NotesLimit returns a rate limiter for voice note creation (per hour)
func (rl *RateLimiter) NotesLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("notes", maxPerHour, time.Hour)
}

// InterpretLimit returns a rate limiter for the interpretation endpoint (per minute)
func (rl *RateLimiter) InterpretLimit(maxPerMin int) fiber.Handler {
	return rl.Limit("interpret", maxPerMin, time.Minute)
}
