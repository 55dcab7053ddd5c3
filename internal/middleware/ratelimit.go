package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/chainbid/relay/internal/ratelimit"
)

// RateLimitMiddleware throttles by path and client IP. This is the coarse
// outer guard; the per-address limit inside the authorizer is separate.
func RateLimitMiddleware(limiter ratelimit.Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := fmt.Sprintf("rl:%s:%s", c.Path(), c.IP())

		allowed, err := limiter.Allow(c.Context(), key)
		if err != nil {
			return c.Next() // fail open
		}
		if !allowed {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		}
		return c.Next()
	}
}
