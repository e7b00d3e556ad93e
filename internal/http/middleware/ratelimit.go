package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"docvault/internal/jobstore"
)

// RateLimit throttles requests per caller using the coordinator's sliding
// window. The limiter key is the authenticated user when the identity header
// is present, falling back to the client IP.
//
// Coordinator failures fail open: a broken limiter must not take down ingest.
func RateLimit(jobs jobstore.Store, limit int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("X-User-ID")
		if key == "" {
			key = c.IP()
		}

		allowed, err := jobs.Allow(c.UserContext(), key, limit, window)
		if err != nil {
			// Already fail-open at the store; keep serving.
			return c.Next()
		}
		if !allowed {
			c.Set("Retry-After", "60")
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    "RATE_LIMITED",
					"message": "too many requests",
				},
			})
		}
		return c.Next()
	}
}
