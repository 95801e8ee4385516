package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/voiceflow/api/pkg/response"
)

// FunctionAuthMiddleware guards the interpretation endpoint with a shared
// function key, so only the API itself and trusted callers can spend
// inference quota. An empty configured key disables the check (dev mode).
func FunctionAuthMiddleware(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key == "" {
			return c.Next()
		}

		got := c.Get("X-Function-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			return response.Unauthorized(c, "Invalid function key")
		}

		return c.Next()
	}
}
