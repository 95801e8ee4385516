package e2e

import (
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/voiceflow/api/internal/middleware"
)

func TestInterpret_MissingFunctionKey(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/functions/interpret",
		`{"audioUrl": "http://storage.local/signed"}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestInterpret_MissingAudioURL(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/functions/interpret",
		`{"userTimezone": "UTC"}`, map[string]string{
			"X-Function-Key": "test-function-key",
		})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)

	result := parseJSON(t, resp)
	if result["error"] == nil {
		t.Error("expected 'error' in response")
	}
}

func TestInterpret_RateLimited(t *testing.T) {
	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Zero budget: the counter exceeds the limit on the very first request,
	// so the check does not depend on counter state left by earlier runs.
	app := fiber.New()
	app.Post("/functions/interpret",
		middleware.FunctionAuthMiddleware("test-function-key"),
		rateLimiter.InterpretLimit(0),
		func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) },
	)

	resp, err := doRequest(app, http.MethodPost, "/functions/interpret",
		`{"audioUrl": "http://storage.local/signed"}`, map[string]string{
			"X-Function-Key": "test-function-key",
		})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusTooManyRequests)
}

func TestInterpret_GenAINotConfigured(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/functions/interpret",
		`{"audioUrl": "http://storage.local/signed"}`, map[string]string{
			"X-Function-Key": "test-function-key",
		})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusInternalServerError)

	result := parseJSON(t, resp)
	if result["error"] == nil {
		t.Error("expected 'error' in response")
	}
}
