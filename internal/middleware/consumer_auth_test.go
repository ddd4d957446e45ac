package middleware

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/card_issuing/internal/config"
	"github.com/congo-pay/card_issuing/internal/logging"
)

const testAuthHeader = "X-Api-Key"

func hashKey(t *testing.T, key string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash key: %v", err)
	}
	return string(hash)
}

func authApp(t *testing.T, consumers []config.Consumer, extra ...fiber.Handler) *fiber.App {
	t.Helper()
	app := fiber.New()
	app.Use(ConsumerAuth(testAuthHeader, consumers, logging.Discard()))
	for _, h := range extra {
		app.Use(h)
	}
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.SendString(Consumer(c))
	})
	return app
}

func get(t *testing.T, app *fiber.App, key string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
	if key != "" {
		req.Header.Set(testAuthHeader, key)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestConsumerAuth(t *testing.T) {
	app := authApp(t, []config.Consumer{
		{Name: "scheme", KeyHash: hashKey(t, "scheme-secret")},
		{Name: "ops", KeyHash: hashKey(t, "ops-secret")},
	})

	if status, _ := get(t, app, ""); status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", status)
	}
	if status, _ := get(t, app, "wrong"); status != fiber.StatusForbidden {
		t.Fatalf("expected 403 for unknown key, got %d", status)
	}
	for i := 0; i < 2; i++ {
		status, who := get(t, app, "ops-secret")
		if status != fiber.StatusOK || who != "ops" {
			t.Fatalf("expected ops to be admitted, got %d %q", status, who)
		}
	}
}

func TestConsumerAuthOpenWithoutConsumers(t *testing.T) {
	app := authApp(t, nil)
	if status, _ := get(t, app, ""); status != fiber.StatusOK {
		t.Fatalf("expected open gate, got %d", status)
	}
}

func TestRateLimitPerConsumer(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := authApp(t, []config.Consumer{
		{Name: "scheme", KeyHash: hashKey(t, "scheme-secret")},
		{Name: "ops", KeyHash: hashKey(t, "ops-secret")},
	}, RateLimit(cache, 3))

	for i := 0; i < 3; i++ {
		if status, _ := get(t, app, "scheme-secret"); status != fiber.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, status)
		}
	}
	if status, _ := get(t, app, "scheme-secret"); status != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", status)
	}
	// other consumers have their own budget
	if status, _ := get(t, app, "ops-secret"); status != fiber.StatusOK {
		t.Fatalf("expected ops to pass, got %d", status)
	}

	mr.FastForward(2 * time.Minute)
	if status, _ := get(t, app, "scheme-secret"); status != fiber.StatusOK {
		t.Fatalf("expected a fresh window, got %d", status)
	}
}

func TestRateLimitKeysExpire(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := authApp(t, []config.Consumer{
		{Name: "scheme", KeyHash: hashKey(t, "scheme-secret")},
		{Name: "ops", KeyHash: hashKey(t, "ops-secret")},
	}, RateLimit(cache, 10))

	if status, _ := get(t, app, "scheme-secret"); status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if ttl := mr.TTL("rl:consumer:scheme"); ttl != time.Minute {
		t.Fatalf("expected a one minute window, got %v", ttl)
	}

	// a counter left without an expiry is re-armed instead of blocking forever
	if err := mr.Set("rl:consumer:ops", "4"); err != nil {
		t.Fatalf("seed counter: %v", err)
	}
	if status, _ := get(t, app, "ops-secret"); status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if ttl := mr.TTL("rl:consumer:ops"); ttl != time.Minute {
		t.Fatalf("expected the stale counter to expire, got %v", ttl)
	}
	mr.CheckGet(t, "rl:consumer:ops", "5")
}

func TestRateLimitWithoutCache(t *testing.T) {
	app := authApp(t, nil, RateLimit(nil, 1))
	for i := 0; i < 3; i++ {
		if status, _ := get(t, app, ""); status != fiber.StatusOK {
			t.Fatalf("expected no limit without redis, got %d", status)
		}
	}
}
