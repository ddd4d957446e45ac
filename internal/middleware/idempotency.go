package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "idempotency:v2:"
	inProgressMarker     = "__in_progress__"
	replayHeader         = "Idempotent-Replayed"
	cacheTimeout         = 2 * time.Second
)

// replay is what gets stored under an idempotency key once the first request
// has been answered.
type replay struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type replayStore struct {
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func (s replayStore) ctx(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), cacheTimeout)
}

// reserve claims key. It returns the stored replay when the key was already
// answered, or ok=false when another request holding the key is still running.
func (s replayStore) reserve(c *fiber.Ctx, key string) (stored *replay, ok bool, err error) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	claimed, err := s.cache.SetNX(ctx, key, inProgressMarker, s.ttl).Result()
	if err != nil || claimed {
		return nil, claimed, err
	}
	raw, err := s.cache.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between the two calls; treat as in flight and let the client retry
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if string(raw) == inProgressMarker {
		return nil, false, nil
	}
	var r replay
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, false, err
	}
	return &r, true, nil
}

func (s replayStore) save(c *fiber.Ctx, key string, r replay) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	ctx, cancel := s.ctx(c)
	defer cancel()
	return s.cache.Set(ctx, key, payload, s.ttl).Err()
}

func (s replayStore) release(c *fiber.Ctx, key string) {
	ctx, cancel := s.ctx(c)
	defer cancel()
	if err := s.cache.Del(ctx, key).Err(); err != nil {
		s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", err))
	}
}

// Idempotency answers an unsafe request repeated with the same Idempotency-Key
// header with the response recorded for the first one. Keys are scoped to the
// authenticated consumer and bound to the method, path and body they were first
// used with. Server errors are not recorded so the request can be retried.
// Requests without the header pass through; scheme messages are deduplicated by
// the ledger itself.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	store := replayStore{cache: cache, ttl: ttl, logger: logger}
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}
		key := c.Get(idempotencyKeyHeader)
		if key == "" || cache == nil {
			return c.Next()
		}

		cacheKey := idempotencyPrefix + Consumer(c) + ":" + key
		fingerprint := requestFingerprint(c)

		stored, ok, err := store.reserve(c, cacheKey)
		switch {
		case err != nil:
			logger.Error("idempotency lookup failed", slog.String("key", key), slog.Any("error", err))
			return fiber.NewError(http.StatusServiceUnavailable, "idempotency store unavailable")
		case !ok:
			return fiber.NewError(http.StatusConflict, "a request with this idempotency key is still processing")
		case stored != nil:
			if stored.Fingerprint != fingerprint {
				return fiber.NewError(http.StatusUnprocessableEntity, "idempotency key reused with a different request")
			}
			c.Set(replayHeader, "true")
			c.Set(fiber.HeaderContentType, stored.ContentType)
			return c.Status(stored.Status).Send(stored.Body)
		}

		if err := c.Next(); err != nil {
			// render now so client errors are recorded like any other answer
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				store.release(c, cacheKey)
				return herr
			}
		}

		status := c.Response().StatusCode()
		if status >= http.StatusInternalServerError {
			store.release(c, cacheKey)
			return nil
		}
		r := replay{
			Fingerprint: fingerprint,
			Status:      status,
			ContentType: string(c.Response().Header.ContentType()),
			Body:        append([]byte(nil), c.Response().Body()...),
		}
		if err := store.save(c, cacheKey, r); err != nil {
			logger.Error("persist idempotent response", slog.String("key", key), slog.Any("error", err))
			store.release(c, cacheKey)
		}
		return nil
	}
}

func requestFingerprint(c *fiber.Ctx) string {
	h := sha256.New()
	h.Write([]byte(c.Method()))
	h.Write([]byte{0})
	h.Write([]byte(c.Path()))
	h.Write([]byte{0})
	h.Write(c.Body())
	return hex.EncodeToString(h.Sum(nil))
}
