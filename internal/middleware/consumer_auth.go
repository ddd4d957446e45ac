package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/card_issuing/internal/config"
)

const consumerLocal = "consumer"

// ConsumerAuth admits requests carrying the key of a configured API consumer in
// header. Keys are stored as bcrypt hashes; verified keys are remembered by
// digest so bcrypt runs once per key. With no consumer configured the gate is
// open, which config only allows in development.
func ConsumerAuth(header string, consumers []config.Consumer, logger *slog.Logger) fiber.Handler {
	if len(consumers) == 0 {
		logger.Warn("no API consumer configured, authentication disabled")
		return func(c *fiber.Ctx) error { return c.Next() }
	}

	var verified sync.Map // key digest -> consumer name
	return func(c *fiber.Ctx) error {
		key := c.Get(header)
		if key == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing "+header+" header")
		}

		sum := sha256.Sum256([]byte(key))
		digest := hex.EncodeToString(sum[:])
		if name, ok := verified.Load(digest); ok {
			c.Locals(consumerLocal, name)
			return c.Next()
		}

		for _, consumer := range consumers {
			if bcrypt.CompareHashAndPassword([]byte(consumer.KeyHash), []byte(key)) == nil {
				verified.Store(digest, consumer.Name)
				c.Locals(consumerLocal, consumer.Name)
				return c.Next()
			}
		}
		logger.Warn("rejected API key", slog.String("path", c.Path()), slog.String("ip", c.IP()))
		return fiber.NewError(http.StatusForbidden, "permission denied")
	}
}

// Consumer returns the authenticated consumer name, if any.
func Consumer(c *fiber.Ctx) string {
	name, _ := c.Locals(consumerLocal).(string)
	return name
}
