package routes

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/card_issuing/internal/ledger"
)

// RegisterHealthRoutes adds a readiness endpoint covering the backing stores
// and the conservation of value in the ledger.
func RegisterHealthRoutes(app *fiber.App, d Deps, store ledger.Store) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		dbStatus := "ok"
		redisStatus := "ok"
		ledgerStatus := "ok"

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if d.DB != nil {
			if err := d.DB.Ping(ctx); err != nil {
				dbStatus = err.Error()
			}
		}
		if d.Cache != nil {
			if err := d.Cache.Ping(ctx).Err(); err != nil {
				redisStatus = err.Error()
			}
		}
		if err := checkConservation(ctx, store); err != nil {
			ledgerStatus = err.Error()
		}

		status := http.StatusOK
		if dbStatus != "ok" || redisStatus != "ok" || ledgerStatus != "ok" {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    fiber.Map{"postgres": dbStatus, "redis": redisStatus, "ledger": ledgerStatus},
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}

// checkConservation verifies that both balances total zero: every balance
// change is one side of a transfer, so value is only ever moved.
func checkConservation(ctx context.Context, store ledger.Store) error {
	accounts, err := store.Accounts(ctx)
	if err != nil {
		return err
	}
	for _, kind := range []ledger.BalanceKind{ledger.BalanceLedger, ledger.BalanceAvailable} {
		if total := ledger.Total(accounts, kind); !total.IsZero() {
			return fmt.Errorf("%s balances total %s", kind, total.StringFixed(2))
		}
	}
	return nil
}
