package routes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/card_issuing/internal/accounts"
	"github.com/congo-pay/card_issuing/internal/config"
	"github.com/congo-pay/card_issuing/internal/funding"
	"github.com/congo-pay/card_issuing/internal/issuing"
	"github.com/congo-pay/card_issuing/internal/ledger"
	"github.com/congo-pay/card_issuing/internal/middleware"
	"github.com/congo-pay/card_issuing/internal/notification"
	"github.com/congo-pay/card_issuing/internal/respond"
	"github.com/congo-pay/card_issuing/internal/validation"
)

// Deps aggregates shared dependencies required to wire routes. Store is
// optional: without it the ledger lives in Postgres when DB is set and in
// memory otherwise.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Store  ledger.Store
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil && d.Store == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	store := d.Store
	if store == nil {
		if d.DB != nil {
			store = ledger.NewPostgres(d.DB)
		} else {
			d.Logger.Warn("no database configured, using the in-memory ledger")
			store = ledger.NewInMemory()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	registry, err := ledger.Bootstrap(ctx, store, ledger.Chart{
		Bank:        d.Cfg.Accounts.Bank,
		Scheme:      d.Cfg.Accounts.Scheme,
		Equity:      d.Cfg.Accounts.Equity,
		Cardholders: d.Cfg.CardholderAccounts(),
		Currency:    d.Cfg.DefaultCurrency,
	})
	if err != nil {
		return err
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d, store)

	// Services and handlers
	cards := make(map[string]string, len(d.Cfg.Accounts.Cards))
	for _, m := range d.Cfg.Accounts.Cards {
		cards[m.CardID] = m.Account
	}
	cardholders := make(map[string]string, len(d.Cfg.Accounts.Cardholders))
	for _, m := range d.Cfg.Accounts.Cardholders {
		cardholders[m.Name] = m.Account
	}
	directory := issuing.NewDirectory(store, cards, cardholders)
	notifier := notification.NewLoggerNotifier(d.Logger)
	validator := validation.New()

	issuingSvc := issuing.NewService(store, registry, directory, notifier, d.Logger)
	fundingSvc := funding.NewService(store, registry, directory, notifier, d.Logger)
	accountSvc := accounts.NewService(store, d.Cfg.DefaultCurrency)

	// API routes
	api := app.Group("/api/v1",
		middleware.ConsumerAuth(d.Cfg.AuthHeader, d.Cfg.Consumers, d.Logger),
		middleware.RateLimit(d.Cache, d.Cfg.RateLimitPerMinute),
		middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger),
	)
	api.Get("/ping", func(c *fiber.Ctx) error {
		return respond.OK(c, fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDOf(c),
			"consumer":   middleware.Consumer(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterOperationRoutes(api,
		issuing.NewHandler(issuingSvc, directory, validator),
		funding.NewHandler(fundingSvc, validator))
	RegisterAccountRoutes(api, accounts.NewHandler(accountSvc, validator))

	d.Logger.Info("ledger ready",
		"bank", registry.Bank.Name, "scheme", registry.Scheme.Name, "equity", registry.Equity.Name,
		"cards", len(cards), "cardholders", len(cardholders))
	return nil
}
