package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/card_issuing/internal/config"
	"github.com/congo-pay/card_issuing/internal/ledger"
	"github.com/congo-pay/card_issuing/internal/logging"
	"github.com/congo-pay/card_issuing/internal/respond"
)

const apiKey = "scheme-secret"

func newTestApp(t *testing.T) (*fiber.App, ledger.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := config.Config{
		AppName:            "CardIssuing",
		AppEnv:             "test",
		IdempotencyTTL:     time.Minute,
		AuthHeader:         "X-Api-Key",
		RateLimitPerMinute: 1000,
		DefaultCurrency:    "EUR",
		Accounts: config.Accounts{
			Bank:        "bank",
			Scheme:      "scheme",
			Equity:      "equity",
			Cards:       []config.CardMapping{{CardID: "CARD1", Account: "cardholder:alice"}},
			Cardholders: []config.CardholderMapping{{Name: "alice", Account: "cardholder:alice"}},
		},
		Consumers: []config.Consumer{{Name: "scheme", KeyHash: string(hash)}},
	}

	store := ledger.NewInMemory()
	app := fiber.New(fiber.Config{ErrorHandler: respond.ErrorHandler})
	require.NoError(t, Setup(app, Deps{Cfg: cfg, Cache: cache, Store: store, Logger: logging.Discard()}))
	return app, store
}

type envelope struct {
	Success    bool            `json:"success"`
	StatusCode int             `json:"status_code"`
	Detail     json.RawMessage `json:"detail"`
}

func send(t *testing.T, app *fiber.App, method, target, body string, headers map[string]string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set("X-Api-Key", apiKey)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

const authorisation = `{"type":"authorisation","card_id":"CARD1","transaction_id":"T1",
	"merchant_name":"SNEAKERS R US","merchant_country":"US","merchant_mcc":5139,
	"billing_amount":"20.00","billing_currency":"EUR","transaction_amount":"20.00","transaction_currency":"EUR"}`

const presentment = `{"type":"presentment","card_id":"CARD1","transaction_id":"T1",
	"merchant_name":"SNEAKERS R US","merchant_country":"US","merchant_mcc":5139,"merchant_city":"NEW YORK",
	"billing_amount":"20.00","billing_currency":"EUR","transaction_amount":"20.00","transaction_currency":"EUR",
	"settlement_amount":"18.00","settlement_currency":"EUR"}`

func TestSetup_CardLifecycle(t *testing.T) {
	app, _ := newTestApp(t)

	status, env := send(t, app, http.MethodPost, "/api/v1/operations/load", `{"cardholders":["alice"],"amount":"100"}`, nil)
	require.Equal(t, http.StatusOK, status, string(env.Detail))

	status, env = send(t, app, http.MethodPost, "/api/v1/operations/auth", authorisation, nil)
	require.Equal(t, http.StatusOK, status, string(env.Detail))
	assert.JSONEq(t, `"Authorization success"`, string(env.Detail))

	status, env = send(t, app, http.MethodGet, "/api/v1/operations/balance?card_id=CARD1", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `"80.00 EUR"`, string(env.Detail))

	status, _ = send(t, app, http.MethodPost, "/api/v1/operations/presentment", presentment, nil)
	require.Equal(t, http.StatusOK, status)

	status, env = send(t, app, http.MethodPost, "/api/v1/operations/clearing", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `["liability: 18.00 EUR","equity: 2.00 EUR"]`, string(env.Detail))

	status, env = send(t, app, http.MethodGet, "/api/v1/operations/balance?card_id=CARD1&balance_type=ledger", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `"80.00 EUR"`, string(env.Detail))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var health struct {
		Status map[string]string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health.Status["ledger"])
}

func TestSetup_RequiresConsumerKey(t *testing.T) {
	app, _ := newTestApp(t)

	status, env := send(t, app, http.MethodGet, "/api/v1/ping", "", map[string]string{"X-Api-Key": "nope"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.False(t, env.Success)

	status, env = send(t, app, http.MethodGet, "/api/v1/ping", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)
}

func TestSetup_IdempotentLoad(t *testing.T) {
	app, store := newTestApp(t)
	headers := map[string]string{"Idempotency-Key": "load-1"}

	status, first := send(t, app, http.MethodPost, "/api/v1/operations/load", `{"cardholders":["alice"],"amount":"10"}`, headers)
	require.Equal(t, http.StatusOK, status)
	status, second := send(t, app, http.MethodPost, "/api/v1/operations/load", `{"cardholders":["alice"],"amount":"10"}`, headers)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, string(first.Detail), string(second.Detail))

	alice, err := store.AccountByName(context.Background(), "cardholder:alice")
	require.NoError(t, err)
	assert.Equal(t, "10.00", alice.AmountLedger.StringFixed(2))
}

func TestSetup_RequiresInfraOutsideDevelopment(t *testing.T) {
	app := fiber.New()
	err := Setup(app, Deps{Cfg: config.Config{AppEnv: "production"}, Logger: logging.Discard()})
	assert.Error(t, err)
}
