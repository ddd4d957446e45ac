package funding

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/card_issuing/internal/respond"
	"github.com/congo-pay/card_issuing/internal/validation"
)

func TestHandlerLoad(t *testing.T) {
	service, _, _ := setup(t)
	app := fiber.New(fiber.Config{ErrorHandler: respond.ErrorHandler})
	app.Post("/operations/load", NewHandler(service, validation.New()).Load)

	post := func(body string) (int, json.RawMessage) {
		req := httptest.NewRequest(http.MethodPost, "/operations/load", strings.NewReader(body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		var env struct {
			Detail json.RawMessage `json:"detail"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
		return resp.StatusCode, env.Detail
	}

	status, detail := post(`{"cardholders":["alice"],"amount":"100"}`)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"alice":{"available":"100.00 EUR","ledger":"100.00 EUR"}}`, string(detail))

	status, _ = post(`{"cardholders":["nobody"],"amount":"100"}`)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = post(`{"cardholders":[],"amount":"100"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = post(`{"cardholders":["alice"],"amount":"0.001"}`)
	assert.Equal(t, http.StatusBadRequest, status)
}
