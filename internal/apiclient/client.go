// Package apiclient talks to the card issuing API over HTTP on behalf of the
// operational CLI.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

const defaultTimeout = 15 * time.Second

// Client calls the issuing API with an API consumer key.
type Client struct {
	baseURL    string
	authHeader string
	apiKey     string
	timeout    time.Duration
}

// New builds a client for the API rooted at baseURL (for example
// http://localhost:8080/api/v1).
func New(baseURL, authHeader, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authHeader: authHeader,
		apiKey:     apiKey,
		timeout:    defaultTimeout,
	}
}

// Error is a non-2xx answer of the API.
type Error struct {
	Status int
	Detail json.RawMessage
}

func (e *Error) Error() string {
	var msg string
	if err := json.Unmarshal(e.Detail, &msg); err == nil {
		return fmt.Sprintf("api returned %d: %s", e.Status, msg)
	}
	return fmt.Sprintf("api returned %d: %s", e.Status, string(e.Detail))
}

type envelope struct {
	Success    bool            `json:"success"`
	StatusCode int             `json:"status_code"`
	Detail     json.RawMessage `json:"detail"`
}

// CardholderBalance is the state of a cardholder after a load.
type CardholderBalance struct {
	Available string `json:"available"`
	Ledger    string `json:"ledger"`
}

// Clear clears pending presentments. window may be empty.
func (c *Client) Clear(ctx context.Context, window string) ([]string, error) {
	a := fiber.Post(c.baseURL + "/operations/clearing")
	if window != "" {
		a.JSON(map[string]string{"window": window})
	}
	var lines []string
	if err := c.do(ctx, a, &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// LoadMoney credits amount to each cardholder.
func (c *Client) LoadMoney(ctx context.Context, amount decimal.Decimal, cardholders ...string) (map[string]CardholderBalance, error) {
	a := fiber.Post(c.baseURL + "/operations/load")
	a.JSON(map[string]any{"cardholders": cardholders, "amount": amount})
	out := map[string]CardholderBalance{}
	if err := c.do(ctx, a, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Balance returns the card balance rendered by the API. kind and at are
// optional.
func (c *Client) Balance(ctx context.Context, cardID, kind, at string) (string, error) {
	q := url.Values{}
	q.Set("card_id", cardID)
	if kind != "" {
		q.Set("balance_type", kind)
	}
	if at != "" {
		q.Set("date_time", at)
	}
	a := fiber.Get(c.baseURL + "/operations/balance")
	a.QueryString(q.Encode())
	var balance string
	if err := c.do(ctx, a, &balance); err != nil {
		return "", err
	}
	return balance, nil
}

func (c *Client) do(ctx context.Context, a *fiber.Agent, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if c.apiKey != "" {
		a.Set(c.authHeader, c.apiKey)
	}
	a.Timeout(timeout)

	var env envelope
	status, _, errs := a.Struct(&env)
	if len(errs) > 0 {
		return fmt.Errorf("call api: %w", errors.Join(errs...))
	}
	if status >= fiber.StatusBadRequest || !env.Success {
		return &Error{Status: status, Detail: env.Detail}
	}
	if err := json.Unmarshal(env.Detail, out); err != nil {
		return fmt.Errorf("decode response detail: %w", err)
	}
	return nil
}
