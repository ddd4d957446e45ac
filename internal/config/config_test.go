package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "CardIssuing", cfg.AppName)
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownPeriod)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, "X-Api-Key", cfg.AuthHeader)
	assert.Equal(t, "EUR", cfg.DefaultCurrency)
	assert.Equal(t, "bank", cfg.Accounts.Bank)
	assert.Equal(t, "scheme", cfg.Accounts.Scheme)
	assert.Equal(t, "equity", cfg.Accounts.Equity)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_DurationOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "3")
	t.Setenv("IDEMPOTENCY_TTL", "90m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.ShutdownPeriod)
	assert.Equal(t, 90*time.Minute, cfg.IdempotencyTTL)

	t.Setenv("IDEMPOTENCY_TTL", "soon")
	_, err = Load()
	assert.ErrorContains(t, err, "IDEMPOTENCY_TTL")
}

func TestLoad_RequiresInfraOutsideDevelopment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	_, err := Load()
	assert.ErrorContains(t, err, "DATABASE_URL")

	t.Setenv("DATABASE_URL", "postgres://localhost/issuing")
	_, err = Load()
	assert.ErrorContains(t, err, "REDIS_URL")
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "issuer.yaml")
	body := `
port: "9090"
accounts:
  bank: issuer-bank
  cards:
    - card_id: cAfe01
      account: alice
    - card_id: b0b
      account: bob
  cardholders:
    - name: Alice
      account: alice
consumers:
  - name: issuer
    key_hash: "$2a$10$abcdefghijklmnopqrstuv"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("APP_ENV", "development")
	t.Setenv("ISSUER_CONFIG_FILE", path)
	t.Setenv("ACCOUNTS_EQUITY", "fees")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Address())
	assert.Equal(t, "issuer-bank", cfg.Accounts.Bank)
	assert.Equal(t, "scheme", cfg.Accounts.Scheme)
	assert.Equal(t, "fees", cfg.Accounts.Equity)
	require.Len(t, cfg.Accounts.Cards, 2)
	assert.Equal(t, "cAfe01", cfg.Accounts.Cards[0].CardID, "card ids keep their case")
	assert.Equal(t, []CardholderMapping{{Name: "Alice", Account: "alice"}}, cfg.Accounts.Cardholders)
	require.Len(t, cfg.Consumers, 1)
	assert.Equal(t, "issuer", cfg.Consumers[0].Name)
	assert.Equal(t, []string{"alice", "bob"}, cfg.CardholderAccounts())
}

func TestLoad_RejectsDuplicateCard(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "issuer.yaml")
	body := `
accounts:
  cards:
    - card_id: c1
      account: alice
    - card_id: c1
      account: bob
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("APP_ENV", "development")
	t.Setenv("ISSUER_CONFIG_FILE", path)

	_, err := Load()
	assert.ErrorContains(t, err, "mapped twice")
}
