package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultAppName         = "CardIssuing"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultAuthHeader      = "X-Api-Key"
	defaultRateLimit       = 600
	defaultCurrency        = "EUR"
	configFileEnvVar       = "ISSUER_CONFIG_FILE"
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// CardMapping binds a scheme card id to the ledger account it spends from.
type CardMapping struct {
	CardID  string `mapstructure:"card_id"`
	Account string `mapstructure:"account"`
}

// CardholderMapping binds a cardholder name to its ledger account.
type CardholderMapping struct {
	Name    string `mapstructure:"name"`
	Account string `mapstructure:"account"`
}

// Consumer is an API client allowed through the auth gate. KeyHash is a
// bcrypt hash of the key sent in the auth header.
type Consumer struct {
	Name    string `mapstructure:"name"`
	KeyHash string `mapstructure:"key_hash"`
}

// Accounts names the well-known ledger accounts and the card mappings.
type Accounts struct {
	Bank        string              `mapstructure:"bank"`
	Scheme      string              `mapstructure:"scheme"`
	Equity      string              `mapstructure:"equity"`
	Cards       []CardMapping       `mapstructure:"cards"`
	Cardholders []CardholderMapping `mapstructure:"cardholders"`
}

// Config captures application runtime configuration loaded from environment
// variables and, optionally, a YAML file named by ISSUER_CONFIG_FILE.
type Config struct {
	AppName            string
	AppEnv             string
	Port               string
	LogLevel           string
	LogFormat          string
	DatabaseURL        string
	RedisURL           string
	MigrateOnStart     bool
	ShutdownPeriod     time.Duration
	IdempotencyTTL     time.Duration
	AuthHeader         string
	RateLimitPerMinute int
	DefaultCurrency    string
	Accounts           Accounts
	Consumers          []Consumer
}

// Load reads configuration values and populates a Config instance.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app_name", defaultAppName)
	v.SetDefault("app_env", defaultAppEnv)
	v.SetDefault("port", defaultPort)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("log_format", defaultLogFormat)
	v.SetDefault("migrate_on_start", true)
	v.SetDefault("api_auth_header", defaultAuthHeader)
	v.SetDefault("rate_limit_per_minute", defaultRateLimit)
	v.SetDefault("default_currency", defaultCurrency)
	v.SetDefault("accounts.bank", "bank")
	v.SetDefault("accounts.scheme", "scheme")
	v.SetDefault("accounts.equity", "equity")

	if path := v.GetString(configFileEnvVar); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}

	cfg := Config{
		AppName:            v.GetString("app_name"),
		AppEnv:             v.GetString("app_env"),
		Port:               v.GetString("port"),
		LogLevel:           strings.ToLower(v.GetString("log_level")),
		LogFormat:          strings.ToLower(v.GetString("log_format")),
		DatabaseURL:        v.GetString("database_url"),
		RedisURL:           v.GetString("redis_url"),
		MigrateOnStart:     v.GetBool("migrate_on_start"),
		ShutdownPeriod:     defaultShutdownDelay,
		IdempotencyTTL:     defaultIdempotencyTTL,
		AuthHeader:         v.GetString("api_auth_header"),
		RateLimitPerMinute: v.GetInt("rate_limit_per_minute"),
		DefaultCurrency:    strings.ToUpper(v.GetString("default_currency")),
	}

	var err error
	if cfg.ShutdownPeriod, err = duration(v, shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = duration(v, idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}

	cfg.Accounts.Bank = v.GetString("accounts.bank")
	cfg.Accounts.Scheme = v.GetString("accounts.scheme")
	cfg.Accounts.Equity = v.GetString("accounts.equity")
	if err := v.UnmarshalKey("accounts.cards", &cfg.Accounts.Cards); err != nil {
		return Config{}, fmt.Errorf("invalid accounts.cards: %w", err)
	}
	if err := v.UnmarshalKey("accounts.cardholders", &cfg.Accounts.Cardholders); err != nil {
		return Config{}, fmt.Errorf("invalid accounts.cardholders: %w", err)
	}
	if err := v.UnmarshalKey("consumers", &cfg.Consumers); err != nil {
		return Config{}, fmt.Errorf("invalid consumers: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func duration(v *viper.Viper, secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if s := v.GetString(secondsKey); s != "" {
		seconds, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if s := v.GetString(durationKey); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func (c Config) validate() error {
	if !c.IsDevelopment() {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set")
		}
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set")
		}
		if len(c.Consumers) == 0 {
			return fmt.Errorf("at least one API consumer must be configured outside development")
		}
	}
	if c.AuthHeader == "" {
		return fmt.Errorf("API_AUTH_HEADER must not be empty")
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative")
	}
	seen := make(map[string]bool, len(c.Accounts.Cards))
	for _, m := range c.Accounts.Cards {
		if m.CardID == "" || m.Account == "" {
			return fmt.Errorf("card mapping needs both card_id and account")
		}
		if seen[m.CardID] {
			return fmt.Errorf("card %q mapped twice", m.CardID)
		}
		seen[m.CardID] = true
	}
	for _, m := range c.Accounts.Cardholders {
		if m.Name == "" || m.Account == "" {
			return fmt.Errorf("cardholder mapping needs both name and account")
		}
	}
	return nil
}

// IsDevelopment reports whether the service runs in the development environment.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == defaultAppEnv
}

// CardholderAccounts lists the distinct account names referenced by the card
// and cardholder mappings.
func (c Config) CardholderAccounts() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, m := range c.Accounts.Cardholders {
		add(m.Account)
	}
	for _, m := range c.Accounts.Cards {
		add(m.Account)
	}
	return out
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
