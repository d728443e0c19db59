// Package config handles PromptStudio configuration loading and validation.
//
// Settings come from an optional JSON file, then environment variables (which
// may be seeded from a .env file), then defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables recognized by ApplyEnv.
const (
	EnvStripeSecretKey      = "STRIPE_SECRET_KEY"
	EnvStripePublishableKey = "STRIPE_PUBLISHABLE_KEY"
	EnvStripePriceID        = "STRIPE_PRICE_ID"
	EnvStripeWebhookSecret  = "STRIPE_WEBHOOK_SECRET"
	EnvAppURL               = "APP_URL"
	EnvAddr                 = "PROMPTSTUDIO_ADDR"
	EnvStorageDriver        = "PROMPTSTUDIO_STORAGE_DRIVER"
	EnvStorageDSN           = "PROMPTSTUDIO_STORAGE_DSN"
	EnvLogLevel             = "PROMPTSTUDIO_LOG_LEVEL"
)

const (
	DefaultAddr   = ":8000"
	DefaultAppURL = "http://127.0.0.1:8000"
)

// Config is the top-level service configuration.
type Config struct {
	Server  ServerConfig  `json:"server"`
	Storage StorageConfig `json:"storage"`
	Session SessionConfig `json:"session,omitempty"`
	Logging LoggingConfig `json:"logging"`
	Billing BillingConfig `json:"billing,omitempty"`
}

// ServerConfig defines the HTTP listener settings.
type ServerConfig struct {
	Addr           string   `json:"addr"`                      // e.g. ":8000"
	AppURL         string   `json:"app_url,omitempty"`         // public base URL for checkout redirects
	AllowedOrigins []string `json:"allowed_origins,omitempty"` // CORS origins; default ["*"]
	MaxBodyBytes   int64    `json:"max_body_bytes,omitempty"`  // default 1MB
	SecureCookies  bool     `json:"secure_cookies,omitempty"`  // set Secure on the session cookie
}

// StorageConfig defines the account and session store.
type StorageConfig struct {
	Driver string `json:"driver"`        // "memory" (default), "sqlite" or "postgres"
	DSN    string `json:"dsn,omitempty"` // file path for sqlite, URL for postgres
}

// SessionConfig defines session lifetime. A zero TTL keeps sessions until
// logout or restart.
type SessionConfig struct {
	TTL           Duration `json:"ttl,omitempty"`
	PurgeInterval Duration `json:"purge_interval,omitempty"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `json:"level,omitempty"`
	Format string `json:"format,omitempty"` // "json" or "text"
}

// BillingConfig defines Stripe settings. Checkout is unavailable until a
// price ID is set; webhooks are rejected until a signing secret is set.
type BillingConfig struct {
	StripeSecretKey      string `json:"stripe_secret_key,omitempty"`
	StripePublishableKey string `json:"stripe_publishable_key,omitempty"`
	StripePriceID        string `json:"stripe_price_id,omitempty"`
	StripeWebhookSecret  string `json:"stripe_webhook_secret,omitempty"`
}

// Duration is a JSON-friendly time.Duration.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		dur, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		d.Duration = dur
	case float64:
		d.Duration = time.Duration(val) * time.Second
	default:
		return fmt.Errorf("invalid duration: %v", v)
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// LoadEnvFile loads variables from a .env file into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Load reads the config file at path (if any), layers environment variables
// on top, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.ApplyEnv(os.LookupEnv)
	cfg.ApplyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from environment variables. Unset variables leave
// the field untouched; set-but-empty variables clear it.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	set(EnvStripeSecretKey, &c.Billing.StripeSecretKey)
	set(EnvStripePublishableKey, &c.Billing.StripePublishableKey)
	set(EnvStripePriceID, &c.Billing.StripePriceID)
	set(EnvStripeWebhookSecret, &c.Billing.StripeWebhookSecret)
	set(EnvAppURL, &c.Server.AppURL)
	set(EnvAddr, &c.Server.Addr)
	set(EnvStorageDriver, &c.Storage.Driver)
	set(EnvStorageDSN, &c.Storage.DSN)
	set(EnvLogLevel, &c.Logging.Level)
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.AppURL == "" {
		c.Server.AppURL = DefaultAppURL
	}
	c.Server.AppURL = strings.TrimRight(c.Server.AppURL, "/")
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 1024 * 1024 // 1MB
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.Driver == "sqlite" && c.Storage.DSN == "" {
		c.Storage.DSN = "promptstudio.db"
	}
	if c.Session.TTL.Duration > 0 && c.Session.PurgeInterval.Duration == 0 {
		c.Session.PurgeInterval.Duration = 10 * time.Minute
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("storage.driver must be memory, sqlite or postgres, got %q", c.Storage.Driver)
	}

	u, err := url.Parse(c.Server.AppURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server.app_url must be an absolute URL, got %q", c.Server.AppURL)
	}

	if c.Session.TTL.Duration < 0 {
		return fmt.Errorf("session.ttl must not be negative")
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}
