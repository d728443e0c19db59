package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var allEnvKeys = []string{
	EnvStripeSecretKey, EnvStripePublishableKey, EnvStripePriceID, EnvStripeWebhookSecret,
	EnvAppURL, EnvAddr, EnvStorageDriver, EnvStorageDSN, EnvLogLevel,
}

// unsetEnv removes every recognized variable for the duration of the test.
func unsetEnv(t *testing.T) {
	t.Helper()
	for _, k := range allEnvKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	unsetEnv(t)

	configJSON := `{
		"server": {
			"addr": ":9090",
			"app_url": "https://studio.example.com/",
			"allowed_origins": ["https://studio.example.com"],
			"secure_cookies": true
		},
		"storage": {
			"driver": "sqlite",
			"dsn": "test.db"
		},
		"session": {
			"ttl": "12h",
			"purge_interval": 300
		},
		"logging": {
			"level": "debug",
			"format": "text"
		},
		"billing": {
			"stripe_secret_key": "sk_test_123",
			"stripe_publishable_key": "pk_test_123",
			"stripe_price_id": "price_123",
			"stripe_webhook_secret": "whsec_123"
		}
	}`

	cfg, err := Load(writeTempConfig(t, configJSON))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Server
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr: got %q, want %q", cfg.Server.Addr, ":9090")
	}
	if cfg.Server.AppURL != "https://studio.example.com" {
		t.Errorf("Server.AppURL: got %q, want trailing slash trimmed", cfg.Server.AppURL)
	}
	if !cfg.Server.SecureCookies {
		t.Error("Server.SecureCookies: got false, want true")
	}

	// Storage
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.DSN != "test.db" {
		t.Errorf("Storage: got %+v", cfg.Storage)
	}

	// Session
	if cfg.Session.TTL.Duration != 12*time.Hour {
		t.Errorf("Session.TTL: got %v, want 12h", cfg.Session.TTL.Duration)
	}
	if cfg.Session.PurgeInterval.Duration != 5*time.Minute {
		t.Errorf("Session.PurgeInterval: got %v, want 5m", cfg.Session.PurgeInterval.Duration)
	}

	// Logging
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging: got %+v", cfg.Logging)
	}

	// Billing
	if cfg.Billing.StripePriceID != "price_123" {
		t.Errorf("Billing.StripePriceID: got %q", cfg.Billing.StripePriceID)
	}
	if cfg.Billing.StripeWebhookSecret != "whsec_123" {
		t.Errorf("Billing.StripeWebhookSecret: got %q", cfg.Billing.StripeWebhookSecret)
	}
}

func TestApplyDefaults(t *testing.T) {
	unsetEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Addr != DefaultAddr {
		t.Errorf("default Server.Addr: got %q, want %q", cfg.Server.Addr, DefaultAddr)
	}
	if cfg.Server.AppURL != DefaultAppURL {
		t.Errorf("default Server.AppURL: got %q, want %q", cfg.Server.AppURL, DefaultAppURL)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "*" {
		t.Errorf("default AllowedOrigins: got %v, want [*]", cfg.Server.AllowedOrigins)
	}
	if cfg.Server.MaxBodyBytes != 1024*1024 {
		t.Errorf("default Server.MaxBodyBytes: got %d", cfg.Server.MaxBodyBytes)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("default Storage.Driver: got %q, want memory", cfg.Storage.Driver)
	}
	if cfg.Session.TTL.Duration != 0 {
		t.Errorf("default Session.TTL: got %v, want 0", cfg.Session.TTL.Duration)
	}
	if cfg.Session.PurgeInterval.Duration != 0 {
		t.Errorf("PurgeInterval should stay zero without a TTL, got %v", cfg.Session.PurgeInterval.Duration)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("default Logging: got %+v", cfg.Logging)
	}
	if cfg.Billing.StripePriceID != "" {
		t.Errorf("price ID should be empty by default, got %q", cfg.Billing.StripePriceID)
	}
}

func TestSQLiteDefaultDSN(t *testing.T) {
	unsetEnv(t)
	cfg, err := Load(writeTempConfig(t, `{"storage": {"driver": "sqlite"}}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.DSN != "promptstudio.db" {
		t.Errorf("Storage.DSN: got %q, want promptstudio.db", cfg.Storage.DSN)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	unsetEnv(t)
	t.Setenv(EnvStripePriceID, "price_env")
	t.Setenv(EnvStripeWebhookSecret, "whsec_env")
	t.Setenv(EnvAppURL, "https://env.example.com")
	t.Setenv(EnvAddr, ":7000")

	path := writeTempConfig(t, `{
		"server": {"addr": ":9090", "app_url": "https://file.example.com"},
		"billing": {"stripe_price_id": "price_file", "stripe_secret_key": "sk_file"}
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Billing.StripePriceID != "price_env" {
		t.Errorf("StripePriceID: got %q, want price_env", cfg.Billing.StripePriceID)
	}
	if cfg.Billing.StripeSecretKey != "sk_file" {
		t.Errorf("StripeSecretKey: got %q, want sk_file", cfg.Billing.StripeSecretKey)
	}
	if cfg.Billing.StripeWebhookSecret != "whsec_env" {
		t.Errorf("StripeWebhookSecret: got %q", cfg.Billing.StripeWebhookSecret)
	}
	if cfg.Server.AppURL != "https://env.example.com" {
		t.Errorf("AppURL: got %q", cfg.Server.AppURL)
	}
	if cfg.Server.Addr != ":7000" {
		t.Errorf("Addr: got %q", cfg.Server.Addr)
	}
}

func TestLoadEnvFile(t *testing.T) {
	unsetEnv(t)

	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "STRIPE_PRICE_ID=price_dotenv\nAPP_URL=https://dotenv.example.com\n"
	if err := os.WriteFile(envPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	// Already-set variables win over the file.
	t.Setenv(EnvAppURL, "https://shell.example.com")

	if err := LoadEnvFile(envPath); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv(EnvStripePriceID) })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Billing.StripePriceID != "price_dotenv" {
		t.Errorf("StripePriceID: got %q, want price_dotenv", cfg.Billing.StripePriceID)
	}
	if cfg.Server.AppURL != "https://shell.example.com" {
		t.Errorf("AppURL: got %q, want shell value", cfg.Server.AppURL)
	}
}

func TestLoadEnvFileMissing(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Fatalf("missing env file should be ignored, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr bool
	}{
		{"valid minimal", `{}`, false},
		{"unknown driver", `{"storage": {"driver": "mongo"}}`, true},
		{"postgres without dsn", `{"storage": {"driver": "postgres"}}`, true},
		{"postgres with dsn", `{"storage": {"driver": "postgres", "dsn": "postgres://localhost/ps"}}`, false},
		{"relative app url", `{"server": {"app_url": "studio.example.com"}}`, true},
		{"negative ttl", `{"session": {"ttl": "-1h"}}`, true},
		{"bad log format", `{"logging": {"format": "xml"}}`, true},
		{"bad log level", `{"logging": {"level": "verbose"}}`, true},
		{"bad duration", `{"session": {"ttl": "soon"}}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unsetEnv(t)
			_, err := Load(writeTempConfig(t, tt.config))
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestDurationJSON(t *testing.T) {
	d := Duration{90 * time.Second}
	b, err := d.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"1m30s"` {
		t.Errorf("MarshalJSON: got %s", b)
	}

	var back Duration
	if err := back.UnmarshalJSON(b); err != nil {
		t.Fatal(err)
	}
	if back.Duration != d.Duration {
		t.Errorf("round trip: got %v, want %v", back.Duration, d.Duration)
	}
}
