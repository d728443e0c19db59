// Package wizard provides an interactive setup wizard for PromptStudio.
package wizard

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/promptstudio/promptstudio/internal/cli"
	"github.com/promptstudio/promptstudio/internal/config"
)

// DefaultOutputPath is where the config is written when no path is given.
const DefaultOutputPath = "./promptstudio.json"

// Wizard drives the interactive config setup.
type Wizard struct {
	p         *cli.Prompter
	lookupEnv func(string) (string, bool)
}

// New creates a Wizard using the given Prompter. Current environment values
// are offered as defaults.
func New(p *cli.Prompter) *Wizard {
	return &Wizard{p: p, lookupEnv: os.LookupEnv}
}

// Run executes the interactive wizard and writes the config file.
func (w *Wizard) Run(outputPath string) error {
	out := w.p.Out
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, "  PromptStudio Configuration Wizard")
	_, _ = fmt.Fprintln(out, strings.Repeat("─", 36))
	_, _ = fmt.Fprintln(out)

	cfg := w.seed()

	_, _ = fmt.Fprintln(out, "Server")
	cfg.Server.Addr = w.p.Ask("  Listen address", cfg.Server.Addr)
	cfg.Server.AppURL = w.p.Ask("  Public app URL (checkout redirects)", cfg.Server.AppURL)
	cfg.Server.SecureCookies = w.p.Confirm("  Serve over HTTPS (Secure cookies)?", strings.HasPrefix(cfg.Server.AppURL, "https://"))
	_, _ = fmt.Fprintln(out)

	_, _ = fmt.Fprintln(out, "Storage")
	drivers := []string{"memory", "sqlite", "postgres"}
	cfg.Storage.Driver = w.p.Choose("  Storage driver", drivers, indexOf(drivers, cfg.Storage.Driver))
	switch cfg.Storage.Driver {
	case "sqlite":
		cfg.Storage.DSN = w.p.Ask("  SQLite database path", orDefault(cfg.Storage.DSN, "promptstudio.db"))
	case "postgres":
		cfg.Storage.DSN = w.p.Ask("  PostgreSQL DSN", cfg.Storage.DSN)
		if cfg.Storage.DSN == "" {
			return fmt.Errorf("a DSN is required when using the postgres driver")
		}
	default:
		cfg.Storage.DSN = ""
	}
	_, _ = fmt.Fprintln(out)

	_, _ = fmt.Fprintln(out, "Sessions")
	for {
		ttl := w.p.Ask("  Session lifetime (0 keeps sessions until logout)", cfg.Session.TTL.String())
		d, err := time.ParseDuration(ttl)
		if err == nil && d >= 0 {
			cfg.Session.TTL.Duration = d
			break
		}
		_, _ = fmt.Fprintln(out, "  Please enter a duration such as 24h or 0.")
	}
	_, _ = fmt.Fprintln(out)

	_, _ = fmt.Fprintln(out, "Stripe")
	cfg.Billing.StripeSecretKey = w.p.AskSecret("  Secret key (sk_...)", cfg.Billing.StripeSecretKey)
	cfg.Billing.StripePublishableKey = w.p.Ask("  Publishable key (pk_...)", cfg.Billing.StripePublishableKey)
	cfg.Billing.StripePriceID = w.p.Ask("  Subscription price ID (price_...)", cfg.Billing.StripePriceID)
	cfg.Billing.StripeWebhookSecret = w.p.AskSecret("  Webhook signing secret (whsec_...)", cfg.Billing.StripeWebhookSecret)
	_, _ = fmt.Fprintln(out)

	if cfg.Billing.StripePriceID == "" {
		_, _ = fmt.Fprintln(out, "  No price ID set: checkout stays disabled until STRIPE_PRICE_ID is provided.")
	}
	if cfg.Billing.StripeWebhookSecret == "" {
		_, _ = fmt.Fprintln(out, "  No webhook secret set: payment confirmations will be rejected.")
	}

	if outputPath == "" {
		outputPath = w.p.Ask("Config file output path", DefaultOutputPath)
	}
	if err := writeConfig(outputPath, cfg); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "\n  Config written to %s\n\n", outputPath)
	_, _ = fmt.Fprintln(out, "  Next steps:")
	_, _ = fmt.Fprintf(out, "    promptstudio run %s\n", outputPath)
	_, _ = fmt.Fprintf(out, "    stripe listen --forward-to %s/api/billing/webhook\n\n", cfg.Server.AppURL)
	return nil
}

// RunDefaults writes a config built from environment variables and defaults
// without prompting.
func (w *Wizard) RunDefaults(outputPath string) error {
	cfg := w.seed()
	if cfg.Storage.Driver == "postgres" && cfg.Storage.DSN == "" {
		return fmt.Errorf("%s is required when using the postgres driver", config.EnvStorageDSN)
	}
	if outputPath == "" {
		outputPath = DefaultOutputPath
	}
	if err := writeConfig(outputPath, cfg); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w.p.Out, "Config written to %s\n", outputPath)
	return nil
}

func (w *Wizard) seed() *config.Config {
	cfg := &config.Config{}
	cfg.ApplyEnv(w.lookupEnv)
	cfg.ApplyDefaults()
	return cfg
}

func writeConfig(path string, cfg *config.Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	// The file holds Stripe secrets.
	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func indexOf(options []string, v string) int {
	for i, o := range options {
		if o == v {
			return i
		}
	}
	return 0
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
