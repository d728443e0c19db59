package billing

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"

	"github.com/promptstudio/promptstudio/internal/config"
	"github.com/promptstudio/promptstudio/internal/metrics"
)

// Bridge creates Stripe checkout sessions and consumes Stripe webhooks.
type Bridge struct {
	cfg      config.BillingConfig
	appURL   string
	registry Registry
	metrics  metrics.Recorder
	logger   *slog.Logger

	createCheckoutSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// NewBridge creates a Bridge. appURL is the public base URL that checkout
// redirects back to.
func NewBridge(cfg config.BillingConfig, appURL string, registry Registry, rec metrics.Recorder, logger *slog.Logger) *Bridge {
	sc := stripesession.Client{
		B:   stripe.GetBackend(stripe.APIBackend),
		Key: strings.TrimSpace(cfg.StripeSecretKey),
	}
	return &Bridge{
		cfg:                   cfg,
		appURL:                strings.TrimRight(appURL, "/"),
		registry:              registry,
		metrics:               rec,
		logger:                logger.With("component", "billing"),
		createCheckoutSession: sc.New,
	}
}

// PublishableKey returns the key the browser uses with Stripe.js.
func (b *Bridge) PublishableKey() string {
	return b.cfg.StripePublishableKey
}

// CheckoutConfigured reports whether a price is configured.
func (b *Bridge) CheckoutConfigured() bool {
	return strings.TrimSpace(b.cfg.StripePriceID) != ""
}

// InitiateCheckout creates a subscription checkout session for the named
// account and returns the hosted checkout URL. It returns
// ErrPriceNotConfigured when no price is set and *CheckoutError when Stripe
// rejects the request.
func (b *Bridge) InitiateCheckout(ctx context.Context, name string) (string, error) {
	price := strings.TrimSpace(b.cfg.StripePriceID)
	if price == "" {
		b.metrics.RecordCheckout("config_error")
		b.logger.Error("checkout requested without a configured price")
		return "", ErrPriceNotConfigured
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(price),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(b.appURL + "/success"),
		CancelURL:         stripe.String(b.appURL + "/cancel"),
		ClientReferenceID: stripe.String(name),
	}
	// Webhook matching keys on the purchaser email, so prefill it when the
	// account name is one.
	if isEmail(name) {
		params.CustomerEmail = stripe.String(name)
	}
	params.Context = ctx
	params.SetIdempotencyKey(uuid.NewString())

	sess, err := b.createCheckoutSession(params)
	if err != nil {
		b.metrics.RecordCheckout("processor_error")
		ce := toCheckoutError(err)
		b.logger.Error("create checkout session failed",
			"account", name, "error_type", ce.Type, "code", ce.Code, "error", ce.Message)
		return "", ce
	}

	b.metrics.RecordCheckout("created")
	b.logger.Info("checkout session created", "account", name, "session_id", sess.ID)
	return sess.URL, nil
}

func toCheckoutError(err error) *CheckoutError {
	var se *stripe.Error
	if errors.As(err, &se) {
		return &CheckoutError{
			Message:    se.Msg,
			Type:       string(se.Type),
			Code:       string(se.Code),
			HTTPStatus: se.HTTPStatusCode,
		}
	}
	return &CheckoutError{Message: err.Error(), Type: "api_connection_error"}
}

func isEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
