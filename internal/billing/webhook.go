package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82/webhook"
)

// WebhookOutcome describes what an accepted webhook event did.
type WebhookOutcome string

const (
	OutcomeUpgraded  WebhookOutcome = "upgraded"
	OutcomeUnmatched WebhookOutcome = "unmatched"
	OutcomeIgnored   WebhookOutcome = "ignored"
)

const eventCheckoutCompleted = "checkout.session.completed"

// checkoutSession is the subset of a checkout.session object read here.
type checkoutSession struct {
	ID                string `json:"id"`
	ClientReferenceID string `json:"client_reference_id"`
	CustomerEmail     string `json:"customer_email"`
	CustomerDetails   struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

func (cs *checkoutSession) email() string {
	if cs.CustomerEmail != "" {
		return cs.CustomerEmail
	}
	return cs.CustomerDetails.Email
}

// HandleWebhook verifies a Stripe event and applies it. Unparsable bodies
// yield ErrMalformed and bad signatures ErrInvalidSignature; both leave all
// entitlements untouched. A completed checkout upgrades the account whose
// name equals the purchaser email. Unmatched emails and other event types
// are acknowledged without any change.
func (b *Bridge) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) (WebhookOutcome, error) {
	if !json.Valid(payload) {
		b.metrics.RecordWebhook("malformed")
		return "", ErrMalformed
	}

	// An empty secret would let anyone sign events.
	secret := strings.TrimSpace(b.cfg.StripeWebhookSecret)
	if secret == "" {
		b.metrics.RecordWebhook("invalid_signature")
		b.logger.Warn("webhook rejected: signing secret not configured")
		return "", ErrInvalidSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			b.metrics.RecordWebhook("invalid_signature")
			b.logger.Warn("webhook rejected: bad signature", "error", err)
			return "", ErrInvalidSignature
		}
		b.metrics.RecordWebhook("malformed")
		return "", ErrMalformed
	}
	if event.Type == "" {
		b.metrics.RecordWebhook("malformed")
		return "", ErrMalformed
	}

	if event.Type != eventCheckoutCompleted {
		b.metrics.RecordWebhook(string(OutcomeIgnored))
		b.logger.Info("webhook ignored (unhandled type)", "type", string(event.Type), "event_id", event.ID)
		return OutcomeIgnored, nil
	}

	var cs checkoutSession
	if event.Data == nil || json.Unmarshal(event.Data.Raw, &cs) != nil {
		b.metrics.RecordWebhook("malformed")
		return "", ErrMalformed
	}

	email := cs.email()
	if email == "" {
		b.metrics.RecordWebhook(string(OutcomeUnmatched))
		b.logger.Info("checkout completed without purchaser email", "event_id", event.ID, "session_id", cs.ID)
		return OutcomeUnmatched, nil
	}

	matched, err := b.registry.SetEntitlementPaid(ctx, email)
	if err != nil {
		b.metrics.RecordWebhook("error")
		return "", fmt.Errorf("set entitlement: %w", err)
	}
	if !matched {
		b.metrics.RecordWebhook(string(OutcomeUnmatched))
		b.logger.Info("checkout completed for unknown account", "event_id", event.ID, "session_id", cs.ID)
		return OutcomeUnmatched, nil
	}

	b.metrics.RecordWebhook(string(OutcomeUpgraded))
	b.logger.Info("account upgraded", "account", email, "event_id", event.ID, "session_id", cs.ID)
	return OutcomeUpgraded, nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}
