// Package billing resolves entitlements and bridges to Stripe for checkout
// and payment confirmation.
package billing

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrPriceNotConfigured means no Stripe price ID is configured. It fails
	// the request, not the process.
	ErrPriceNotConfigured = errors.New("PRICE_ID is missing in environment")
	// ErrInvalidSignature means the webhook signature did not verify.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrMalformed means the webhook body is not a recognizable event.
	ErrMalformed = errors.New("invalid payload")
)

// Registry is the account registry as seen by billing.
type Registry interface {
	IsPaid(ctx context.Context, name string) (bool, error)
	// SetEntitlementPaid is idempotent and reports whether name matched an
	// account. A miss is not an error.
	SetEntitlementPaid(ctx context.Context, name string) (bool, error)
}

// Resolver answers whether an account is paid. It reads the registry on
// every call, so an upgrade is visible on the very next request.
type Resolver struct {
	registry Registry
}

// NewResolver creates a Resolver over registry.
func NewResolver(registry Registry) *Resolver {
	return &Resolver{registry: registry}
}

// IsEntitled reports whether name is a paid account. Unknown names are not.
func (r *Resolver) IsEntitled(ctx context.Context, name string) (bool, error) {
	return r.registry.IsPaid(ctx, name)
}

// CheckoutError carries a payment processor failure verbatim.
type CheckoutError struct {
	Message    string
	Type       string
	Code       string
	HTTPStatus int
}

func (e *CheckoutError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("checkout: %s (%s/%s)", e.Message, e.Type, e.Code)
	}
	return fmt.Sprintf("checkout: %s (%s)", e.Message, e.Type)
}
