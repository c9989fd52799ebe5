// Package payment wraps the payment service provider. Charges settle a
// completed ride's fare; card processing itself happens on Stripe's side.
package payment

import (
	"context"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// Provider charges fares with an external PSP. The HTTP layer depends on
// this interface so tests can stub the network out.
type Provider interface {
	Charge(ctx context.Context, amountCents int64, currency, description string) (string, error)
	Cancel(ctx context.Context, reference string) error
}

// StripeProvider is a thin wrapper around stripe-go PaymentIntents.
type StripeProvider struct {
	currency string
}

// NewStripeProvider sets the global stripe API key and returns a provider.
func NewStripeProvider(apiKey, currency string) *StripeProvider {
	stripe.Key = apiKey
	if currency == "" {
		currency = "usd"
	}
	return &StripeProvider{currency: currency}
}

// Charge creates and confirms a PaymentIntent for the fare. It returns the
// PaymentIntent ID as the provider reference.
func (s *StripeProvider) Charge(ctx context.Context, amountCents int64, currency, description string) (string, error) {
	if currency == "" {
		currency = s.currency
	}
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(amountCents),
		Currency:    stripe.String(currency),
		Description: stripe.String(description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx

	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

// Cancel releases an uncaptured PaymentIntent.
func (s *StripeProvider) Cancel(ctx context.Context, reference string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	_, err := paymentintent.Cancel(reference, params)
	return err
}
