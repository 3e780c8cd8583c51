// Package stripe adapts Stripe to the payment.Provider contract. It drives a
// PaymentIntent by its client confirmation secret: validate on mount, confirm
// on submit. There is no embedded widget here; hosts collect the payment
// method through their own Stripe surface and this adapter confirms it.
package stripe

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/paymentintent"
	"go.uber.org/zap"

	"github.com/paywallkit/paywallkit/payment"
)

// RedirectRequiredError reports that Stripe demands an out-of-band step (3DS
// or a bank page). URL is where the user has to go.
type RedirectRequiredError struct {
	URL string
}

func (e *RedirectRequiredError) Error() string {
	return "stripe: confirmation requires redirect to " + e.URL
}

// Provider implements payment.Provider over stripe-go.
type Provider struct {
	logger *zap.Logger

	mu       sync.Mutex
	secret   string
	intentID string
	mounted  bool
}

// New configures the Stripe client key once and returns the adapter.
func New(secretKey string, logger *zap.Logger) *Provider {
	stripe.Key = secretKey
	return &Provider{logger: logger}
}

func (p *Provider) Name() string { return "stripe" }

// Initialize records the subscription's confirmation secret and derives the
// PaymentIntent id from it.
func (p *Provider) Initialize(_ context.Context, secret string) error {
	id, ok := intentIDFromSecret(secret)
	if !ok {
		return fmt.Errorf("stripe: malformed client secret")
	}
	p.mu.Lock()
	p.secret = secret
	p.intentID = id
	p.mu.Unlock()
	return nil
}

// Mount validates the intent against Stripe and signals readiness. The
// lookup runs asynchronously, matching widget load behavior.
func (p *Provider) Mount(anchor string, onReady func(), onLoadError func(err error)) {
	p.mu.Lock()
	intentID := p.intentID
	p.mounted = true
	p.mu.Unlock()

	go func() {
		pi, err := paymentintent.Get(intentID, nil)
		if err != nil {
			p.logger.Warn("stripe intent lookup failed",
				zap.String("intent_id", intentID),
				zap.Error(err),
			)
			onLoadError(err)
			return
		}
		p.logger.Debug("stripe intent ready",
			zap.String("intent_id", pi.ID),
			zap.String("anchor", anchor),
		)
		onReady()
	}()
}

// Submit has nothing to validate headlessly; the host's own Stripe surface
// owns input collection.
func (p *Provider) Submit(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.mounted {
		return fmt.Errorf("stripe: provider not mounted")
	}
	return nil
}

// Confirm confirms the PaymentIntent. A requires_action status is returned as
// RedirectRequiredError so the host can send the user out of band.
func (p *Provider) Confirm(_ context.Context, params payment.ConfirmParams) error {
	id, ok := intentIDFromSecret(params.Secret)
	if !ok {
		return fmt.Errorf("stripe: malformed client secret")
	}

	pi, err := paymentintent.Confirm(id, &stripe.PaymentIntentConfirmParams{
		ReturnURL: stripe.String(params.ReturnURL),
	})
	if err != nil {
		return err
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded,
		stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresCapture:
		return nil
	case stripe.PaymentIntentStatusRequiresAction:
		if params.RedirectIfRequired && pi.NextAction != nil && pi.NextAction.RedirectToURL != nil {
			return &RedirectRequiredError{URL: pi.NextAction.RedirectToURL.URL}
		}
		return fmt.Errorf("stripe: confirmation requires further action")
	default:
		return fmt.Errorf("stripe: unexpected intent status %s", pi.Status)
	}
}

func (p *Provider) Detach() {
	p.mu.Lock()
	p.secret = ""
	p.intentID = ""
	p.mounted = false
	p.mu.Unlock()
}

// intentIDFromSecret extracts "pi_123" from "pi_123_secret_456".
func intentIDFromSecret(secret string) (string, bool) {
	i := strings.Index(secret, "_secret_")
	if i <= 0 {
		return "", false
	}
	return secret[:i], true
}
