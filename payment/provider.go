package payment

import "context"

// Provider is the capability contract a payment widget must satisfy. The
// state machine depends on nothing else; concrete adapters (Stripe, fakes in
// tests) are supplied at construction time.
type Provider interface {
	// Name identifies the provider in subscription-create calls.
	Name() string
	// Initialize prepares the provider with the subscription's confirmation
	// secret before the UI is mounted.
	Initialize(ctx context.Context, secret string) error
	// Mount attaches the provider UI at the page anchor. onReady fires when
	// the widget is usable; onLoadError reports a widget load failure. The
	// callbacks may fire asynchronously.
	Mount(anchor string, onReady func(), onLoadError func(err error))
	// Submit validates and submits the provider's collected input.
	Submit(ctx context.Context) error
	// Confirm requests payment confirmation against the secret.
	Confirm(ctx context.Context, params ConfirmParams) error
	// Detach unmounts the provider UI; a new checkout attempt detaches the
	// previous attempt's widget first.
	Detach()
}

// ConfirmParams carries the confirmation call inputs.
type ConfirmParams struct {
	Secret    string
	ReturnURL string
	// RedirectIfRequired asks the provider to redirect only when an
	// out-of-band step (3DS and the like) demands it.
	RedirectIfRequired bool
}
