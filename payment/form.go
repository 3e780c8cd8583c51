// Package payment drives one in-page checkout attempt: create a subscription,
// mount the provider widget, await the user's submission, confirm payment and
// redirect. Every failure degrades to a logged, user-visible, retryable state;
// nothing here panics or escalates.
package payment

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/paywallkit/paywallkit/api"
	"github.com/paywallkit/paywallkit/lifecycle"
	"github.com/paywallkit/paywallkit/models"
	"github.com/paywallkit/paywallkit/storage"
)

// FormState is the machine's position in the checkout flow.
type FormState string

const (
	StateIdle                 FormState = "idle"
	StateCreatingSubscription FormState = "creating_subscription"
	StateAwaitingProviderInit FormState = "awaiting_provider_init"
	StateFormReady            FormState = "form_ready"
	StateSubmitting           FormState = "submitting"
	StateConfirmed            FormState = "confirmed"
	StateFailed               FormState = "failed"
)

var (
	// ErrNoSubmitControl aborts an attempt when the page has no submit
	// action to bind to.
	ErrNoSubmitControl = errors.New("payment: submit control not found")
	// ErrNoSubscription means Submit ran before Show created a subscription.
	ErrNoSubscription = errors.New("payment: no subscription for this attempt")
	// ErrNotSubmittable means Submit ran outside form_ready/failed.
	ErrNotSubmittable = errors.New("payment: form is not submittable in this state")
)

// successURLPlaceholder is the unconfigured template value hosts ship with;
// it is treated the same as no success URL.
const successURLPlaceholder = "YOUR_SUCCESS_URL"

// FormConfig carries the host-level knobs for the machine.
type FormConfig struct {
	// BaseSuccessURL is the fallback redirect target; the subscription's
	// deep link is appended to it.
	BaseSuccessURL string
	// RedirectDelay is how long a confirmed attempt lingers before
	// navigating away.
	RedirectDelay time.Duration
	// ProcessingLabel replaces the submit label while submitting.
	ProcessingLabel string
}

// ShowOptions are the per-attempt options of a Show call.
type ShowOptions struct {
	// SuccessURL overrides the computed redirect target when set to a real
	// URL (the template placeholder does not count).
	SuccessURL string
}

// Form is one checkout attempt's state machine. One Form is current at a
// time; calling Show again tears the previous attempt down.
type Form struct {
	api      api.Client
	store    storage.Store
	bus      *lifecycle.Bus
	surface  Surface
	provider Provider
	userID   func() string
	cfg      FormConfig
	logger   *zap.Logger

	mu         sync.Mutex
	state      FormState
	sub        *models.Subscription
	opts       ShowOptions
	readyLabel string
}

func NewForm(
	apiClient api.Client,
	store storage.Store,
	bus *lifecycle.Bus,
	surface Surface,
	provider Provider,
	userID func() string,
	cfg FormConfig,
	logger *zap.Logger,
) *Form {
	if cfg.ProcessingLabel == "" {
		cfg.ProcessingLabel = "Processing..."
	}
	return &Form{
		api:      apiClient,
		store:    store,
		bus:      bus,
		surface:  surface,
		provider: provider,
		userID:   userID,
		cfg:      cfg,
		logger:   logger,
		state:    StateIdle,
	}
}

// State returns the machine's current state.
func (f *Form) State() FormState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Subscription returns the current attempt's subscription, if any.
func (f *Form) Subscription() *models.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sub
}

// Show starts a checkout attempt for a product. A prior attempt's provider UI
// is detached and its subscription discarded. A missing submit control is
// fatal for the attempt; every later failure leaves the form retryable.
func (f *Form) Show(ctx context.Context, productID, paywallID, placementID string, opts ShowOptions) error {
	f.mu.Lock()
	if f.sub != nil {
		f.provider.Detach()
		f.sub = nil
	}
	f.state = StateIdle
	f.opts = opts
	f.mu.Unlock()

	f.bus.Emit(models.EventPaymentFormInit, nil)

	control := f.surface.SubmitControl()
	if control == nil {
		f.logger.Error("payment form aborted, no submit control on page")
		return ErrNoSubmitControl
	}
	f.mu.Lock()
	if f.readyLabel == "" {
		f.readyLabel = control.Label()
	}
	f.state = StateCreatingSubscription
	f.mu.Unlock()
	control.SetEnabled(false)

	sub, err := f.api.CreateSubscription(ctx, api.CreateSubscriptionRequest{
		Provider:    f.provider.Name(),
		ProductID:   productID,
		PaywallID:   paywallID,
		PlacementID: placementID,
		UserID:      f.userID(),
	})
	if err == nil && (sub == nil || sub.Secret == "") {
		err = errors.New("payment: backend returned no subscription")
	}
	if err != nil {
		f.logger.Error("subscription create failed", zap.String("product_id", productID), zap.Error(err))
		f.mu.Lock()
		f.state = StateFailed
		f.mu.Unlock()
		control.SetEnabled(true)
		f.surfaceError(err.Error())
		f.bus.Emit(models.EventPaymentFailure, err)
		return err
	}

	f.mu.Lock()
	f.sub = sub
	f.state = StateAwaitingProviderInit
	f.mu.Unlock()

	if err := f.provider.Initialize(ctx, sub.Secret); err != nil {
		// Treated like a widget load error: surfaced, retryable inside the
		// provider, not an abort.
		f.logger.Warn("provider initialize failed", zap.Error(err))
		control.SetEnabled(true)
		f.surfaceError(err.Error())
		return err
	}

	f.provider.Mount(f.surface.ContainerAnchor(),
		func() {
			f.mu.Lock()
			f.state = StateFormReady
			f.mu.Unlock()
			control.SetEnabled(true)
			f.bus.Emit(models.EventPaymentFormReady, nil)
		},
		func(loadErr error) {
			f.logger.Warn("provider widget load error", zap.Error(loadErr))
			control.SetEnabled(true)
			f.surfaceError(loadErr.Error())
		},
	)
	return nil
}

// Submit runs the host page's submission: provider input validation, then
// payment confirmation. A failed attempt may be resubmitted; the machine
// re-enters submitting without re-creating the subscription.
func (f *Form) Submit(ctx context.Context) error {
	f.mu.Lock()
	if f.state != StateFormReady && f.state != StateFailed {
		f.mu.Unlock()
		return ErrNotSubmittable
	}
	sub := f.sub
	if sub == nil {
		f.mu.Unlock()
		return ErrNoSubscription
	}
	f.state = StateSubmitting
	f.mu.Unlock()

	control := f.surface.SubmitControl()
	if control != nil {
		control.SetEnabled(false)
		control.SetLabel(f.cfg.ProcessingLabel)
	}

	if err := f.provider.Submit(ctx); err != nil {
		f.logger.Warn("provider input rejected", zap.Error(err))
		f.fail(control, err, true)
		return err
	}

	err := f.provider.Confirm(ctx, ConfirmParams{
		Secret:             sub.Secret,
		ReturnURL:          f.surface.Location(),
		RedirectIfRequired: true,
	})
	if err != nil {
		f.logger.Warn("payment confirmation failed", zap.Error(err))
		f.fail(control, err, false)
		return err
	}

	f.mu.Lock()
	f.state = StateConfirmed
	opts := f.opts
	f.mu.Unlock()

	f.bus.Emit(models.EventPaymentSuccess, f.userID())

	if sub.DeepLink != "" {
		if err := f.store.Set(ctx, storage.KeyDeepLink, sub.DeepLink, storage.TTLDeepLink); err != nil {
			f.logger.Warn("deep link persist failed", zap.Error(err))
		}
	}

	target := f.redirectTarget(opts, sub)
	time.AfterFunc(f.cfg.RedirectDelay, func() {
		f.surface.Navigate(target)
	})
	return nil
}

// fail moves the machine to failed, surfaces the error and restores the
// submit control to its ready label so the user can retry.
func (f *Form) fail(control SubmitControl, err error, cardError bool) {
	f.mu.Lock()
	f.state = StateFailed
	label := f.readyLabel
	f.mu.Unlock()

	if cardError {
		f.surfaceCardError(err.Error())
	} else {
		f.surfaceError(err.Error())
	}
	if control != nil {
		control.SetLabel(label)
		control.SetEnabled(true)
	}
	f.bus.Emit(models.EventPaymentFailure, err)
}

// redirectTarget picks the explicit success URL when it is real, otherwise
// the base success URL suffixed with the deep link.
func (f *Form) redirectTarget(opts ShowOptions, sub *models.Subscription) string {
	if opts.SuccessURL != "" && opts.SuccessURL != successURLPlaceholder {
		return opts.SuccessURL
	}
	return f.cfg.BaseSuccessURL + sub.DeepLink
}

func (f *Form) surfaceError(text string) {
	if s := f.surface.ErrorSurface(); s != nil {
		s.SetText(text)
		return
	}
	f.logger.Warn("no error surface on page", zap.String("message", text))
}

func (f *Form) surfaceCardError(text string) {
	if s := f.surface.CardErrorSurface(); s != nil {
		s.SetText(text)
		return
	}
	f.surfaceError(text)
}
