// Package paywallkit is an embeddable checkout/paywall SDK. A Client owns one
// host session: it bootstraps the user against the backend, resolves which
// placement/paywall/product the user sees, delivers analytics events with
// at-least-once durability, and drives the payment form state machine against
// a pluggable provider.
package paywallkit

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/paywallkit/paywallkit/analytics"
	"github.com/paywallkit/paywallkit/api"
	"github.com/paywallkit/paywallkit/config"
	"github.com/paywallkit/paywallkit/lifecycle"
	"github.com/paywallkit/paywallkit/models"
	"github.com/paywallkit/paywallkit/payment"
	"github.com/paywallkit/paywallkit/readiness"
	"github.com/paywallkit/paywallkit/selection"
	"github.com/paywallkit/paywallkit/storage"
)

// Client is the orchestration object for one host page session. All state is
// scoped here; there is no package-level singleton.
type Client struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     storage.Store
	api       api.Client
	bus       *lifecycle.Bus
	gate      *readiness.Gate
	queue     *analytics.Queue
	selection *selection.State
	provider  payment.Provider
	surface   payment.Surface

	mu       sync.RWMutex
	session  *models.Session
	deviceID string
	form     *payment.Form
}

// Option customizes a Client at construction time.
type Option func(*Client)

// WithLogger replaces the environment-derived logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithStore replaces the default in-memory store, e.g. with the Redis
// backend or a host cookie bridge.
func WithStore(store storage.Store) Option {
	return func(c *Client) { c.store = store }
}

// WithAPIClient replaces the HTTP backend client.
func WithAPIClient(apiClient api.Client) Option {
	return func(c *Client) { c.api = apiClient }
}

// WithProvider supplies the payment provider adapter.
func WithProvider(provider payment.Provider) Option {
	return func(c *Client) { c.provider = provider }
}

// WithSurface supplies the page surface the payment form drives.
func WithSurface(surface payment.Surface) Option {
	return func(c *Client) { c.surface = surface }
}

// New wires a Client. Call Init to bootstrap the session before relying on
// session-dependent operations; Track and Ready may be called earlier and are
// deferred behind the readiness gate.
func New(cfg *config.Config, opts ...Option) *Client {
	c := &Client{cfg: cfg, bus: lifecycle.NewBus()}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = newLogger(cfg.Environment)
	}
	if c.store == nil {
		c.store = storage.NewMemoryStore()
	}
	if c.api == nil {
		c.api = api.NewHTTPClient(cfg.BaseURL, cfg.APIKey, c.logger)
	}

	c.gate = readiness.NewGate(c.logger, func(err error) {
		c.bus.Emit(models.EventError, err)
	})
	c.selection = selection.NewState(c.store, c.bus, c.logger)

	var limiter *rate.Limiter
	if cfg.EventsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.EventsPerSecond), 1)
	}
	c.queue = analytics.NewQueue(
		c.store, c.api, c.gate,
		c.DeviceID,
		func() { _ = c.refresh(context.Background()) },
		cfg.FlushDelay, limiter, c.logger,
	)
	return c
}

// Init bootstraps the session: resolve-or-mint the device identifier, record
// the first-seen version, create the user remotely, install the session,
// restore any persisted selection, replay the event backlog and open the
// readiness gate. A bootstrap failure is reported through the error lifecycle
// event; Init may be retried.
func (c *Client) Init(ctx context.Context) error {
	deviceID, ok, err := c.store.Get(ctx, storage.KeyDeviceID)
	if err != nil || !ok || deviceID == "" {
		deviceID = uuid.NewString()
	}
	// Rewritten every boot to push the expiry out.
	if err := c.store.Set(ctx, storage.KeyDeviceID, deviceID, storage.TTLDeviceID); err != nil {
		c.logger.Warn("device id persist failed", zap.Error(err))
	}
	c.mu.Lock()
	c.deviceID = deviceID
	c.mu.Unlock()

	if _, ok, _ := c.store.Get(ctx, storage.KeyFirstVersion); !ok {
		if err := c.store.Set(ctx, storage.KeyFirstVersion, c.cfg.AppVersion, storage.TTLFirstVersion); err != nil {
			c.logger.Warn("first version persist failed", zap.Error(err))
		}
	}

	session, err := c.bootstrap(ctx)
	if err != nil {
		c.gate.Fail(err)
		return err
	}

	c.selection.Restore(ctx)
	c.queue.Recover(ctx)
	c.gate.SetReady()
	c.bus.Emit(models.EventReady, session)

	c.logger.Info("session ready",
		zap.String("user_id", session.UserID),
		zap.Int("placements", len(session.Placements)),
	)
	return nil
}

// refresh re-runs the user bootstrap without re-emitting ready, picking up
// server-side session changes. Used after confirmed event deliveries.
func (c *Client) refresh(ctx context.Context) error {
	_, err := c.bootstrap(ctx)
	if err != nil {
		c.logger.Warn("session refresh failed", zap.Error(err))
	}
	return err
}

func (c *Client) bootstrap(ctx context.Context) (*models.Session, error) {
	session, err := c.api.CreateUser(ctx, api.CreateUserRequest{
		DeviceID:   c.DeviceID(),
		Locale:     c.cfg.Locale,
		Timezone:   c.cfg.Timezone,
		Platform:   c.cfg.Platform,
		AppVersion: c.cfg.AppVersion,
	})
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("backend returned no session")
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	c.selection.SetSession(session)
	return session, nil
}

// On registers a lifecycle handler (ready, error, product_changed,
// payment_form_initialized, payment_form_ready, payment_success,
// payment_failure).
func (c *Client) On(event string, handler lifecycle.Handler) {
	c.bus.On(event, handler)
}

// Ready runs fn once the session is bootstrapped, immediately when it
// already is.
func (c *Client) Ready(fn func()) {
	c.gate.Ready(fn)
}

// Track queues an analytics event for at-least-once delivery and returns
// immediately.
func (c *Client) Track(name string, properties, userProperties map[string]interface{}) models.EventRecord {
	return c.queue.Track(name, properties, userProperties)
}

// Backlog exposes the undelivered event records.
func (c *Client) Backlog() []models.EventRecord {
	return c.queue.Backlog()
}

// SetCurrentSelection selects a placement and product index once the session
// is ready.
func (c *Client) SetCurrentSelection(placementID string, productIndex int) {
	c.gate.Ready(func() {
		c.selection.SetCurrentSelection(context.Background(), placementID, productIndex)
	})
}

// CurrentPlacement returns the resolved placement, best effort.
func (c *Client) CurrentPlacement() *models.Placement { return c.selection.CurrentPlacement() }

// CurrentPaywall returns the resolved paywall, best effort.
func (c *Client) CurrentPaywall() *models.Paywall { return c.selection.CurrentPaywall() }

// CurrentProduct returns the resolved product, best effort.
func (c *Client) CurrentProduct() *models.Product { return c.selection.CurrentProduct() }

// ResolveVariable resolves a dotted property path, or a
// "placementID,productIndex,path" composite, against the product bags.
func (c *Client) ResolveVariable(path string) (interface{}, bool) {
	return c.selection.ResolveVariable(path)
}

// SetAttribution forwards an attribution data bag for the current user once
// the session is ready.
func (c *Client) SetAttribution(data map[string]interface{}) {
	c.gate.Ready(func() {
		userID := ""
		if s := c.Session(); s != nil {
			userID = s.UserID
		}
		if err := c.api.SetAttribution(context.Background(), userID, data); err != nil {
			c.logger.Warn("attribution call failed", zap.Error(err))
		}
	})
}

// ShowPaymentForm starts a checkout attempt for a product. The provider and
// surface must have been supplied at construction. Only one attempt is
// current at a time; a new call discards the previous attempt.
func (c *Client) ShowPaymentForm(ctx context.Context, productID, paywallID, placementID string, opts payment.ShowOptions) error {
	form, err := c.paymentForm()
	if err != nil {
		return err
	}
	return form.Show(ctx, productID, paywallID, placementID, opts)
}

// SubmitPaymentForm runs the current attempt's submission and confirmation.
func (c *Client) SubmitPaymentForm(ctx context.Context) error {
	form, err := c.paymentForm()
	if err != nil {
		return err
	}
	return form.Submit(ctx)
}

// PaymentFormState reports the current attempt's state, idle when no attempt
// has started.
func (c *Client) PaymentFormState() payment.FormState {
	c.mu.RLock()
	form := c.form
	c.mu.RUnlock()
	if form == nil {
		return payment.StateIdle
	}
	return form.State()
}

// Session returns the current bootstrapped session, nil before Init.
func (c *Client) Session() *models.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// DeviceID returns the stable device identifier, empty before Init.
func (c *Client) DeviceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deviceID
}

// DeepLink returns the deep link persisted by a confirmed purchase.
func (c *Client) DeepLink(ctx context.Context) (string, bool) {
	link, ok, err := c.store.Get(ctx, storage.KeyDeepLink)
	if err != nil {
		c.logger.Warn("deep link read failed", zap.Error(err))
		return "", false
	}
	return link, ok
}

func (c *Client) paymentForm() (*payment.Form, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.form != nil {
		return c.form, nil
	}
	if c.provider == nil || c.surface == nil {
		return nil, fmt.Errorf("paywallkit: payment provider and surface are required for checkout")
	}
	userID := func() string {
		if s := c.Session(); s != nil {
			return s.UserID
		}
		return ""
	}
	c.form = payment.NewForm(c.api, c.store, c.bus, c.surface, c.provider, userID,
		payment.FormConfig{
			BaseSuccessURL: c.cfg.BaseSuccessURL,
			RedirectDelay:  c.cfg.RedirectDelay,
		},
		c.logger,
	)
	return c.form, nil
}

func newLogger(env string) *zap.Logger {
	var logger *zap.Logger
	var err error
	if env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
