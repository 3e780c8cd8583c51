package main

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/paywallkit/paywallkit"
	"github.com/paywallkit/paywallkit/config"
	"github.com/paywallkit/paywallkit/payment"
	"github.com/paywallkit/paywallkit/payment/stripe"
	"github.com/paywallkit/paywallkit/storage"
)

func main() {
	// Load .env if present
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("[CheckoutDemo] ❌ Failed to load config:", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal("[CheckoutDemo] ❌ Failed to initialize logger:", err)
	}
	defer logger.Sync()

	store, err := buildStore(cfg)
	if err != nil {
		log.Fatal("[CheckoutDemo] ❌ Failed to connect storage:", err)
	}

	surface := payment.NewHeadlessSurface("Subscribe", "#checkout", "http://localhost:8080/pricing")

	var provider payment.Provider
	if cfg.StripeSecretKey != "" {
		provider = stripe.New(cfg.StripeSecretKey, logger)
	} else {
		logger.Warn("STRIPE_API_KEY unset, using fake provider")
		provider = &fakeProvider{}
	}

	client := paywallkit.New(cfg,
		paywallkit.WithLogger(logger),
		paywallkit.WithStore(store),
		paywallkit.WithProvider(provider),
		paywallkit.WithSurface(surface),
	)

	client.On("ready", func(interface{}) {
		logger.Info("paywall session ready")
	})
	client.On("payment_success", func(p interface{}) {
		logger.Info("payment confirmed", zap.Any("user", p))
	})

	if err := client.Init(context.Background()); err != nil {
		logger.Warn("initial bootstrap failed, continuing degraded", zap.Error(err))
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/pricing", func(c *gin.Context) {
		paywall := client.CurrentPaywall()
		if paywall == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no paywall resolved"})
			return
		}
		price, _ := client.ResolveVariable("price.amount")
		c.JSON(http.StatusOK, gin.H{
			"paywall":        paywall.ID,
			"products":       paywall.Products,
			"selected_price": price,
		})
	})

	r.POST("/select", func(c *gin.Context) {
		var req struct {
			PlacementID  string `json:"placement_id" binding:"required"`
			ProductIndex int    `json:"product_index"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		client.SetCurrentSelection(req.PlacementID, req.ProductIndex)
		client.Track("product_selected", map[string]interface{}{
			"placement_id":  req.PlacementID,
			"product_index": req.ProductIndex,
		}, nil)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/checkout", func(c *gin.Context) {
		var req struct {
			ProductID  string `json:"product_id" binding:"required"`
			SuccessURL string `json:"success_url"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		placement := client.CurrentPlacement()
		paywall := client.CurrentPaywall()
		if placement == nil || paywall == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "no active paywall"})
			return
		}
		err := client.ShowPaymentForm(c.Request.Context(), req.ProductID, paywall.ID, placement.ID,
			payment.ShowOptions{SuccessURL: req.SuccessURL})
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"state": client.PaymentFormState()})
	})

	r.POST("/submit", func(c *gin.Context) {
		if err := client.SubmitPaymentForm(c.Request.Context()); err != nil {
			c.JSON(http.StatusPaymentRequired, gin.H{
				"error": err.Error(),
				"state": client.PaymentFormState(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"state": client.PaymentFormState()})
	})

	r.GET("/state", func(c *gin.Context) {
		link, _ := client.DeepLink(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"form_state": client.PaymentFormState(),
			"backlog":    len(client.Backlog()),
			"deep_link":  link,
		})
	})

	log.Println("[CheckoutDemo] ✅ Running on port 8080")
	if err := r.Run(":8080"); err != nil {
		log.Fatal("[CheckoutDemo] ❌ Server failed:", err)
	}
}

func buildStore(cfg *config.Config) (storage.Store, error) {
	if cfg.RedisURL == "" {
		return storage.NewMemoryStore(), nil
	}
	client, err := storage.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	return storage.NewRedisStore(client, "checkout-demo"), nil
}

// fakeProvider approves everything; it keeps the demo runnable without a
// Stripe account.
type fakeProvider struct{ secret string }

func (p *fakeProvider) Name() string { return "fakepay" }

func (p *fakeProvider) Initialize(_ context.Context, secret string) error {
	p.secret = secret
	return nil
}

func (p *fakeProvider) Mount(_ string, onReady func(), _ func(error)) { onReady() }

func (p *fakeProvider) Submit(_ context.Context) error {
	if p.secret == "" {
		return errors.New("fakepay: not initialized")
	}
	return nil
}

func (p *fakeProvider) Confirm(_ context.Context, _ payment.ConfirmParams) error { return nil }

func (p *fakeProvider) Detach() { p.secret = "" }
