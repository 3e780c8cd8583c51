// Package api is the SDK's boundary to the paywall backend. The orchestration
// core consumes the Client interface only; HTTPClient is the production
// implementation.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/paywallkit/paywallkit/models"
)

// Client covers the remote operations the core depends on.
type Client interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*models.Session, error)
	CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*models.Subscription, error)
	CreateEvent(ctx context.Context, record models.EventRecord) error
	SetAttribution(ctx context.Context, userID string, data map[string]interface{}) error
}

type CreateUserRequest struct {
	DeviceID   string `json:"device_id"`
	Locale     string `json:"locale,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
	Platform   string `json:"platform,omitempty"`
	AppVersion string `json:"app_version,omitempty"`
}

type CreateSubscriptionRequest struct {
	Provider    string `json:"provider"`
	ProductID   string `json:"product_id"`
	PaywallID   string `json:"paywall_id"`
	PlacementID string `json:"placement_id"`
	UserID      string `json:"user_id"`
}

// RemoteError is a typed backend failure carrying the HTTP status.
type RemoteError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *RemoteError) Unwrap() error { return e.Err }

// HTTPClient talks JSON over HTTP to the backend. No request timeout is set
// beyond what the caller's context carries.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

func NewHTTPClient(baseURL, apiKey string, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{},
		logger:  logger,
	}
}

func (c *HTTPClient) CreateUser(ctx context.Context, req CreateUserRequest) (*models.Session, error) {
	var session models.Session
	if err := c.post(ctx, "/v1/users", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *HTTPClient) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*models.Subscription, error) {
	var sub models.Subscription
	if err := c.post(ctx, "/v1/subscriptions", req, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreateEvent ingests a batch of one; the backend accepts arrays only.
func (c *HTTPClient) CreateEvent(ctx context.Context, record models.EventRecord) error {
	payload := struct {
		Events []models.EventRecord `json:"events"`
	}{Events: []models.EventRecord{record}}
	return c.post(ctx, "/v1/events", payload, nil)
}

func (c *HTTPClient) SetAttribution(ctx context.Context, userID string, data map[string]interface{}) error {
	payload := struct {
		UserID string                 `json:"user_id"`
		Data   map[string]interface{} `json:"data"`
	}{UserID: userID, Data: data}
	return c.post(ctx, "/v1/attribution", payload, nil)
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out interface{}) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return &RemoteError{Code: 0, Message: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return &RemoteError{Code: 0, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Api-Key "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed", zap.String("path", path), zap.Error(err))
		return &RemoteError{Code: 0, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn("backend returned error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return &RemoteError{Code: resp.StatusCode, Message: string(msg)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RemoteError{Code: resp.StatusCode, Message: "decode response", Err: err}
	}
	return nil
}
