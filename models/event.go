package models

// EventRecord is one analytics event queued for delivery. InsertID is
// assigned at Track time and is the dedup/removal key for the backlog;
// DeviceID is stamped lazily once the session is ready.
type EventRecord struct {
	Name           string                 `json:"event_name"`
	Properties     map[string]interface{} `json:"event_properties,omitempty"`
	UserProperties map[string]interface{} `json:"user_properties,omitempty"`
	Timestamp      int64                  `json:"timestamp"` // unix millis
	InsertID       string                 `json:"insert_id"`
	DeviceID       string                 `json:"device_id,omitempty"`
}

// Subscription is the per-checkout-attempt object returned by the backend.
// Secret is the provider confirmation secret driving the in-page confirm
// step; DeepLink, when present, is persisted for post-purchase redirect.
type Subscription struct {
	ID       string `json:"id"`
	Secret   string `json:"client_secret"`
	DeepLink string `json:"deep_link,omitempty"`
}
