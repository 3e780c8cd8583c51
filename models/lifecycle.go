package models

// Lifecycle event names emitted to host code.
const (
	EventReady            = "ready"
	EventError            = "error"
	EventProductChanged   = "product_changed"
	EventPaymentFormInit  = "payment_form_initialized"
	EventPaymentFormReady = "payment_form_ready"
	EventPaymentSuccess   = "payment_success"
	EventPaymentFailure   = "payment_failure"
)
