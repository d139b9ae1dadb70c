package billing

import "time"

// NormalizedSubscription is the provider-agnostic shape used by the billing
// service when syncing external subscription state into local tables.
type NormalizedSubscription struct {
	UserID                 uint
	Provider               string
	ProviderSubscriptionID string
	ProviderPlanRef        string
	BillingInterval        string
	Status                 string
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool
	RawPayloadJSON         string
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// GatewaySubscription is a subscription object as reported by the payment
// gateway, reduced to the fields reconciliation needs.
type GatewaySubscription struct {
	ID                 string
	CustomerID         string
	PriceID            string
	Interval           string
	Status             string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
	UserIDMetadata     string
	RawJSON            string
}

// CheckoutSessionData carries the fields of a completed checkout session that
// reconciliation needs.
type CheckoutSessionData struct {
	SessionID      string
	CustomerID     string
	SubscriptionID string
	UserIDMetadata string
}

// Event is a verified gateway webhook event. Exactly one of CheckoutSession
// and Subscription is populated, depending on Kind; both are nil for
// invoice and ignored events.
type Event struct {
	ID              string
	Kind            EventKind
	RawType         string
	Payload         []byte
	CheckoutSession *CheckoutSessionData
	Subscription    *GatewaySubscription
}
