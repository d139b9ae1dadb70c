package billing

import "context"

// Gateway abstracts the payment provider SDK. The service only ever sees
// verified Events and normalized subscription objects, which keeps the
// reconciliation logic testable without network access.
type Gateway interface {
	// Provider returns the provider identifier stored on local rows.
	Provider() string
	// VerifyWebhook authenticates a raw webhook delivery and decodes it into
	// an Event. Returns ErrInvalidSignature when authentication fails.
	VerifyWebhook(payload []byte, signature string) (*Event, error)
	// GetSubscription retrieves the live subscription object.
	GetSubscription(ctx context.Context, subscriptionID string) (*GatewaySubscription, error)
	// GetCustomerUserID reads the user linkage from the customer's metadata.
	// Returns "" (no error) when the customer carries no linkage.
	GetCustomerUserID(ctx context.Context, customerID string) (string, error)
	// CreateCustomer registers a new customer for the user.
	CreateCustomer(ctx context.Context, userID uint, email string) (customerID string, err error)
	// CreateCheckoutSession starts a subscription checkout and returns its URL.
	CreateCheckoutSession(ctx context.Context, customerID, priceID string, userID uint) (url string, err error)
	// CreatePortalSession opens the customer billing portal and returns its URL.
	CreatePortalSession(ctx context.Context, customerID string) (url string, err error)
	// CancelAtPeriodEnd marks the subscription for cancellation at period end.
	// Local state is not touched; the follow-up webhook reconciles it.
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error
}
