package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/fluxoalfa/fluxoalfa/app/models"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/env"
)

// userIDMetadataKey is the metadata field carrying the local user ID on
// Stripe customers, checkout sessions and subscriptions.
const userIDMetadataKey = "user_id"

// StripeConfig holds the Stripe credentials and redirect targets.
type StripeConfig struct {
	APIKey          string
	WebhookSecret   string
	SuccessURL      string
	CancelURL       string
	PortalReturnURL string
}

// StripeConfigFromEnv reads the Stripe configuration from the environment.
func StripeConfigFromEnv() StripeConfig {
	domain := env.GetEnv("PUBLIC_DOMAIN", "http://localhost:8080")
	return StripeConfig{
		APIKey:          env.GetEnv("STRIPE_SECRET_KEY", ""),
		WebhookSecret:   env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		SuccessURL:      env.GetEnv("STRIPE_SUCCESS_URL", domain+"/billing/success"),
		CancelURL:       env.GetEnv("STRIPE_CANCEL_URL", domain+"/billing/canceled"),
		PortalReturnURL: env.GetEnv("STRIPE_PORTAL_RETURN_URL", domain+"/settings"),
	}
}

// StripeGateway implements Gateway using the Stripe API.
type StripeGateway struct {
	cfg StripeConfig
}

// NewStripeGateway creates a Stripe gateway and configures the shared SDK
// client with a bounded HTTP timeout.
func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	stripe.Key = cfg.APIKey
	stripe.SetHTTPClient(&http.Client{Timeout: 20 * time.Second})
	return &StripeGateway{cfg: cfg}
}

func (g *StripeGateway) Provider() string {
	return models.BillingProviderStripe
}

// VerifyWebhook authenticates the delivery against the endpoint secret and
// decodes the event payload into our gateway-neutral Event.
func (g *StripeGateway) VerifyWebhook(payload []byte, signature string) (*Event, error) {
	stripeEvent, err := webhook.ConstructEvent(payload, signature, g.cfg.WebhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	event := &Event{
		ID:      stripeEvent.ID,
		Kind:    ParseEventKind(string(stripeEvent.Type)),
		RawType: string(stripeEvent.Type),
		Payload: payload,
	}

	switch event.Kind {
	case EventCheckoutCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(stripeEvent.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("parse checkout session event: %w", err)
		}
		data := &CheckoutSessionData{
			SessionID:      cs.ID,
			UserIDMetadata: cs.Metadata[userIDMetadataKey],
		}
		if cs.Customer != nil {
			data.CustomerID = cs.Customer.ID
		}
		if cs.Subscription != nil {
			data.SubscriptionID = cs.Subscription.ID
		}
		event.CheckoutSession = data
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(stripeEvent.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("parse subscription event: %w", err)
		}
		event.Subscription = normalizeStripeSubscription(&sub, stripeEvent.Data.Raw)
	}

	return event, nil
}

func (g *StripeGateway) GetSubscription(_ context.Context, subscriptionID string) (*GatewaySubscription, error) {
	sub, err := subscription.Get(subscriptionID, nil)
	if err != nil {
		return nil, fmt.Errorf("get stripe subscription: %w", err)
	}
	raw, _ := json.Marshal(sub)
	return normalizeStripeSubscription(sub, raw), nil
}

func (g *StripeGateway) GetCustomerUserID(_ context.Context, customerID string) (string, error) {
	c, err := customer.Get(customerID, nil)
	if err != nil {
		return "", fmt.Errorf("get stripe customer: %w", err)
	}
	return c.Metadata[userIDMetadataKey], nil
}

func (g *StripeGateway) CreateCustomer(_ context.Context, userID uint, email string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Metadata: map[string]string{
			userIDMetadataKey: strconv.FormatUint(uint64(userID), 10),
		},
	}
	c, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return c.ID, nil
}

// CreateCheckoutSession starts a subscription-mode checkout. The user ID is
// stamped on the session and on the subscription it creates, so both the
// checkout.session.completed and customer.subscription.* webhooks can resolve
// the user without a DB lookup.
func (g *StripeGateway) CreateCheckoutSession(_ context.Context, customerID, priceID string, userID uint) (string, error) {
	uid := strconv.FormatUint(uint64(userID), 10)
	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(customerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(g.cfg.SuccessURL),
		CancelURL:  stripe.String(g.cfg.CancelURL),
		Metadata: map[string]string{
			userIDMetadataKey: uid,
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				userIDMetadataKey: uid,
			},
		},
	}
	cs, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe checkout session: %w", err)
	}
	return cs.URL, nil
}

func (g *StripeGateway) CreatePortalSession(_ context.Context, customerID string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(g.cfg.PortalReturnURL),
	}
	ps, err := portalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe portal session: %w", err)
	}
	return ps.URL, nil
}

func (g *StripeGateway) CancelAtPeriodEnd(_ context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	if _, err := subscription.Update(subscriptionID, params); err != nil {
		return fmt.Errorf("cancel stripe subscription: %w", err)
	}
	return nil
}

// normalizeStripeSubscription reduces a Stripe subscription to the
// reconciliation fields. Period bounds and the price live on the first
// subscription item; checkout always creates single-item subscriptions.
func normalizeStripeSubscription(sub *stripe.Subscription, raw []byte) *GatewaySubscription {
	out := &GatewaySubscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		UserIDMetadata:    sub.Metadata[userIDMetadataKey],
		RawJSON:           string(raw),
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			out.PriceID = item.Price.ID
			if item.Price.Recurring != nil {
				out.Interval = string(item.Price.Recurring.Interval)
			}
		}
		if item.CurrentPeriodStart > 0 {
			t := time.Unix(item.CurrentPeriodStart, 0).UTC()
			out.CurrentPeriodStart = &t
		}
		if item.CurrentPeriodEnd > 0 {
			t := time.Unix(item.CurrentPeriodEnd, 0).UTC()
			out.CurrentPeriodEnd = &t
		}
	}
	return out
}
