package billing

// EventKind is the closed set of gateway webhook events that drive local
// subscription state. Everything else maps to EventIgnored so new gateway
// event types stay forward compatible no-ops.
type EventKind int

const (
	EventIgnored EventKind = iota
	EventCheckoutCompleted
	EventSubscriptionCreated
	EventSubscriptionUpdated
	EventSubscriptionDeleted
	EventInvoicePaid
	EventInvoicePaymentFailed
)

// ParseEventKind maps a raw gateway event type onto the closed enum.
func ParseEventKind(eventType string) EventKind {
	switch eventType {
	case "checkout.session.completed":
		return EventCheckoutCompleted
	case "customer.subscription.created":
		return EventSubscriptionCreated
	case "customer.subscription.updated":
		return EventSubscriptionUpdated
	case "customer.subscription.deleted":
		return EventSubscriptionDeleted
	case "invoice.payment_succeeded", "invoice.paid":
		return EventInvoicePaid
	case "invoice.payment_failed":
		return EventInvoicePaymentFailed
	default:
		return EventIgnored
	}
}

func (k EventKind) String() string {
	switch k {
	case EventCheckoutCompleted:
		return "checkout_completed"
	case EventSubscriptionCreated:
		return "subscription_created"
	case EventSubscriptionUpdated:
		return "subscription_updated"
	case EventSubscriptionDeleted:
		return "subscription_deleted"
	case EventInvoicePaid:
		return "invoice_paid"
	case EventInvoicePaymentFailed:
		return "invoice_payment_failed"
	default:
		return "ignored"
	}
}
