package billing

import "testing"

func TestParseEventKind(t *testing.T) {
	tests := []struct {
		in   string
		want EventKind
	}{
		{in: "checkout.session.completed", want: EventCheckoutCompleted},
		{in: "customer.subscription.created", want: EventSubscriptionCreated},
		{in: "customer.subscription.updated", want: EventSubscriptionUpdated},
		{in: "customer.subscription.deleted", want: EventSubscriptionDeleted},
		{in: "invoice.paid", want: EventInvoicePaid},
		{in: "invoice.payment_succeeded", want: EventInvoicePaid},
		{in: "invoice.payment_failed", want: EventInvoicePaymentFailed},
		{in: "customer.created", want: EventIgnored},
		{in: "payment_intent.succeeded", want: EventIgnored},
		{in: "", want: EventIgnored},
	}

	for _, tt := range tests {
		if got := ParseEventKind(tt.in); got != tt.want {
			t.Fatalf("ParseEventKind(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEventKindString(t *testing.T) {
	if EventCheckoutCompleted.String() != "checkout_completed" {
		t.Fatalf("unexpected String for checkout: %q", EventCheckoutCompleted.String())
	}
	if EventKind(99).String() != "ignored" {
		t.Fatalf("expected out-of-range kinds to stringify as ignored")
	}
}
