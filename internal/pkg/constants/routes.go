package constants

// Static route constants
const (
	APIRoute     = "/api/v1"
	WebhookRoute = "/api/v1/billing/webhook"
	PublicRoute  = "/"
)
