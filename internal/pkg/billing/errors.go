package billing

import "errors"

// Sentinel errors surfaced to the HTTP layer. Anything else that escapes the
// billing service is a 5xx, which makes the gateway redeliver the event.
var (
	// ErrInvalidSignature means the webhook payload could not be authenticated.
	ErrInvalidSignature = errors.New("billing: invalid webhook signature")
	// ErrValidation means a required field (e.g. user metadata) was missing.
	ErrValidation = errors.New("billing: validation failed")
	// ErrNotFound means a required local record does not exist.
	ErrNotFound = errors.New("billing: not found")
)
