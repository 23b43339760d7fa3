package reconciliation

import "errors"

var (
	// ErrValidation marks missing or malformed caller input.
	ErrValidation = errors.New("invalid request")
	// ErrNotFound marks an absent DJ, payment or recommendation.
	ErrNotFound = errors.New("not found")
	// ErrMalformedPayload marks a webhook body that is not a usable notification.
	ErrMalformedPayload = errors.New("malformed webhook payload")
	// ErrUnauthorized marks a webhook whose shared secret does not match.
	ErrUnauthorized = errors.New("webhook secret mismatch")
	// ErrIncompletePaymentData marks a gateway payment without an external reference.
	ErrIncompletePaymentData = errors.New("payment data lacks external reference")
	// ErrGatewayFetch marks a failed status lookup before anything was persisted.
	ErrGatewayFetch = errors.New("failed to fetch payment from gateway")
	// ErrPaymentNotFound means no strategy resolved a gateway payment id.
	ErrPaymentNotFound = errors.New("gateway payment not found")
	// ErrRefund marks a refund rejected by the gateway.
	ErrRefund = errors.New("refund failed")
	// ErrPersistence marks a failed local write. For webhooks it asks the
	// gateway to redeliver.
	ErrPersistence = errors.New("local persistence failed")
)
