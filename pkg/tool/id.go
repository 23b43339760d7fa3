package tool

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateUUIDV7 returns a time-ordered id for primary keys.
func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewExternalReference returns a random correlation id for the payment gateway.
// It doubles as the idempotency key of the checkout preference.
func NewExternalReference() string {
	return uuid.NewString()
}

// IsUUID reports whether s parses as a UUID.
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// RefundIdempotencyKey is unique per refund attempt.
func RefundIdempotencyKey(gatewayPaymentID string, at time.Time) string {
	return fmt.Sprintf("refund_%s_%d", gatewayPaymentID, at.UnixMilli())
}
