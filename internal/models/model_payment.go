package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus mirrors the gateway's payment status vocabulary. Values outside
// the constants below (in_process, cancelled, charged_back...) are stored as-is.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusApproved PaymentStatus = "approved"
	PaymentStatusRejected PaymentStatus = "rejected"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Payment is a single tip. ExternalReference is generated locally before the
// gateway is called and is the join key until MercadoPagoPaymentID is learned.
type Payment struct {
	ID                   string          `gorm:"column:id;type:uuid;primary_key" json:"id"`
	DJID                 string          `gorm:"column:dj_id;type:uuid;not null;index:idx_payment_dj_status,priority:1" json:"dj_id"`
	RecommendationID     *string         `gorm:"column:recommendation_id;type:uuid;index" json:"recommendation_id"`
	Amount               decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	ExternalReference    string          `gorm:"column:external_reference;type:varchar(64);not null;uniqueIndex" json:"external_reference"`
	MercadoPagoPaymentID *string         `gorm:"column:mercadopago_payment_id;type:varchar(64);index" json:"mercadopago_payment_id"`
	Status               PaymentStatus   `gorm:"column:status;type:varchar(32);not null;index:idx_payment_dj_status,priority:2" json:"status"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

// StatusTransition is the result of applying a gateway status to a payment.
type StatusTransition struct {
	PaymentID         string          `json:"payment_id"`
	DJID              string          `json:"dj_id"`
	ExternalReference string          `json:"external_reference"`
	Amount            decimal.Decimal `json:"amount"`
	From              PaymentStatus   `json:"from"`
	To                PaymentStatus   `json:"to"`
	// Superseded is set when the status came from a gateway payment other
	// than the approved one already recorded for this reference. Nothing is
	// written in that case.
	Superseded bool `json:"superseded,omitempty"`
}

// SupersededBy reports whether a status observed for gatewayPaymentID must
// be ignored because p is already approved under another gateway payment.
// One checkout can produce several gateway payments, e.g. a rejected
// attempt followed by an approved retry.
func (p *Payment) SupersededBy(gatewayPaymentID string) bool {
	return p != nil && p.Status == PaymentStatusApproved &&
		gatewayPaymentID != "" &&
		p.MercadoPagoPaymentID != nil && *p.MercadoPagoPaymentID != "" &&
		*p.MercadoPagoPaymentID != gatewayPaymentID
}

// Changed reports whether the stored status actually moved.
func (t *StatusTransition) Changed() bool {
	return t != nil && t.From != t.To
}

// BalanceDelta is +amount when entering approved, -amount when leaving it and
// zero otherwise. Re-applying the same status is always zero.
func (t *StatusTransition) BalanceDelta() decimal.Decimal {
	if t == nil {
		return decimal.Zero
	}
	switch {
	case t.To == PaymentStatusApproved && t.From != PaymentStatusApproved:
		return t.Amount
	case t.From == PaymentStatusApproved && t.To != PaymentStatusApproved:
		return t.Amount.Neg()
	}
	return decimal.Zero
}
