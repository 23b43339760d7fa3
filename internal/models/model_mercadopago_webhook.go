package models

import (
	"time"

	"gorm.io/datatypes"
)

// MercadoPagoWebhook is the append-only audit row of one gateway notification.
// Rows are never updated; the refund flow reads the newest row per external
// reference to recover a gateway payment id.
type MercadoPagoWebhook struct {
	ID                uint           `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	PaymentID         string         `gorm:"column:payment_id;type:varchar(64);not null;index" json:"payment_id"`
	ExternalReference string         `gorm:"column:external_reference;type:varchar(64);not null;index:idx_webhook_ref_created,priority:1" json:"external_reference"`
	Status            string         `gorm:"column:status;type:varchar(32);not null" json:"status"`
	WebhookData       datatypes.JSON `gorm:"column:webhook_data;type:jsonb;not null" json:"webhook_data"`
	TraceID           string         `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	CreatedAt         time.Time      `gorm:"index:idx_webhook_ref_created,priority:2,sort:desc" json:"created_at"`
}

func (MercadoPagoWebhook) TableName() string { return "mercadopago_webhooks" }
