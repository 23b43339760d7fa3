package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DJ is the tip recipient. GananciasTotales (lifetime earnings) and Balance
// (withdrawable) are denormalized accumulators maintained by payment status
// transitions and withdrawals.
type DJ struct {
	ID               string          `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Email            string          `gorm:"column:email;type:varchar(255);not null;uniqueIndex" json:"email"`
	Username         string          `gorm:"column:username;type:varchar(64);not null;uniqueIndex" json:"username"`
	DisplayName      string          `gorm:"column:display_name;type:varchar(128);not null" json:"display_name"`
	MinTipAmount     decimal.Decimal `gorm:"column:min_tip_amount;type:numeric(12,2);not null;default:100" json:"min_tip_amount"`
	GananciasTotales decimal.Decimal `gorm:"column:ganancias_totales;type:numeric(12,2);not null;default:0" json:"ganancias_totales"`
	Balance          decimal.Decimal `gorm:"column:balance;type:numeric(12,2);not null;default:0" json:"balance"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (DJ) TableName() string { return "djs" }
