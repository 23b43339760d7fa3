package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalStatusPending   WithdrawalStatus = "pending"
	WithdrawalStatusProcessed WithdrawalStatus = "processed"
)

// Withdrawal is a payout request. Amount is net of the platform fee;
// GrossAmount is what was debited from the DJ balance.
type Withdrawal struct {
	ID          string           `gorm:"column:id;type:uuid;primary_key" json:"id"`
	DJID        string           `gorm:"column:dj_id;type:uuid;not null;index:idx_withdrawal_dj_status,priority:1" json:"dj_id"`
	Amount      decimal.Decimal  `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	GrossAmount decimal.Decimal  `gorm:"column:gross_amount;type:numeric(12,2);not null" json:"gross_amount"`
	Status      WithdrawalStatus `gorm:"column:status;type:varchar(32);not null;index:idx_withdrawal_dj_status,priority:2" json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	ProcessedAt *time.Time       `gorm:"column:processed_at" json:"processed_at"`

	BankDetails *BankDetails `gorm:"foreignKey:WithdrawalID" json:"bank_details,omitempty"`
}

func (Withdrawal) TableName() string { return "withdrawals" }

// BankDetails is the payout destination of exactly one withdrawal.
type BankDetails struct {
	ID            string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	WithdrawalID  string    `gorm:"column:withdrawal_id;type:uuid;not null;uniqueIndex" json:"withdrawal_id"`
	DJID          string    `gorm:"column:dj_id;type:uuid;not null;index" json:"dj_id"`
	BankName      string    `gorm:"column:bank_name;type:varchar(128);not null" json:"bank_name"`
	AccountNumber string    `gorm:"column:account_number;type:varchar(64);not null" json:"account_number"`
	CreatedAt     time.Time `json:"created_at"`
}

func (BankDetails) TableName() string { return "bank_details" }
