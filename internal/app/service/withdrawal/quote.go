package withdrawal

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrBelowMinimum = errors.New("available balance is below the minimum withdrawal")
	ErrInvalidFee   = errors.New("withdrawal fee must be in [0, 1)")
)

// Quote is the outcome of a withdrawal calculation. Available is debited from
// the balance; Net is paid out. Pending is informational: the balance was
// already debited when those withdrawals were requested.
type Quote struct {
	Balance     decimal.Decimal `json:"balance"`
	Pending     decimal.Decimal `json:"pending_withdrawals"`
	Available   decimal.Decimal `json:"available"`
	FeePercent  decimal.Decimal `json:"fee_percent"`
	Fee         decimal.Decimal `json:"fee"`
	Net         decimal.Decimal `json:"net"`
	MinAmount   decimal.Decimal `json:"min_amount"`
	CanWithdraw bool            `json:"can_withdraw"`
}

// QuoteWithdrawal quotes a withdrawal of the whole balance: net = balance *
// (1 - fee), rounded to cents. The quote is returned even when it fails with
// ErrBelowMinimum so callers can show it.
func QuoteWithdrawal(balance, feePercent, minAmount decimal.Decimal) (*Quote, error) {
	if feePercent.IsNegative() || feePercent.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidFee, feePercent)
	}
	q := &Quote{
		Balance:    balance,
		Pending:    decimal.Zero,
		Available:  balance,
		FeePercent: feePercent,
		MinAmount:  minAmount,
		Fee:        decimal.Zero,
		Net:        decimal.Zero,
	}
	if !balance.IsPositive() || balance.LessThan(minAmount) {
		return q, fmt.Errorf("%w: available %s, minimum %s", ErrBelowMinimum, balance, minAmount)
	}
	q.Net = balance.Mul(decimal.NewFromInt(1).Sub(feePercent)).Round(2)
	q.Fee = balance.Sub(q.Net)
	q.CanWithdraw = true
	return q, nil
}
