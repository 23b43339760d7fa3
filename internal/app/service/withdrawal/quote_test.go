package withdrawal

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestQuoteWithdrawal_FullBalanceWithFee(t *testing.T) {
	q, err := QuoteWithdrawal(d("2000"), d("0.3"), d("1000"))
	require.NoError(t, err)
	require.True(t, q.CanWithdraw)
	require.Equal(t, "2000", q.Available.String())
	require.Equal(t, "1400", q.Net.String())
	require.Equal(t, "600", q.Fee.String())
}

func TestQuoteWithdrawal_SecondRequestDenied(t *testing.T) {
	first, err := QuoteWithdrawal(d("2000"), d("0.3"), d("1000"))
	require.NoError(t, err)

	// The first request debited its available amount from the balance.
	q, err := QuoteWithdrawal(d("2000").Sub(first.Available), d("0.3"), d("1000"))
	require.ErrorIs(t, err, ErrBelowMinimum)
	require.False(t, q.CanWithdraw)
	require.True(t, q.Net.IsZero())
	require.True(t, q.Available.IsZero())
}

func TestQuoteWithdrawal_NewEarningsAfterPendingWithdrawal(t *testing.T) {
	first, err := QuoteWithdrawal(d("2000"), d("0.3"), d("1000"))
	require.NoError(t, err)

	// A new 2000 tip lands while the first withdrawal is still pending.
	balance := d("2000").Sub(first.Available).Add(d("2000"))
	q, err := QuoteWithdrawal(balance, d("0.3"), d("1000"))
	require.NoError(t, err)
	require.Equal(t, "2000", q.Available.String())
	require.Equal(t, "1400", q.Net.String())
}

func TestQuoteWithdrawal_BelowMinimum(t *testing.T) {
	q, err := QuoteWithdrawal(d("999.99"), d("0.3"), d("1000"))
	require.ErrorIs(t, err, ErrBelowMinimum)
	require.NotNil(t, q)
	require.Equal(t, "999.99", q.Available.String())

	_, err = QuoteWithdrawal(d("1000"), d("0.3"), d("1000"))
	require.NoError(t, err)
}

func TestQuoteWithdrawal_ZeroMinimumStillNeedsFunds(t *testing.T) {
	_, err := QuoteWithdrawal(d("0"), d("0.3"), d("0"))
	require.ErrorIs(t, err, ErrBelowMinimum)
}

func TestQuoteWithdrawal_RoundsToCents(t *testing.T) {
	q, err := QuoteWithdrawal(d("1000.01"), d("0.3"), d("1000"))
	require.NoError(t, err)
	require.Equal(t, "700.01", q.Net.String())
	require.Equal(t, "300", q.Fee.String())
}

func TestQuoteWithdrawal_InvalidFee(t *testing.T) {
	_, err := QuoteWithdrawal(d("2000"), d("1"), d("1000"))
	require.ErrorIs(t, err, ErrInvalidFee)
	_, err = QuoteWithdrawal(d("2000"), d("-0.1"), d("1000"))
	require.ErrorIs(t, err, ErrInvalidFee)
}

func TestRequestWithdrawalRequest_Validate(t *testing.T) {
	require.ErrorIs(t, (*RequestWithdrawalRequest)(nil).validate(), ErrValidation)
	require.ErrorIs(t, (&RequestWithdrawalRequest{BankName: " "}).validate(), ErrValidation)
	require.NoError(t, (&RequestWithdrawalRequest{BankName: "BROU", AccountNumber: "001"}).validate())
}
